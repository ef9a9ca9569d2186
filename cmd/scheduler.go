// Copyright (C) 2026 Servebolt AS
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/Servebolt/servebolt-optimizer-sub002/cmd/dbopen"
)

func init() {
	cmd := &cobra.Command{
		Use:   "scheduler",
		Short: "Run the expand, drain, and gc cycles on a schedule",
		RunE: func(c *cobra.Command, _ []string) error {
			ctx, cfg, err := setupService("scheduler")
			if err != nil {
				return err
			}

			store, err := dbopen.PurgeDBStore(ctx)
			if err != nil {
				return fmt.Errorf("failed to open purgedb: %w", err)
			}
			defer store.Close()

			expander, stop := buildExpander(cfg)
			defer stop()
			p := buildPipeline(store, expander, cfg)

			sched := cron.New(cron.WithChain(
				cron.SkipIfStillRunning(cron.DiscardLogger),
			))

			jobs := []struct {
				name string
				spec string
				run  func(context.Context) error
			}{
				{"expand", cfg.Scheduler.ExpandSpec, p.expand.Run},
				{"drain", cfg.Scheduler.DrainSpec, p.drain.Run},
				{"gc", cfg.Scheduler.GCSpec, p.gc.Run},
			}
			for _, job := range jobs {
				job := job
				_, err := sched.AddFunc(job.spec, func() {
					if err := job.run(ctx); err != nil {
						slog.Error("scheduled cycle failed",
							slog.String("cycle", job.name),
							slog.Any("error", err))
					}
				})
				if err != nil {
					return fmt.Errorf("invalid %s schedule %q: %w", job.name, job.spec, err)
				}
			}

			slog.Info("scheduler started",
				slog.String("expand", cfg.Scheduler.ExpandSpec),
				slog.String("drain", cfg.Scheduler.DrainSpec),
				slog.String("gc", cfg.Scheduler.GCSpec))

			sched.Start()
			<-ctx.Done()
			slog.Info("shutting down scheduler")
			<-sched.Stop().Done()
			return nil
		},
	}

	rootCmd.AddCommand(cmd)
}
