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
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"github.com/Servebolt/servebolt-optimizer-sub002/cmd/dbopen"
)

func init() {
	var skipExpand, skipPurge, runGC bool

	cmd := &cobra.Command{
		Use:   "drain",
		Short: "Run one expand and purge cycle against the queues",
		RunE: func(c *cobra.Command, _ []string) error {
			ctx, cfg, err := setupService("drain")
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

			var errs *multierror.Error
			if !skipExpand {
				if err := p.expand.Run(ctx); err != nil {
					errs = multierror.Append(errs, fmt.Errorf("expand: %w", err))
				}
			}
			if !skipPurge {
				if err := p.drain.Run(ctx); err != nil {
					errs = multierror.Append(errs, fmt.Errorf("drain: %w", err))
				}
			}
			if runGC {
				if err := p.gc.Run(ctx); err != nil {
					errs = multierror.Append(errs, fmt.Errorf("gc: %w", err))
				}
			}
			return errs.ErrorOrNil()
		},
	}

	cmd.Flags().BoolVar(&skipExpand, "skip-expand", false, "do not expand queued objects before purging")
	cmd.Flags().BoolVar(&skipPurge, "skip-purge", false, "do not send purge requests, only expand")
	cmd.Flags().BoolVar(&runGC, "gc", false, "also release stale leases and prune terminal items")

	rootCmd.AddCommand(cmd)
}
