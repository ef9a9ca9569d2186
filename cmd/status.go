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
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Servebolt/servebolt-optimizer-sub002/cmd/dbopen"
	"github.com/Servebolt/servebolt-optimizer-sub002/internal/queue"
)

func init() {
	var clearQueue string
	var clearAll bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show per-queue item counts",
		RunE: func(c *cobra.Command, _ []string) error {
			ctx, cfg, err := setupService("status")
			if err != nil {
				return err
			}

			store, err := dbopen.PurgeDBStore(ctx)
			if err != nil {
				return fmt.Errorf("failed to open purgedb: %w", err)
			}
			defer store.Close()

			objects, urls := buildQueues(store, cfg)

			if clearQueue != "" {
				return clearOne(ctx, clearQueue, clearAll, objects, urls)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
			fmt.Fprintln(w, "QUEUE\tTOTAL\tAVAILABLE\tRESERVED\tCOMPLETED\tFAILED")
			for _, q := range []*queue.Queue{objects, urls} {
				if err := printCounts(ctx, w, q); err != nil {
					return err
				}
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&clearQueue, "clear", "", "clear the named queue instead of printing counts")
	cmd.Flags().BoolVar(&clearAll, "include-finished", false, "when clearing, also remove completed and failed items")

	rootCmd.AddCommand(cmd)
}

func printCounts(ctx context.Context, w *tabwriter.Writer, q *queue.Queue) error {
	total, err := q.CountItems(ctx)
	if err != nil {
		return fmt.Errorf("count %s: %w", q.Name(), err)
	}
	available, err := q.CountAvailableItems(ctx)
	if err != nil {
		return fmt.Errorf("count %s: %w", q.Name(), err)
	}
	reserved, err := q.CountReservedItems(ctx)
	if err != nil {
		return fmt.Errorf("count %s: %w", q.Name(), err)
	}
	completed, err := q.CountCompletedItems(ctx)
	if err != nil {
		return fmt.Errorf("count %s: %w", q.Name(), err)
	}
	failed, err := q.CountFailedItems(ctx)
	if err != nil {
		return fmt.Errorf("count %s: %w", q.Name(), err)
	}
	fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\n", q.Name(), total, available, reserved, completed, failed)
	return nil
}

func clearOne(ctx context.Context, name string, includeFinished bool, queues ...*queue.Queue) error {
	scope := queue.ClearActive
	if includeFinished {
		scope = queue.ClearAll
	}
	for _, q := range queues {
		if q.Name() != name {
			continue
		}
		n, err := q.ClearQueue(ctx, scope)
		if err != nil {
			return fmt.Errorf("clear %s: %w", name, err)
		}
		fmt.Printf("removed %d items from %s\n", n, name)
		return nil
	}
	return fmt.Errorf("unknown queue %q", name)
}
