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
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Servebolt/servebolt-optimizer-sub002/cmd/dbopen"
	"github.com/Servebolt/servebolt-optimizer-sub002/config"
	"github.com/Servebolt/servebolt-optimizer-sub002/internal/cdn"
	"github.com/Servebolt/servebolt-optimizer-sub002/internal/purger"
)

func init() {
	purgeCmd := &cobra.Command{
		Use:   "purge",
		Short: "Enqueue purge work for changed content",
	}

	var originalURL string
	postCmd := &cobra.Command{
		Use:   "post <id>",
		Short: "Enqueue a purge for a changed post",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid post id %q: %w", args[0], err)
			}
			return withNotifier(func(ctx context.Context, n purger.ContentChangeNotifier) error {
				if err := n.OnPostChanged(ctx, id, originalURL); err != nil {
					return err
				}
				fmt.Printf("purge submitted for post %d\n", id)
				return nil
			})
		},
	}
	postCmd.Flags().StringVar(&originalURL, "original-url", "", "permalink the post had before this change, if it moved")

	var taxonomy string
	termCmd := &cobra.Command{
		Use:   "term <id>",
		Short: "Enqueue a purge for a changed taxonomy term",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid term id %q: %w", args[0], err)
			}
			return withNotifier(func(ctx context.Context, n purger.ContentChangeNotifier) error {
				if err := n.OnTermChanged(ctx, id, taxonomy); err != nil {
					return err
				}
				fmt.Printf("purge submitted for term %d (%s)\n", id, taxonomy)
				return nil
			})
		},
	}
	termCmd.Flags().StringVar(&taxonomy, "taxonomy", "category", "taxonomy the term belongs to")

	allCmd := &cobra.Command{
		Use:   "all",
		Short: "Enqueue a full cache purge",
		RunE: func(c *cobra.Command, _ []string) error {
			return withNotifier(func(ctx context.Context, n purger.ContentChangeNotifier) error {
				if err := n.OnBulkInvalidation(ctx); err != nil {
					return err
				}
				fmt.Println("full cache purge submitted")
				return nil
			})
		},
	}

	purgeCmd.AddCommand(postCmd, termCmd, allCmd)
	rootCmd.AddCommand(purgeCmd)
}

// withNotifier runs fn with the notifier the configured purge mode
// calls for. Queued mode records work in purgedb for the drains;
// immediate mode expands and purges before returning.
func withNotifier(fn func(context.Context, purger.ContentChangeNotifier) error) error {
	ctx, cfg, err := setupService("purge")
	if err != nil {
		return err
	}

	if cfg.Purge.Mode == config.ModeImmediate {
		expander, stop := buildExpander(cfg)
		defer stop()
		client := cdn.NewHTTPClient(cfg.CDN.Endpoint, cfg.CDN.Token, cfg.CDN.Timeout, slog.Default())
		policy := purger.ImmediateFailurePolicy(cfg.Purge.OnImmediateFailure)
		return fn(ctx, purger.NewImmediatePurger(expander, client, policy, slog.Default()))
	}

	store, err := dbopen.PurgeDBStore(ctx)
	if err != nil {
		return fmt.Errorf("failed to open purgedb: %w", err)
	}
	defer store.Close()

	objects, _ := buildQueues(store, cfg)
	return fn(ctx, purger.NewQueuedNotifier(objects))
}
