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
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Servebolt/servebolt-optimizer-sub002/cmd/dbopen"
	"github.com/Servebolt/servebolt-optimizer-sub002/purgedb/migrations"
)

func init() {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations for the purge queue",
		RunE: func(c *cobra.Command, _ []string) error {
			servicename := "migrate"
			ctx, _, err := setupService(servicename)
			if err != nil {
				return err
			}

			pool, err := dbopen.ConnectToPurgeDB(ctx)
			if err != nil {
				return fmt.Errorf("failed to connect to purgedb: %w", err)
			}
			defer pool.Close()

			slog.Info("running purgedb migrations")
			if err := migrations.RunMigrationsUp(ctx, pool); err != nil {
				return fmt.Errorf("migrations failed: %w", err)
			}
			slog.Info("migrations complete")
			return nil
		},
	}

	rootCmd.AddCommand(cmd)
}
