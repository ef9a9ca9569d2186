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
	"os"
	"os/signal"
	"syscall"

	slogmulti "github.com/samber/slog-multi"

	"github.com/Servebolt/servebolt-optimizer-sub002/config"
	"github.com/Servebolt/servebolt-optimizer-sub002/internal/cdn"
	"github.com/Servebolt/servebolt-optimizer-sub002/internal/content"
	"github.com/Servebolt/servebolt-optimizer-sub002/internal/expand"
	"github.com/Servebolt/servebolt-optimizer-sub002/internal/idgen"
	"github.com/Servebolt/servebolt-optimizer-sub002/internal/purger"
	"github.com/Servebolt/servebolt-optimizer-sub002/internal/queue"
)

var myInstanceID int64

// setupService prepares logging, the instance id, and a context cancelled
// on SIGINT/SIGTERM. Every long-lived subcommand starts here.
func setupService(servicename string) (context.Context, *config.Config, error) {
	gen, err := idgen.NewGenerator()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create id generator: %w", err)
	}
	myInstanceID = gen.NextID()

	var opts *slog.HandlerOptions
	if os.Getenv("DEBUG") != "" {
		opts = &slog.HandlerOptions{Level: slog.LevelDebug}
	}
	slog.SetDefault(slog.New(slogmulti.Fanout(
		slog.NewTextHandler(os.Stdout, opts),
	)).With(
		slog.String("service", servicename),
		slog.Int64("instanceID", myInstanceID),
	))

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		stop()
	}()

	return ctx, cfg, nil
}

// pipeline bundles the constructed queue tiers and handlers.
type pipeline struct {
	objects *queue.Queue
	urls    *queue.Queue
	expand  *purger.ExpandHandler
	drain   *purger.DrainHandler
	gc      *purger.GCHandler
}

// buildQueues constructs the two queue instances over one store.
func buildQueues(store queue.Store, cfg *config.Config) (objects, urls *queue.Queue) {
	objects = queue.New(purger.ObjectQueueName, store,
		queue.WithMaxAttempts(cfg.Queue.MaxAttempts))
	urls = queue.New(purger.URLQueueName, store,
		queue.WithMaxAttempts(cfg.Queue.MaxAttempts))
	return objects, urls
}

// buildExpander constructs the configured expander flavor. The returned
// stop func releases the expander's caches when applicable.
//
// The CLI has no site integration compiled in, so it expands against the
// in-process content repository; deployments embedding this module supply
// their own content.Repository to buildPipeline.
func buildExpander(cfg *config.Config) (purger.PurgeExpander, func()) {
	repo := content.NewMemoryRepository()
	if cfg.Purge.UseTags {
		return expand.NewTagExpander(repo, nil, slog.Default()), func() {}
	}
	exp := expand.New(repo, expand.Config{PurgeDateArchives: cfg.Purge.DateArchives})
	return exp, exp.Stop
}

// buildPipeline wires the full drain pipeline from configuration.
func buildPipeline(store queue.Store, expander purger.PurgeExpander, cfg *config.Config) *pipeline {
	objects, urls := buildQueues(store, cfg)
	client := cdn.NewHTTPClient(cfg.CDN.Endpoint, cfg.CDN.Token, cfg.CDN.Timeout, slog.Default())
	return &pipeline{
		objects: objects,
		urls:    urls,
		expand:  purger.NewExpandHandler(objects, urls, expander, cfg.Queue.BatchSize, slog.Default()),
		drain:   purger.NewDrainHandler(urls, client, cfg.Queue.BatchSize, cfg.Queue.DrainPasses, slog.Default()),
		gc:      purger.NewGCHandler([]*queue.Queue{objects, urls}, cfg.Queue.LeaseTTL, cfg.Queue.Retention, slog.Default()),
	}
}
