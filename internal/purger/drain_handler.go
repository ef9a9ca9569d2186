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

package purger

import (
	"context"
	"log/slog"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/Servebolt/servebolt-optimizer-sub002/internal/cdn"
	"github.com/Servebolt/servebolt-optimizer-sub002/internal/queue"
)

// DrainHandler drains the url queue: it claims a batch, issues one
// batched purge call per target kind, and completes or releases the whole
// batch on the outcome. The purge API reports per batch, not per item, so
// the batch is treated as atomic.
type DrainHandler struct {
	urls      *queue.Queue
	client    cdn.PurgeClient
	batchSize int32
	passes    int
	logger    *slog.Logger
}

// NewDrainHandler wires a url-queue drain against a purge client. passes
// bounds how many batches one trigger works through, keeping enqueue-to-
// purge latency low without a long-running process.
func NewDrainHandler(urls *queue.Queue, client cdn.PurgeClient, batchSize int32, passes int, logger *slog.Logger) *DrainHandler {
	if batchSize <= 0 {
		batchSize = 100
	}
	if passes <= 0 {
		passes = 3
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DrainHandler{
		urls:      urls,
		client:    client,
		batchSize: batchSize,
		passes:    passes,
		logger:    logger.With(slog.String("handler", "drain")),
	}
}

// Run performs up to the configured number of drain passes. It returns
// after the first empty batch or the first failed purge call; released
// items wait for the next trigger.
func (h *DrainHandler) Run(ctx context.Context) error {
	start := time.Now()
	defer func() {
		drainDuration.Record(ctx, time.Since(start).Seconds())
	}()

	for pass := 0; pass < h.passes; pass++ {
		done, err := h.runPass(ctx)
		if err != nil || done {
			return err
		}
	}
	return nil
}

func (h *DrainHandler) runPass(ctx context.Context) (done bool, err error) {
	if n, err := h.urls.FlagExhausted(ctx); err != nil {
		return true, err
	} else if n > 0 {
		itemsFailedCounter.Add(ctx, n)
		h.logger.Warn("flagged exhausted url items as failed", slog.Int64("count", n))
	}

	items, err := h.urls.GetAndReserveItems(ctx, h.batchSize, true)
	if err != nil {
		return true, err
	}
	if len(items) == 0 {
		return true, nil
	}

	urls, tags, purgeAll := h.splitBatch(ctx, items)

	if err := h.callPurge(ctx, urls, tags, purgeAll); err != nil {
		// Presumed transient. Release the whole batch for retry; the
		// claim already counted the attempt on each item.
		h.logger.Error("purge call failed, releasing batch",
			slog.Int("items", len(items)), slog.Any("error", err))
		var errs *multierror.Error
		errs = multierror.Append(errs, err)
		for _, item := range items {
			if _, rerr := h.urls.ReleaseItem(ctx, item); rerr != nil {
				errs = multierror.Append(errs, rerr)
			}
		}
		itemsReleasedCounter.Add(ctx, int64(len(items)))
		return true, errs.ErrorOrNil()
	}

	var errs *multierror.Error
	for _, item := range items {
		if _, cerr := h.urls.CompleteItem(ctx, item); cerr != nil {
			errs = multierror.Append(errs, cerr)
		}
	}
	itemsPurgedCounter.Add(ctx, int64(len(items)))
	h.logger.Info("purged batch",
		slog.Int("urls", len(urls)),
		slog.Int("tags", len(tags)),
		slog.Bool("purgeAll", purgeAll))

	return int32(len(items)) < h.batchSize, errs.ErrorOrNil()
}

// splitBatch classifies claimed items into URL, tag, and purge-all work.
// Duplicate values collapse so the provider sees each key once per call.
// Malformed payloads are consumed on the spot: they can produce no purge.
func (h *DrainHandler) splitBatch(ctx context.Context, items []*queue.Item) (urls, tags []string, purgeAll bool) {
	seenURL := map[string]struct{}{}
	seenTag := map[string]struct{}{}
	for _, item := range items {
		job, err := UnmarshalURLJob(item.Payload())
		if err != nil {
			h.logger.Warn("unrecognized url payload, consuming item",
				slog.Int64("id", item.ID()), slog.Any("error", err))
			_, _ = h.urls.CompleteItem(ctx, item)
			continue
		}
		switch j := job.(type) {
		case PurgeAll:
			purgeAll = true
		case URLRef:
			if _, ok := seenURL[j.URL]; !ok {
				seenURL[j.URL] = struct{}{}
				urls = append(urls, j.URL)
			}
		case TagRef:
			if _, ok := seenTag[j.Tag]; !ok {
				seenTag[j.Tag] = struct{}{}
				tags = append(tags, j.Tag)
			}
		}
	}
	return urls, tags, purgeAll
}

// callPurge issues the batched calls. A purge-all short-circuits the
// batch: invalidating everything covers every queued key.
func (h *DrainHandler) callPurge(ctx context.Context, urls, tags []string, purgeAll bool) error {
	if purgeAll {
		purgeCallCounter.Add(ctx, 1)
		return h.client.PurgeAll(ctx)
	}
	if len(urls) > 0 {
		purgeCallCounter.Add(ctx, 1)
		if err := h.client.PurgeURLs(ctx, urls); err != nil {
			return err
		}
	}
	if len(tags) > 0 {
		purgeCallCounter.Add(ctx, 1)
		if err := h.client.PurgeTags(ctx, tags); err != nil {
			return err
		}
	}
	return nil
}
