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

	"github.com/hashicorp/go-multierror"

	"github.com/Servebolt/servebolt-optimizer-sub002/internal/expand"
	"github.com/Servebolt/servebolt-optimizer-sub002/internal/queue"
)

// PurgeExpander computes the target set for a changed entity. Both the
// URL expander and the tag expander satisfy it.
type PurgeExpander interface {
	ExpandPost(ctx context.Context, id int64, originalURL string) ([]expand.Target, error)
	ExpandTerm(ctx context.Context, id int64, taxonomy string) ([]expand.Target, error)
}

// ExpandHandler drains the object queue: it fans each claimed item out
// into url-queue children, and completes parents whose children have all
// finished. Safe to run concurrently with itself; claims are exclusive.
type ExpandHandler struct {
	objects   *queue.Queue
	urls      *queue.Queue
	expander  PurgeExpander
	batchSize int32
	logger    *slog.Logger
}

// NewExpandHandler wires an expansion drain over the two queues.
func NewExpandHandler(objects, urls *queue.Queue, expander PurgeExpander, batchSize int32, logger *slog.Logger) *ExpandHandler {
	if batchSize <= 0 {
		batchSize = 30
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ExpandHandler{
		objects:   objects,
		urls:      urls,
		expander:  expander,
		batchSize: batchSize,
		logger:    logger.With(slog.String("handler", "expand")),
	}
}

// Run performs one expansion pass followed by the parent-completion
// sweep. Errors are isolated per item; one bad item never aborts the
// rest of the batch.
func (h *ExpandHandler) Run(ctx context.Context) error {
	if n, err := h.objects.FlagExhausted(ctx); err != nil {
		return err
	} else if n > 0 {
		itemsFailedCounter.Add(ctx, n)
		h.logger.Warn("flagged exhausted object items as failed", slog.Int64("count", n))
	}

	items, err := h.objects.GetAndReserveItems(ctx, h.batchSize, true)
	if err != nil {
		return err
	}

	var errs *multierror.Error
	for _, item := range items {
		if err := h.expandItem(ctx, item); err != nil {
			errs = multierror.Append(errs, err)
			h.logger.Error("expansion failed for item",
				slog.Int64("id", item.ID()), slog.Any("error", err))
		}
	}

	if err := h.sweepCompleted(ctx); err != nil {
		errs = multierror.Append(errs, err)
	}
	return errs.ErrorOrNil()
}

func (h *ExpandHandler) expandItem(ctx context.Context, item *queue.Item) error {
	job, err := UnmarshalObjectJob(item.Payload())
	if err != nil {
		// Malformed payloads produce no targets. Consume the item so it
		// does not churn through retries forever.
		h.logger.Warn("unrecognized object payload, consuming item",
			slog.Int64("id", item.ID()), slog.Any("error", err))
		_, cerr := h.objects.CompleteItem(ctx, item)
		return cerr
	}

	var targets []expand.Target
	switch j := job.(type) {
	case PurgeAll:
		payload, err := MarshalURLJob(PurgeAll{})
		if err != nil {
			return err
		}
		if _, err := h.urls.Add(ctx, payload, h.objects.Name(), item.ID()); err != nil {
			_, _ = h.objects.ReleaseItem(ctx, item)
			return err
		}
		urlsEnqueuedCounter.Add(ctx, 1)
		objectsExpandedCounter.Add(ctx, 1)
		return nil
	case PostRef:
		targets, err = h.expander.ExpandPost(ctx, j.ID, j.OriginalURL)
	case TermRef:
		targets, err = h.expander.ExpandTerm(ctx, j.ID, j.Taxonomy)
	}

	if err != nil {
		if expand.IsNotFound(err) {
			// The entity is gone; there is nothing left to purge.
			h.logger.Info("entity not found, consuming item",
				slog.Int64("id", item.ID()))
			_, cerr := h.objects.CompleteItem(ctx, item)
			return cerr
		}
		// Presumed transient: release for a later retry. The claim
		// already counted the attempt.
		if _, rerr := h.objects.ReleaseItem(ctx, item); rerr != nil {
			return rerr
		}
		itemsReleasedCounter.Add(ctx, 1)
		return err
	}

	for _, target := range targets {
		payload, err := MarshalURLJob(targetToJob(target))
		if err != nil {
			return err
		}
		if _, err := h.urls.Add(ctx, payload, h.objects.Name(), item.ID()); err != nil {
			_, _ = h.objects.ReleaseItem(ctx, item)
			return err
		}
	}
	urlsEnqueuedCounter.Add(ctx, int64(len(targets)))
	objectsExpandedCounter.Add(ctx, 1)
	return nil
}

// sweepCompleted completes reserved object items with no unfinished
// children left in the url queue. Items whose children are still pending
// stay reserved and are re-checked on the next pass.
func (h *ExpandHandler) sweepCompleted(ctx context.Context) error {
	reserved, err := h.objects.GetReservedItems(ctx, h.batchSize)
	if err != nil {
		return err
	}

	var errs *multierror.Error
	for _, item := range reserved {
		unfinished, err := h.urls.GetUnfinishedItemsByParent(ctx, item.ID(), h.objects.Name())
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		if len(unfinished) > 0 {
			continue
		}
		if _, err := h.objects.CompleteItem(ctx, item); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}

func targetToJob(t expand.Target) URLJob {
	if t.Kind == expand.KindTag {
		return TagRef{Tag: t.Value}
	}
	return URLRef{URL: t.Value}
}
