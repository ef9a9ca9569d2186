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

	"github.com/Servebolt/servebolt-optimizer-sub002/internal/cdn"
	"github.com/Servebolt/servebolt-optimizer-sub002/internal/expand"
	"github.com/Servebolt/servebolt-optimizer-sub002/internal/queue"
)

// ContentChangeNotifier is what content-mutation code calls when
// something changed. Calls are idempotent-safe: duplicate notifications
// for the same logical change each expand independently, and the purge
// provider deduplicates the resulting batches.
type ContentChangeNotifier interface {
	OnPostChanged(ctx context.Context, id int64, originalURL string) error
	OnTermChanged(ctx context.Context, id int64, taxonomy string) error
	OnBulkInvalidation(ctx context.Context) error
}

// QueuedNotifier records content changes as object-queue items, deferring
// all expensive work to the scheduled drains.
type QueuedNotifier struct {
	objects *queue.Queue
}

var _ ContentChangeNotifier = (*QueuedNotifier)(nil)

// NewQueuedNotifier wires a notifier onto the object queue.
func NewQueuedNotifier(objects *queue.Queue) *QueuedNotifier {
	return &QueuedNotifier{objects: objects}
}

// OnPostChanged enqueues a post change.
func (n *QueuedNotifier) OnPostChanged(ctx context.Context, id int64, originalURL string) error {
	return n.enqueue(ctx, PostRef{ID: id, OriginalURL: originalURL})
}

// OnTermChanged enqueues a term change.
func (n *QueuedNotifier) OnTermChanged(ctx context.Context, id int64, taxonomy string) error {
	return n.enqueue(ctx, TermRef{ID: id, Taxonomy: taxonomy})
}

// OnBulkInvalidation enqueues a purge of the entire cache.
func (n *QueuedNotifier) OnBulkInvalidation(ctx context.Context) error {
	return n.enqueue(ctx, PurgeAll{})
}

func (n *QueuedNotifier) enqueue(ctx context.Context, job ObjectJob) error {
	payload, err := MarshalObjectJob(job)
	if err != nil {
		return err
	}
	_, err = n.objects.Add(ctx, payload, "", 0)
	return err
}

// ImmediateFailurePolicy decides what an ImmediatePurger does with a
// failed purge.
type ImmediateFailurePolicy string

const (
	// LogOnly swallows the failure after logging it, keeping the
	// triggering request fail-open. This is the default.
	LogOnly ImmediateFailurePolicy = "logOnly"
	// SurfaceToCaller returns the failure to the triggering code.
	SurfaceToCaller ImmediateFailurePolicy = "surfaceToCaller"
)

// ImmediatePurger expands and purges synchronously inside the triggering
// request. Meant for low-traffic sites that do not run the queue drains.
type ImmediatePurger struct {
	expander PurgeExpander
	client   cdn.PurgeClient
	policy   ImmediateFailurePolicy
	logger   *slog.Logger
}

var _ ContentChangeNotifier = (*ImmediatePurger)(nil)

// NewImmediatePurger wires a synchronous purge path.
func NewImmediatePurger(expander PurgeExpander, client cdn.PurgeClient, policy ImmediateFailurePolicy, logger *slog.Logger) *ImmediatePurger {
	if policy == "" {
		policy = LogOnly
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ImmediatePurger{expander: expander, client: client, policy: policy, logger: logger}
}

// OnPostChanged expands and purges a post's footprint right away.
func (p *ImmediatePurger) OnPostChanged(ctx context.Context, id int64, originalURL string) error {
	targets, err := p.expander.ExpandPost(ctx, id, originalURL)
	if err != nil {
		return p.finish(err)
	}
	return p.finish(p.purgeTargets(ctx, targets))
}

// OnTermChanged expands and purges a term's footprint right away.
func (p *ImmediatePurger) OnTermChanged(ctx context.Context, id int64, taxonomy string) error {
	targets, err := p.expander.ExpandTerm(ctx, id, taxonomy)
	if err != nil {
		return p.finish(err)
	}
	return p.finish(p.purgeTargets(ctx, targets))
}

// OnBulkInvalidation purges the entire cache right away.
func (p *ImmediatePurger) OnBulkInvalidation(ctx context.Context) error {
	purgeCallCounter.Add(ctx, 1)
	return p.finish(p.client.PurgeAll(ctx))
}

func (p *ImmediatePurger) purgeTargets(ctx context.Context, targets []expand.Target) error {
	var urls, tags []string
	for _, t := range targets {
		if t.Kind == expand.KindTag {
			tags = append(tags, t.Value)
		} else {
			urls = append(urls, t.Value)
		}
	}
	if len(urls) > 0 {
		purgeCallCounter.Add(ctx, 1)
		if err := p.client.PurgeURLs(ctx, urls); err != nil {
			return err
		}
	}
	if len(tags) > 0 {
		purgeCallCounter.Add(ctx, 1)
		if err := p.client.PurgeTags(ctx, tags); err != nil {
			return err
		}
	}
	return nil
}

// finish applies the failure policy: immediate mode defaults to fail-open
// so content saves never break on a purge error.
func (p *ImmediatePurger) finish(err error) error {
	if err == nil {
		return nil
	}
	if p.policy == SurfaceToCaller {
		return err
	}
	p.logger.Error("immediate purge failed", slog.Any("error", err))
	return nil
}
