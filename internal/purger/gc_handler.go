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

	"github.com/Servebolt/servebolt-optimizer-sub002/internal/queue"
)

// GCHandler recovers stale reservations left by dead workers and removes
// terminal rows past the retention window, on both queues.
type GCHandler struct {
	queues    []*queue.Queue
	leaseTTL  time.Duration
	retention time.Duration
	logger    *slog.Logger
}

// NewGCHandler wires garbage collection over the given queues.
func NewGCHandler(queues []*queue.Queue, leaseTTL, retention time.Duration, logger *slog.Logger) *GCHandler {
	if leaseTTL <= 0 {
		leaseTTL = time.Hour
	}
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GCHandler{
		queues:    queues,
		leaseTTL:  leaseTTL,
		retention: retention,
		logger:    logger.With(slog.String("handler", "gc")),
	}
}

// Run performs one garbage-collection pass.
func (h *GCHandler) Run(ctx context.Context) error {
	var errs *multierror.Error
	for _, q := range h.queues {
		released, err := q.ReleaseStale(ctx, h.leaseTTL)
		if err != nil {
			errs = multierror.Append(errs, err)
		} else if released > 0 {
			itemsReleasedCounter.Add(ctx, released)
			h.logger.Warn("released stale reservations",
				slog.String("queue", q.Name()), slog.Int64("count", released))
		}

		deleted, err := q.GC(ctx, h.retention)
		if err != nil {
			errs = multierror.Append(errs, err)
		} else if deleted > 0 {
			h.logger.Info("garbage-collected terminal items",
				slog.String("queue", q.Name()), slog.Int64("count", deleted))
		}
	}
	return errs.ErrorOrNil()
}
