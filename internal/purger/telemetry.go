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
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var (
	objectsExpandedCounter metric.Int64Counter
	urlsEnqueuedCounter    metric.Int64Counter
	itemsPurgedCounter     metric.Int64Counter
	itemsReleasedCounter   metric.Int64Counter
	itemsFailedCounter     metric.Int64Counter
	purgeCallCounter       metric.Int64Counter
	drainDuration          metric.Float64Histogram
)

func init() {
	meter := otel.Meter("github.com/Servebolt/servebolt-optimizer-sub002/internal/purger")

	var err error
	objectsExpandedCounter, err = meter.Int64Counter(
		"purgeq.objects_expanded_total",
		metric.WithDescription("Count of object-queue items expanded into url-queue items"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create objects_expanded_total counter: %w", err))
	}

	urlsEnqueuedCounter, err = meter.Int64Counter(
		"purgeq.urls_enqueued_total",
		metric.WithDescription("Count of url-queue items created by expansion"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create urls_enqueued_total counter: %w", err))
	}

	itemsPurgedCounter, err = meter.Int64Counter(
		"purgeq.items_purged_total",
		metric.WithDescription("Count of url-queue items completed after a successful purge call"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create items_purged_total counter: %w", err))
	}

	itemsReleasedCounter, err = meter.Int64Counter(
		"purgeq.items_released_total",
		metric.WithDescription("Count of queue items released back after a transient failure"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create items_released_total counter: %w", err))
	}

	itemsFailedCounter, err = meter.Int64Counter(
		"purgeq.items_failed_total",
		metric.WithDescription("Count of queue items flagged failed after exhausting retries"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create items_failed_total counter: %w", err))
	}

	purgeCallCounter, err = meter.Int64Counter(
		"purgeq.purge_calls_total",
		metric.WithDescription("Count of purge API calls issued"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create purge_calls_total counter: %w", err))
	}

	drainDuration, err = meter.Float64Histogram(
		"purgeq.drain_duration_seconds",
		metric.WithDescription("Duration of drain handler runs in seconds"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create drain_duration_seconds histogram: %w", err))
	}
}
