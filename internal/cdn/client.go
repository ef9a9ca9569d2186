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

// Package cdn is the boundary to the edge cache's purge API. Batches are
// atomic: one failed call means the whole batch is retried by the queue.
package cdn

import "context"

// PurgeClient sends invalidations to the edge cache.
type PurgeClient interface {
	// PurgeURLs invalidates a batch of concrete URLs.
	PurgeURLs(ctx context.Context, urls []string) error
	// PurgeTags invalidates every response carrying any of the tags.
	PurgeTags(ctx context.Context, tags []string) error
	// PurgeAll invalidates the entire cache.
	PurgeAll(ctx context.Context) error
}
