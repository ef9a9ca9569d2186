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

package purgedb

import (
	"encoding/json"
	"time"
)

// QueueItem is one row of purge_queue_items.
type QueueItem struct {
	ID          int64
	Queue       string
	ParentID    *int64
	ParentQueue *string
	Payload     json.RawMessage
	Attempts    int32
	ForceRetry  bool
	ReservedAt  *time.Time
	CompletedAt *time.Time
	FailedAt    *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsActive reports whether the item is neither completed nor failed.
func (i QueueItem) IsActive() bool {
	return i.CompletedAt == nil && i.FailedAt == nil
}

// IsReserved reports whether a worker currently holds a lease on the item.
func (i QueueItem) IsReserved() bool {
	return i.ReservedAt != nil
}

// InsertQueueItemParams describes a new queue item. ParentID and ParentQueue
// must both be set or both be nil.
type InsertQueueItemParams struct {
	Queue       string
	ParentID    *int64
	ParentQueue *string
	Payload     json.RawMessage
}
