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
	"context"
	"fmt"
)

// SelectItemsParams filters a read-only listing of a queue.
type SelectItemsParams struct {
	Queue          string
	Limit          int32
	OnlyUnreserved bool
}

// SelectItems lists items in a queue, newest first, without side effects.
func (s *Store) SelectItems(ctx context.Context, params SelectItemsParams) ([]QueueItem, error) {
	q := NewItemQuery(InQueue(params.Queue))
	if params.OnlyUnreserved {
		q.Where(NotReserved())
	}
	return q.OrderBy("id", true).Limit(params.Limit).Rows(ctx, s)
}

// SelectReservedItems lists currently leased items in a queue.
func (s *Store) SelectReservedItems(ctx context.Context, queue string, limit int32) ([]QueueItem, error) {
	return NewItemQuery(InQueue(queue), IsReserved(), IsActive()).
		OrderBy("id", true).Limit(limit).Rows(ctx, s)
}

// SelectChildren lists items in childQueue spawned by one parent item.
// With onlyUnfinished set, completed children are excluded; failed children
// are treated as finished since the parent can make no further progress
// on them.
func (s *Store) SelectChildren(ctx context.Context, childQueue string, parentID int64, parentQueue string, onlyUnfinished bool) ([]QueueItem, error) {
	q := NewItemQuery(InQueue(childQueue), BelongsToParent(parentID, parentQueue))
	if onlyUnfinished {
		q.Where(NotCompleted()).Where(NotFailed())
	}
	return q.OrderBy("id", true).Rows(ctx, s)
}

// ItemState selects which slice of a queue a count covers.
type ItemState int

const (
	StateAll ItemState = iota
	StateAvailable
	StateReserved
	StateCompleted
	StateFailed
)

// CountByState counts items in a queue by lifecycle state. maxAttempts is
// only consulted for StateAvailable.
func (s *Store) CountByState(ctx context.Context, queue string, state ItemState, maxAttempts int32) (int64, error) {
	q := NewItemQuery(InQueue(queue))
	switch state {
	case StateAll:
	case StateAvailable:
		q.Where(IsClaimable(maxAttempts))
	case StateReserved:
		q.Where(IsReserved()).Where(IsActive())
	case StateCompleted:
		q.Where(IsCompleted())
	case StateFailed:
		q.Where(IsFailed())
	default:
		return 0, fmt.Errorf("unknown item state %d", state)
	}
	return q.Count(ctx, s)
}

// ClearQueue bulk-deletes items in a queue. By default only active items
// are removed; a full flush of terminal rows requires all=true.
func (s *Store) ClearQueue(ctx context.Context, queue string, all bool) (int64, error) {
	q := NewItemQuery(InQueue(queue))
	if !all {
		q.Where(NotFailed()).Where(NotCompleted())
	}
	return s.DeleteWhere(ctx, q)
}
