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

// Package queue implements a named persistent work queue with lease
// semantics over purgedb. Items are claimed with conditional updates, so
// overlapping drain runs never double-claim work.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/Servebolt/servebolt-optimizer-sub002/purgedb"
)

// DefaultMaxAttempts is the attempt ceiling applied when no override is
// configured.
const DefaultMaxAttempts = 3

// ItemRef resolves to a queue item id. Both *Item and ID satisfy it, so
// lifecycle methods accept an item handle or a bare id.
type ItemRef interface {
	ItemID() int64
}

// ID is a bare queue item id usable as an ItemRef.
type ID int64

// ItemID implements ItemRef.
func (id ID) ItemID() int64 { return int64(id) }

// ItemID implements ItemRef for item handles.
func (i *Item) ItemID() int64 { return i.row.ID }

// ClearScope selects what ClearQueue removes.
type ClearScope int

const (
	// ClearActive removes only items that are neither completed nor
	// failed. This is the default scope.
	ClearActive ClearScope = iota
	// ClearAll flushes the queue unconditionally, terminal rows included.
	ClearAll
)

// Queue is one named queue over the shared purge_queue_items table. All
// mutation of persisted item state goes through here.
type Queue struct {
	name        string
	store       Store
	maxAttempts int32
	logger      *slog.Logger
}

// Option configures a Queue.
type Option func(*Queue)

// WithMaxAttempts overrides the attempt ceiling.
func WithMaxAttempts(n int32) Option {
	return func(q *Queue) {
		if n > 0 {
			q.maxAttempts = n
		}
	}
}

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) { q.logger = l }
}

// New constructs a queue instance. Construct one per queue name at startup
// and hand references to whatever needs them.
func New(name string, store Store, opts ...Option) *Queue {
	q := &Queue{
		name:        name,
		store:       store,
		maxAttempts: DefaultMaxAttempts,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(q)
	}
	q.logger = q.logger.With(slog.String("queue", name))
	return q
}

// Name returns the queue name.
func (q *Queue) Name() string { return q.name }

// MaxAttempts returns the attempt ceiling.
func (q *Queue) MaxAttempts() int32 { return q.maxAttempts }

// Add inserts a new item. parentQueue/parentID link the item to the queue
// item that spawned it; pass "" and 0 for no parent. A parent reference
// pointing at this same queue is dropped rather than rejected, so callers
// never have to special-case the linkage.
func (q *Queue) Add(ctx context.Context, payload json.RawMessage, parentQueue string, parentID int64) (*Item, error) {
	params := purgedb.InsertQueueItemParams{
		Queue:   q.name,
		Payload: payload,
	}
	if parentQueue != "" && parentQueue != q.name {
		params.ParentID = &parentID
		params.ParentQueue = &parentQueue
	} else if parentQueue == q.name {
		q.logger.Debug("dropping same-queue parent reference",
			slog.Int64("parentID", parentID))
	}
	row, err := q.store.InsertQueueItem(ctx, params)
	if err != nil {
		return nil, err
	}
	return NewItem(row), nil
}

// GetItems reads items without side effects, newest first.
func (q *Queue) GetItems(ctx context.Context, limit int32, onlyUnreserved bool) ([]*Item, error) {
	rows, err := q.store.SelectItems(ctx, purgedb.SelectItemsParams{
		Queue:          q.name,
		Limit:          limit,
		OnlyUnreserved: onlyUnreserved,
	})
	if err != nil {
		return nil, err
	}
	return wrapRows(rows), nil
}

// GetAndReserveItems claims up to limit claimable items for this worker.
// With doAttempt set, each claim also counts as a processing attempt.
// Safe to call concurrently; an item lost to another claimer is skipped.
func (q *Queue) GetAndReserveItems(ctx context.Context, limit int32, doAttempt bool) ([]*Item, error) {
	rows, err := q.store.ClaimQueueItems(ctx, purgedb.ClaimBatchParams{
		Queue:       q.name,
		Limit:       limit,
		DoAttempt:   doAttempt,
		MaxAttempts: q.maxAttempts,
	})
	if err != nil {
		return nil, err
	}
	return wrapRows(rows), nil
}

// GetReservedItems lists currently leased items.
func (q *Queue) GetReservedItems(ctx context.Context, limit int32) ([]*Item, error) {
	rows, err := q.store.SelectReservedItems(ctx, q.name, limit)
	if err != nil {
		return nil, err
	}
	return wrapRows(rows), nil
}

// GetUnfinishedItemsByParent lists items in this queue spawned by the
// given parent that are not yet completed or failed. The parent tier uses
// this to decide whether it may self-complete.
func (q *Queue) GetUnfinishedItemsByParent(ctx context.Context, parentID int64, parentQueue string) ([]*Item, error) {
	rows, err := q.store.SelectChildren(ctx, q.name, parentID, parentQueue, true)
	if err != nil {
		return nil, err
	}
	return wrapRows(rows), nil
}

// ReserveItem leases a single item with the same conditional update used
// for batch claims. An id that does not belong to this queue, or an item
// already reserved, yields false without error.
func (q *Queue) ReserveItem(ctx context.Context, ref ItemRef) (bool, error) {
	item, ok, err := q.resolve(ctx, ref)
	if err != nil || !ok {
		return false, err
	}
	if !item.Reserve() {
		return false, nil
	}
	_, claimed, err := q.store.ClaimQueueItem(ctx, purgedb.ClaimQueueItemParams{
		ID:          item.ID(),
		Queue:       q.name,
		DoAttempt:   false,
		MaxAttempts: q.maxAttempts,
	})
	return claimed, err
}

// ReleaseItem drops an item's lease, returning it to the claimable pool.
// Releasing an unreserved item is a no-op returning false.
func (q *Queue) ReleaseItem(ctx context.Context, ref ItemRef) (bool, error) {
	item, ok, err := q.resolve(ctx, ref)
	if err != nil || !ok {
		return false, err
	}
	if !item.Release() {
		return false, nil
	}
	return q.store.ReleaseQueueItem(ctx, item.ID(), q.name)
}

// CompleteItem marks an item finished.
func (q *Queue) CompleteItem(ctx context.Context, ref ItemRef) (bool, error) {
	item, ok, err := q.resolve(ctx, ref)
	if err != nil || !ok {
		return false, err
	}
	if !item.Complete() {
		return false, nil
	}
	return q.store.CompleteQueueItem(ctx, item.ID(), q.name)
}

// SetItemAsFailed flags an item as terminally failed.
func (q *Queue) SetItemAsFailed(ctx context.Context, ref ItemRef) (bool, error) {
	item, ok, err := q.resolve(ctx, ref)
	if err != nil || !ok {
		return false, err
	}
	if !item.FlagAsFailed() {
		return false, nil
	}
	return q.store.FailQueueItem(ctx, item.ID(), q.name)
}

// DoAttempt records one processing attempt on an item.
func (q *Queue) DoAttempt(ctx context.Context, ref ItemRef) (bool, error) {
	item, ok, err := q.resolve(ctx, ref)
	if err != nil || !ok {
		return false, err
	}
	item.DoAttempt()
	return q.store.RecordAttempt(ctx, item.ID(), q.name)
}

// SetForceRetry toggles the manual retry override used for re-queueing
// exhausted items.
func (q *Queue) SetForceRetry(ctx context.Context, ref ItemRef, force bool) (bool, error) {
	item, ok, err := q.resolve(ctx, ref)
	if err != nil || !ok {
		return false, err
	}
	item.SetForceRetry(force)
	return q.store.SetForceRetry(ctx, item.ID(), q.name, force)
}

// CountItems returns the total number of items in the queue.
func (q *Queue) CountItems(ctx context.Context) (int64, error) {
	return q.store.CountByState(ctx, q.name, purgedb.StateAll, q.maxAttempts)
}

// CountAvailableItems returns how many items a claim call could return.
func (q *Queue) CountAvailableItems(ctx context.Context) (int64, error) {
	return q.store.CountByState(ctx, q.name, purgedb.StateAvailable, q.maxAttempts)
}

// CountReservedItems returns how many items are currently leased.
func (q *Queue) CountReservedItems(ctx context.Context) (int64, error) {
	return q.store.CountByState(ctx, q.name, purgedb.StateReserved, q.maxAttempts)
}

// CountCompletedItems returns how many items finished successfully.
func (q *Queue) CountCompletedItems(ctx context.Context) (int64, error) {
	return q.store.CountByState(ctx, q.name, purgedb.StateCompleted, q.maxAttempts)
}

// CountFailedItems returns how many items are terminally failed.
func (q *Queue) CountFailedItems(ctx context.Context) (int64, error) {
	return q.store.CountByState(ctx, q.name, purgedb.StateFailed, q.maxAttempts)
}

// HasItems reports whether the queue holds any items at all.
func (q *Queue) HasItems(ctx context.Context) (bool, error) {
	n, err := q.CountItems(ctx)
	return n > 0, err
}

// HasAvailable reports whether any item is claimable right now.
func (q *Queue) HasAvailable(ctx context.Context) (bool, error) {
	n, err := q.CountAvailableItems(ctx)
	return n > 0, err
}

// IsEmpty reports whether the queue holds no items.
func (q *Queue) IsEmpty(ctx context.Context) (bool, error) {
	has, err := q.HasItems(ctx)
	return !has, err
}

// ClearQueue bulk-deletes items. ClearActive (the default posture) removes
// only non-terminal items; flushing everything requires ClearAll.
func (q *Queue) ClearQueue(ctx context.Context, scope ClearScope) (int64, error) {
	return q.store.ClearQueue(ctx, q.name, scope == ClearAll)
}

// Delete removes one item.
func (q *Queue) Delete(ctx context.Context, ref ItemRef) (bool, error) {
	n, err := q.store.DeleteQueueItems(ctx, q.name, []int64{ref.ItemID()})
	return n > 0, err
}

// DeleteItems removes the given items.
func (q *Queue) DeleteItems(ctx context.Context, items []*Item) (int64, error) {
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID())
	}
	return q.store.DeleteQueueItems(ctx, q.name, ids)
}

// FlagExhausted fails every unreserved active item at or over the attempt
// ceiling that is not marked for forced retry. Drains call this first so
// exhausted items leave the claimable pool before the next batch.
func (q *Queue) FlagExhausted(ctx context.Context) (int64, error) {
	return q.store.FailExhausted(ctx, q.name, q.maxAttempts)
}

// ReleaseStale releases items whose lease is older than ttl, recovering
// work abandoned by dead workers.
func (q *Queue) ReleaseStale(ctx context.Context, ttl time.Duration) (int64, error) {
	return q.store.ReleaseStaleReservations(ctx, q.name, time.Now().UTC().Add(-ttl))
}

// GC deletes terminal items older than the retention window.
func (q *Queue) GC(ctx context.Context, retention time.Duration) (int64, error) {
	return q.store.DeleteTerminalOlderThan(ctx, q.name, time.Now().UTC().Add(-retention))
}

// resolve re-fetches an item by reference and verifies queue membership.
// Unknown or foreign ids come back ok=false with no error; lifecycle
// calls treat that as a no-op rather than a cross-queue mutation.
func (q *Queue) resolve(ctx context.Context, ref ItemRef) (*Item, bool, error) {
	row, err := q.store.GetQueueItem(ctx, ref.ItemID(), q.name)
	if errors.Is(err, purgedb.ErrItemNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return NewItem(row), true, nil
}

func wrapRows(rows []purgedb.QueueItem) []*Item {
	items := make([]*Item, 0, len(rows))
	for _, row := range rows {
		items = append(items, NewItem(row))
	}
	return items
}
