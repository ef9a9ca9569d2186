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

// Package queuetest provides an in-memory queue store for tests. It
// mirrors purgedb's conditional-update claim semantics, so queue behavior
// including claim exclusivity is testable without a database.
package queuetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Servebolt/servebolt-optimizer-sub002/purgedb"
)

// MemStore is an in-memory implementation of the queue store.
type MemStore struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]*purgedb.QueueItem
}

// New returns an empty store.
func New() *MemStore {
	return &MemStore{rows: make(map[int64]*purgedb.QueueItem)}
}

// SetReservedAt overwrites an item's lease timestamp, for aging leases in
// stale-reservation tests.
func (m *MemStore) SetReservedAt(id int64, t *time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row, ok := m.rows[id]; ok {
		row.ReservedAt = t
	}
}

// SetCompletedAt overwrites an item's completion timestamp, for aging
// terminal rows in retention tests.
func (m *MemStore) SetCompletedAt(id int64, t *time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row, ok := m.rows[id]; ok {
		row.CompletedAt = t
	}
}

// Snapshot returns a copy of one row, for asserting persisted state.
func (m *MemStore) Snapshot(id int64) (purgedb.QueueItem, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return purgedb.QueueItem{}, false
	}
	return *row, true
}

func (m *MemStore) InsertQueueItem(_ context.Context, params purgedb.InsertQueueItemParams) (purgedb.QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	now := time.Now().UTC()
	row := purgedb.QueueItem{
		ID:          m.nextID,
		Queue:       params.Queue,
		ParentID:    params.ParentID,
		ParentQueue: params.ParentQueue,
		Payload:     params.Payload,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m.rows[row.ID] = &row
	return row, nil
}

func (m *MemStore) GetQueueItem(_ context.Context, id int64, queue string) (purgedb.QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok || row.Queue != queue {
		return purgedb.QueueItem{}, purgedb.ErrItemNotFound
	}
	return *row, nil
}

// selectLocked returns rows matching pred, newest first, capped at limit
// (zero means uncapped). Callers hold the lock.
func (m *MemStore) selectLocked(pred func(*purgedb.QueueItem) bool, limit int32) []purgedb.QueueItem {
	var out []purgedb.QueueItem
	for _, row := range m.rows {
		if pred(row) {
			out = append(out, *row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && int32(len(out)) > limit {
		out = out[:limit]
	}
	return out
}

func (m *MemStore) SelectItems(_ context.Context, params purgedb.SelectItemsParams) ([]purgedb.QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selectLocked(func(r *purgedb.QueueItem) bool {
		if r.Queue != params.Queue {
			return false
		}
		if params.OnlyUnreserved && r.ReservedAt != nil {
			return false
		}
		return true
	}, params.Limit), nil
}

func (m *MemStore) SelectReservedItems(_ context.Context, queue string, limit int32) ([]purgedb.QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selectLocked(func(r *purgedb.QueueItem) bool {
		return r.Queue == queue && r.ReservedAt != nil && r.IsActive()
	}, limit), nil
}

func (m *MemStore) SelectChildren(_ context.Context, childQueue string, parentID int64, parentQueue string, onlyUnfinished bool) ([]purgedb.QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selectLocked(func(r *purgedb.QueueItem) bool {
		if r.Queue != childQueue || r.ParentID == nil || r.ParentQueue == nil {
			return false
		}
		if *r.ParentID != parentID || *r.ParentQueue != parentQueue {
			return false
		}
		if onlyUnfinished && !r.IsActive() {
			return false
		}
		return true
	}, 0), nil
}

func claimable(r *purgedb.QueueItem, maxAttempts int32) bool {
	return r.IsActive() && r.ReservedAt == nil &&
		(r.Attempts < maxAttempts || r.ForceRetry)
}

func (m *MemStore) CountByState(_ context.Context, queue string, state purgedb.ItemState, maxAttempts int32) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, r := range m.rows {
		if r.Queue != queue {
			continue
		}
		switch state {
		case purgedb.StateAll:
			n++
		case purgedb.StateAvailable:
			if claimable(r, maxAttempts) {
				n++
			}
		case purgedb.StateReserved:
			if r.ReservedAt != nil && r.IsActive() {
				n++
			}
		case purgedb.StateCompleted:
			if r.CompletedAt != nil {
				n++
			}
		case purgedb.StateFailed:
			if r.FailedAt != nil {
				n++
			}
		}
	}
	return n, nil
}

func (m *MemStore) ClaimQueueItem(_ context.Context, params purgedb.ClaimQueueItemParams) (purgedb.QueueItem, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[params.ID]
	if !ok || row.Queue != params.Queue || !claimable(row, params.MaxAttempts) {
		return purgedb.QueueItem{}, false, nil
	}
	now := time.Now().UTC()
	row.ReservedAt = &now
	if params.DoAttempt {
		row.Attempts++
	}
	row.UpdatedAt = now
	return *row, true, nil
}

func (m *MemStore) ClaimQueueItems(ctx context.Context, params purgedb.ClaimBatchParams) ([]purgedb.QueueItem, error) {
	m.mu.Lock()
	candidates := m.selectLocked(func(r *purgedb.QueueItem) bool {
		return r.Queue == params.Queue && claimable(r, params.MaxAttempts)
	}, params.Limit)
	m.mu.Unlock()

	var claimed []purgedb.QueueItem
	for _, cand := range candidates {
		item, ok, err := m.ClaimQueueItem(ctx, purgedb.ClaimQueueItemParams{
			ID:          cand.ID,
			Queue:       params.Queue,
			DoAttempt:   params.DoAttempt,
			MaxAttempts: params.MaxAttempts,
		})
		if err != nil {
			return nil, err
		}
		if ok {
			claimed = append(claimed, item)
		}
	}
	return claimed, nil
}

func (m *MemStore) ReleaseQueueItem(_ context.Context, id int64, queue string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok || row.Queue != queue || row.ReservedAt == nil || !row.IsActive() {
		return false, nil
	}
	row.ReservedAt = nil
	row.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (m *MemStore) CompleteQueueItem(_ context.Context, id int64, queue string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok || row.Queue != queue || !row.IsActive() {
		return false, nil
	}
	now := time.Now().UTC()
	if row.ReservedAt == nil {
		row.ReservedAt = &now
	}
	row.CompletedAt = &now
	row.UpdatedAt = now
	return true, nil
}

func (m *MemStore) FailQueueItem(_ context.Context, id int64, queue string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok || row.Queue != queue || !row.IsActive() {
		return false, nil
	}
	now := time.Now().UTC()
	row.FailedAt = &now
	row.ReservedAt = nil
	row.UpdatedAt = now
	return true, nil
}

func (m *MemStore) RecordAttempt(_ context.Context, id int64, queue string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok || row.Queue != queue {
		return false, nil
	}
	row.Attempts++
	row.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (m *MemStore) SetForceRetry(_ context.Context, id int64, queue string, force bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok || row.Queue != queue {
		return false, nil
	}
	row.ForceRetry = force
	row.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (m *MemStore) FailExhausted(_ context.Context, queue string, maxAttempts int32) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	now := time.Now().UTC()
	for _, row := range m.rows {
		if row.Queue != queue || !row.IsActive() || row.ReservedAt != nil {
			continue
		}
		if row.Attempts >= maxAttempts && !row.ForceRetry {
			failedAt := now
			row.FailedAt = &failedAt
			row.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

func (m *MemStore) ReleaseStaleReservations(_ context.Context, queue string, olderThan time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, row := range m.rows {
		if row.Queue != queue || !row.IsActive() || row.ReservedAt == nil {
			continue
		}
		if row.ReservedAt.Before(olderThan) {
			row.ReservedAt = nil
			row.UpdatedAt = time.Now().UTC()
			n++
		}
	}
	return n, nil
}

func (m *MemStore) DeleteQueueItems(_ context.Context, queue string, ids []int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, id := range ids {
		if row, ok := m.rows[id]; ok && row.Queue == queue {
			delete(m.rows, id)
			n++
		}
	}
	return n, nil
}

func (m *MemStore) ClearQueue(_ context.Context, queue string, all bool) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, row := range m.rows {
		if row.Queue != queue {
			continue
		}
		if !all && !row.IsActive() {
			continue
		}
		delete(m.rows, id)
		n++
	}
	return n, nil
}

func (m *MemStore) DeleteTerminalOlderThan(_ context.Context, queue string, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, row := range m.rows {
		if row.Queue != queue {
			continue
		}
		completedBefore := row.CompletedAt != nil && row.CompletedAt.Before(before)
		failedBefore := row.FailedAt != nil && row.FailedAt.Before(before)
		if completedBefore || failedBefore {
			delete(m.rows, id)
			n++
		}
	}
	return n, nil
}
