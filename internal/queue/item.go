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

package queue

import (
	"encoding/json"
	"time"

	"github.com/Servebolt/servebolt-optimizer-sub002/purgedb"
)

// Item is the in-memory view of one queue row. Its mutators implement the
// lifecycle state machine but never touch storage; all persistence goes
// through the owning Queue, so the transition rules live here and the I/O
// lives there.
type Item struct {
	row purgedb.QueueItem
}

// NewItem wraps a persisted row.
func NewItem(row purgedb.QueueItem) *Item {
	return &Item{row: row}
}

func (i *Item) ID() int64                   { return i.row.ID }
func (i *Item) Queue() string               { return i.row.Queue }
func (i *Item) ParentID() *int64            { return i.row.ParentID }
func (i *Item) ParentQueue() *string        { return i.row.ParentQueue }
func (i *Item) Payload() json.RawMessage    { return i.row.Payload }
func (i *Item) Attempts() int32             { return i.row.Attempts }
func (i *Item) ForceRetry() bool            { return i.row.ForceRetry }
func (i *Item) ReservedAt() *time.Time      { return i.row.ReservedAt }
func (i *Item) CompletedAt() *time.Time     { return i.row.CompletedAt }
func (i *Item) FailedAt() *time.Time        { return i.row.FailedAt }
func (i *Item) CreatedAt() time.Time        { return i.row.CreatedAt }
func (i *Item) UpdatedAt() time.Time        { return i.row.UpdatedAt }

// Row returns a copy of the underlying row.
func (i *Item) Row() purgedb.QueueItem { return i.row }

// IsReserved reports whether the item currently holds a lease.
func (i *Item) IsReserved() bool { return i.row.ReservedAt != nil }

// IsCompleted reports whether the item finished successfully.
func (i *Item) IsCompleted() bool { return i.row.CompletedAt != nil }

// IsFailed reports whether the item reached the terminal failed state.
func (i *Item) IsFailed() bool { return i.row.FailedAt != nil }

// IsActive reports whether the item is neither completed nor failed.
func (i *Item) IsActive() bool { return i.row.IsActive() }

// Reserve marks the item as leased. Returns false if it is already
// reserved or no longer active.
func (i *Item) Reserve() bool {
	if i.IsReserved() || !i.IsActive() {
		return false
	}
	now := time.Now().UTC()
	i.row.ReservedAt = &now
	i.touch(now)
	return true
}

// Release drops the lease. Releasing an unreserved item is a no-op
// returning false.
func (i *Item) Release() bool {
	if !i.IsReserved() || !i.IsActive() {
		return false
	}
	i.row.ReservedAt = nil
	i.touch(time.Now().UTC())
	return true
}

// Complete marks the item finished. Completion implies a reservation, so
// an unreserved item is reserved in the same transition.
func (i *Item) Complete() bool {
	if !i.IsActive() {
		return false
	}
	now := time.Now().UTC()
	if i.row.ReservedAt == nil {
		i.row.ReservedAt = &now
	}
	i.row.CompletedAt = &now
	i.touch(now)
	return true
}

// DoAttempt records one processing attempt.
func (i *Item) DoAttempt() {
	i.row.Attempts++
	i.touch(time.Now().UTC())
}

// FlagAsFailed moves the item to the terminal failed state and drops any
// lease it held.
func (i *Item) FlagAsFailed() bool {
	if !i.IsActive() {
		return false
	}
	now := time.Now().UTC()
	i.row.FailedAt = &now
	i.row.ReservedAt = nil
	i.touch(now)
	return true
}

// SetForceRetry toggles the manual retry override that bypasses the
// attempt ceiling.
func (i *Item) SetForceRetry(force bool) {
	i.row.ForceRetry = force
	i.touch(time.Now().UTC())
}

func (i *Item) touch(now time.Time) {
	i.row.UpdatedAt = now
}
