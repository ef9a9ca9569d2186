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
	"context"
	"time"

	"github.com/Servebolt/servebolt-optimizer-sub002/purgedb"
)

// Store defines the persistence operations a Queue needs. *purgedb.Store
// satisfies it; tests use an in-memory fake with the same conditional-
// update claim semantics.
type Store interface {
	InsertQueueItem(ctx context.Context, params purgedb.InsertQueueItemParams) (purgedb.QueueItem, error)
	GetQueueItem(ctx context.Context, id int64, queue string) (purgedb.QueueItem, error)
	SelectItems(ctx context.Context, params purgedb.SelectItemsParams) ([]purgedb.QueueItem, error)
	SelectReservedItems(ctx context.Context, queue string, limit int32) ([]purgedb.QueueItem, error)
	SelectChildren(ctx context.Context, childQueue string, parentID int64, parentQueue string, onlyUnfinished bool) ([]purgedb.QueueItem, error)
	CountByState(ctx context.Context, queue string, state purgedb.ItemState, maxAttempts int32) (int64, error)
	ClaimQueueItem(ctx context.Context, params purgedb.ClaimQueueItemParams) (purgedb.QueueItem, bool, error)
	ClaimQueueItems(ctx context.Context, params purgedb.ClaimBatchParams) ([]purgedb.QueueItem, error)
	ReleaseQueueItem(ctx context.Context, id int64, queue string) (bool, error)
	CompleteQueueItem(ctx context.Context, id int64, queue string) (bool, error)
	FailQueueItem(ctx context.Context, id int64, queue string) (bool, error)
	RecordAttempt(ctx context.Context, id int64, queue string) (bool, error)
	SetForceRetry(ctx context.Context, id int64, queue string, force bool) (bool, error)
	FailExhausted(ctx context.Context, queue string, maxAttempts int32) (int64, error)
	ReleaseStaleReservations(ctx context.Context, queue string, olderThan time.Time) (int64, error)
	DeleteQueueItems(ctx context.Context, queue string, ids []int64) (int64, error)
	ClearQueue(ctx context.Context, queue string, all bool) (int64, error)
	DeleteTerminalOlderThan(ctx context.Context, queue string, before time.Time) (int64, error)
}

var _ Store = (*purgedb.Store)(nil)
