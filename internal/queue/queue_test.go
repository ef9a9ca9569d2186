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
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Servebolt/servebolt-optimizer-sub002/internal/queue/queuetest"
)

func testQueue(t *testing.T, name string) (*Queue, *queuetest.MemStore) {
	t.Helper()
	store := queuetest.New()
	return New(name, store), store
}

func payload(t *testing.T, s string) json.RawMessage {
	t.Helper()
	return json.RawMessage(s)
}

func TestAddAndGetItems(t *testing.T) {
	ctx := context.Background()
	q, _ := testQueue(t, "purge-url")

	first, err := q.Add(ctx, payload(t, `{"n":1}`), "", 0)
	require.NoError(t, err)
	second, err := q.Add(ctx, payload(t, `{"n":2}`), "", 0)
	require.NoError(t, err)

	items, err := q.GetItems(ctx, 10, false)
	require.NoError(t, err)
	require.Len(t, items, 2)
	// newest first
	assert.Equal(t, second.ID(), items[0].ID())
	assert.Equal(t, first.ID(), items[1].ID())
	assert.True(t, items[0].IsActive())
	assert.False(t, items[0].IsReserved())
}

func TestAddParentLinkage(t *testing.T) {
	ctx := context.Background()
	store := queuetest.New()
	objects := New("purge-object", store)
	urls := New("purge-url", store)

	parent, err := objects.Add(ctx, payload(t, `{}`), "", 0)
	require.NoError(t, err)

	child, err := urls.Add(ctx, payload(t, `{}`), objects.Name(), parent.ID())
	require.NoError(t, err)
	require.NotNil(t, child.ParentID())
	assert.Equal(t, parent.ID(), *child.ParentID())
	require.NotNil(t, child.ParentQueue())
	assert.Equal(t, "purge-object", *child.ParentQueue())
}

func TestAddDropsSameQueueParent(t *testing.T) {
	ctx := context.Background()
	q, _ := testQueue(t, "purge-url")

	parent, err := q.Add(ctx, payload(t, `{}`), "", 0)
	require.NoError(t, err)

	child, err := q.Add(ctx, payload(t, `{}`), q.Name(), parent.ID())
	require.NoError(t, err)
	assert.Nil(t, child.ParentID())
	assert.Nil(t, child.ParentQueue())
}

func TestGetAndReserveItems(t *testing.T) {
	ctx := context.Background()
	q, _ := testQueue(t, "purge-url")

	for i := 0; i < 5; i++ {
		_, err := q.Add(ctx, payload(t, `{}`), "", 0)
		require.NoError(t, err)
	}

	claimed, err := q.GetAndReserveItems(ctx, 3, true)
	require.NoError(t, err)
	require.Len(t, claimed, 3)
	for _, item := range claimed {
		assert.True(t, item.IsReserved())
		assert.Equal(t, int32(1), item.Attempts())
	}

	// the remaining two are claimable, the first three are not
	rest, err := q.GetAndReserveItems(ctx, 10, true)
	require.NoError(t, err)
	assert.Len(t, rest, 2)

	none, err := q.GetAndReserveItems(ctx, 10, true)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestClaimExclusivityUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	q, _ := testQueue(t, "purge-url")

	const itemCount = 50
	for i := 0; i < itemCount; i++ {
		_, err := q.Add(ctx, payload(t, `{}`), "", 0)
		require.NoError(t, err)
	}

	const workers = 8
	var mu sync.Mutex
	seen := make(map[int64]int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				claimed, err := q.GetAndReserveItems(ctx, 7, false)
				assert.NoError(t, err)
				if len(claimed) == 0 {
					return
				}
				mu.Lock()
				for _, item := range claimed {
					seen[item.ID()]++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, itemCount)
	for id, n := range seen {
		assert.Equal(t, 1, n, "item %d claimed %d times", id, n)
	}
}

func TestReserveItemSingle(t *testing.T) {
	ctx := context.Background()
	q, _ := testQueue(t, "purge-url")

	item, err := q.Add(ctx, payload(t, `{}`), "", 0)
	require.NoError(t, err)

	ok, err := q.ReserveItem(ctx, item)
	require.NoError(t, err)
	assert.True(t, ok)

	// a second reservation against the same id loses
	ok, err = q.ReserveItem(ctx, ID(item.ID()))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReleaseItem(t *testing.T) {
	ctx := context.Background()
	q, _ := testQueue(t, "purge-url")

	item, err := q.Add(ctx, payload(t, `{}`), "", 0)
	require.NoError(t, err)

	// releasing an unreserved item is a no-op
	ok, err := q.ReleaseItem(ctx, item)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = q.ReserveItem(ctx, item)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = q.ReleaseItem(ctx, ID(item.ID()))
	require.NoError(t, err)
	assert.True(t, ok)

	// released items are claimable again
	claimed, err := q.GetAndReserveItems(ctx, 10, false)
	require.NoError(t, err)
	assert.Len(t, claimed, 1)
}

func TestCompleteImpliesReservation(t *testing.T) {
	ctx := context.Background()
	q, _ := testQueue(t, "purge-url")

	item, err := q.Add(ctx, payload(t, `{}`), "", 0)
	require.NoError(t, err)

	ok, err := q.CompleteItem(ctx, item)
	require.NoError(t, err)
	require.True(t, ok)

	items, err := q.GetItems(ctx, 10, false)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.True(t, items[0].IsCompleted())
	assert.True(t, items[0].IsReserved())
	assert.False(t, items[0].IsActive())

	// terminal items cannot be completed again
	ok, err = q.CompleteItem(ctx, ID(item.ID()))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLifecycleOpsIgnoreForeignIDs(t *testing.T) {
	ctx := context.Background()
	store := queuetest.New()
	objects := New("purge-object", store)
	urls := New("purge-url", store)

	item, err := objects.Add(ctx, payload(t, `{}`), "", 0)
	require.NoError(t, err)

	// the id exists, but in another queue
	ok, err := urls.CompleteItem(ctx, ID(item.ID()))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = urls.ReserveItem(ctx, ID(item.ID()))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = urls.SetItemAsFailed(ctx, ID(item.ID()))
	require.NoError(t, err)
	assert.False(t, ok)

	// the object queue still sees it untouched
	fresh, err := objects.GetItems(ctx, 10, false)
	require.NoError(t, err)
	require.Len(t, fresh, 1)
	assert.True(t, fresh[0].IsActive())
	assert.False(t, fresh[0].IsReserved())
}

func TestAttemptCeilingAndForceRetry(t *testing.T) {
	ctx := context.Background()
	q, _ := testQueue(t, "purge-url")

	item, err := q.Add(ctx, payload(t, `{}`), "", 0)
	require.NoError(t, err)

	// burn through the attempt budget
	for i := int32(0); i < q.MaxAttempts(); i++ {
		claimed, err := q.GetAndReserveItems(ctx, 1, true)
		require.NoError(t, err)
		require.Len(t, claimed, 1)
		ok, err := q.ReleaseItem(ctx, claimed[0])
		require.NoError(t, err)
		require.True(t, ok)
	}

	// exhausted items are not claimable
	claimed, err := q.GetAndReserveItems(ctx, 1, true)
	require.NoError(t, err)
	assert.Empty(t, claimed)

	// force retry reopens the item
	ok, err := q.SetForceRetry(ctx, item, true)
	require.NoError(t, err)
	require.True(t, ok)

	claimed, err = q.GetAndReserveItems(ctx, 1, true)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, q.MaxAttempts()+1, claimed[0].Attempts())
}

func TestFlagExhausted(t *testing.T) {
	ctx := context.Background()
	q, _ := testQueue(t, "purge-url")

	exhausted, err := q.Add(ctx, payload(t, `{}`), "", 0)
	require.NoError(t, err)
	spared, err := q.Add(ctx, payload(t, `{}`), "", 0)
	require.NoError(t, err)
	_, err = q.Add(ctx, payload(t, `{}`), "", 0)
	require.NoError(t, err)

	for i := int32(0); i < q.MaxAttempts(); i++ {
		for _, ref := range []ItemRef{exhausted, spared} {
			ok, err := q.DoAttempt(ctx, ref)
			require.NoError(t, err)
			require.True(t, ok)
		}
	}
	ok, err := q.SetForceRetry(ctx, spared, true)
	require.NoError(t, err)
	require.True(t, ok)

	n, err := q.FlagExhausted(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	failed, err := q.CountFailedItems(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), failed)

	available, err := q.CountAvailableItems(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), available, "forced and fresh items stay claimable")
}

func TestCountsAndEmptiness(t *testing.T) {
	ctx := context.Background()
	q, _ := testQueue(t, "purge-url")

	empty, err := q.IsEmpty(ctx)
	require.NoError(t, err)
	assert.True(t, empty)

	a, err := q.Add(ctx, payload(t, `{}`), "", 0)
	require.NoError(t, err)
	b, err := q.Add(ctx, payload(t, `{}`), "", 0)
	require.NoError(t, err)
	_, err = q.Add(ctx, payload(t, `{}`), "", 0)
	require.NoError(t, err)

	ok, err := q.CompleteItem(ctx, a)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = q.SetItemAsFailed(ctx, b)
	require.NoError(t, err)
	require.True(t, ok)

	total, err := q.CountItems(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)

	available, err := q.CountAvailableItems(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), available)

	completed, err := q.CountCompletedItems(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), completed)

	failed, err := q.CountFailedItems(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), failed)

	has, err := q.HasAvailable(ctx)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestClearQueueScopes(t *testing.T) {
	ctx := context.Background()
	q, _ := testQueue(t, "purge-url")

	_, err := q.Add(ctx, payload(t, `{}`), "", 0)
	require.NoError(t, err)
	done, err := q.Add(ctx, payload(t, `{}`), "", 0)
	require.NoError(t, err)
	ok, err := q.CompleteItem(ctx, done)
	require.NoError(t, err)
	require.True(t, ok)

	n, err := q.ClearQueue(ctx, ClearActive)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// the completed row survives the default scope
	total, err := q.CountItems(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	n, err = q.ClearQueue(ctx, ClearAll)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	empty, err := q.IsEmpty(ctx)
	require.NoError(t, err)
	assert.True(t, empty)
}

func TestGetUnfinishedItemsByParent(t *testing.T) {
	ctx := context.Background()
	store := queuetest.New()
	objects := New("purge-object", store)
	urls := New("purge-url", store)

	parent, err := objects.Add(ctx, payload(t, `{}`), "", 0)
	require.NoError(t, err)

	var children []*Item
	for i := 0; i < 3; i++ {
		child, err := urls.Add(ctx, payload(t, `{}`), objects.Name(), parent.ID())
		require.NoError(t, err)
		children = append(children, child)
	}

	ok, err := urls.CompleteItem(ctx, children[0])
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = urls.SetItemAsFailed(ctx, children[1])
	require.NoError(t, err)
	require.True(t, ok)

	unfinished, err := urls.GetUnfinishedItemsByParent(ctx, parent.ID(), objects.Name())
	require.NoError(t, err)
	require.Len(t, unfinished, 1)
	assert.Equal(t, children[2].ID(), unfinished[0].ID())
}

func TestReleaseStale(t *testing.T) {
	ctx := context.Background()
	q, store := testQueue(t, "purge-url")

	item, err := q.Add(ctx, payload(t, `{}`), "", 0)
	require.NoError(t, err)
	ok, err := q.ReserveItem(ctx, item)
	require.NoError(t, err)
	require.True(t, ok)

	// a fresh lease is not stale
	n, err := q.ReleaseStale(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	// age the lease past the TTL
	old := time.Now().UTC().Add(-2 * time.Hour)
	store.SetReservedAt(item.ID(), &old)

	n, err = q.ReleaseStale(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	claimed, err := q.GetAndReserveItems(ctx, 10, false)
	require.NoError(t, err)
	assert.Len(t, claimed, 1)
}

func TestGC(t *testing.T) {
	ctx := context.Background()
	q, store := testQueue(t, "purge-url")

	done, err := q.Add(ctx, payload(t, `{}`), "", 0)
	require.NoError(t, err)
	ok, err := q.CompleteItem(ctx, done)
	require.NoError(t, err)
	require.True(t, ok)
	_, err = q.Add(ctx, payload(t, `{}`), "", 0)
	require.NoError(t, err)

	// nothing is past retention yet
	n, err := q.GC(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	old := time.Now().UTC().Add(-48 * time.Hour)
	store.SetCompletedAt(done.ID(), &old)

	n, err = q.GC(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// the active item is untouched
	total, err := q.CountItems(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestDeleteItems(t *testing.T) {
	ctx := context.Background()
	q, _ := testQueue(t, "purge-url")

	var items []*Item
	for i := 0; i < 3; i++ {
		item, err := q.Add(ctx, payload(t, `{}`), "", 0)
		require.NoError(t, err)
		items = append(items, item)
	}

	ok, err := q.Delete(ctx, items[0])
	require.NoError(t, err)
	assert.True(t, ok)

	n, err := q.DeleteItems(ctx, items[1:])
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	empty, err := q.IsEmpty(ctx)
	require.NoError(t, err)
	assert.True(t, empty)
}
