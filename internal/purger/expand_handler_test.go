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
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Servebolt/servebolt-optimizer-sub002/internal/expand"
)

func enqueuePost(t *testing.T, n *QueuedNotifier, id int64) {
	t.Helper()
	require.NoError(t, n.OnPostChanged(context.Background(), id, ""))
}

func TestExpandHandlerFansOut(t *testing.T) {
	ctx := context.Background()
	objects, urls, _ := testQueues(t)
	expander := &fakeExpander{posts: map[int64][]expand.Target{
		1: {
			expand.URLTarget("https://example.com/hello-world/"),
			expand.URLTarget("https://example.com/"),
			expand.URLTarget("https://example.com/blog/"),
		},
	}}
	h := NewExpandHandler(objects, urls, expander, 30, nil)
	enqueuePost(t, NewQueuedNotifier(objects), 1)

	require.NoError(t, h.Run(ctx))

	children, err := urls.GetItems(ctx, 10, false)
	require.NoError(t, err)
	require.Len(t, children, 3)
	for _, child := range children {
		require.NotNil(t, child.ParentID())
		assert.Equal(t, int64(1), *child.ParentID())
		require.NotNil(t, child.ParentQueue())
		assert.Equal(t, ObjectQueueName, *child.ParentQueue())

		job, err := UnmarshalURLJob(child.Payload())
		require.NoError(t, err)
		assert.IsType(t, URLRef{}, job)
	}
}

func TestExpandHandlerParentCompletesAfterChildren(t *testing.T) {
	ctx := context.Background()
	objects, urls, _ := testQueues(t)
	expander := &fakeExpander{posts: map[int64][]expand.Target{
		1: {expand.URLTarget("https://example.com/hello-world/")},
	}}
	h := NewExpandHandler(objects, urls, expander, 30, nil)
	enqueuePost(t, NewQueuedNotifier(objects), 1)

	require.NoError(t, h.Run(ctx))

	// the child is still pending, so the parent stays reserved
	reserved, err := objects.GetReservedItems(ctx, 10)
	require.NoError(t, err)
	require.Len(t, reserved, 1)
	assert.True(t, reserved[0].IsActive())

	// finish the child; the next pass sweeps the parent to completed
	children, err := urls.GetItems(ctx, 10, false)
	require.NoError(t, err)
	require.Len(t, children, 1)
	ok, err := urls.CompleteItem(ctx, children[0])
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, h.Run(ctx))

	completed, err := objects.CountCompletedItems(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), completed)
}

func TestExpandHandlerPurgeAllSingleChild(t *testing.T) {
	ctx := context.Background()
	objects, urls, _ := testQueues(t)
	h := NewExpandHandler(objects, urls, &fakeExpander{}, 30, nil)
	require.NoError(t, NewQueuedNotifier(objects).OnBulkInvalidation(ctx))

	require.NoError(t, h.Run(ctx))

	children, err := urls.GetItems(ctx, 10, false)
	require.NoError(t, err)
	require.Len(t, children, 1, "a purge-all expands to exactly one child")
	job, err := UnmarshalURLJob(children[0].Payload())
	require.NoError(t, err)
	assert.Equal(t, PurgeAll{}, job)
}

func TestExpandHandlerConsumesVanishedEntities(t *testing.T) {
	ctx := context.Background()
	objects, urls, _ := testQueues(t)
	h := NewExpandHandler(objects, urls, &fakeExpander{}, 30, nil)
	enqueuePost(t, NewQueuedNotifier(objects), 999)

	require.NoError(t, h.Run(ctx))

	completed, err := objects.CountCompletedItems(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), completed)

	empty, err := urls.IsEmpty(ctx)
	require.NoError(t, err)
	assert.True(t, empty, "a vanished entity produces no url work")
}

func TestExpandHandlerReleasesOnTransientFailure(t *testing.T) {
	ctx := context.Background()
	objects, urls, store := testQueues(t)
	expander := &fakeExpander{err: errors.New("repository unavailable")}
	h := NewExpandHandler(objects, urls, expander, 30, nil)
	enqueuePost(t, NewQueuedNotifier(objects), 1)

	err := h.Run(ctx)
	require.Error(t, err)

	// the item is back in the claimable pool with the attempt recorded
	row, ok := store.Snapshot(1)
	require.True(t, ok)
	assert.Nil(t, row.ReservedAt)
	assert.Nil(t, row.CompletedAt)
	assert.Nil(t, row.FailedAt)
	assert.Equal(t, int32(1), row.Attempts)
}

func TestExpandHandlerConsumesMalformedPayloads(t *testing.T) {
	ctx := context.Background()
	objects, urls, _ := testQueues(t)
	h := NewExpandHandler(objects, urls, &fakeExpander{}, 30, nil)

	_, err := objects.Add(ctx, json.RawMessage(`{"type":"mystery"}`), "", 0)
	require.NoError(t, err)

	require.NoError(t, h.Run(ctx))

	completed, err := objects.CountCompletedItems(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), completed)

	empty, err := urls.IsEmpty(ctx)
	require.NoError(t, err)
	assert.True(t, empty)
}

func TestExpandHandlerIsolatesItemFailures(t *testing.T) {
	ctx := context.Background()
	objects, urls, _ := testQueues(t)
	expander := &fakeExpander{posts: map[int64][]expand.Target{
		2: {expand.URLTarget("https://example.com/two/")},
	}}
	h := NewExpandHandler(objects, urls, expander, 30, nil)
	n := NewQueuedNotifier(objects)
	enqueuePost(t, n, 1) // vanished, consumed
	enqueuePost(t, n, 2) // expands fine

	require.NoError(t, h.Run(ctx))

	children, err := urls.GetItems(ctx, 10, false)
	require.NoError(t, err)
	assert.Len(t, children, 1, "the healthy item still expands")
}

func TestExpandHandlerFlagsExhaustedFirst(t *testing.T) {
	ctx := context.Background()
	objects, urls, _ := testQueues(t)
	expander := &fakeExpander{err: errors.New("repository unavailable")}
	h := NewExpandHandler(objects, urls, expander, 30, nil)
	enqueuePost(t, NewQueuedNotifier(objects), 1)

	// burn through the retry budget
	for i := int32(0); i < objects.MaxAttempts(); i++ {
		require.Error(t, h.Run(ctx))
	}

	// the next run flags the item failed instead of reclaiming it
	require.NoError(t, h.Run(ctx))

	failed, err := objects.CountFailedItems(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), failed)
}
