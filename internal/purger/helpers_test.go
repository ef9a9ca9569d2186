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
	"fmt"
	"sync"
	"testing"

	"github.com/Servebolt/servebolt-optimizer-sub002/internal/content"
	"github.com/Servebolt/servebolt-optimizer-sub002/internal/expand"
	"github.com/Servebolt/servebolt-optimizer-sub002/internal/queue"
	"github.com/Servebolt/servebolt-optimizer-sub002/internal/queue/queuetest"
)

// testQueues returns an object and url queue over one shared store.
func testQueues(t *testing.T) (objects, urls *queue.Queue, store *queuetest.MemStore) {
	t.Helper()
	store = queuetest.New()
	return queue.New(ObjectQueueName, store), queue.New(URLQueueName, store), store
}

// fakeExpander serves targets from fixed maps. Unknown ids yield a
// not-found error; a non-nil err overrides everything.
type fakeExpander struct {
	posts map[int64][]expand.Target
	terms map[int64][]expand.Target
	err   error
}

func (f *fakeExpander) ExpandPost(_ context.Context, id int64, _ string) ([]expand.Target, error) {
	if f.err != nil {
		return nil, f.err
	}
	targets, ok := f.posts[id]
	if !ok {
		return nil, fmt.Errorf("post %d: %w", id, content.ErrNotFound)
	}
	return targets, nil
}

func (f *fakeExpander) ExpandTerm(_ context.Context, id int64, _ string) ([]expand.Target, error) {
	if f.err != nil {
		return nil, f.err
	}
	targets, ok := f.terms[id]
	if !ok {
		return nil, fmt.Errorf("term %d: %w", id, content.ErrNotFound)
	}
	return targets, nil
}

// purgeCall records one call against the fake purge client.
type purgeCall struct {
	kind   string // "urls", "tags", or "all"
	values []string
}

// fakeClient records purge calls and fails them all while err is set.
type fakeClient struct {
	mu    sync.Mutex
	calls []purgeCall
	err   error
}

func (f *fakeClient) record(call purgeCall) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, call)
	return nil
}

func (f *fakeClient) PurgeURLs(_ context.Context, urls []string) error {
	return f.record(purgeCall{kind: "urls", values: urls})
}

func (f *fakeClient) PurgeTags(_ context.Context, tags []string) error {
	return f.record(purgeCall{kind: "tags", values: tags})
}

func (f *fakeClient) PurgeAll(context.Context) error {
	return f.record(purgeCall{kind: "all"})
}

func (f *fakeClient) recorded() []purgeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]purgeCall(nil), f.calls...)
}

func (f *fakeClient) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}
