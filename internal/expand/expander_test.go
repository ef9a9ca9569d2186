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

package expand

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Servebolt/servebolt-optimizer-sub002/internal/content"
)

// fixtureRepo returns a repository describing a small site: one post in
// two terms with an author archive and a three-page blog index.
func fixtureRepo() *content.MemoryRepository {
	repo := content.NewMemoryRepository()
	repo.FrontPage = "https://example.com/"
	repo.Posts[1] = content.PostInfo{
		ID:          1,
		Type:        "post",
		AuthorID:    7,
		PublishedAt: time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC),
	}
	repo.Permalinks[1] = "https://example.com/hello-world/"
	repo.TypeArchives["post"] = "https://example.com/blog/"
	repo.AuthorArchives[7] = "https://example.com/author/jo/"
	repo.Taxonomies["post"] = []string{"category", "post_tag"}
	repo.PostTerms[1] = map[string][]int64{
		"category": {11},
		"post_tag": {22},
	}
	repo.TermArchives[11] = "https://example.com/category/news/"
	repo.TermArchives[22] = "https://example.com/tag/go/"
	repo.Counts[content.CountFilter{PostType: "post"}] = 25
	repo.Counts[content.CountFilter{PostType: "post", AuthorID: 7}] = 5
	repo.Counts[content.CountFilter{Taxonomy: "category", TermID: 11}] = 12
	repo.Counts[content.CountFilter{Taxonomy: "post_tag", TermID: 22}] = 0
	return repo
}

func urlValues(targets []Target) []string {
	out := make([]string, 0, len(targets))
	for _, tgt := range targets {
		out = append(out, tgt.Value)
	}
	return out
}

func TestExpandPost(t *testing.T) {
	e := New(fixtureRepo(), Config{})
	defer e.Stop()

	targets, err := e.ExpandPost(context.Background(), 1, "")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"https://example.com/hello-world/",
		"https://example.com/",
		"https://example.com/blog/",
		"https://example.com/blog/page/2/",
		"https://example.com/blog/page/3/",
		"https://example.com/author/jo/",
		"https://example.com/category/news/",
		"https://example.com/category/news/page/2/",
	}, urlValues(targets))
	for _, tgt := range targets {
		assert.Equal(t, KindURL, tgt.Kind)
	}
}

func TestExpandPostIsDeterministic(t *testing.T) {
	e := New(fixtureRepo(), Config{})
	defer e.Stop()

	first, err := e.ExpandPost(context.Background(), 1, "")
	require.NoError(t, err)
	second, err := e.ExpandPost(context.Background(), 1, "")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestExpandPostOriginalURL(t *testing.T) {
	e := New(fixtureRepo(), Config{})
	defer e.Stop()
	ctx := context.Background()

	targets, err := e.ExpandPost(ctx, 1, "https://example.com/old-slug/")
	require.NoError(t, err)
	assert.Contains(t, urlValues(targets), "https://example.com/old-slug/")

	// an original URL matching the permalink is not emitted twice
	targets, err = e.ExpandPost(ctx, 1, "https://example.com/hello-world/")
	require.NoError(t, err)
	urls := urlValues(targets)
	count := 0
	for _, u := range urls {
		if u == "https://example.com/hello-world/" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestExpandPostNotFound(t *testing.T) {
	e := New(fixtureRepo(), Config{})
	defer e.Stop()

	targets, err := e.ExpandPost(context.Background(), 999, "")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.Nil(t, targets)
}

func TestExpandPostFrontPageDedup(t *testing.T) {
	repo := fixtureRepo()
	// a post that is the front page should not purge it twice
	repo.Permalinks[1] = "https://example.com/"

	e := New(repo, Config{})
	defer e.Stop()

	targets, err := e.ExpandPost(context.Background(), 1, "")
	require.NoError(t, err)
	urls := urlValues(targets)
	count := 0
	for _, u := range urls {
		if u == "https://example.com/" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestExpandPostDateArchives(t *testing.T) {
	e := New(fixtureRepo(), Config{PurgeDateArchives: true})
	defer e.Stop()

	targets, err := e.ExpandPost(context.Background(), 1, "")
	require.NoError(t, err)
	urls := urlValues(targets)
	// the fixture has no counts for date filters, so date archives
	// contribute nothing
	for _, u := range urls {
		assert.NotContains(t, u, "/2026/")
	}
}

func TestExpandPostDateArchivesWithCounts(t *testing.T) {
	repo := fixtureRepo()
	repo.Counts[content.CountFilter{PostType: "post", Year: 2026, Month: 3, Day: 15}] = 1
	repo.Counts[content.CountFilter{PostType: "post", Year: 2026, Month: 3}] = 4
	repo.Counts[content.CountFilter{PostType: "post", Year: 2026}] = 25

	e := New(repo, Config{PurgeDateArchives: true})
	defer e.Stop()

	targets, err := e.ExpandPost(context.Background(), 1, "")
	require.NoError(t, err)
	urls := urlValues(targets)
	assert.Contains(t, urls, "https://example.com/2026/03/15/")
	assert.Contains(t, urls, "https://example.com/2026/03/")
	assert.Contains(t, urls, "https://example.com/2026/")
	assert.Contains(t, urls, "https://example.com/2026/page/2/")
	assert.Contains(t, urls, "https://example.com/2026/page/3/")
}

func TestExpandPostAttachmentVariants(t *testing.T) {
	repo := fixtureRepo()
	repo.Posts[2] = content.PostInfo{ID: 2, Type: "attachment", IsAttachment: true}
	repo.Permalinks[2] = "https://example.com/?attachment_id=2"
	repo.Variants[2] = []string{
		"https://example.com/wp-content/uploads/photo.jpg",
		"https://example.com/wp-content/uploads/photo-300x200.jpg",
	}

	e := New(repo, Config{})
	defer e.Stop()

	targets, err := e.ExpandPost(context.Background(), 2, "")
	require.NoError(t, err)
	urls := urlValues(targets)
	assert.Contains(t, urls, "https://example.com/wp-content/uploads/photo.jpg")
	assert.Contains(t, urls, "https://example.com/wp-content/uploads/photo-300x200.jpg")
}

func TestExpandTerm(t *testing.T) {
	e := New(fixtureRepo(), Config{})
	defer e.Stop()

	targets, err := e.ExpandTerm(context.Background(), 11, "category")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://example.com/",
		"https://example.com/category/news/",
		"https://example.com/category/news/page/2/",
	}, urlValues(targets))
}

func TestExpandTermNotFound(t *testing.T) {
	e := New(fixtureRepo(), Config{})
	defer e.Stop()

	_, err := e.ExpandTerm(context.Background(), 999, "category")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

type staticContributor struct {
	targets []Target
	err     error
	gotRef  EntityRef
}

func (c *staticContributor) ContributeTargets(_ context.Context, entity EntityRef) ([]Target, error) {
	c.gotRef = entity
	return c.targets, c.err
}

func TestContributors(t *testing.T) {
	good := &staticContributor{targets: []Target{URLTarget("https://example.com/shop/")}}
	bad := &staticContributor{err: errors.New("boom")}

	e := New(fixtureRepo(), Config{}, WithContributors(good, bad))
	defer e.Stop()

	targets, err := e.ExpandPost(context.Background(), 1, "")
	require.NoError(t, err, "a failing contributor is never fatal")
	assert.Contains(t, urlValues(targets), "https://example.com/shop/")
	assert.Equal(t, EntityRef{Kind: "post", ID: 1}, good.gotRef)
}

// countErrRepo fails every post count, forcing first-page-only fallback.
type countErrRepo struct {
	*content.MemoryRepository
}

func (r *countErrRepo) CountPosts(context.Context, content.CountFilter) (int64, error) {
	return 0, errors.New("count unavailable")
}

func TestCountFailureFallsBackToFirstPage(t *testing.T) {
	e := New(&countErrRepo{fixtureRepo()}, Config{})
	defer e.Stop()

	targets, err := e.ExpandPost(context.Background(), 1, "")
	require.NoError(t, err)
	urls := urlValues(targets)
	assert.Contains(t, urls, "https://example.com/blog/")
	assert.NotContains(t, urls, "https://example.com/blog/page/2/")
	assert.Contains(t, urls, "https://example.com/category/news/")
	assert.NotContains(t, urls, "https://example.com/category/news/page/2/")
}

func TestPageCount(t *testing.T) {
	tests := []struct {
		posts   int64
		perPage int
		want    int
	}{
		{0, 10, 0},
		{1, 10, 1},
		{10, 10, 1},
		{11, 10, 2},
		{25, 10, 3},
		{-5, 10, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, pageCount(tt.posts, tt.perPage))
	}
}

func TestPagedURL(t *testing.T) {
	assert.Equal(t, "https://example.com/blog/page/2/", pagedURL("https://example.com/blog/", 2))
	assert.Equal(t, "https://example.com/blog/page/3/", pagedURL("https://example.com/blog", 3))
}
