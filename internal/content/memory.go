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

package content

import (
	"context"
	"fmt"
	"sync"
)

// MemoryRepository is an in-memory Repository used by tests and local
// development wiring. Populate it directly; all methods are safe for
// concurrent use.
type MemoryRepository struct {
	mu sync.RWMutex

	Posts          map[int64]PostInfo
	Permalinks     map[int64]string
	FrontPage      string
	TypeArchives   map[string]string
	AuthorArchives map[int64]string
	TermArchives   map[int64]string
	Taxonomies     map[string][]string          // post type -> public taxonomies
	PostTerms      map[int64]map[string][]int64 // post id -> taxonomy -> term ids
	Variants       map[int64][]string           // attachment id -> variant URLs
	Counts         map[CountFilter]int64
	PerPage        int
}

// NewMemoryRepository returns an empty repository with a default
// pagination size of 10.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		Posts:          map[int64]PostInfo{},
		Permalinks:     map[int64]string{},
		TypeArchives:   map[string]string{},
		AuthorArchives: map[int64]string{},
		TermArchives:   map[int64]string{},
		Taxonomies:     map[string][]string{},
		PostTerms:      map[int64]map[string][]int64{},
		Variants:       map[int64][]string{},
		Counts:         map[CountFilter]int64{},
		PerPage:        10,
	}
}

var _ Repository = (*MemoryRepository)(nil)

func (r *MemoryRepository) PostInfo(_ context.Context, id int64) (PostInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.Posts[id]
	if !ok {
		return PostInfo{}, fmt.Errorf("post %d: %w", id, ErrNotFound)
	}
	return info, nil
}

func (r *MemoryRepository) PostPermalink(_ context.Context, id int64) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	link, ok := r.Permalinks[id]
	if !ok {
		return "", fmt.Errorf("permalink for post %d: %w", id, ErrNotFound)
	}
	return link, nil
}

func (r *MemoryRepository) FrontPageURL(_ context.Context) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.FrontPage == "" {
		return "", ErrNotFound
	}
	return r.FrontPage, nil
}

func (r *MemoryRepository) PostTypeArchiveURL(_ context.Context, postType string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	link, ok := r.TypeArchives[postType]
	if !ok {
		return "", fmt.Errorf("archive for type %q: %w", postType, ErrNotFound)
	}
	return link, nil
}

func (r *MemoryRepository) AuthorArchiveURL(_ context.Context, authorID int64) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	link, ok := r.AuthorArchives[authorID]
	if !ok {
		return "", fmt.Errorf("archive for author %d: %w", authorID, ErrNotFound)
	}
	return link, nil
}

func (r *MemoryRepository) TermArchiveURL(_ context.Context, termID int64) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	link, ok := r.TermArchives[termID]
	if !ok {
		return "", fmt.Errorf("archive for term %d: %w", termID, ErrNotFound)
	}
	return link, nil
}

func (r *MemoryRepository) DateArchiveURL(_ context.Context, year, month, day int) (string, error) {
	if r.FrontPage == "" {
		return "", ErrNotFound
	}
	switch {
	case day > 0:
		return fmt.Sprintf("%s%04d/%02d/%02d/", r.FrontPage, year, month, day), nil
	case month > 0:
		return fmt.Sprintf("%s%04d/%02d/", r.FrontPage, year, month), nil
	default:
		return fmt.Sprintf("%s%04d/", r.FrontPage, year), nil
	}
}

func (r *MemoryRepository) CountPosts(_ context.Context, filter CountFilter) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.Counts[filter], nil
}

func (r *MemoryRepository) PostsPerPage(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.PerPage <= 0 {
		return 10, nil
	}
	return r.PerPage, nil
}

func (r *MemoryRepository) PublicTaxonomiesFor(_ context.Context, postType string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.Taxonomies[postType], nil
}

func (r *MemoryRepository) TermIDs(_ context.Context, postID int64, taxonomy string) ([]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	terms, ok := r.PostTerms[postID]
	if !ok {
		return nil, nil
	}
	return terms[taxonomy], nil
}

func (r *MemoryRepository) AttachmentVariantURLs(_ context.Context, postID int64) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.Variants[postID], nil
}
