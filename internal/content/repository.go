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

// Package content defines the boundary to the content repository that
// owns posts, terms, permalinks, and pagination counts. The purge engine
// only ever talks to this interface; the concrete implementation lives
// with the content platform.
package content

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when an entity id does not resolve.
var ErrNotFound = errors.New("content entity not found")

// PostInfo carries the attributes of a post-like entity the purge
// expansion needs.
type PostInfo struct {
	ID           int64
	Type         string
	AuthorID     int64
	PublishedAt  time.Time
	IsAttachment bool
}

// CountFilter scopes a page-count query. Zero values leave a dimension
// unscoped; Year/Month/Day nest (Month requires Year, Day requires both).
type CountFilter struct {
	PostType string
	AuthorID int64
	Taxonomy string
	TermID   int64
	Year     int
	Month    int
	Day      int
}

// Repository resolves entities, archive links, and pagination counts.
type Repository interface {
	// PostInfo resolves a post-like entity, ErrNotFound if it no longer
	// exists.
	PostInfo(ctx context.Context, id int64) (PostInfo, error)
	// PostPermalink resolves the canonical URL of a post.
	PostPermalink(ctx context.Context, id int64) (string, error)
	// FrontPageURL resolves the site's front page.
	FrontPageURL(ctx context.Context) (string, error)
	// PostTypeArchiveURL resolves the listing page of a post type, or
	// ErrNotFound when the type has no archive.
	PostTypeArchiveURL(ctx context.Context, postType string) (string, error)
	// AuthorArchiveURL resolves an author's archive page.
	AuthorArchiveURL(ctx context.Context, authorID int64) (string, error)
	// TermArchiveURL resolves a taxonomy term's archive page.
	TermArchiveURL(ctx context.Context, termID int64) (string, error)
	// DateArchiveURL resolves a date archive. month and day may be zero
	// for year and month archives respectively.
	DateArchiveURL(ctx context.Context, year, month, day int) (string, error)
	// CountPosts counts published posts matching the filter.
	CountPosts(ctx context.Context, filter CountFilter) (int64, error)
	// PostsPerPage returns the archive pagination size.
	PostsPerPage(ctx context.Context) (int, error)
	// PublicTaxonomiesFor lists the public taxonomies registered for a
	// post type.
	PublicTaxonomiesFor(ctx context.Context, postType string) ([]string, error)
	// TermIDs lists the term ids assigned to a post within one taxonomy.
	TermIDs(ctx context.Context, postID int64, taxonomy string) ([]int64, error)
	// AttachmentVariantURLs lists the direct file URL and every
	// registered image-size variant of a media attachment.
	AttachmentVariantURLs(ctx context.Context, postID int64) ([]string, error)
}
