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

// Package expand computes the full cache footprint of a changed content
// entity: its own page plus every archive, taxonomy, author, and date
// listing that renders it.
package expand

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/Servebolt/servebolt-optimizer-sub002/internal/content"
)

const countCacheTTL = 1 * time.Minute

// Config controls optional expansion branches.
type Config struct {
	// PurgeDateArchives adds day/month/year archive URLs. Off by default
	// since few sites cache date archives.
	PurgeDateArchives bool
}

// EntityRef identifies the entity an expansion ran for, handed to
// contributors so they can append their own targets.
type EntityRef struct {
	Kind     string // "post" or "term"
	ID       int64
	Taxonomy string // set for terms
}

// TargetContributor appends extra purge targets after the built-in steps
// (shop pages, feeds, and similar). Contributions are unioned into the
// result; a failing contributor is skipped, never fatal.
type TargetContributor interface {
	ContributeTargets(ctx context.Context, entity EntityRef) ([]Target, error)
}

// Expander turns one changed entity into a deduplicated set of purge
// targets.
type Expander struct {
	repo         content.Repository
	cfg          Config
	contributors []TargetContributor
	counts       *ttlcache.Cache[content.CountFilter, int64]
	logger       *slog.Logger
}

// Option configures an Expander.
type Option func(*Expander)

// WithContributors registers extension-point contributors.
func WithContributors(cs ...TargetContributor) Option {
	return func(e *Expander) { e.contributors = append(e.contributors, cs...) }
}

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Expander) { e.logger = l }
}

// New constructs an Expander over the given content repository.
func New(repo content.Repository, cfg Config, opts ...Option) *Expander {
	e := &Expander{
		repo:   repo,
		cfg:    cfg,
		logger: slog.Default(),
		counts: ttlcache.New(
			ttlcache.WithTTL[content.CountFilter, int64](countCacheTTL),
			ttlcache.WithDisableTouchOnHit[content.CountFilter, int64](),
		),
	}
	for _, opt := range opts {
		opt(e)
	}
	go e.counts.Start()
	return e
}

// Stop releases the expander's cache janitor.
func (e *Expander) Stop() {
	e.counts.Stop()
}

// ExpandPost computes the purge targets for a post-like entity.
// originalURL, when non-empty and different from the canonical permalink,
// is purged too: a purge can be triggered from a URL the permalink
// generator no longer produces. A post id that does not resolve fails
// fast with content.ErrNotFound and contributes nothing.
func (e *Expander) ExpandPost(ctx context.Context, id int64, originalURL string) ([]Target, error) {
	permalink, err := e.repo.PostPermalink(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("resolve permalink for post %d: %w", id, err)
	}
	info, err := e.repo.PostInfo(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("resolve post %d: %w", id, err)
	}

	set := newTargetSet()
	set.add(URLTarget(permalink))
	if originalURL != "" && originalURL != permalink {
		set.add(URLTarget(originalURL))
	}

	e.addFrontPage(ctx, set, permalink)
	e.addPostTypeArchive(ctx, set, info.Type)
	e.addAuthorArchive(ctx, set, info)
	e.addTermArchives(ctx, set, info)
	if e.cfg.PurgeDateArchives {
		e.addDateArchives(ctx, set, info)
	}
	if info.IsAttachment {
		e.addAttachmentVariants(ctx, set, id)
	}
	e.addContributions(ctx, set, EntityRef{Kind: "post", ID: id})

	return set.targets(), nil
}

// ExpandTerm computes the purge targets for a taxonomy term: the front
// page plus the term's own archive across every page listing posts with
// that term.
func (e *Expander) ExpandTerm(ctx context.Context, id int64, taxonomy string) ([]Target, error) {
	archive, err := e.repo.TermArchiveURL(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("resolve archive for term %d: %w", id, err)
	}

	set := newTargetSet()
	e.addFrontPage(ctx, set, "")
	e.addPaginated(ctx, set, archive, content.CountFilter{Taxonomy: taxonomy, TermID: id})
	e.addContributions(ctx, set, EntityRef{Kind: "term", ID: id, Taxonomy: taxonomy})

	return set.targets(), nil
}

func (e *Expander) addFrontPage(ctx context.Context, set *targetSet, entityURL string) {
	front, err := e.repo.FrontPageURL(ctx)
	if err != nil {
		e.logger.Debug("front page not resolvable, skipping", slog.Any("error", err))
		return
	}
	if front != entityURL {
		set.add(URLTarget(front))
	}
}

func (e *Expander) addPostTypeArchive(ctx context.Context, set *targetSet, postType string) {
	archive, err := e.repo.PostTypeArchiveURL(ctx, postType)
	if err != nil {
		e.logger.Debug("post type archive not resolvable, skipping",
			slog.String("postType", postType), slog.Any("error", err))
		return
	}
	e.addPaginated(ctx, set, archive, content.CountFilter{PostType: postType})
}

func (e *Expander) addAuthorArchive(ctx context.Context, set *targetSet, info content.PostInfo) {
	if info.AuthorID == 0 {
		return
	}
	archive, err := e.repo.AuthorArchiveURL(ctx, info.AuthorID)
	if err != nil {
		e.logger.Debug("author archive not resolvable, skipping",
			slog.Int64("authorID", info.AuthorID), slog.Any("error", err))
		return
	}
	e.addPaginated(ctx, set, archive, content.CountFilter{PostType: info.Type, AuthorID: info.AuthorID})
}

func (e *Expander) addTermArchives(ctx context.Context, set *targetSet, info content.PostInfo) {
	taxonomies, err := e.repo.PublicTaxonomiesFor(ctx, info.Type)
	if err != nil {
		e.logger.Debug("taxonomies not resolvable, skipping",
			slog.String("postType", info.Type), slog.Any("error", err))
		return
	}
	for _, taxonomy := range taxonomies {
		termIDs, err := e.repo.TermIDs(ctx, info.ID, taxonomy)
		if err != nil {
			e.logger.Debug("term lookup failed, skipping taxonomy",
				slog.String("taxonomy", taxonomy), slog.Any("error", err))
			continue
		}
		for _, termID := range termIDs {
			archive, err := e.repo.TermArchiveURL(ctx, termID)
			if err != nil {
				e.logger.Debug("term archive not resolvable, skipping",
					slog.Int64("termID", termID), slog.Any("error", err))
				continue
			}
			e.addPaginated(ctx, set, archive, content.CountFilter{Taxonomy: taxonomy, TermID: termID})
		}
	}
}

func (e *Expander) addDateArchives(ctx context.Context, set *targetSet, info content.PostInfo) {
	if info.PublishedAt.IsZero() {
		return
	}
	y, m, d := info.PublishedAt.Date()
	scopes := []struct {
		year, month, day int
	}{
		{y, int(m), d},
		{y, int(m), 0},
		{y, 0, 0},
	}
	for _, scope := range scopes {
		archive, err := e.repo.DateArchiveURL(ctx, scope.year, scope.month, scope.day)
		if err != nil {
			e.logger.Debug("date archive not resolvable, skipping", slog.Any("error", err))
			continue
		}
		e.addPaginated(ctx, set, archive, content.CountFilter{
			PostType: info.Type,
			Year:     scope.year,
			Month:    scope.month,
			Day:      scope.day,
		})
	}
}

func (e *Expander) addAttachmentVariants(ctx context.Context, set *targetSet, id int64) {
	variants, err := e.repo.AttachmentVariantURLs(ctx, id)
	if err != nil {
		e.logger.Debug("attachment variants not resolvable, skipping",
			slog.Int64("attachmentID", id), slog.Any("error", err))
		return
	}
	for _, v := range variants {
		set.add(URLTarget(v))
	}
}

func (e *Expander) addContributions(ctx context.Context, set *targetSet, entity EntityRef) {
	for _, c := range e.contributors {
		targets, err := c.ContributeTargets(ctx, entity)
		if err != nil {
			e.logger.Warn("target contributor failed, skipping",
				slog.String("entityKind", entity.Kind),
				slog.Int64("entityID", entity.ID),
				slog.Any("error", err))
			continue
		}
		set.addAll(targets)
	}
}

// addPaginated adds the archive URL and every further page the archive
// needs to list the matching posts. A zero page count means the archive
// has nothing cached worth purging and contributes no URLs.
func (e *Expander) addPaginated(ctx context.Context, set *targetSet, archiveURL string, filter content.CountFilter) {
	pages, err := e.pagesNeeded(ctx, filter)
	if err != nil {
		e.logger.Debug("page count failed, purging first page only",
			slog.String("archive", archiveURL), slog.Any("error", err))
		set.add(URLTarget(archiveURL))
		return
	}
	if pages == 0 {
		return
	}
	set.add(URLTarget(archiveURL))
	for page := 2; page <= pages; page++ {
		set.add(URLTarget(pagedURL(archiveURL, page)))
	}
}

func (e *Expander) pagesNeeded(ctx context.Context, filter content.CountFilter) (int, error) {
	if hit := e.counts.Get(filter); hit != nil {
		return pageCount(hit.Value(), e.perPage(ctx)), nil
	}
	count, err := e.repo.CountPosts(ctx, filter)
	if err != nil {
		return 0, err
	}
	e.counts.Set(filter, count, ttlcache.DefaultTTL)
	return pageCount(count, e.perPage(ctx)), nil
}

func (e *Expander) perPage(ctx context.Context) int {
	n, err := e.repo.PostsPerPage(ctx)
	if err != nil || n <= 0 {
		return 10
	}
	return n
}

func pageCount(posts int64, perPage int) int {
	if posts <= 0 {
		return 0
	}
	pages := posts / int64(perPage)
	if posts%int64(perPage) != 0 {
		pages++
	}
	return int(pages)
}

// pagedURL renders page n of an archive in /page/n/ form.
func pagedURL(base string, page int) string {
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return fmt.Sprintf("%spage/%d/", base, page)
}

// IsNotFound reports whether an expansion error means the entity no
// longer exists, which consumers treat as "nothing left to purge".
func IsNotFound(err error) bool {
	return errors.Is(err, content.ErrNotFound)
}
