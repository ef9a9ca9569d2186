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
	"fmt"
	"log/slog"

	"github.com/Servebolt/servebolt-optimizer-sub002/internal/content"
)

// TagExpander is the lighter-weight variant for edges that invalidate by
// cache-tag header. Instead of enumerating concrete URLs it emits the
// small fixed tag set the edge attached to relevant responses at serve
// time, trading precision for a single bulk purge call.
type TagExpander struct {
	repo         content.Repository
	contributors []TargetContributor
	logger       *slog.Logger
}

// NewTagExpander constructs a TagExpander.
func NewTagExpander(repo content.Repository, contributors []TargetContributor, logger *slog.Logger) *TagExpander {
	if logger == nil {
		logger = slog.Default()
	}
	return &TagExpander{repo: repo, contributors: contributors, logger: logger}
}

// ExpandPost emits the tag footprint of a post-like entity.
func (e *TagExpander) ExpandPost(ctx context.Context, id int64, _ string) ([]Target, error) {
	info, err := e.repo.PostInfo(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("resolve post %d: %w", id, err)
	}

	set := newTargetSet()
	set.add(TagTarget("post-type:" + info.Type))
	if info.AuthorID != 0 {
		set.add(TagTarget(fmt.Sprintf("author:%d", info.AuthorID)))
	}
	taxonomies, err := e.repo.PublicTaxonomiesFor(ctx, info.Type)
	if err == nil {
		for _, taxonomy := range taxonomies {
			termIDs, err := e.repo.TermIDs(ctx, id, taxonomy)
			if err != nil {
				continue
			}
			for _, termID := range termIDs {
				set.add(TagTarget(fmt.Sprintf("term:%d", termID)))
			}
		}
	}
	if !info.PublishedAt.IsZero() {
		y, m, _ := info.PublishedAt.Date()
		set.add(TagTarget(fmt.Sprintf("date:%d-%d", y, int(m))))
	}
	set.add(TagTarget("home"))

	e.contribute(ctx, set, EntityRef{Kind: "post", ID: id})
	return set.targets(), nil
}

// ExpandTerm emits the tag footprint of a taxonomy term.
func (e *TagExpander) ExpandTerm(ctx context.Context, id int64, taxonomy string) ([]Target, error) {
	set := newTargetSet()
	set.add(TagTarget(fmt.Sprintf("term:%d", id)))
	set.add(TagTarget("home"))
	e.contribute(ctx, set, EntityRef{Kind: "term", ID: id, Taxonomy: taxonomy})
	return set.targets(), nil
}

func (e *TagExpander) contribute(ctx context.Context, set *targetSet, entity EntityRef) {
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
