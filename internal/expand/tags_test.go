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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tagValues(targets []Target) []string {
	out := make([]string, 0, len(targets))
	for _, tgt := range targets {
		out = append(out, tgt.Value)
	}
	return out
}

func TestTagExpanderPost(t *testing.T) {
	e := NewTagExpander(fixtureRepo(), nil, nil)

	targets, err := e.ExpandPost(context.Background(), 1, "")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"post-type:post",
		"author:7",
		"term:11",
		"term:22",
		"date:2026-3",
		"home",
	}, tagValues(targets))
	for _, tgt := range targets {
		assert.Equal(t, KindTag, tgt.Kind)
	}
}

func TestTagExpanderPostNotFound(t *testing.T) {
	e := NewTagExpander(fixtureRepo(), nil, nil)

	_, err := e.ExpandPost(context.Background(), 999, "")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestTagExpanderTerm(t *testing.T) {
	e := NewTagExpander(fixtureRepo(), nil, nil)

	targets, err := e.ExpandTerm(context.Background(), 11, "category")
	require.NoError(t, err)
	assert.Contains(t, tagValues(targets), "term:11")
	assert.Contains(t, tagValues(targets), "home")
}

func TestTagExpanderContributors(t *testing.T) {
	contrib := &staticContributor{targets: []Target{TagTarget("feed")}}
	e := NewTagExpander(fixtureRepo(), []TargetContributor{contrib}, nil)

	targets, err := e.ExpandPost(context.Background(), 1, "")
	require.NoError(t, err)
	assert.Contains(t, tagValues(targets), "feed")
}
