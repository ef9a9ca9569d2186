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

// Kind distinguishes what a purge target addresses at the edge cache.
type Kind string

const (
	KindURL Kind = "url"
	KindTag Kind = "tag"
)

// Target is one cache key to invalidate.
type Target struct {
	Kind  Kind
	Value string
}

// URLTarget builds a URL-kind target.
func URLTarget(url string) Target { return Target{Kind: KindURL, Value: url} }

// TagTarget builds a tag-kind target.
func TagTarget(tag string) Target { return Target{Kind: KindTag, Value: tag} }

// targetSet accumulates targets while dropping duplicates, preserving
// first-seen order so expansion output is deterministic.
type targetSet struct {
	seen map[Target]struct{}
	list []Target
}

func newTargetSet() *targetSet {
	return &targetSet{seen: map[Target]struct{}{}}
}

func (s *targetSet) add(t Target) {
	if t.Value == "" {
		return
	}
	if _, ok := s.seen[t]; ok {
		return
	}
	s.seen[t] = struct{}{}
	s.list = append(s.list, t)
}

func (s *targetSet) addAll(ts []Target) {
	for _, t := range ts {
		s.add(t)
	}
}

func (s *targetSet) targets() []Target {
	return s.list
}
