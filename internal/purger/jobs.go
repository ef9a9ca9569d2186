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

// Package purger orchestrates the two-tier purge pipeline: object-queue
// items record what changed, url-queue items record which cache keys to
// invalidate, and drain handlers move work between the tiers and out to
// the edge cache.
package purger

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Queue names. One Queue instance per name is constructed at startup and
// injected into the components that need it.
const (
	ObjectQueueName = "purge-object"
	URLQueueName    = "purge-url"
)

// ErrUnknownJobType marks a payload whose discriminator is not
// recognized. Consumers treat it as "no targets produced", not a crash.
var ErrUnknownJobType = errors.New("unknown purge job type")

// ObjectJob is the payload of an object-queue item: a reference to a
// changed entity, or the purge-everything sentinel.
type ObjectJob interface {
	isObjectJob()
}

// PostRef records that a post-like entity changed. OriginalURL carries
// the URL the purge was triggered from when it differs from the
// canonical permalink.
type PostRef struct {
	ID          int64
	OriginalURL string
}

// TermRef records that a taxonomy term changed.
type TermRef struct {
	ID       int64
	Taxonomy string
}

// PurgeAll is the sentinel instruction to invalidate the entire cache.
// It is valid in both queues.
type PurgeAll struct{}

func (PostRef) isObjectJob()  {}
func (TermRef) isObjectJob()  {}
func (PurgeAll) isObjectJob() {}

// URLJob is the payload of a url-queue item: one concrete invalidation
// target ready to send to the edge cache.
type URLJob interface {
	isURLJob()
}

// URLRef is a single URL to invalidate.
type URLRef struct {
	URL string
}

// TagRef is a single cache tag to invalidate.
type TagRef struct {
	Tag string
}

func (URLRef) isURLJob()   {}
func (TagRef) isURLJob()   {}
func (PurgeAll) isURLJob() {}

type jobEnvelope struct {
	Type        string `json:"type"`
	ID          int64  `json:"id,omitempty"`
	Taxonomy    string `json:"taxonomy,omitempty"`
	OriginalURL string `json:"originalUrl,omitempty"`
	URL         string `json:"url,omitempty"`
	Tag         string `json:"tag,omitempty"`
}

// MarshalObjectJob serializes an object-queue payload.
func MarshalObjectJob(job ObjectJob) (json.RawMessage, error) {
	var env jobEnvelope
	switch j := job.(type) {
	case PostRef:
		env = jobEnvelope{Type: "post", ID: j.ID, OriginalURL: j.OriginalURL}
	case TermRef:
		env = jobEnvelope{Type: "term", ID: j.ID, Taxonomy: j.Taxonomy}
	case PurgeAll:
		env = jobEnvelope{Type: "purge-all"}
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownJobType, job)
	}
	return json.Marshal(env)
}

// UnmarshalObjectJob parses an object-queue payload. An unrecognized
// discriminator returns ErrUnknownJobType.
func UnmarshalObjectJob(data json.RawMessage) (ObjectJob, error) {
	var env jobEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("parse object job: %w", err)
	}
	switch env.Type {
	case "post":
		return PostRef{ID: env.ID, OriginalURL: env.OriginalURL}, nil
	case "term":
		return TermRef{ID: env.ID, Taxonomy: env.Taxonomy}, nil
	case "purge-all":
		return PurgeAll{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownJobType, env.Type)
	}
}

// MarshalURLJob serializes a url-queue payload.
func MarshalURLJob(job URLJob) (json.RawMessage, error) {
	var env jobEnvelope
	switch j := job.(type) {
	case URLRef:
		env = jobEnvelope{Type: "url", URL: j.URL}
	case TagRef:
		env = jobEnvelope{Type: "tag", Tag: j.Tag}
	case PurgeAll:
		env = jobEnvelope{Type: "purge-all"}
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownJobType, job)
	}
	return json.Marshal(env)
}

// UnmarshalURLJob parses a url-queue payload. An unrecognized
// discriminator returns ErrUnknownJobType.
func UnmarshalURLJob(data json.RawMessage) (URLJob, error) {
	var env jobEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("parse url job: %w", err)
	}
	switch env.Type {
	case "url":
		return URLRef{URL: env.URL}, nil
	case "tag":
		return TagRef{Tag: env.Tag}, nil
	case "purge-all":
		return PurgeAll{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownJobType, env.Type)
	}
}
