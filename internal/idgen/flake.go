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

// Package idgen produces process instance ids used to attribute work and
// log lines to one worker.
package idgen

import (
	"errors"
	"math/rand/v2"
	"time"

	"github.com/sony/sonyflake"
)

// Generator hands out roughly time-ordered positive int64 ids.
type Generator struct {
	sf *sonyflake.Sonyflake
}

// NewGenerator constructs a sonyflake-backed generator.
func NewGenerator() (*Generator, error) {
	sf, err := sonyflake.New(sonyflake.Settings{
		StartTime: time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		return nil, err
	}
	if sf == nil {
		return nil, errors.New("failed to create sonyflake instance")
	}
	return &Generator{sf: sf}, nil
}

// NextID returns the next id. If the underlying clock source misbehaves
// it degrades to a random id rather than blocking the caller.
func (g *Generator) NextID() int64 {
	v, err := g.sf.NextID()
	if err != nil {
		return rand.Int64()
	}
	return int64(v)
}
