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

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, int32(3), cfg.Queue.MaxAttempts)
	assert.Equal(t, int32(30), cfg.Queue.BatchSize)
	assert.Equal(t, 3, cfg.Queue.DrainPasses)
	assert.Equal(t, time.Hour, cfg.Queue.LeaseTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.Queue.Retention)
	assert.Equal(t, ModeQueued, cfg.Purge.Mode)
	assert.False(t, cfg.Purge.UseTags)
	assert.Equal(t, "logOnly", cfg.Purge.OnImmediateFailure)
	assert.Equal(t, 30*time.Second, cfg.CDN.Timeout)
	assert.Equal(t, "@every 1m", cfg.Scheduler.DrainSpec)
}

func TestLoadUsesDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PURGEQ_QUEUE_MAX_ATTEMPTS", "5")
	t.Setenv("PURGEQ_PURGE_MODE", "immediate")
	t.Setenv("PURGEQ_PURGE_USE_TAGS", "true")
	t.Setenv("PURGEQ_CDN_ENDPOINT", "https://purge.example.com/v1/purge")
	t.Setenv("PURGEQ_CDN_TIMEOUT", "10s")
	t.Setenv("PURGEQ_SCHEDULER_GC_SPEC", "@every 30m")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, int32(5), cfg.Queue.MaxAttempts)
	assert.Equal(t, ModeImmediate, cfg.Purge.Mode)
	assert.True(t, cfg.Purge.UseTags)
	assert.Equal(t, "https://purge.example.com/v1/purge", cfg.CDN.Endpoint)
	assert.Equal(t, 10*time.Second, cfg.CDN.Timeout)
	assert.Equal(t, "@every 30m", cfg.Scheduler.GCSpec)

	// untouched keys keep their defaults
	assert.Equal(t, int32(30), cfg.Queue.BatchSize)
}
