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

// Package config loads application configuration from a config file and
// environment variables.
package config

import (
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config aggregates configuration for the application.
type Config struct {
	Queue     QueueConfig     `mapstructure:"queue"`
	Purge     PurgeConfig     `mapstructure:"purge"`
	CDN       CDNConfig       `mapstructure:"cdn"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// QueueConfig tunes the persistent queue engine.
type QueueConfig struct {
	// MaxAttempts is the retry ceiling before an item is flagged failed.
	MaxAttempts int32 `mapstructure:"max_attempts"`
	// BatchSize bounds how many items one drain pass claims.
	BatchSize int32 `mapstructure:"batch_size"`
	// DrainPasses bounds how many url-queue batches one trigger works
	// through.
	DrainPasses int `mapstructure:"drain_passes"`
	// LeaseTTL is how long a reservation may stand before GC releases it.
	LeaseTTL time.Duration `mapstructure:"lease_ttl"`
	// Retention is how long terminal items are kept for inspection.
	Retention time.Duration `mapstructure:"retention"`
}

// PurgeMode selects how content changes reach the edge cache.
type PurgeMode string

const (
	// ModeQueued defers expansion and purging to scheduled drains.
	ModeQueued PurgeMode = "queued"
	// ModeImmediate expands and purges inside the triggering request.
	ModeImmediate PurgeMode = "immediate"
)

// PurgeConfig tunes the expansion and purge behavior.
type PurgeConfig struct {
	Mode PurgeMode `mapstructure:"mode"`
	// UseTags switches from URL enumeration to the cache-tag variant.
	UseTags bool `mapstructure:"use_tags"`
	// DateArchives enables day/month/year archive purging.
	DateArchives bool `mapstructure:"date_archives"`
	// OnImmediateFailure is "logOnly" or "surfaceToCaller".
	OnImmediateFailure string `mapstructure:"on_immediate_failure"`
}

// CDNConfig locates the purge API.
type CDNConfig struct {
	Endpoint string        `mapstructure:"endpoint"`
	Token    string        `mapstructure:"token"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// SchedulerConfig sets the periodic trigger intervals for the scheduler
// command, in cron spec form.
type SchedulerConfig struct {
	ExpandSpec string `mapstructure:"expand_spec"`
	DrainSpec  string `mapstructure:"drain_spec"`
	GCSpec     string `mapstructure:"gc_spec"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Queue: QueueConfig{
			MaxAttempts: 3,
			BatchSize:   30,
			DrainPasses: 3,
			LeaseTTL:    time.Hour,
			Retention:   7 * 24 * time.Hour,
		},
		Purge: PurgeConfig{
			Mode:               ModeQueued,
			OnImmediateFailure: "logOnly",
		},
		CDN: CDNConfig{
			Timeout: 30 * time.Second,
		},
		Scheduler: SchedulerConfig{
			ExpandSpec: "@every 1m",
			DrainSpec:  "@every 1m",
			GCSpec:     "@every 10m",
		},
	}
}

// Load reads configuration from files and environment variables.
// Environment variables use the prefix "PURGEQ" and the dot character in
// keys is replaced by an underscore. For example, "queue.max_attempts"
// becomes "PURGEQ_QUEUE_MAX_ATTEMPTS".
func Load() (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.SetEnvPrefix("PURGEQ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v, cfg)
	_ = v.ReadInConfig()

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// bindEnvs registers all keys within cfg so that viper will look up
// corresponding environment variables when unmarshalling.
func bindEnvs(v *viper.Viper, cfg any, parts ...string) {
	val := reflect.ValueOf(cfg)
	typ := reflect.TypeOf(cfg)
	if typ.Kind() == reflect.Ptr {
		val = val.Elem()
		typ = typ.Elem()
	}
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" {
			tag = strings.ToLower(f.Name)
		}
		key := append(parts, tag)
		if f.Type.Kind() == reflect.Struct {
			bindEnvs(v, val.Field(i).Interface(), key...)
			continue
		}
		_ = v.BindEnv(strings.Join(key, "."))
	}
}
