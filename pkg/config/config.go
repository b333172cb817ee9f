/*
Copyright 2025 The Weft Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package config

import (
	"errors"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like "30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the standard library representation.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config holds framework configuration.
type Config struct {
	Pool   PoolConfig   `yaml:"pool"`
	Stream StreamConfig `yaml:"stream"`
}

// PoolConfig contains connection pool settings.
type PoolConfig struct {
	// MaxConnections is the concurrency ceiling of a pool.
	MaxConnections int `yaml:"maxConnections"`

	// MaxTTL is the idle lifetime of a pooled connection.
	MaxTTL Duration `yaml:"maxTTL"`

	// ReapInterval is the reaper cadence. Zero means MaxTTL/2.
	ReapInterval Duration `yaml:"reapInterval"`
}

// StreamConfig contains buffered stream settings.
type StreamConfig struct {
	// BufferSize is the capacity of buffered stream proxies.
	BufferSize int `yaml:"bufferSize"`
}

// NewDefaultConfig returns the default framework configuration.
func NewDefaultConfig() *Config {
	return &Config{
		Pool: PoolConfig{
			MaxConnections: 10,
			MaxTTL:         Duration(60 * time.Second),
		},
		Stream: StreamConfig{
			BufferSize: 4096,
		},
	}
}

// Validate checks the configuration for usable values.
func (c *Config) Validate() error {
	if c.Pool.MaxConnections < 1 {
		return errors.New("config: pool.maxConnections must be >= 1")
	}
	if c.Pool.MaxTTL <= 0 {
		return errors.New("config: pool.maxTTL must be > 0")
	}
	if c.Pool.ReapInterval < 0 {
		return errors.New("config: pool.reapInterval must not be negative")
	}
	if c.Stream.BufferSize < 1 {
		return errors.New("config: stream.bufferSize must be >= 1")
	}
	return nil
}
