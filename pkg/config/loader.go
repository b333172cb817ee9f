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
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadFromFile reads a YAML configuration file and merges it over the
// defaults: zero-valued fields in the file keep their default.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	return LoadFromBytes(data)
}

// LoadFromBytes parses YAML configuration data and merges it over the
// defaults.
func LoadFromBytes(data []byte) (*Config, error) {
	var loaded Config
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("config: parsing: %w", err)
	}
	cfg := NewDefaultConfig()
	mergeConfig(cfg, &loaded)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// mergeConfig overlays non-zero fields of override onto base.
func mergeConfig(base, override *Config) {
	if override.Pool.MaxConnections != 0 {
		base.Pool.MaxConnections = override.Pool.MaxConnections
	}
	if override.Pool.MaxTTL != 0 {
		base.Pool.MaxTTL = override.Pool.MaxTTL
	}
	if override.Pool.ReapInterval != 0 {
		base.Pool.ReapInterval = override.Pool.ReapInterval
	}
	if override.Stream.BufferSize != 0 {
		base.Stream.BufferSize = override.Stream.BufferSize
	}
}
