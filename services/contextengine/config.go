// Copyright (C) 2025 DealDesk AI (engineering@dealdesk.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package contextengine holds the configuration that wires the context
// pipeline together.
package contextengine

import (
	"fmt"
	"os"
	"time"

	"github.com/dealdesk-ai/dealdesk/services/contextengine/isolate"
	"github.com/dealdesk-ai/dealdesk/services/contextengine/retrieval"
	"github.com/dealdesk-ai/dealdesk/services/contextengine/summarize"
	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values can use Go duration
// syntax ("5s", "30m"). Bare integers are taken as nanoseconds, which
// matches what yaml.Marshal emits for time.Duration.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var asInt int64
	if err := value.Decode(&asInt); err == nil {
		*d = Duration(asInt)
		return nil
	}

	var asString string
	if err := value.Decode(&asString); err != nil {
		return fmt.Errorf("duration must be a string or integer: %w", err)
	}
	parsed, err := time.ParseDuration(asString)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", asString, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std converts back to the standard type.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// EngineConfig is the YAML-loadable configuration for the whole pipeline.
// Every field has a working default; an absent config file is not an
// error.
type EngineConfig struct {
	Retrieval struct {
		NumResults       int      `yaml:"num_results"`
		MaxContextTokens int      `yaml:"max_context_tokens"`
		CacheTTL         Duration `yaml:"cache_ttl"`
		CacheSize        int      `yaml:"cache_size"`
	} `yaml:"retrieval"`

	Summarization struct {
		TriggerMessageCount int      `yaml:"trigger_message_count"`
		TriggerTokenCount   int      `yaml:"trigger_token_count"`
		KeepRecent          int      `yaml:"keep_recent"`
		Timeout             Duration `yaml:"timeout"`
		CacheTTL            Duration `yaml:"cache_ttl"`
		CacheSize           int      `yaml:"cache_size"`
	} `yaml:"summarization"`

	Isolation struct {
		CacheTTL  Duration `yaml:"cache_ttl"`
		CacheSize int      `yaml:"cache_size"`
	} `yaml:"isolation"`
}

// LoadConfig reads an EngineConfig from a YAML file.
//
// An empty path, or a path that does not exist, yields the zero config;
// the component constructors fill in their own defaults from there. A
// file that exists but fails to parse is an error: a typo in deployed
// config should fail loudly, not silently run defaults.
func LoadConfig(path string) (*EngineConfig, error) {
	cfg := &EngineConfig{}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read the config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse the config file %s: %w", path, err)
	}
	return cfg, nil
}

// RetrievalConfig converts the YAML block to the orchestrator's config.
func (c *EngineConfig) RetrievalConfig() retrieval.Config {
	return retrieval.Config{
		NumResults:       c.Retrieval.NumResults,
		MaxContextTokens: c.Retrieval.MaxContextTokens,
		CacheTTL:         c.Retrieval.CacheTTL.Std(),
		CacheSize:        c.Retrieval.CacheSize,
	}
}

// SummarizeConfig converts the YAML block to the engine's config.
func (c *EngineConfig) SummarizeConfig() summarize.Config {
	return summarize.Config{
		TriggerMessageCount: c.Summarization.TriggerMessageCount,
		TriggerTokenCount:   c.Summarization.TriggerTokenCount,
		KeepRecent:          c.Summarization.KeepRecent,
		Timeout:             c.Summarization.Timeout.Std(),
		CacheTTL:            c.Summarization.CacheTTL.Std(),
		CacheSize:           c.Summarization.CacheSize,
	}
}

// IsolateConfig converts the YAML block to the isolator's config.
func (c *EngineConfig) IsolateConfig() isolate.Config {
	return isolate.Config{
		CacheTTL:  c.Isolation.CacheTTL.Std(),
		CacheSize: c.Isolation.CacheSize,
	}
}
