// Copyright (C) 2025 DealDesk AI (engineering@dealdesk.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package contextengine

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Run("empty path yields zero config", func(t *testing.T) {
		cfg, err := LoadConfig("")
		require.NoError(t, err)
		assert.Equal(t, 0, cfg.Retrieval.NumResults)
	})

	t.Run("missing file yields zero config", func(t *testing.T) {
		cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
		require.NoError(t, err)
		assert.Equal(t, 0, cfg.Summarization.KeepRecent)
	})

	t.Run("full file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "engine.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
retrieval:
  num_results: 8
  max_context_tokens: 1500
  cache_ttl: 2m
  cache_size: 40
summarization:
  trigger_message_count: 30
  trigger_token_count: 9000
  keep_recent: 12
  timeout: 5s
isolation:
  cache_ttl: 1h
  cache_size: 100
`), 0644))

		cfg, err := LoadConfig(path)
		require.NoError(t, err)

		rc := cfg.RetrievalConfig()
		assert.Equal(t, 8, rc.NumResults)
		assert.Equal(t, 1500, rc.MaxContextTokens)
		assert.Equal(t, 2*time.Minute, rc.CacheTTL)

		sc := cfg.SummarizeConfig()
		assert.Equal(t, 30, sc.TriggerMessageCount)
		assert.Equal(t, 12, sc.KeepRecent)
		assert.Equal(t, 5*time.Second, sc.Timeout)

		ic := cfg.IsolateConfig()
		assert.Equal(t, time.Hour, ic.CacheTTL)
		assert.Equal(t, 100, ic.CacheSize)
	})

	t.Run("malformed file is an error", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "engine.yaml")
		require.NoError(t, os.WriteFile(path, []byte("retrieval: [not a map"), 0644))

		_, err := LoadConfig(path)
		assert.Error(t, err)
	})
}
