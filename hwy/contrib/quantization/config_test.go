// Copyright 2025 go-highway Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package quantization

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestParseConfig(t *testing.T) {
	t.Run("empty keeps defaults", func(t *testing.T) {
		cfg, err := ParseConfig(nil)
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("partial override", func(t *testing.T) {
		cfg, err := ParseConfig([]byte(`
workers: 3
fold:
  policy: all
calibration:
  samples: 10
verify:
  atol: 0.001
`))
		require.NoError(t, err)
		assert.Equal(t, 3, cfg.Workers)
		assert.Equal(t, "all", cfg.Fold.Policy)
		assert.True(t, cfg.Fold.Validate, "unset keys keep their default")
		assert.Equal(t, 10, cfg.Calibration.Samples)
		assert.Equal(t, DefaultConfig().Calibration.BatchSize, cfg.Calibration.BatchSize)
		assert.Equal(t, 0.001, cfg.Verify.ATol)
		assert.Equal(t, 1e-4, cfg.Verify.RTol)
	})

	errorCases := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown key", "fold:\n  polcy: all\n", "polcy"},
		{"bad policy", "fold:\n  policy: residual\n", "fold.policy"},
		{"zero samples", "calibration:\n  samples: 0\n", "calibration.samples"},
		{"negative workers", "workers: -1\n", "workers"},
		{"negative tolerance", "verify:\n  rtol: -1\n", "verify"},
	}
	for _, tt := range errorCases {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ptq.yaml")
	require.NoError(t, os.WriteFile(path, []byte("fold:\n  validate: false\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.False(t, cfg.Fold.Validate)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestConfigFolderOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Fold.Policy = "all"
	cfg.Fold.Validate = false
	logger := zap.NewNop()

	opts, err := cfg.FolderOptions(logger, nil)
	require.NoError(t, err)
	f := NewFolder(opts...)
	assert.Equal(t, PropagateAll, f.Policy)
	assert.False(t, f.Validate)
	assert.Same(t, logger, f.Logger)
	assert.Nil(t, f.Pool)

	cfg.Fold.Policy = "bogus"
	_, err = cfg.FolderOptions(logger, nil)
	assert.ErrorIs(t, err, ErrUnknownPolicy)
}
