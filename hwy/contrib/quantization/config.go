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
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ajroetker/go-ptq/hwy/contrib/workerpool"
)

// Config is the YAML configuration of a quantization run.
type Config struct {
	// Workers sizes the worker pool; 0 means GOMAXPROCS.
	Workers     int               `yaml:"workers"`
	Fold        FoldConfig        `yaml:"fold"`
	Calibration CalibrationConfig `yaml:"calibration"`
	Verify      VerifyConfig      `yaml:"verify"`
}

type FoldConfig struct {
	// Policy is "sequential" or "all".
	Policy   string `yaml:"policy"`
	Validate bool   `yaml:"validate"`
}

type CalibrationConfig struct {
	Samples   int    `yaml:"samples"`
	BatchSize int    `yaml:"batch_size"`
	Seed      uint64 `yaml:"seed"`
}

// VerifyConfig is the tolerance used when comparing a model's output
// before and after folding. Folding reorders float32 arithmetic, so exact
// equality is not expected.
type VerifyConfig struct {
	RTol float64 `yaml:"rtol"`
	ATol float64 `yaml:"atol"`
}

// DefaultConfig returns the configuration used when no file is given.
// Keys missing from a loaded file keep these values.
func DefaultConfig() Config {
	return Config{
		Fold: FoldConfig{
			Policy:   PropagateSequential.String(),
			Validate: true,
		},
		Calibration: CalibrationConfig{
			Samples:   64,
			BatchSize: 8,
			Seed:      1,
		},
		Verify: VerifyConfig{
			RTol: 1e-4,
			ATol: 1e-4,
		},
	}
}

// LoadConfig reads a YAML file over DefaultConfig.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// ParseConfig decodes YAML over DefaultConfig. Unknown keys are errors.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	var errs []error
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers: %d is negative", c.Workers))
	}
	if _, err := ParsePropagationPolicy(c.Fold.Policy); err != nil {
		errs = append(errs, fmt.Errorf("fold.policy: %w", err))
	}
	if c.Calibration.Samples <= 0 {
		errs = append(errs, fmt.Errorf("calibration.samples: %w: got %d", ErrInvalidSampleCount, c.Calibration.Samples))
	}
	if c.Calibration.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("calibration.batch_size: %d must be positive", c.Calibration.BatchSize))
	}
	if c.Verify.RTol < 0 || c.Verify.ATol < 0 {
		errs = append(errs, fmt.Errorf("verify: tolerances must be non-negative"))
	}
	return errors.Join(errs...)
}

// FolderOptions translates the fold section into Folder options.
func (c Config) FolderOptions(logger *zap.Logger, pool *workerpool.Pool) ([]Option, error) {
	policy, err := ParsePropagationPolicy(c.Fold.Policy)
	if err != nil {
		return nil, err
	}
	return []Option{
		WithPolicy(policy),
		WithValidate(c.Fold.Validate),
		WithLogger(logger),
		WithPool(pool),
	}, nil
}
