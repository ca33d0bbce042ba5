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

// Command ptq prepares a network described in YAML for post-training
// quantization.
//
// Usage:
//
//	ptq info  model.yaml                      # tree, layer counts, foldable pairs
//	ptq fold  model.yaml --policy sequential  # fold batch norms, verify outputs
//	ptq calib model.yaml --samples 64         # gather calibration samples, report ranges
//
// A YAML configuration (see quantization.Config) is read with --config;
// flags override it. HWY_NO_SIMD=1 forces the scalar kernels.
package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajroetker/go-ptq/hwy/contrib/quantization"
	"github.com/ajroetker/go-ptq/hwy/contrib/workerpool"
)

// app holds what the subcommands share once flags are parsed.
type app struct {
	cfgFile string
	verbose bool
	workers int

	logger *zap.Logger
	cfg    quantization.Config
	pool   *workerpool.Pool
}

func main() {
	a := &app{}
	err := newRootCmd(a).Execute()
	a.teardown()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:          "ptq",
		Short:        "ptq - post-training quantization helpers: batch-norm folding and calibration",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}
	root.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "YAML configuration file")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Log every fold at debug level")
	root.PersistentFlags().IntVar(&a.workers, "workers", 0, "Worker pool size, 0 for GOMAXPROCS (overrides config)")

	root.AddCommand(newInfoCmd(a))
	root.AddCommand(newFoldCmd(a))
	root.AddCommand(newCalibCmd(a))
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	if a.logger == nil {
		logger, err := newLogger(a.verbose)
		if err != nil {
			return err
		}
		a.logger = logger
	}

	a.cfg = quantization.DefaultConfig()
	if a.cfgFile != "" {
		cfg, err := quantization.LoadConfig(a.cfgFile)
		if err != nil {
			return err
		}
		a.cfg = cfg
	}
	if cmd.Flags().Changed("workers") {
		a.cfg.Workers = a.workers
	}
	if err := a.cfg.Validate(); err != nil {
		return err
	}

	a.pool = workerpool.New(a.cfg.Workers)
	a.logger.Debug("configured",
		zap.String("config", a.cfgFile),
		zap.Int("workers", a.pool.NumWorkers()),
		zap.String("fold_policy", a.cfg.Fold.Policy),
	)
	return nil
}

// teardown releases what setup created. It is safe to call when setup
// never ran.
func (a *app) teardown() {
	a.pool.Close()
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

// newLogger logs warnings and errors to stderr, or everything from debug
// up in development format when verbose.
func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	cfg.Encoding = "console"
	return cfg.Build()
}
