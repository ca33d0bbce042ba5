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

package main

import (
	"errors"
	"fmt"
	"io"
	stdmath "math"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajroetker/go-ptq/hwy/contrib/nn"
	"github.com/ajroetker/go-ptq/hwy/contrib/quantization"
)

var errVerifyFailed = errors.New("folded model output differs from the original")

func newFoldCmd(a *app) *cobra.Command {
	var (
		policy     string
		noValidate bool
	)
	cmd := &cobra.Command{
		Use:   "fold MODEL.yaml",
		Short: "Fold batch norms into the preceding layers and verify the outputs match",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("policy") {
				a.cfg.Fold.Policy = policy
			}
			if noValidate {
				a.cfg.Fold.Validate = false
			}
			return a.runFold(cmd.OutOrStdout(), args[0])
		},
	}
	cmd.Flags().StringVar(&policy, "policy", "", "Propagation policy: sequential or all (overrides config)")
	cmd.Flags().BoolVar(&noValidate, "no-validate", false, "Skip the per-pair shape and statistics checks")
	return cmd
}

// foldResult is what runFold reports.
type foldResult struct {
	Model   string
	Report  quantization.Report
	Before  map[nn.Kind]int
	After   map[nn.Kind]int
	MaxDiff float64
	OK      bool
}

func (a *app) runFold(w io.Writer, path string) error {
	desc, err := loadModelDesc(path)
	if err != nil {
		return err
	}
	m, err := desc.Build()
	if err != nil {
		return fmt.Errorf("build %s: %w", path, err)
	}
	res, err := a.foldAndVerify(desc, m)
	if err != nil {
		return err
	}
	printFoldResult(w, res)
	if !res.OK {
		return fmt.Errorf("%w: max abs diff %g", errVerifyFailed, res.MaxDiff)
	}
	return nil
}

// foldAndVerify folds m in place and compares its output on the sample
// input with that of an unfolded copy. Folding runs first so a pair that
// fails validation is reported as such rather than as a forward error.
func (a *app) foldAndVerify(desc ModelDesc, m *nn.Model) (foldResult, error) {
	m.Eval()
	orig := m.Clone()

	opts, err := a.cfg.FolderOptions(a.logger, a.pool)
	if err != nil {
		return foldResult{}, err
	}
	report, err := quantization.NewFolder(opts...).Fold(m)
	if err != nil {
		return foldResult{}, err
	}

	x := desc.SampleInput()
	want, err := orig.Forward(x, a.pool)
	if err != nil {
		return foldResult{}, fmt.Errorf("forward before folding: %w", err)
	}
	got, err := m.Forward(x, a.pool)
	if err != nil {
		return foldResult{}, fmt.Errorf("forward after folding: %w", err)
	}
	res := foldResult{
		Model:   desc.Name,
		Report:  report,
		Before:  orig.Count(),
		After:   m.Count(),
		MaxDiff: maxAbsDiff(got, want),
		OK:      nn.AllClose(got, want, a.cfg.Verify.RTol, a.cfg.Verify.ATol),
	}
	a.logger.Debug("verified folded model",
		zap.Float64("max_abs_diff", res.MaxDiff),
		zap.Bool("ok", res.OK),
	)
	return res, nil
}

func maxAbsDiff(a, b *nn.Tensor) float64 {
	if len(a.Data) != len(b.Data) || len(a.Data) == 0 {
		return stdmath.Inf(1)
	}
	return lo.Max(lo.Map(a.Data, func(v float32, i int) float64 {
		return stdmath.Abs(float64(v) - float64(b.Data[i]))
	}))
}
