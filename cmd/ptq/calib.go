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
	"context"
	"fmt"
	"io"
	"iter"
	"math/rand/v2"
	"slices"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/ajroetker/go-ptq/hwy/contrib/nn"
	"github.com/ajroetker/go-ptq/hwy/contrib/quantization"
)

func newCalibCmd(a *app) *cobra.Command {
	var (
		samples   int
		batchSize int
		batches   int
		fold      bool
	)
	cmd := &cobra.Command{
		Use:   "calib MODEL.yaml",
		Short: "Collect calibration samples and report the output range of each channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("samples") {
				a.cfg.Calibration.Samples = samples
			}
			if cmd.Flags().Changed("batch-size") {
				a.cfg.Calibration.BatchSize = batchSize
			}
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			return a.runCalib(cmd.Context(), cmd.OutOrStdout(), args[0], batches, fold)
		},
	}
	cmd.Flags().IntVarP(&samples, "samples", "n", 0, "Number of calibration examples (overrides config)")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Examples per generated batch (overrides config)")
	cmd.Flags().IntVar(&batches, "batches", 0, "Stop the generated stream after this many batches, 0 for no limit")
	cmd.Flags().BoolVar(&fold, "fold", true, "Fold batch norms before measuring")
	return cmd
}

// channelRange is the observed output range of one channel.
type channelRange struct {
	Min, Max float32
}

type calibResult struct {
	Model   string
	Shape   []int
	Batches int
	Ranges  []channelRange
}

func (a *app) runCalib(ctx context.Context, w io.Writer, path string, limit int, fold bool) error {
	desc, err := loadModelDesc(path)
	if err != nil {
		return err
	}
	m, err := desc.Build()
	if err != nil {
		return fmt.Errorf("build %s: %w", path, err)
	}
	m.Eval()
	if fold {
		opts, err := a.cfg.FolderOptions(a.logger, a.pool)
		if err != nil {
			return err
		}
		if _, err := quantization.NewFolder(opts...).Fold(m); err != nil {
			return err
		}
	}

	var pulled int
	stream := syntheticBatches(desc, a.cfg.Calibration.BatchSize, a.cfg.Calibration.Seed, limit, &pulled)
	x, err := quantization.Sampler{Logger: a.logger}.Collect(ctx, stream, a.cfg.Calibration.Samples)
	if err != nil {
		return err
	}
	y, err := m.Forward(x, a.pool)
	if err != nil {
		return err
	}

	printCalibResult(w, calibResult{
		Model:   desc.Name,
		Shape:   x.Shape,
		Batches: pulled,
		Ranges:  channelRanges(y),
	})
	return nil
}

// syntheticBatches stands in for a data loader: it yields normally
// distributed batches shaped like the model's sample input, limit batches
// in all (unbounded when limit is 0), and counts how many were taken.
func syntheticBatches(desc ModelDesc, batchSize int, seed uint64, limit int, pulled *int) iter.Seq[quantization.Batch] {
	shape := slices.Clone(desc.Input)
	shape[0] = batchSize
	return func(yield func(quantization.Batch) bool) {
		rng := rand.New(rand.NewPCG(seed, 2))
		for i := 0; limit == 0 || i < limit; i++ {
			*pulled++
			if !yield(quantization.Batch{Input: randomBatch(rng, shape...)}) {
				return
			}
		}
	}
}

// channelRanges returns the min and max of each channel (axis 1) of y.
func channelRanges(y *nn.Tensor) []channelRange {
	if len(y.Shape) < 2 {
		return nil
	}
	batch, channels := y.Shape[0], y.Shape[1]
	spatial := y.Numel() / (batch * channels)

	ranges := make([]channelRange, channels)
	for c := range channels {
		var values []float32
		for n := range batch {
			off := (n*channels + c) * spatial
			values = append(values, y.Data[off:off+spatial]...)
		}
		ranges[c] = channelRange{Min: lo.Min(values), Max: lo.Max(values)}
	}
	return ranges
}
