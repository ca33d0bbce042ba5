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
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"

	"go.uber.org/zap"

	"github.com/ajroetker/go-ptq/hwy/contrib/nn"
)

var (
	// ErrInvalidSampleCount is returned when fewer than one sample is requested.
	ErrInvalidSampleCount = errors.New("quantization: sample count must be positive")

	// ErrNoSamples is returned when the batch stream yields nothing.
	ErrNoSamples = errors.New("quantization: batch stream is empty")
)

// Batch is one element of a calibration stream. Label is carried for
// loaders that produce (input, label) pairs and is never read.
type Batch struct {
	Input *nn.Tensor
	Label *nn.Tensor
}

// SliceBatches yields batches in order.
func SliceBatches(batches ...Batch) iter.Seq[Batch] {
	return func(yield func(Batch) bool) {
		for _, b := range batches {
			if !yield(b) {
				return
			}
		}
	}
}

// Sampler collects calibration inputs from a batch stream.
type Sampler struct {
	// Logger receives the short-stream warning; nil discards.
	Logger *zap.Logger
}

// CalibSamples is Sampler.Collect with the global zap logger.
func CalibSamples(ctx context.Context, batches iter.Seq[Batch], n int) (*nn.Tensor, error) {
	return Sampler{Logger: zap.L()}.Collect(ctx, batches, n)
}

// Collect concatenates batch inputs along axis 0, in stream order, until at
// least n examples are gathered, then stops pulling from the stream and
// returns the first n. The batch axis of each input is its real size, so a
// short final batch is counted correctly.
//
// If the stream ends first, every collected example is returned and a
// warning is logged. ctx is checked before each batch is taken.
func (s Sampler) Collect(ctx context.Context, batches iter.Seq[Batch], n int) (*nn.Tensor, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidSampleCount, n)
	}

	var (
		parts   []*nn.Tensor
		example []int
		got     int
	)
	for b := range batches {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		in := b.Input
		if in == nil || len(in.Shape) == 0 {
			return nil, fmt.Errorf("calibration batch %d has no batch axis: %w", len(parts), nn.ErrShapeMismatch)
		}
		if parts == nil {
			example = in.ExampleShape()
		} else if !slices.Equal(in.ExampleShape(), example) {
			return nil, fmt.Errorf("calibration batch %d has examples of shape %v, want %v: %w",
				len(parts), in.ExampleShape(), example, nn.ErrShapeMismatch)
		}
		parts = append(parts, in)
		got += in.Dim(0)
		if got >= n {
			break
		}
	}
	if got == 0 {
		return nil, ErrNoSamples
	}

	all, err := nn.Concat(parts...)
	if err != nil {
		return nil, err
	}
	if got < n {
		logger := s.Logger
		if logger == nil {
			logger = zap.NewNop()
		}
		logger.Warn("calibration stream ended early",
			zap.Int("requested", n),
			zap.Int("collected", got),
			zap.Int("batches", len(parts)),
		)
		return all, nil
	}
	return all.Head(n), nil
}
