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

package nn

import (
	"errors"
	"fmt"
	stdmath "math"
)

// Validate checks the parameters of every attached layer and returns all
// problems found, joined. Errors wrap ErrShapeMismatch or ErrInvalidStatistic.
func (m *Model) Validate() error {
	var errs []error
	m.Walk(func(id NodeID, _ int) bool {
		if err := m.nodes[id].validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", m.Path(id), err))
		}
		return true
	})
	return errors.Join(errs...)
}

func (n *Node) validate() error {
	switch n.Kind {
	case KindConv2D:
		return n.Conv.Validate()
	case KindLinear:
		return n.Linear.Validate()
	case KindBatchNorm:
		return n.BN.Validate()
	}
	return nil
}

// Validate checks the weight and bias sizes against the declared shape.
func (c *Conv2D) Validate() error {
	if c.Stride < 1 || c.Padding < 0 || c.KernelH < 1 || c.KernelW < 1 {
		return fmt.Errorf("conv2d: kernel %dx%d stride %d padding %d: %w",
			c.KernelH, c.KernelW, c.Stride, c.Padding, ErrShapeMismatch)
	}
	if want := c.OutChannels * c.InChannels * c.KernelH * c.KernelW; len(c.Weight) != want {
		return fmt.Errorf("conv2d: weight has %d elements, want %d: %w", len(c.Weight), want, ErrShapeMismatch)
	}
	return checkBias(c.Bias, c.OutChannels)
}

// Validate checks the weight and bias sizes against the declared shape.
func (l *Linear) Validate() error {
	if want := l.OutFeatures * l.InFeatures; len(l.Weight) != want {
		return fmt.Errorf("linear: weight has %d elements, want %d: %w", len(l.Weight), want, ErrShapeMismatch)
	}
	return checkBias(l.Bias, l.OutFeatures)
}

func checkBias(bias []float32, out int) error {
	if bias != nil && len(bias) != out {
		return fmt.Errorf("bias has %d elements, want %d: %w", len(bias), out, ErrShapeMismatch)
	}
	return nil
}

// Validate checks that every per-channel vector has Channels entries and
// that the running variance and epsilon are non-negative.
func (bn *BatchNorm) Validate() error {
	for _, v := range []struct {
		name string
		data []float32
		opt  bool
	}{
		{"running_mean", bn.RunningMean, false},
		{"running_var", bn.RunningVar, false},
		{"weight", bn.Weight, true},
		{"bias", bn.Bias, true},
	} {
		if v.opt && v.data == nil {
			continue
		}
		if len(v.data) != bn.Channels {
			return fmt.Errorf("batchnorm: %s has %d elements, want %d: %w", v.name, len(v.data), bn.Channels, ErrShapeMismatch)
		}
	}
	if (bn.Weight == nil) != (bn.Bias == nil) {
		return fmt.Errorf("batchnorm: weight and bias must be both set or both nil: %w", ErrShapeMismatch)
	}
	if bn.Eps < 0 || stdmath.IsNaN(float64(bn.Eps)) {
		return fmt.Errorf("batchnorm: eps %g: %w", bn.Eps, ErrInvalidStatistic)
	}
	for c, v := range bn.RunningVar {
		if v < 0 || stdmath.IsNaN(float64(v)) {
			return fmt.Errorf("batchnorm: running_var[%d] = %g: %w", c, v, ErrInvalidStatistic)
		}
	}
	return nil
}
