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
	"fmt"
	"slices"

	"github.com/ajroetker/go-ptq/hwy"
	"github.com/ajroetker/go-ptq/hwy/contrib/activation"
	"github.com/ajroetker/go-ptq/hwy/contrib/workerpool"
)

// Forward evaluates the model on x. Convolutions take [N, C, H, W], linear
// layers take [N, F], batch norms take either. Batch norms use running
// statistics in ModeEval and the statistics of x in ModeTrain (running
// statistics are not updated). x is not modified.
//
// The pool may be nil, in which case everything runs on the calling goroutine.
func (m *Model) Forward(x *Tensor, pool *workerpool.Pool) (*Tensor, error) {
	return m.forward(m.Root(), x, pool)
}

func (m *Model) forward(id NodeID, x *Tensor, pool *workerpool.Pool) (*Tensor, error) {
	n := &m.nodes[id]
	switch n.Kind {
	case KindSequential:
		return m.forwardChildren(n, x, pool)

	case KindResidual:
		y, err := m.forwardChildren(n, x, pool)
		if err != nil {
			return nil, err
		}
		if !slices.Equal(x.Shape, y.Shape) {
			return nil, fmt.Errorf("%s: residual branch shape %v, input %v: %w", m.Path(id), y.Shape, x.Shape, ErrShapeMismatch)
		}
		out := y.Clone()
		addInPlace(out.Data, x.Data)
		return out, nil

	case KindConv2D:
		return conv2DForward(n.Conv, x, pool)

	case KindLinear:
		return linearForward(n.Linear, x, pool)

	case KindBatchNorm:
		return batchNormForward(n.BN, x, m.mode)

	case KindIdentity:
		return x, nil

	case KindReLU:
		out := NewTensor(x.Shape...)
		rows := 1
		if len(x.Shape) > 0 {
			rows = x.Shape[0]
		}
		activation.ParallelReLU(pool, x.Data, out.Data, rows, len(x.Data)/max(rows, 1))
		return out, nil

	case KindFlatten:
		if len(x.Shape) == 0 {
			return nil, fmt.Errorf("%s: flatten of a scalar: %w", m.Path(id), ErrShapeMismatch)
		}
		return FromData(x.Data, x.Shape[0], numel(x.ExampleShape())), nil
	}
	return nil, fmt.Errorf("%s: %w", m.Path(id), ErrUnknownKind)
}

func (m *Model) forwardChildren(n *Node, x *Tensor, pool *workerpool.Pool) (*Tensor, error) {
	var err error
	for _, c := range n.Children {
		x, err = m.forward(c, x, pool)
		if err != nil {
			return nil, err
		}
	}
	return x, nil
}

func conv2DForward(c *Conv2D, x *Tensor, pool *workerpool.Pool) (*Tensor, error) {
	if len(x.Shape) != 4 || x.Shape[1] != c.InChannels {
		return nil, fmt.Errorf("conv2d: input shape %v, want [N, %d, H, W]: %w", x.Shape, c.InChannels, ErrShapeMismatch)
	}
	batch, height, width := x.Shape[0], x.Shape[2], x.Shape[3]
	outH := ConvOutputSize(height, c.KernelH, c.Stride, c.Padding)
	outW := ConvOutputSize(width, c.KernelW, c.Stride, c.Padding)
	if outH <= 0 || outW <= 0 {
		return nil, fmt.Errorf("conv2d: %dx%d input too small for %dx%d kernel: %w", height, width, c.KernelH, c.KernelW, ErrShapeMismatch)
	}
	out := NewTensor(batch, c.OutChannels, outH, outW)
	ParallelConv2D(pool, x.Data, c.Weight, c.Bias, out.Data,
		batch, c.InChannels, height, width, c.OutChannels, c.KernelH, c.KernelW, c.Stride, c.Padding)
	return out, nil
}

func linearForward(l *Linear, x *Tensor, pool *workerpool.Pool) (*Tensor, error) {
	if len(x.Shape) != 2 || x.Shape[1] != l.InFeatures {
		return nil, fmt.Errorf("linear: input shape %v, want [N, %d]: %w", x.Shape, l.InFeatures, ErrShapeMismatch)
	}
	out := NewTensor(x.Shape[0], l.OutFeatures)
	ParallelDense(pool, x.Data, l.Weight, l.Bias, out.Data, x.Shape[0], l.InFeatures, l.OutFeatures)
	return out, nil
}

func batchNormForward(bn *BatchNorm, x *Tensor, mode Mode) (*Tensor, error) {
	if len(x.Shape) < 2 || x.Shape[1] != bn.Channels {
		return nil, fmt.Errorf("batchnorm: input shape %v, want [N, %d, ...]: %w", x.Shape, bn.Channels, ErrShapeMismatch)
	}
	batch := x.Shape[0]
	spatial := numel(x.Shape[2:])

	mean, variance := bn.RunningMean, bn.RunningVar
	if mode == ModeTrain {
		mean, variance = BatchStatistics(x.Data, batch, bn.Channels, spatial)
	}

	out := NewTensor(x.Shape...)
	BaseBatchNorm(x.Data, out.Data, batch, bn.Channels, spatial, mean, variance, bn.Weight, bn.Bias, bn.Eps)
	return out, nil
}

// addInPlace computes dst += src.
func addInPlace[T hwy.Floats](dst, src []T) {
	hwy.ProcessWithTail[T](len(dst),
		func(offset int) {
			hwy.Store(hwy.Add(hwy.Load(dst[offset:]), hwy.Load(src[offset:])), dst[offset:])
		},
		func(offset, count int) {
			for i := offset; i < offset+count; i++ {
				dst[i] += src[i]
			}
		},
	)
}
