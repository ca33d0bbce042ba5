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
	"strings"
)

// Kind is the closed set of node types a Model can hold.
type Kind uint8

const (
	// KindSequential is a container whose children run in declaration order.
	KindSequential Kind = iota

	// KindResidual is a container computing x + seq(children)(x).
	KindResidual

	// KindConv2D is a 2-D convolution. It can absorb a following batch norm.
	KindConv2D

	// KindLinear is a fully-connected layer. It can absorb a following batch norm.
	KindLinear

	// KindBatchNorm normalizes each channel with running or batch statistics.
	KindBatchNorm

	// KindIdentity passes its input through unchanged. Folding leaves one in
	// place of every batch norm it removes.
	KindIdentity

	// KindReLU is max(x, 0).
	KindReLU

	// KindFlatten reshapes [N, ...] to [N, prod(...)].
	KindFlatten
)

var kindNames = [...]string{
	KindSequential: "sequential",
	KindResidual:   "residual",
	KindConv2D:     "conv2d",
	KindLinear:     "linear",
	KindBatchNorm:  "batchnorm",
	KindIdentity:   "identity",
	KindReLU:       "relu",
	KindFlatten:    "flatten",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// ParseKind maps a kind name (as returned by Kind.String, case-insensitive)
// back to its Kind.
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, name := range kindNames {
		if name == s {
			return Kind(k), nil
		}
	}
	return 0, fmt.Errorf("%q: %w", s, ErrUnknownKind)
}

// IsContainer reports whether nodes of this kind hold children.
func (k Kind) IsContainer() bool {
	return k == KindSequential || k == KindResidual
}

// IsAbsorbing reports whether a layer of this kind can absorb the affine
// transform of a batch norm that follows it.
func (k Kind) IsAbsorbing() bool {
	return k == KindConv2D || k == KindLinear
}

// IsNormalization reports whether a layer of this kind can be folded away.
func (k Kind) IsNormalization() bool {
	return k == KindBatchNorm
}

// Absorbing is implemented by layers whose weight has the output channel as
// its leading axis, [out, in, ...], and whose optional bias has length out.
type Absorbing interface {
	// OutDim is the size of the leading weight axis.
	OutDim() int

	// Params returns the weight and bias (nil when the layer has none).
	Params() (weight, bias []float32)

	// SetParams replaces the weight and bias.
	SetParams(weight, bias []float32)

	// Validate checks the parameter sizes against the declared shape.
	Validate() error
}

// Conv2D holds the parameters of a 2-D convolution in PyTorch layout.
type Conv2D struct {
	InChannels, OutChannels int
	KernelH, KernelW        int
	Stride, Padding         int

	// Weight is [OutChannels, InChannels, KernelH, KernelW].
	Weight []float32
	// Bias is [OutChannels] or nil.
	Bias []float32
}

// NewConv2D returns a zero-initialized convolution without bias.
// A stride below 1 is treated as 1.
func NewConv2D(in, out, kh, kw, stride, padding int) *Conv2D {
	return &Conv2D{
		InChannels: in, OutChannels: out,
		KernelH: kh, KernelW: kw,
		Stride: max(stride, 1), Padding: padding,
		Weight: make([]float32, out*in*kh*kw),
	}
}

func (c *Conv2D) OutDim() int { return c.OutChannels }

func (c *Conv2D) Params() (weight, bias []float32) { return c.Weight, c.Bias }

func (c *Conv2D) SetParams(weight, bias []float32) { c.Weight, c.Bias = weight, bias }

// Linear holds the parameters of a fully-connected layer.
type Linear struct {
	InFeatures, OutFeatures int

	// Weight is [OutFeatures, InFeatures].
	Weight []float32
	// Bias is [OutFeatures] or nil.
	Bias []float32
}

// NewLinear returns a zero-initialized linear layer without bias.
func NewLinear(in, out int) *Linear {
	return &Linear{InFeatures: in, OutFeatures: out, Weight: make([]float32, out*in)}
}

func (l *Linear) OutDim() int { return l.OutFeatures }

func (l *Linear) Params() (weight, bias []float32) { return l.Weight, l.Bias }

func (l *Linear) SetParams(weight, bias []float32) { l.Weight, l.Bias = weight, bias }

// DefaultBatchNormEps is the epsilon NewBatchNorm uses.
const DefaultBatchNormEps = 1e-5

// BatchNorm holds the running statistics and optional affine parameters of
// a batch normalization layer.
type BatchNorm struct {
	Channels    int
	RunningMean []float32
	RunningVar  []float32

	// Weight (gamma) and Bias (beta) are both nil for a non-affine layer.
	Weight []float32
	Bias   []float32

	Eps float32
}

// NewBatchNorm returns a batch norm with mean 0, variance 1 and, when
// affine is set, gamma 1 and beta 0.
func NewBatchNorm(channels int, affine bool) *BatchNorm {
	bn := &BatchNorm{
		Channels:    channels,
		RunningMean: make([]float32, channels),
		RunningVar:  filled(channels, 1),
		Eps:         DefaultBatchNormEps,
	}
	if affine {
		bn.Weight = filled(channels, 1)
		bn.Bias = make([]float32, channels)
	}
	return bn
}

// Affine reports whether the layer carries a learned scale and shift.
func (bn *BatchNorm) Affine() bool {
	return bn.Weight != nil && bn.Bias != nil
}

func filled(n int, v float32) []float32 {
	s := make([]float32, n)
	for i := range s {
		s[i] = v
	}
	return s
}
