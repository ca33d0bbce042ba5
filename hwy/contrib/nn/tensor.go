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
	stdmath "math"
	"slices"
)

// Tensor is a dense row-major float32 array. Axis 0 is the batch axis.
type Tensor struct {
	Shape []int
	Data  []float32
}

// NewTensor allocates a zero-filled tensor.
func NewTensor(shape ...int) *Tensor {
	return &Tensor{Shape: slices.Clone(shape), Data: make([]float32, numel(shape))}
}

// FromData wraps data (not copied) in a tensor of the given shape.
// It panics if len(data) does not match the shape.
func FromData(data []float32, shape ...int) *Tensor {
	if n := numel(shape); n != len(data) {
		panic(fmt.Sprintf("nn: FromData: %d elements for shape %v (want %d)", len(data), shape, n))
	}
	return &Tensor{Shape: slices.Clone(shape), Data: data}
}

// Numel returns the number of elements.
func (t *Tensor) Numel() int {
	return len(t.Data)
}

// Dim returns the size of axis i.
func (t *Tensor) Dim(i int) int {
	return t.Shape[i]
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	return &Tensor{Shape: slices.Clone(t.Shape), Data: slices.Clone(t.Data)}
}

// ExampleShape returns the shape of one example (all axes after the batch axis).
func (t *Tensor) ExampleShape() []int {
	if len(t.Shape) == 0 {
		return nil
	}
	return t.Shape[1:]
}

// Head returns a copy of the first n examples along axis 0.
func (t *Tensor) Head(n int) *Tensor {
	n = min(n, t.Shape[0])
	stride := numel(t.ExampleShape())
	shape := slices.Clone(t.Shape)
	shape[0] = n
	return &Tensor{Shape: shape, Data: slices.Clone(t.Data[:n*stride])}
}

// Concat joins tensors along axis 0. All inputs must share the example shape.
func Concat(ts ...*Tensor) (*Tensor, error) {
	if len(ts) == 0 {
		return nil, fmt.Errorf("nn: Concat of zero tensors: %w", ErrShapeMismatch)
	}
	example := ts[0].ExampleShape()
	rows := 0
	for i, t := range ts {
		if len(t.Shape) == 0 || !slices.Equal(t.ExampleShape(), example) {
			return nil, fmt.Errorf("nn: Concat input %d has shape %v, want [*%v]: %w", i, t.Shape, example, ErrShapeMismatch)
		}
		rows += t.Shape[0]
	}
	out := &Tensor{
		Shape: append([]int{rows}, example...),
		Data:  make([]float32, 0, rows*numel(example)),
	}
	for _, t := range ts {
		out.Data = append(out.Data, t.Data...)
	}
	return out, nil
}

// AllClose reports whether a and b have the same shape and
// |a-b| <= atol + rtol*|b| holds elementwise.
func AllClose(a, b *Tensor, rtol, atol float64) bool {
	if !slices.Equal(a.Shape, b.Shape) {
		return false
	}
	for i := range a.Data {
		x, y := float64(a.Data[i]), float64(b.Data[i])
		if stdmath.Abs(x-y) > atol+rtol*stdmath.Abs(y) {
			return false
		}
	}
	return true
}

func numel(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}
