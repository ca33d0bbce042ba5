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
	"github.com/ajroetker/go-ptq/hwy"
	"github.com/ajroetker/go-ptq/hwy/contrib/autograd"
)

// RoundSTE is rounding with a straight-through gradient: the forward pass
// rounds to the nearest integer (ties to even) and the backward pass treats
// the rounding as the identity.
type RoundSTE[T hwy.Floats] struct{}

// Forward returns x rounded to the nearest integer.
func (RoundSTE[T]) Forward(x []T) []T {
	out := make([]T, len(x))
	BaseRoundSTEForward(x, out)
	return out
}

// Backward returns grad unchanged.
func (RoundSTE[T]) Backward(grad []T) []T {
	out := make([]T, len(grad))
	BaseRoundSTEBackward(grad, out)
	return out
}

// RoundSTEApply records RoundSTE applied to x.
func RoundSTEApply[T hwy.Floats](x *autograd.Var[T]) *autograd.Var[T] {
	return autograd.Apply[T](RoundSTE[T]{}, x)
}

// RoundSTEDetach builds the same estimator from graph operations:
//
//	(Round(x) - x).Detach() + x
//
// The detached term carries the rounding error with no gradient, so the
// value is Round(x) and the only gradient path is the trailing x.
func RoundSTEDetach[T hwy.Floats](x *autograd.Var[T]) *autograd.Var[T] {
	return autograd.Add(autograd.Detach(autograd.Sub(autograd.Round(x), x)), x)
}

// BaseRoundSTEForward writes x rounded to the nearest integer, ties to even,
// into out.
func BaseRoundSTEForward[T hwy.Floats](x, out []T) {
	if len(out) < len(x) {
		panic("round ste: output slice too short")
	}
	hwy.ProcessWithTail[T](len(x),
		func(offset int) {
			hwy.Store(hwy.RoundToEven(hwy.Load(x[offset:])), out[offset:])
		},
		func(offset, count int) {
			hwy.Store(hwy.RoundToEven(hwy.Load(x[offset:offset+count])), out[offset:])
		},
	)
}

// BaseRoundSTEBackward copies grad into out.
func BaseRoundSTEBackward[T hwy.Floats](grad, out []T) {
	if len(out) < len(grad) {
		panic("round ste: output slice too short")
	}
	copy(out, grad)
}
