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

package autograd

import (
	"errors"
	"fmt"
	stdmath "math"
	"slices"

	"github.com/ajroetker/go-ptq/hwy"
)

var (
	// ErrNotScalar is returned by Backward on a Var with more than one element.
	ErrNotScalar = errors.New("autograd: backward requires a scalar")

	// ErrNoGrad is returned by Backward on a Var that does not depend on any
	// leaf requiring gradients.
	ErrNoGrad = errors.New("autograd: value does not require grad")
)

// Var is a vector value on the tape.
type Var[T hwy.Floats] struct {
	Value []T

	// Grad accumulates dL/dValue for leaves created with requiresGrad.
	// It is nil until the first Backward that reaches this leaf.
	Grad []T

	requiresGrad bool
	parents      []*Var[T]
	// backward maps the gradient of this Var to one gradient per parent
	// (nil entries contribute nothing).
	backward func(grad []T) [][]T
}

// New creates a leaf. The value is used as is, not copied.
func New[T hwy.Floats](value []T, requiresGrad bool) *Var[T] {
	return &Var[T]{Value: value, requiresGrad: requiresGrad}
}

// RequiresGrad reports whether gradients flow into this Var.
func (v *Var[T]) RequiresGrad() bool {
	return v.requiresGrad
}

// IsLeaf reports whether v was created by New or Detach.
func (v *Var[T]) IsLeaf() bool {
	return v.backward == nil
}

// ZeroGrad clears the accumulated gradient.
func (v *Var[T]) ZeroGrad() {
	v.Grad = nil
}

// record builds the result of an operation. The backward closure is only
// kept when one of the parents requires grad.
func record[T hwy.Floats](value []T, backward func(grad []T) [][]T, parents ...*Var[T]) *Var[T] {
	out := &Var[T]{Value: value}
	for _, p := range parents {
		if p.requiresGrad {
			out.requiresGrad = true
			out.parents = parents
			out.backward = backward
			break
		}
	}
	return out
}

// Add returns a + b elementwise.
func Add[T hwy.Floats](a, b *Var[T]) *Var[T] {
	mustSameLen("Add", a, b)
	return record(zip(a.Value, b.Value, hwy.Add[T]),
		func(grad []T) [][]T { return [][]T{grad, grad} }, a, b)
}

// Sub returns a - b elementwise.
func Sub[T hwy.Floats](a, b *Var[T]) *Var[T] {
	mustSameLen("Sub", a, b)
	return record(zip(a.Value, b.Value, hwy.Sub[T]),
		func(grad []T) [][]T { return [][]T{grad, negate(grad)} }, a, b)
}

// Round rounds to the nearest integer, ties to even. Its gradient is zero
// almost everywhere, so nothing flows back through it.
func Round[T hwy.Floats](x *Var[T]) *Var[T] {
	return record(RoundToEven(x.Value),
		func(grad []T) [][]T { return [][]T{nil} }, x)
}

// Detach returns a leaf holding a copy of x's value that does not require grad.
func Detach[T hwy.Floats](x *Var[T]) *Var[T] {
	return New(slices.Clone(x.Value), false)
}

// Sum reduces x to a single element.
func Sum[T hwy.Floats](x *Var[T]) *Var[T] {
	lanes := hwy.MaxLanes[T]()
	acc := hwy.Zero[T]()
	i := 0
	for ; i+lanes <= len(x.Value); i += lanes {
		acc = hwy.Add(acc, hwy.Load(x.Value[i:]))
	}
	total := hwy.ReduceSum(acc)
	for ; i < len(x.Value); i++ {
		total += x.Value[i]
	}

	n := len(x.Value)
	return record([]T{total}, func(grad []T) [][]T {
		g := make([]T, n)
		for i := range g {
			g[i] = grad[0]
		}
		return [][]T{g}
	}, x)
}

// Function is an operator with a hand-written gradient.
type Function[T hwy.Floats] interface {
	// Forward computes the output for x. It must not modify x.
	Forward(x []T) []T
	// Backward maps dL/dOutput to dL/dInput.
	Backward(grad []T) []T
}

// Apply records fn applied to x.
func Apply[T hwy.Floats](fn Function[T], x *Var[T]) *Var[T] {
	return record(fn.Forward(x.Value),
		func(grad []T) [][]T { return [][]T{fn.Backward(grad)} }, x)
}

// Backward computes gradients of v, which must hold a single element, with
// respect to every leaf it depends on that requires grad. Gradients are
// added to the leaves' Grad.
func (v *Var[T]) Backward() error {
	if len(v.Value) != 1 {
		return fmt.Errorf("%w: value has %d elements", ErrNotScalar, len(v.Value))
	}
	if !v.requiresGrad {
		return ErrNoGrad
	}

	// Topological order, parents before children.
	var order []*Var[T]
	visited := make(map[*Var[T]]bool)
	var visit func(n *Var[T])
	visit = func(n *Var[T]) {
		if visited[n] {
			return
		}
		visited[n] = true
		for _, p := range n.parents {
			if p.requiresGrad {
				visit(p)
			}
		}
		order = append(order, n)
	}
	visit(v)

	grads := map[*Var[T]][]T{v: {1}}
	for i := len(order) - 1; i >= 0; i-- {
		n := order[i]
		g, ok := grads[n]
		if !ok {
			continue
		}
		if n.IsLeaf() {
			n.Grad = accumulate(n.Grad, g)
			continue
		}
		for j, pg := range n.backward(g) {
			p := n.parents[j]
			if pg == nil || !p.requiresGrad {
				continue
			}
			grads[p] = accumulate(grads[p], pg)
		}
	}
	return nil
}

// RoundToEven rounds each element of x to the nearest integer, ties to even,
// into a new slice.
func RoundToEven[T hwy.Floats](x []T) []T {
	out := make([]T, len(x))
	hwy.ProcessWithTail[T](len(x),
		func(offset int) {
			hwy.Store(hwy.RoundToEven(hwy.Load(x[offset:])), out[offset:])
		},
		func(offset, count int) {
			for i := offset; i < offset+count; i++ {
				out[i] = T(stdmath.RoundToEven(float64(x[i])))
			}
		},
	)
	return out
}

func zip[T hwy.Floats](a, b []T, op func(x, y hwy.Vec[T]) hwy.Vec[T]) []T {
	out := make([]T, len(a))
	hwy.ProcessWithTail[T](len(a),
		func(offset int) {
			hwy.Store(op(hwy.Load(a[offset:]), hwy.Load(b[offset:])), out[offset:])
		},
		func(offset, count int) {
			va := hwy.Load(a[offset : offset+count])
			vb := hwy.Load(b[offset : offset+count])
			hwy.Store(op(va, vb), out[offset:])
		},
	)
	return out
}

func negate[T hwy.Floats](x []T) []T {
	out := make([]T, len(x))
	hwy.ProcessWithTail[T](len(x),
		func(offset int) {
			hwy.Store(hwy.Neg(hwy.Load(x[offset:])), out[offset:])
		},
		func(offset, count int) {
			hwy.Store(hwy.Neg(hwy.Load(x[offset:offset+count])), out[offset:])
		},
	)
	return out
}

// accumulate returns dst + src, allocating dst when it is nil. src is never
// aliased by the result.
func accumulate[T hwy.Floats](dst, src []T) []T {
	if dst == nil {
		return slices.Clone(src)
	}
	for i := range dst {
		dst[i] += src[i]
	}
	return dst
}

func mustSameLen[T hwy.Floats](op string, a, b *Var[T]) {
	if len(a.Value) != len(b.Value) {
		panic(fmt.Sprintf("autograd: %s of %d and %d elements", op, len(a.Value), len(b.Value)))
	}
}
