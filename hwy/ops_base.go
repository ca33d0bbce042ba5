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

package hwy

import "math"

// This file provides the pure Go implementations of the vector operations.
// Every operation is element-wise over min(len) lanes of its operands.

// Load creates a vector by loading data from a slice.
func Load[T Lanes](src []T) Vec[T] {
	n := min(len(src), MaxLanes[T]())
	data := make([]T, n)
	copy(data, src[:n])
	return Vec[T]{data: data}
}

// Store writes a vector's data to a slice.
func Store[T Lanes](v Vec[T], dst []T) {
	n := min(len(dst), len(v.data))
	copy(dst[:n], v.data[:n])
}

// Set creates a vector with all lanes set to the same value.
func Set[T Lanes](value T) Vec[T] {
	data := make([]T, MaxLanes[T]())
	for i := range data {
		data[i] = value
	}
	return Vec[T]{data: data}
}

// Zero creates a vector with all lanes set to zero.
func Zero[T Lanes]() Vec[T] {
	return Vec[T]{data: make([]T, MaxLanes[T]())}
}

// Add performs element-wise addition.
func Add[T Lanes](a, b Vec[T]) Vec[T] {
	n := min(len(b.data), len(a.data))
	result := make([]T, n)
	for i := range n {
		result[i] = a.data[i] + b.data[i]
	}
	return Vec[T]{data: result}
}

// Sub performs element-wise subtraction.
func Sub[T Lanes](a, b Vec[T]) Vec[T] {
	n := min(len(b.data), len(a.data))
	result := make([]T, n)
	for i := range n {
		result[i] = a.data[i] - b.data[i]
	}
	return Vec[T]{data: result}
}

// Mul performs element-wise multiplication.
func Mul[T Lanes](a, b Vec[T]) Vec[T] {
	n := min(len(b.data), len(a.data))
	result := make([]T, n)
	for i := range n {
		result[i] = a.data[i] * b.data[i]
	}
	return Vec[T]{data: result}
}

// Max returns the element-wise maximum.
func Max[T Lanes](a, b Vec[T]) Vec[T] {
	n := min(len(b.data), len(a.data))
	result := make([]T, n)
	for i := range n {
		result[i] = max(a.data[i], b.data[i])
	}
	return Vec[T]{data: result}
}

// Neg negates each lane.
func Neg[T Lanes](v Vec[T]) Vec[T] {
	result := make([]T, len(v.data))
	for i, x := range v.data {
		result[i] = -x
	}
	return Vec[T]{data: result}
}

// MulAdd performs fused multiply-add: a*b + c.
func MulAdd[T Floats](a, b, c Vec[T]) Vec[T] {
	n := min(len(c.data), min(len(b.data), len(a.data)))
	result := make([]T, n)
	for i := range n {
		result[i] = T(math.FMA(float64(a.data[i]), float64(b.data[i]), float64(c.data[i])))
	}
	return Vec[T]{data: result}
}

// RoundToEven rounds to the nearest integer, ties to even (banker's rounding).
// This is the default IEEE 754 rounding mode.
func RoundToEven[T Floats](v Vec[T]) Vec[T] {
	result := make([]T, len(v.data))
	for i, x := range v.data {
		result[i] = T(math.RoundToEven(float64(x)))
	}
	return Vec[T]{data: result}
}

// ReduceSum sums all lanes.
func ReduceSum[T Lanes](v Vec[T]) T {
	var sum T
	for _, x := range v.data {
		sum += x
	}
	return sum
}
