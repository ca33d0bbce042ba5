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

// Package activation provides element-wise activation kernels.
package activation

import (
	"github.com/ajroetker/go-ptq/hwy"
	"github.com/ajroetker/go-ptq/hwy/contrib/workerpool"
)

// MinParallelActivationOps is the minimum total element count before
// parallelizing memory-bound activation operations.
const MinParallelActivationOps = 16384

// BaseReLU computes the Rectified Linear Unit activation: max(0, x).
// It processes min(len(input), len(output)) elements; input and output may
// be the same slice.
func BaseReLU[T hwy.Floats](input, output []T) {
	size := min(len(input), len(output))
	if size == 0 {
		return
	}

	vZero := hwy.Zero[T]()
	lanes := vZero.NumLanes()
	ii := 0

	for ; ii+lanes <= size; ii += lanes {
		hwy.Store(hwy.Max(hwy.Load(input[ii:]), vZero), output[ii:])
	}

	for i := ii; i < size; i++ {
		output[i] = max(input[i], 0)
	}
}

// ParallelApplyRows applies fn to each row of a [rows, cols] matrix in
// parallel. fn receives the input and output slices for a single row.
//
// Falls back to sequential execution when pool is nil or the total element
// count is below MinParallelActivationOps.
func ParallelApplyRows[T hwy.Floats](pool *workerpool.Pool, input, output []T, rows, cols int, fn func(input, output []T)) {
	if pool == nil || rows*cols < MinParallelActivationOps {
		for r := range rows {
			off := r * cols
			fn(input[off:off+cols], output[off:off+cols])
		}
		return
	}

	pool.ParallelFor(rows, func(start, end int) {
		for r := start; r < end; r++ {
			off := r * cols
			fn(input[off:off+cols], output[off:off+cols])
		}
	})
}

// ParallelReLU applies ReLU element-wise across a [rows, cols] matrix in
// parallel.
func ParallelReLU[T hwy.Floats](pool *workerpool.Pool, input, output []T, rows, cols int) {
	ParallelApplyRows(pool, input, output, rows, cols, BaseReLU[T])
}
