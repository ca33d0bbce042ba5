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
	stdmath "math"

	"github.com/ajroetker/go-ptq/hwy"
	"github.com/ajroetker/go-ptq/hwy/contrib/workerpool"
)

// minParallelScaleElems is the weight size below which ScaleRows stays on
// the calling goroutine even when given a pool.
const minParallelScaleElems = 1 << 16

// BaseFoldBN computes the parameters of an absorbing layer with the batch
// norm that follows it merged in.
//
//   - weight is [out, rowLen] (row-major, any trailing dims flattened)
//   - bias is [out] (optional, pass nil when the layer has none)
//   - mean, variance are the running statistics, [out]
//   - gamma, beta are the affine parameters, [out] (either may be nil)
//
// With std = sqrt(variance + epsilon):
//
//	w' = w * gamma/std    b' = gamma*b/std + (beta - gamma*mean/std)
//
// where a nil gamma is taken as 1, and a nil bias or beta as 0. The returned slices are newly
// allocated; the inputs are not modified. A nil pool scales inline.
func BaseFoldBN[T hwy.Floats](pool *workerpool.Pool, weight, bias, mean, variance, gamma, beta []T, epsilon T, out int) (newWeight, newBias []T) {
	if out <= 0 || len(weight)%out != 0 {
		panic("foldbn: weight size is not a multiple of out")
	}
	if len(mean) < out || len(variance) < out {
		panic("foldbn: statistics slice too short")
	}
	if (gamma != nil && len(gamma) < out) || (beta != nil && len(beta) < out) {
		panic("foldbn: affine slice too short")
	}

	scale := make([]T, out)
	newBias = make([]T, out)
	for o := range out {
		std := T(stdmath.Sqrt(float64(variance[o]) + float64(epsilon)))
		g := T(1)
		if gamma != nil {
			g = gamma[o]
		}
		scale[o] = g / std
		shift := -g * mean[o] / std
		if beta != nil {
			shift += beta[o]
		}
		if bias != nil {
			newBias[o] = bias[o]*scale[o] + shift
		} else {
			newBias[o] = shift
		}
	}

	newWeight = make([]T, len(weight))
	copy(newWeight, weight)
	ScaleRows(pool, newWeight, scale, len(weight)/out)
	return newWeight, newBias
}

// ScaleRows multiplies row o of the [len(scale), rowLen] matrix m by scale[o],
// in place. Rows are split across the pool when the matrix is large.
func ScaleRows[T hwy.Floats](pool *workerpool.Pool, m, scale []T, rowLen int) {
	if len(m) < len(scale)*rowLen {
		panic("foldbn: matrix slice too short")
	}
	if pool == nil || len(m) < minParallelScaleElems {
		scaleRows(m, scale, rowLen, 0, len(scale))
		return
	}
	pool.ParallelFor(len(scale), func(start, end int) {
		scaleRows(m, scale, rowLen, start, end)
	})
}

func scaleRows[T hwy.Floats](m, scale []T, rowLen, start, end int) {
	lanes := hwy.MaxLanes[T]()
	for o := start; o < end; o++ {
		row := m[o*rowLen : (o+1)*rowLen]
		s := scale[o]
		vScale := hwy.Set(s)

		i := 0
		for ; i+lanes <= rowLen; i += lanes {
			hwy.Store(hwy.Mul(hwy.Load(row[i:]), vScale), row[i:])
		}
		for ; i < rowLen; i++ {
			row[i] *= s
		}
	}
}
