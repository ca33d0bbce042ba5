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
	"github.com/ajroetker/go-ptq/hwy"
	"github.com/ajroetker/go-ptq/hwy/contrib/workerpool"
)

// BaseDense computes a dense (fully-connected) layer: output = x @ weight^T + bias.
//
//   - x is [batchSize, inFeatures] (row-major)
//   - weight is [outFeatures, inFeatures] (row-major, PyTorch format)
//   - bias is [outFeatures] (optional, pass nil to skip)
//   - output is [batchSize, outFeatures] (row-major)
func BaseDense[T hwy.Floats](x, weight, bias, output []T, batchSize, inFeatures, outFeatures int) {
	if len(x) < batchSize*inFeatures {
		panic("dense: x slice too short")
	}
	if len(weight) < outFeatures*inFeatures {
		panic("dense: weight slice too short")
	}
	if len(output) < batchSize*outFeatures {
		panic("dense: output slice too short")
	}
	if bias != nil && len(bias) < outFeatures {
		panic("dense: bias slice too short")
	}

	for i := range batchSize {
		denseRow(x[i*inFeatures:(i+1)*inFeatures], weight, bias, output[i*outFeatures:(i+1)*outFeatures])
	}
}

// denseRow computes one output row with vector dot products along inFeatures.
func denseRow[T hwy.Floats](xRow, weight, bias, oRow []T) {
	inFeatures := len(xRow)
	lanes := hwy.MaxLanes[T]()

	for j := range oRow {
		wRow := weight[j*inFeatures : (j+1)*inFeatures]
		acc := hwy.Zero[T]()

		var p int
		for p = 0; p+lanes <= inFeatures; p += lanes {
			acc = hwy.MulAdd(hwy.Load(xRow[p:]), hwy.Load(wRow[p:]), acc)
		}

		sum := hwy.ReduceSum(acc)
		for ; p < inFeatures; p++ {
			sum += xRow[p] * wRow[p]
		}

		if bias != nil {
			sum += bias[j]
		}
		oRow[j] = sum
	}
}

// ParallelDense computes BaseDense with batch rows split across the pool.
// A nil pool computes inline.
func ParallelDense[T hwy.Floats](pool *workerpool.Pool, x, weight, bias, output []T, batchSize, inFeatures, outFeatures int) {
	if pool == nil || batchSize < 2 {
		BaseDense(x, weight, bias, output, batchSize, inFeatures, outFeatures)
		return
	}
	pool.ParallelFor(batchSize, func(start, end int) {
		BaseDense(x[start*inFeatures:end*inFeatures], weight, bias,
			output[start*outFeatures:end*outFeatures], end-start, inFeatures, outFeatures)
	})
}

// DenseScalar is a scalar reference implementation for comparison and testing.
func DenseScalar[T hwy.Floats](x, weight, bias, output []T, batchSize, inFeatures, outFeatures int) {
	for i := range batchSize {
		xOff := i * inFeatures
		oOff := i * outFeatures

		for j := range outFeatures {
			wOff := j * inFeatures
			var sum float64
			for p := range inFeatures {
				sum += float64(x[xOff+p]) * float64(weight[wOff+p])
			}
			if bias != nil {
				sum += float64(bias[j])
			}
			output[oOff+j] = T(sum)
		}
	}
}
