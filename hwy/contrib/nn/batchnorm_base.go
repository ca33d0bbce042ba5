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
	stdmath "math"

	"github.com/ajroetker/go-ptq/hwy"
)

// BaseBatchNorm applies batch normalization with fixed statistics to an
// input laid out as [batch, channels, spatial] (spatial is H*W for images,
// 1 for the output of a dense layer):
//
//	output = (input - mean[c]) / sqrt(variance[c] + epsilon) * gamma[c] + beta[c]
//
// gamma and beta are optional (pass nil to skip the affine transform).
// Each channel reduces to a single multiply-add with
// scale = gamma/std and shift = beta - mean*scale.
func BaseBatchNorm[T hwy.Floats](input, output []T, batch, channels, spatial int, mean, variance, gamma, beta []T, epsilon T) {
	size := batch * channels * spatial
	if len(input) < size || len(output) < size {
		panic("batchnorm: input or output slice too short")
	}
	if len(mean) < channels || len(variance) < channels {
		panic("batchnorm: statistics slice too short")
	}

	lanes := hwy.MaxLanes[T]()
	for c := range channels {
		scale := T(1.0 / stdmath.Sqrt(float64(variance[c]+epsilon)))
		if gamma != nil {
			scale *= gamma[c]
		}
		shift := -mean[c] * scale
		if beta != nil {
			shift += beta[c]
		}
		vScale := hwy.Set(scale)
		vShift := hwy.Set(shift)

		for n := range batch {
			off := (n*channels + c) * spatial
			in := input[off : off+spatial]
			out := output[off : off+spatial]

			i := 0
			for ; i+lanes <= spatial; i += lanes {
				hwy.Store(hwy.MulAdd(hwy.Load(in[i:]), vScale, vShift), out[i:])
			}
			for ; i < spatial; i++ {
				out[i] = in[i]*scale + shift
			}
		}
	}
}

// BatchStatistics computes the per-channel mean and biased variance of an
// input laid out as [batch, channels, spatial]. This is what batch
// normalization uses in training mode.
func BatchStatistics[T hwy.Floats](input []T, batch, channels, spatial int) (mean, variance []T) {
	mean = make([]T, channels)
	variance = make([]T, channels)
	count := batch * spatial
	if count == 0 {
		return mean, variance
	}

	lanes := hwy.MaxLanes[T]()
	for c := range channels {
		// Pass 1: mean
		sumAcc := hwy.Zero[T]()
		var tail T
		for n := range batch {
			row := input[(n*channels+c)*spatial : (n*channels+c+1)*spatial]
			i := 0
			for ; i+lanes <= spatial; i += lanes {
				sumAcc = hwy.Add(sumAcc, hwy.Load(row[i:]))
			}
			for ; i < spatial; i++ {
				tail += row[i]
			}
		}
		mu := (hwy.ReduceSum(sumAcc) + tail) / T(count)

		// Pass 2: variance
		vMean := hwy.Set(mu)
		varAcc := hwy.Zero[T]()
		tail = 0
		for n := range batch {
			row := input[(n*channels+c)*spatial : (n*channels+c+1)*spatial]
			i := 0
			for ; i+lanes <= spatial; i += lanes {
				diff := hwy.Sub(hwy.Load(row[i:]), vMean)
				varAcc = hwy.MulAdd(diff, diff, varAcc)
			}
			for ; i < spatial; i++ {
				diff := row[i] - mu
				tail += diff * diff
			}
		}
		mean[c] = mu
		variance[c] = (hwy.ReduceSum(varAcc) + tail) / T(count)
	}
	return mean, variance
}
