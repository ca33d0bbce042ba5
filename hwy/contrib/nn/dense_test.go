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
	"testing"

	"github.com/ajroetker/go-ptq/hwy/contrib/workerpool"
)

func TestDense(t *testing.T) {
	pool := workerpool.New(0)
	defer pool.Close()

	tests := []struct {
		name        string
		batchSize   int
		inFeatures  int
		outFeatures int
		useBias     bool
	}{
		{"1x4x4/bias", 1, 4, 4, true},
		{"1x4x4/no_bias", 1, 4, 4, false},
		{"2x8x4/bias", 2, 8, 4, true},
		{"3x7x5/bias", 3, 7, 5, true}, // non-aligned dimensions
		{"8x64x32/bias", 8, 64, 32, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x := make([]float32, tt.batchSize*tt.inFeatures)
			weight := make([]float32, tt.outFeatures*tt.inFeatures)
			var bias []float32
			if tt.useBias {
				bias = make([]float32, tt.outFeatures)
				for i := range bias {
					bias[i] = float32(i) * 0.1
				}
			}
			for i := range x {
				x[i] = float32(i)*0.01 - 0.5
			}
			for i := range weight {
				weight[i] = float32(i)*0.005 - 0.25
			}

			baseOutput := make([]float32, tt.batchSize*tt.outFeatures)
			parallelOutput := make([]float32, tt.batchSize*tt.outFeatures)
			scalarOutput := make([]float32, tt.batchSize*tt.outFeatures)

			BaseDense(x, weight, bias, baseOutput, tt.batchSize, tt.inFeatures, tt.outFeatures)
			ParallelDense(pool, x, weight, bias, parallelOutput, tt.batchSize, tt.inFeatures, tt.outFeatures)
			DenseScalar(x, weight, bias, scalarOutput, tt.batchSize, tt.inFeatures, tt.outFeatures)

			for i := range baseOutput {
				relTol := stdmath.Max(1e-4, 1e-4*stdmath.Abs(float64(scalarOutput[i])))
				if diff := stdmath.Abs(float64(baseOutput[i] - scalarOutput[i])); diff > relTol {
					t.Errorf("output[%d]: base=%v, scalar=%v, diff=%v", i, baseOutput[i], scalarOutput[i], diff)
				}
				if parallelOutput[i] != baseOutput[i] {
					t.Errorf("output[%d]: parallel=%v, base=%v", i, parallelOutput[i], baseOutput[i])
				}
			}
		})
	}
}

func TestDense64(t *testing.T) {
	x := []float64{1, 2, 3}
	weight := []float64{
		1, 0, 0,
		0, 1, 0,
		1, 1, 1,
		-1, 0, 2,
	}
	bias := []float64{0.5, 0, 0, 1}
	output := make([]float64, 4)

	BaseDense(x, weight, bias, output, 1, 3, 4)

	want := []float64{1.5, 2, 6, 6}
	for i := range want {
		if stdmath.Abs(output[i]-want[i]) > 1e-12 {
			t.Errorf("output[%d] = %v, want %v", i, output[i], want[i])
		}
	}
}

func TestDenseShortSlicePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("BaseDense with short weight did not panic")
		}
	}()
	BaseDense(make([]float32, 4), make([]float32, 3), nil, make([]float32, 2), 1, 4, 2)
}
