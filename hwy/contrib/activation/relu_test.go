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

package activation

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/ajroetker/go-ptq/hwy/contrib/workerpool"
)

var testSizes = []struct{ rows, cols int }{
	{1, 7},
	{3, 33},
	{64, 512},
}

func newTestPool(tb testing.TB) *workerpool.Pool {
	tb.Helper()
	pool := workerpool.New(4)
	tb.Cleanup(pool.Close)
	return pool
}

func randData(n int) []float32 {
	rng := rand.New(rand.NewPCG(42, 0))
	data := make([]float32, n)
	for i := range data {
		data[i] = rng.Float32()*4 - 2
	}
	return data
}

func TestBaseReLU(t *testing.T) {
	input := []float32{-2, -0.5, 0, 0.5, 2, -1, 3, -3, 1, 4, -4, 0.25, -0.25, 5, -5, 6, -6}
	output := make([]float32, len(input))
	BaseReLU(input, output)
	for i, x := range input {
		want := x
		if x < 0 {
			want = 0
		}
		if output[i] != want {
			t.Errorf("ReLU(%v) = %v, want %v", x, output[i], want)
		}
	}
}

func TestBaseReLUInPlace(t *testing.T) {
	data := []float64{-1, 2, -3, 4, -5}
	BaseReLU(data, data)
	want := []float64{0, 2, 0, 4, 0}
	for i := range data {
		if data[i] != want[i] {
			t.Errorf("data[%d] = %v, want %v", i, data[i], want[i])
		}
	}
}

func TestParallelReLU(t *testing.T) {
	pool := newTestPool(t)
	for _, sz := range testSizes {
		t.Run(fmt.Sprintf("%dx%d", sz.rows, sz.cols), func(t *testing.T) {
			n := sz.rows * sz.cols
			input := randData(n)
			want := make([]float32, n)
			got := make([]float32, n)

			BaseReLU(input, want)
			ParallelReLU(pool, input, got, sz.rows, sz.cols)
			for i := range got {
				if got[i] != want[i] {
					t.Fatalf("ParallelReLU[%d] = %v, want %v", i, got[i], want[i])
				}
			}
		})
	}
}

func TestParallelReLUNilPool(t *testing.T) {
	input := randData(64)
	want := make([]float32, 64)
	got := make([]float32, 64)

	BaseReLU(input, want)
	ParallelReLU[float32](nil, input, got, 8, 8)
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("ParallelReLU/nil[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}
