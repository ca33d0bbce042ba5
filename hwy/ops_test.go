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

import (
	"math"
	"testing"
)

func TestLoad(t *testing.T) {
	data := make([]float32, 2*MaxLanes[float32]())
	for i := range data {
		data[i] = float32(i + 1)
	}
	v := Load(data)

	if v.NumLanes() != MaxLanes[float32]() {
		t.Fatalf("Load: got %d lanes, want %d", v.NumLanes(), MaxLanes[float32]())
	}
	for i := 0; i < v.NumLanes(); i++ {
		if v.data[i] != data[i] {
			t.Errorf("Load: lane %d: got %v, want %v", i, v.data[i], data[i])
		}
	}
}

func TestLoadShort(t *testing.T) {
	v := Load([]float64{1})
	if v.NumLanes() != 1 {
		t.Errorf("Load of 1 element: got %d lanes, want 1", v.NumLanes())
	}
}

func TestStore(t *testing.T) {
	v := Set[float32](3)
	dst := make([]float32, v.NumLanes()+1)
	Store(v, dst)

	for i := 0; i < v.NumLanes(); i++ {
		if dst[i] != 3 {
			t.Errorf("Store: lane %d: got %v, want 3", i, dst[i])
		}
	}
	if dst[v.NumLanes()] != 0 {
		t.Errorf("Store wrote past the vector: %v", dst)
	}
}

func TestSetAndZero(t *testing.T) {
	v := Set[float32](42.0)
	for i := 0; i < v.NumLanes(); i++ {
		if v.data[i] != 42.0 {
			t.Errorf("Set: lane %d: got %v, want %v", i, v.data[i], 42.0)
		}
	}

	z := Zero[int32]()
	if z.NumLanes() == 0 {
		t.Error("Zero created empty vector")
	}
	for i := 0; i < z.NumLanes(); i++ {
		if z.data[i] != 0 {
			t.Errorf("Zero: lane %d: got %v, want 0", i, z.data[i])
		}
	}
}

func TestArithmetic(t *testing.T) {
	a := Set[float32](10.0)
	b := Set[float32](4.0)

	tests := []struct {
		name string
		got  Vec[float32]
		want float32
	}{
		{"Add", Add(a, b), 14},
		{"Sub", Sub(a, b), 6},
		{"Mul", Mul(a, b), 40},
		{"Neg", Neg(a), -10},
		{"Max", Max(b, a), 10},
		{"MulAdd", MulAdd(a, b, Set[float32](1)), 41},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got.NumLanes() != MaxLanes[float32]() {
				t.Fatalf("got %d lanes, want %d", tt.got.NumLanes(), MaxLanes[float32]())
			}
			for i, x := range tt.got.Data() {
				if x != tt.want {
					t.Errorf("lane %d: got %v, want %v", i, x, tt.want)
				}
			}
		})
	}
}

func TestRoundToEven(t *testing.T) {
	in := []float64{0.5, 1.5, 2.5, -0.5, -1.5, 2.4, 2.6, -2.6}
	want := []float64{0, 2, 2, 0, -2, 2, 3, -3}

	lanes := MaxLanes[float64]()
	for off := 0; off < len(in); off += lanes {
		end := min(off+lanes, len(in))
		got := RoundToEven(Load(in[off:end])).Data()
		for i, x := range got {
			if x != want[off+i] {
				t.Errorf("RoundToEven(%v) = %v, want %v", in[off+i], x, want[off+i])
			}
		}
	}
}

func TestReduceSum(t *testing.T) {
	v := Set[float64](0.25)
	want := 0.25 * float64(v.NumLanes())
	if got := ReduceSum(v); math.Abs(got-want) > 1e-12 {
		t.Errorf("ReduceSum = %v, want %v", got, want)
	}
}

func TestProcessWithTail(t *testing.T) {
	lanes := MaxLanes[float32]()
	size := 3*lanes + 1
	var full, tail int
	ProcessWithTail[float32](size,
		func(offset int) { full++ },
		func(offset, count int) {
			tail += count
			if offset != 3*lanes {
				t.Errorf("tail offset = %d, want %d", offset, 3*lanes)
			}
		},
	)
	if full != 3 || tail != 1 {
		t.Errorf("ProcessWithTail: full=%d tail=%d, want 3 and 1", full, tail)
	}
}

func TestDispatchLevel(t *testing.T) {
	if CurrentWidth() < 16 {
		t.Errorf("CurrentWidth() = %d, want >= 16", CurrentWidth())
	}
	if CurrentName() == "unknown" {
		t.Errorf("CurrentName() = %q for level %d", CurrentName(), CurrentLevel())
	}
	if got := MaxLanes[float32]() * 4; got != CurrentWidth() {
		t.Errorf("MaxLanes[float32]*4 = %d, want %d", got, CurrentWidth())
	}
}

func TestNoSimdEnv(t *testing.T) {
	tests := []struct {
		val  string
		want bool
	}{
		{"", false},
		{"0", false},
		{"false", false},
		{"1", true},
		{"true", true},
		{"yes", true},
	}
	for _, tt := range tests {
		t.Setenv("HWY_NO_SIMD", tt.val)
		if got := NoSimdEnv(); got != tt.want {
			t.Errorf("NoSimdEnv() with HWY_NO_SIMD=%q = %v, want %v", tt.val, got, tt.want)
		}
	}
}
