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

// Package autograd is a minimal reverse-mode gradient tape over flat
// vectors, sized for the straight-through estimators used during
// quantization-aware weight rounding.
//
// A Var records the operations that produced it. Calling Backward on a
// scalar Var walks the recorded graph in reverse topological order and
// accumulates gradients into every leaf created with requiresGrad set:
//
//	x := autograd.New([]float32{0.4, 1.6}, true)
//	y := autograd.Sum(autograd.Add(autograd.Detach(autograd.Sub(autograd.Round(x), x)), x))
//	if err := y.Backward(); err != nil { ... }
//	// x.Grad == [1, 1]
//
// Custom operators with a hand-written gradient implement Function and are
// recorded with Apply.
package autograd
