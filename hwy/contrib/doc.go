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

// Package contrib groups the packages built on the hwy vector primitives.
//
// # Subpackages
//
//   - workerpool: persistent worker pool shared by the parallel kernels
//   - activation: element-wise activations (ReLU)
//   - nn: dense, convolution and batch-norm kernels plus the module tree
//   - autograd: reverse-mode differentiation over slices
//   - quantization: batch-norm folding, straight-through rounding and
//     calibration sampling
//
// # Kernel conventions
//
// Kernels are generic over hwy.Floats and come in two forms:
//
//	nn.BaseDense(x, weight, bias, out, batch, in, outDim)             // calling goroutine
//	nn.ParallelDense(pool, x, weight, bias, out, batch, in, outDim)   // split over pool
//
// A nil *workerpool.Pool is always accepted and runs inline. Kernels panic
// when a slice is shorter than the sizes passed alongside it.
package contrib
