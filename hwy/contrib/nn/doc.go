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

// Package nn provides the layer kernels and the module tree that the
// quantization passes operate on.
//
// # Kernels
//
// Slice kernels, generic over hwy.Floats, in PyTorch parameter layout:
//   - BaseDense / ParallelDense - output = x @ weight^T + bias
//   - BaseConv2D / ParallelConv2D - NCHW convolution with stride and zero padding
//   - BaseBatchNorm - per-channel normalization with fixed statistics
//   - BatchStatistics - per-channel mean and biased variance of a batch
//   - DenseScalar - float64-accumulating reference for tests
//
// # Module tree
//
// A Model is an arena of Nodes addressed by NodeID. Each node is one of a
// closed set of Kinds: containers (KindSequential, KindResidual) and leaves
// (KindConv2D, KindLinear, KindBatchNorm, KindIdentity, KindReLU,
// KindFlatten). Nodes record their parent and their slot in the parent, so
// Replace swaps a child in constant time:
//
//	m := nn.NewModel("net", nn.KindSequential)
//	m.AddConv2D(m.Root(), "conv", nn.NewConv2D(3, 16, 3, 3, 1, 1))
//	m.AddBatchNorm(m.Root(), "bn", nn.NewBatchNorm(16, true))
//	m.AddLeaf(m.Root(), "relu", nn.KindReLU)
//
//	m.Eval()
//	y, err := m.Forward(x, nil)
//
// The Mode is explicit state on the model rather than per-layer state:
// ModeTrain normalizes with batch statistics, ModeEval with running ones.
package nn
