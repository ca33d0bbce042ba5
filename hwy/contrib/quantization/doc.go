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

// Package quantization provides the model transformations and helpers used
// to prepare a network for post-training quantization.
//
//   - Folder - merges each batch norm into the Conv2D or Linear layer right
//     before it and leaves a StraightThrough (KindIdentity) in its slot
//   - BaseFoldBN - the per-channel fold formula as a slice kernel
//   - RoundSTE / RoundSTEDetach - rounding with a straight-through gradient
//   - Sampler / CalibSamples - gathers the first n calibration examples
//     from a lazy batch stream
//   - Config - YAML configuration for the above
//
// # Batch-norm folding
//
// For a layer with weight w and bias b followed by a batch norm with
// running mean mu, running variance var, scale gamma and shift beta:
//
//	std = sqrt(var + eps)
//	w'  = w * gamma/std                        (per output channel)
//	b'  = gamma*b/std + beta - gamma*mu/std
//
// so that in eval mode Layer'(x) equals BatchNorm(Layer(x)). Folding only
// pairs siblings: a batch norm is merged into the absorbing layer that
// immediately precedes it in the same container, or into the last
// absorbing layer of the container immediately preceding it when the
// PropagationPolicy lets that layer escape. A run of batch norms after one
// absorbing layer folds into it one after another.
//
//	folder := quantization.NewFolder(quantization.WithLogger(logger))
//	report, err := folder.Fold(model)
//
// # Straight-through rounding
//
// Both formulations round in the forward pass and give an all-ones
// gradient of Sum(y) with respect to x:
//
//	x := autograd.New([]float32{0.4, 1.6}, true)
//	y := quantization.RoundSTEApply(x)  // [0, 2]
//	_ = autograd.Sum(y).Backward()      // x.Grad == [1, 1]
package quantization
