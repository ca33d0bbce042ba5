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

import "github.com/ajroetker/go-ptq/hwy/contrib/nn"

// StraightThrough is a layer that returns its input. It takes the place of
// a folded batch norm so the tree keeps the same names and positions.
type StraightThrough struct{}

// Forward returns x itself, not a copy. Model.Forward does not call it:
// a node of Kind KindIdentity passes its input through on its own.
func (StraightThrough) Forward(x *nn.Tensor) *nn.Tensor { return x }

// Kind is the node kind StraightThrough occupies in a model.
func (StraightThrough) Kind() nn.Kind { return nn.KindIdentity }
