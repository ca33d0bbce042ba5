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

import "errors"

var (
	// ErrShapeMismatch reports a parameter or activation whose size does not
	// match the layer it belongs to.
	ErrShapeMismatch = errors.New("nn: shape mismatch")

	// ErrInvalidStatistic reports a batch-norm running statistic that cannot
	// describe a distribution, such as a negative variance.
	ErrInvalidStatistic = errors.New("nn: invalid statistic")

	ErrNotContainer  = errors.New("nn: node is not a container")
	ErrUnknownKind   = errors.New("nn: unknown layer kind")
	ErrDuplicateName = errors.New("nn: duplicate child name")
)
