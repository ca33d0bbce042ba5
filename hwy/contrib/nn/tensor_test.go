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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTensorBasics(t *testing.T) {
	x := NewTensor(2, 3, 4)
	assert.Equal(t, 24, x.Numel())
	assert.Equal(t, 3, x.Dim(1))
	assert.Equal(t, []int{3, 4}, x.ExampleShape())

	y := x.Clone()
	y.Data[0] = 1
	y.Shape[0] = 7
	assert.Zero(t, x.Data[0])
	assert.Equal(t, 2, x.Shape[0])

	assert.Panics(t, func() { FromData(make([]float32, 5), 2, 3) })
}

func TestTensorHead(t *testing.T) {
	x := FromData([]float32{0, 1, 2, 3, 4, 5}, 3, 2)

	h := x.Head(2)
	assert.Equal(t, []int{2, 2}, h.Shape)
	assert.Equal(t, []float32{0, 1, 2, 3}, h.Data)

	h.Data[0] = 9
	assert.Zero(t, x.Data[0], "Head must copy")

	assert.Equal(t, []int{3, 2}, x.Head(10).Shape)
}

func TestConcat(t *testing.T) {
	a := FromData([]float32{1, 2}, 1, 2)
	b := FromData([]float32{3, 4, 5, 6}, 2, 2)

	c, err := Concat(a, b)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 2}, c.Shape)
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, c.Data)

	_, err = Concat(a, FromData([]float32{1, 2, 3}, 1, 3))
	require.ErrorIs(t, err, ErrShapeMismatch)

	_, err = Concat()
	require.ErrorIs(t, err, ErrShapeMismatch)
}

func TestAllClose(t *testing.T) {
	a := FromData([]float32{1, 2, 100}, 3)
	b := FromData([]float32{1, 2.000001, 100.0001}, 3)

	assert.True(t, AllClose(a, b, 1e-5, 1e-6))
	assert.False(t, AllClose(a, b, 0, 0))
	assert.False(t, AllClose(a, FromData([]float32{1, 2, 100}, 1, 3), 1, 1))
}
