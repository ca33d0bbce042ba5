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

	"github.com/ajroetker/go-ptq/hwy/contrib/workerpool"
)

func rampTensor(shape ...int) *Tensor {
	x := NewTensor(shape...)
	for i := range x.Data {
		x.Data[i] = float32((i*13)%29)*0.1 - 1.4
	}
	return x
}

func TestForwardLinearBatchNorm(t *testing.T) {
	m := NewModel("net", KindSequential)
	lin := NewLinear(2, 2)
	lin.Weight = []float32{1, 0, 0, 2}
	lin.Bias = []float32{0, 1}
	mustAdd(t, m.AddLinear(m.Root(), "fc", lin))
	bn := NewBatchNorm(2, true)
	bn.RunningMean = []float32{1, 1}
	bn.RunningVar = []float32{4, 1}
	bn.Weight = []float32{2, 1}
	bn.Bias = []float32{0, -1}
	bn.Eps = 0
	mustAdd(t, m.AddBatchNorm(m.Root(), "bn", bn))
	mustAdd(t, m.AddLeaf(m.Root(), "relu", KindReLU))
	m.Eval()

	x := FromData([]float32{3, 1, -1, -2}, 2, 2)
	y, err := m.Forward(x, nil)
	require.NoError(t, err)

	// fc: [3, 3], [-1, -3]
	// bn: c0 (v-1)/2*2, c1 (v-1)/1*1-1
	// relu
	assert.Equal(t, []int{2, 2}, y.Shape)
	assert.InDeltaSlice(t, []float32{2, 1, 0, 0}, y.Data, 1e-6)
	assert.Equal(t, []float32{3, 1, -1, -2}, x.Data, "input must not change")
}

func TestForwardTrainModeUsesBatchStatistics(t *testing.T) {
	m := NewModel("net", KindSequential)
	bn := NewBatchNorm(3, false)
	bn.RunningMean = []float32{100, 100, 100}
	mustAdd(t, m.AddBatchNorm(m.Root(), "bn", bn))

	x := rampTensor(4, 3, 2, 2)

	y, err := m.Forward(x, nil)
	require.NoError(t, err)
	mean, variance := BatchStatistics(y.Data, 4, 3, 4)
	for c := range 3 {
		assert.InDelta(t, 0, mean[c], 1e-5)
		assert.InDelta(t, 1, variance[c], 1e-3)
	}

	m.Eval()
	y, err = m.Forward(x, nil)
	require.NoError(t, err)
	assert.Less(t, y.Data[0], float32(-50), "eval mode must use the running mean")
}

func TestForwardConvNet(t *testing.T) {
	pool := workerpool.New(3)
	defer pool.Close()

	m := NewModel("net", KindSequential)
	conv := NewConv2D(2, 4, 3, 3, 1, 1)
	for i := range conv.Weight {
		conv.Weight[i] = float32((i*3)%7)*0.1 - 0.3
	}
	mustAdd(t, m.AddConv2D(m.Root(), "conv", conv))
	mustAdd(t, m.AddBatchNorm(m.Root(), "bn", NewBatchNorm(4, true)))
	block := mustAdd(t, m.AddContainer(m.Root(), "block", KindResidual))
	mustAdd(t, m.AddConv2D(block, "conv", NewConv2D(4, 4, 1, 1, 1, 0)))
	mustAdd(t, m.AddLeaf(block, "id", KindIdentity))
	mustAdd(t, m.AddLeaf(m.Root(), "flatten", KindFlatten))
	mustAdd(t, m.AddLinear(m.Root(), "fc", NewLinear(4*5*5, 3)))
	m.Eval()

	x := rampTensor(2, 2, 5, 5)
	inline, err := m.Forward(x, nil)
	require.NoError(t, err)
	pooled, err := m.Forward(x, pool)
	require.NoError(t, err)

	assert.Equal(t, []int{2, 3}, inline.Shape)
	assert.Equal(t, inline.Data, pooled.Data)
}

func TestForwardResidual(t *testing.T) {
	m := NewModel("net", KindResidual)
	lin := NewLinear(2, 2)
	lin.Weight = []float32{2, 0, 0, 2}
	mustAdd(t, m.AddLinear(m.Root(), "fc", lin))

	y, err := m.Forward(FromData([]float32{1, -1}, 1, 2), nil)
	require.NoError(t, err)
	assert.Equal(t, []float32{3, -3}, y.Data)

	// A branch that changes the shape cannot be added back.
	bad := NewModel("net", KindResidual)
	mustAdd(t, bad.AddLinear(bad.Root(), "fc", NewLinear(2, 3)))
	_, err = bad.Forward(FromData([]float32{1, -1}, 1, 2), nil)
	require.ErrorIs(t, err, ErrShapeMismatch)
}

func TestForwardShapeErrors(t *testing.T) {
	tests := []struct {
		name  string
		build func(m *Model)
		input *Tensor
	}{
		{
			"conv_channels",
			func(m *Model) { m.AddConv2D(m.Root(), "conv", NewConv2D(3, 1, 1, 1, 1, 0)) },
			NewTensor(1, 2, 4, 4),
		},
		{
			"conv_too_small",
			func(m *Model) { m.AddConv2D(m.Root(), "conv", NewConv2D(1, 1, 5, 5, 1, 0)) },
			NewTensor(1, 1, 3, 3),
		},
		{
			"linear_rank",
			func(m *Model) { m.AddLinear(m.Root(), "fc", NewLinear(4, 1)) },
			NewTensor(1, 2, 2),
		},
		{
			"batchnorm_channels",
			func(m *Model) { m.AddBatchNorm(m.Root(), "bn", NewBatchNorm(3, true)) },
			NewTensor(2, 4),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewModel("net", KindSequential)
			tt.build(m)
			m.Eval()
			_, err := m.Forward(tt.input, nil)
			require.ErrorIs(t, err, ErrShapeMismatch)
		})
	}
}
