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

package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	stdmath "math"
	"math/rand/v2"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ajroetker/go-ptq/hwy/contrib/nn"
)

// ModelDesc is the YAML description of a network. Parameters are not
// stored: they are drawn from Seed so the same file always builds the same
// model.
//
//	name: tiny
//	input: [2, 3, 8, 8]
//	seed: 1
//	layers:
//	  - {name: conv1, kind: conv2d, in: 3, out: 8, kernel: 3, padding: 1}
//	  - {name: bn1, kind: batchnorm, channels: 8}
//	  - {name: relu1, kind: relu}
type ModelDesc struct {
	Name string `yaml:"name"`
	// Kind of the root container; defaults to sequential.
	Kind string `yaml:"kind"`
	// Input is the shape of a sample input batch, batch axis first.
	Input  []int       `yaml:"input"`
	Seed   uint64      `yaml:"seed"`
	Layers []LayerDesc `yaml:"layers"`
}

// LayerDesc describes one node. Only the fields of its kind are read.
type LayerDesc struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind"`

	// conv2d and linear
	In      int  `yaml:"in"`
	Out     int  `yaml:"out"`
	Kernel  int  `yaml:"kernel"`
	Stride  int  `yaml:"stride"`
	Padding int  `yaml:"padding"`
	Bias    bool `yaml:"bias"`

	// batchnorm
	Channels int      `yaml:"channels"`
	Affine   *bool    `yaml:"affine"`
	Eps      *float32 `yaml:"eps"`

	// sequential and residual
	Children []LayerDesc `yaml:"children"`
}

func loadModelDesc(path string) (ModelDesc, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ModelDesc{}, err
	}
	desc, err := parseModelDesc(data)
	if err != nil {
		return ModelDesc{}, fmt.Errorf("%s: %w", path, err)
	}
	return desc, nil
}

func parseModelDesc(data []byte) (ModelDesc, error) {
	var desc ModelDesc
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&desc); err != nil {
		if errors.Is(err, io.EOF) {
			return ModelDesc{}, errors.New("empty model description")
		}
		return ModelDesc{}, err
	}
	if desc.Name == "" {
		desc.Name = "model"
	}
	if desc.Kind == "" {
		desc.Kind = nn.KindSequential.String()
	}
	if len(desc.Input) == 0 {
		return ModelDesc{}, errors.New("input shape is required")
	}
	for _, d := range desc.Input {
		if d <= 0 {
			return ModelDesc{}, fmt.Errorf("input shape %v has a non-positive dimension", desc.Input)
		}
	}
	return desc, nil
}

// Build creates the model with parameters drawn from the seed: weights
// uniform in +-1/sqrt(fan_in), and batch-norm statistics spread around the
// identity as a trained network's would be.
func (s ModelDesc) Build() (*nn.Model, error) {
	rootKind, err := nn.ParseKind(s.Kind)
	if err != nil {
		return nil, err
	}
	if !rootKind.IsContainer() {
		return nil, fmt.Errorf("root kind %s: %w", rootKind, nn.ErrNotContainer)
	}

	b := &builder{
		m:   nn.NewModel(s.Name, rootKind),
		rng: rand.New(rand.NewPCG(s.Seed, 0x9e3779b97f4a7c15)),
	}
	if err := b.addAll(b.m.Root(), s.Layers); err != nil {
		return nil, err
	}
	if err := b.m.Validate(); err != nil {
		return nil, err
	}
	return b.m, nil
}

// SampleInput returns a deterministic input batch of shape Input.
func (s ModelDesc) SampleInput() *nn.Tensor {
	return randomBatch(rand.New(rand.NewPCG(s.Seed, 1)), s.Input...)
}

func randomBatch(rng *rand.Rand, shape ...int) *nn.Tensor {
	x := nn.NewTensor(shape...)
	for i := range x.Data {
		x.Data[i] = float32(rng.NormFloat64())
	}
	return x
}

type builder struct {
	m   *nn.Model
	rng *rand.Rand
}

func (b *builder) addAll(parent nn.NodeID, layers []LayerDesc) error {
	for i, l := range layers {
		if l.Name == "" {
			l.Name = fmt.Sprintf("%d", i)
		}
		if err := b.add(parent, l); err != nil {
			return fmt.Errorf("%s: %w", l.Name, err)
		}
	}
	return nil
}

func (b *builder) add(parent nn.NodeID, l LayerDesc) error {
	kind, err := nn.ParseKind(l.Kind)
	if err != nil {
		return err
	}

	switch kind {
	case nn.KindSequential, nn.KindResidual:
		id, err := b.m.AddContainer(parent, l.Name, kind)
		if err != nil {
			return err
		}
		return b.addAll(id, l.Children)

	case nn.KindConv2D:
		if l.In <= 0 || l.Out <= 0 || l.Kernel <= 0 {
			return fmt.Errorf("conv2d needs positive in, out and kernel: %w", nn.ErrShapeMismatch)
		}
		conv := nn.NewConv2D(l.In, l.Out, l.Kernel, l.Kernel, l.Stride, l.Padding)
		bound := 1 / float32(stdmath.Sqrt(float64(l.In*l.Kernel*l.Kernel)))
		b.uniform(conv.Weight, -bound, bound)
		if l.Bias {
			conv.Bias = make([]float32, l.Out)
			b.uniform(conv.Bias, -bound, bound)
		}
		_, err = b.m.AddConv2D(parent, l.Name, conv)
		return err

	case nn.KindLinear:
		if l.In <= 0 || l.Out <= 0 {
			return fmt.Errorf("linear needs positive in and out: %w", nn.ErrShapeMismatch)
		}
		lin := nn.NewLinear(l.In, l.Out)
		bound := 1 / float32(stdmath.Sqrt(float64(l.In)))
		b.uniform(lin.Weight, -bound, bound)
		if l.Bias {
			lin.Bias = make([]float32, l.Out)
			b.uniform(lin.Bias, -bound, bound)
		}
		_, err = b.m.AddLinear(parent, l.Name, lin)
		return err

	case nn.KindBatchNorm:
		if l.Channels <= 0 {
			return fmt.Errorf("batchnorm needs positive channels: %w", nn.ErrShapeMismatch)
		}
		affine := l.Affine == nil || *l.Affine
		bn := nn.NewBatchNorm(l.Channels, affine)
		if l.Eps != nil {
			bn.Eps = *l.Eps
		}
		b.uniform(bn.RunningMean, -0.5, 0.5)
		b.uniform(bn.RunningVar, 0.25, 2)
		if affine {
			b.uniform(bn.Weight, 0.5, 1.5)
			b.uniform(bn.Bias, -0.5, 0.5)
		}
		_, err = b.m.AddBatchNorm(parent, l.Name, bn)
		return err
	}

	_, err = b.m.AddLeaf(parent, l.Name, kind)
	return err
}

func (b *builder) uniform(dst []float32, lo, hi float32) {
	for i := range dst {
		dst[i] = lo + (hi-lo)*b.rng.Float32()
	}
}
