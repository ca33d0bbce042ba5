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

import (
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/ajroetker/go-ptq/hwy/contrib/nn"
	"github.com/ajroetker/go-ptq/hwy/contrib/workerpool"
)

// ErrUnknownPolicy is returned by ParsePropagationPolicy.
var ErrUnknownPolicy = errors.New("quantization: unknown propagation policy")

// PropagationPolicy decides which containers hand their trailing absorbing
// layer back to the parent, where a batch norm that follows the container
// can be folded into it.
type PropagationPolicy uint8

const (
	// PropagateSequential propagates out of KindSequential containers only.
	// A residual block's last layer does not see the block's output (the
	// skip connection is added afterwards), so folding a following batch
	// norm into it would change the result.
	PropagateSequential PropagationPolicy = iota

	// PropagateAll propagates out of every container.
	PropagateAll
)

var policyNames = [...]string{
	PropagateSequential: "sequential",
	PropagateAll:        "all",
}

func (p PropagationPolicy) String() string {
	if int(p) < len(policyNames) {
		return policyNames[p]
	}
	return fmt.Sprintf("PropagationPolicy(%d)", p)
}

// ParsePropagationPolicy is the inverse of PropagationPolicy.String.
func ParsePropagationPolicy(s string) (PropagationPolicy, error) {
	for p, name := range policyNames {
		if name == s {
			return PropagationPolicy(p), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
}

// FoldedPair records one batch norm merged into the layer before it.
type FoldedPair struct {
	// Absorbing and Norm are dotted paths from the model root.
	Absorbing string
	Norm      string

	AbsorbingID nn.NodeID
	// NormID is the detached batch-norm node; PlaceholderID is the
	// identity node that took its slot.
	NormID        nn.NodeID
	PlaceholderID nn.NodeID
	Channels      int
}

// Report summarizes a Fold.
type Report struct {
	Folded int
	Pairs  []FoldedPair
}

// Folder merges batch-norm layers into the convolution or linear layer that
// directly precedes them in a container.
//
// A Folder holds no per-model state and may be reused.
type Folder struct {
	Policy PropagationPolicy

	// Validate checks each pair before modifying it. Without it a
	// mismatched pair panics inside the kernel.
	Validate bool

	// Logger is optional; nil discards.
	Logger *zap.Logger

	// Pool parallelizes the weight scaling of large layers; nil runs inline.
	Pool *workerpool.Pool
}

// Option configures a Folder.
type Option func(*Folder)

// WithPolicy sets the propagation policy.
func WithPolicy(p PropagationPolicy) Option {
	return func(f *Folder) { f.Policy = p }
}

// WithValidate turns pair validation on or off.
func WithValidate(validate bool) Option {
	return func(f *Folder) { f.Validate = validate }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(f *Folder) { f.Logger = logger }
}

// WithPool sets the worker pool used for weight scaling.
func WithPool(pool *workerpool.Pool) Option {
	return func(f *Folder) { f.Pool = pool }
}

// NewFolder returns a Folder with PropagateSequential and validation on,
// then applies opts.
func NewFolder(opts ...Option) *Folder {
	f := &Folder{Policy: PropagateSequential, Validate: true}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Folder) logger() *zap.Logger {
	if f.Logger == nil {
		return zap.NewNop()
	}
	return f.Logger
}

// Fold puts m in eval mode and folds every eligible batch norm in the tree.
// Each folded batch norm is replaced by a KindIdentity node of the same name
// and its statistics are set so that, run on its own, it passes its input
// through unchanged.
//
// On error the pairs folded so far stay folded and are listed in the report.
func (f *Folder) Fold(m *nn.Model) (Report, error) {
	log := f.logger()
	if m.Mode() != nn.ModeEval {
		log.Debug("switching model to eval mode", zap.Stringer("from", m.Mode()))
		m.Eval()
	}

	run := &foldRun{Folder: f, m: m, log: log}
	_, err := run.search(m.Root())
	if err != nil {
		log.Warn("batch-norm folding stopped",
			zap.Int("folded", run.report.Folded),
			zap.Error(err),
		)
		return run.report, err
	}

	log.Info("batch-norm folding finished",
		zap.Int("folded", run.report.Folded),
		zap.Stringer("policy", f.Policy),
	)
	return run.report, nil
}

// SearchFoldAndRemoveBN folds the batch norms inside the container id and
// returns the absorbing layer that ends it, or nn.NoNode when there is none
// or the policy keeps it from propagating. The model's mode is not changed;
// callers that do not go through Fold must put it in eval mode first.
func (f *Folder) SearchFoldAndRemoveBN(m *nn.Model, id nn.NodeID) (nn.NodeID, error) {
	run := &foldRun{Folder: f, m: m, log: f.logger()}
	return run.search(id)
}

type foldRun struct {
	*Folder
	m      *nn.Model
	log    *zap.Logger
	report Report
}

func (r *foldRun) search(id nn.NodeID) (nn.NodeID, error) {
	prev := nn.NoNode
	// Replace rewrites slots of this slice, so iterate over a copy.
	for _, child := range slices.Clone(r.m.Children(id)) {
		kind := r.m.Node(child).Kind
		switch {
		case kind.IsNormalization() && prev != nn.NoNode:
			if err := r.fold(prev, child); err != nil {
				return nn.NoNode, err
			}
		case kind.IsAbsorbing():
			prev = child
		default:
			last, err := r.search(child)
			if err != nil {
				return nn.NoNode, err
			}
			prev = last
		}
	}

	if r.Policy == PropagateSequential && r.m.Node(id).Kind != nn.KindSequential {
		return nn.NoNode, nil
	}
	return prev, nil
}

func (r *foldRun) fold(absID, bnID nn.NodeID) error {
	abs := r.m.Node(absID).Absorbing()
	bn := r.m.Node(bnID).BN
	if r.Validate {
		if err := checkPair(abs, bn); err != nil {
			return fmt.Errorf("fold %s into %s: %w", r.m.Path(bnID), r.m.Path(absID), err)
		}
	}

	out := abs.OutDim()
	weight, bias := abs.Params()
	newWeight, newBias := BaseFoldBN(r.Pool, weight, bias,
		bn.RunningMean, bn.RunningVar, bn.Weight, bn.Bias, bn.Eps, out)
	abs.SetParams(newWeight, newBias)
	setIdentityStatistics(bn)

	placeholder := r.m.Replace(bnID, StraightThrough{}.Kind())
	pair := FoldedPair{
		Absorbing:     r.m.Path(absID),
		Norm:          r.m.Path(placeholder),
		AbsorbingID:   absID,
		NormID:        bnID,
		PlaceholderID: placeholder,
		Channels:      out,
	}
	r.report.Pairs = append(r.report.Pairs, pair)
	r.report.Folded++
	r.log.Debug("folded batch norm",
		zap.String("absorbing", pair.Absorbing),
		zap.String("norm", pair.Norm),
		zap.Int("channels", out),
	)
	return nil
}

// checkPair validates both layers and that the batch norm covers exactly
// the absorbing layer's outputs.
func checkPair(abs nn.Absorbing, bn *nn.BatchNorm) error {
	if err := abs.Validate(); err != nil {
		return err
	}
	if err := bn.Validate(); err != nil {
		return err
	}
	if bn.Channels != abs.OutDim() {
		return fmt.Errorf("%w: batch norm has %d channels, layer has %d outputs",
			nn.ErrShapeMismatch, bn.Channels, abs.OutDim())
	}
	return nil
}

// setIdentityStatistics rewrites the running statistics so the layer no
// longer shifts or scales: mean takes beta and variance takes gamma squared
// (0 and 1 for a non-affine layer).
func setIdentityStatistics(bn *nn.BatchNorm) {
	if bn.Bias != nil {
		copy(bn.RunningMean, bn.Bias)
	} else {
		clear(bn.RunningMean)
	}
	for i := range bn.RunningVar {
		if bn.Weight != nil {
			bn.RunningVar[i] = bn.Weight[i] * bn.Weight[i]
		} else {
			bn.RunningVar[i] = 1
		}
	}
}
