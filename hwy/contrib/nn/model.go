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
	"fmt"
	"slices"
	"strings"
)

// NodeID indexes a node in its Model's arena.
type NodeID int

// NoNode is the NodeID of "no node".
const NoNode NodeID = -1

// Mode selects which statistics batch norm layers use.
type Mode uint8

const (
	// ModeTrain normalizes with the statistics of the current batch.
	ModeTrain Mode = iota
	// ModeEval normalizes with the running statistics. Folding requires it.
	ModeEval
)

func (m Mode) String() string {
	if m == ModeEval {
		return "eval"
	}
	return "train"
}

// Node is one entry of the module tree. Exactly one of Conv, Linear and BN
// is set, according to Kind; containers and parameterless leaves set none.
type Node struct {
	Kind Kind
	Name string

	// Parent is NoNode for the root and for nodes detached by Replace.
	Parent NodeID
	// Slot is the index of this node in Parent's Children.
	Slot     int
	Children []NodeID

	Conv   *Conv2D
	Linear *Linear
	BN     *BatchNorm
}

// Absorbing returns the node's parameters as an Absorbing layer, or nil if
// the node cannot absorb a batch norm.
func (n *Node) Absorbing() Absorbing {
	switch n.Kind {
	case KindConv2D:
		return n.Conv
	case KindLinear:
		return n.Linear
	}
	return nil
}

// Model is a module tree stored as an arena of nodes. Node 0 is the root
// container. Children are kept in registration order.
type Model struct {
	nodes []Node
	mode  Mode
}

// NewModel returns a model whose root is an empty container of the given kind.
// New models start in ModeTrain.
func NewModel(name string, root Kind) *Model {
	if !root.IsContainer() {
		panic(fmt.Sprintf("nn: NewModel: root kind %s is not a container", root))
	}
	return &Model{nodes: []Node{{Kind: root, Name: name, Parent: NoNode}}}
}

// Root returns the root node ID.
func (m *Model) Root() NodeID { return 0 }

// Node returns the node with the given ID. The pointer is invalidated by
// the next call that adds nodes.
func (m *Model) Node(id NodeID) *Node { return &m.nodes[id] }

// Children returns the child IDs of id in registration order.
func (m *Model) Children(id NodeID) []NodeID { return m.nodes[id].Children }

// Mode returns the current mode.
func (m *Model) Mode() Mode { return m.mode }

// SetMode switches every batch norm of the model to the given mode.
func (m *Model) SetMode(mode Mode) { m.mode = mode }

// Eval is SetMode(ModeEval).
func (m *Model) Eval() { m.mode = ModeEval }

// AddContainer appends an empty container of the given kind under parent.
func (m *Model) AddContainer(parent NodeID, name string, kind Kind) (NodeID, error) {
	if !kind.IsContainer() {
		return NoNode, fmt.Errorf("nn: AddContainer(%q): kind %s is not a container: %w", name, kind, ErrNotContainer)
	}
	return m.add(parent, Node{Kind: kind, Name: name})
}

// AddConv2D appends a convolution under parent.
func (m *Model) AddConv2D(parent NodeID, name string, conv *Conv2D) (NodeID, error) {
	return m.add(parent, Node{Kind: KindConv2D, Name: name, Conv: conv})
}

// AddLinear appends a fully-connected layer under parent.
func (m *Model) AddLinear(parent NodeID, name string, linear *Linear) (NodeID, error) {
	return m.add(parent, Node{Kind: KindLinear, Name: name, Linear: linear})
}

// AddBatchNorm appends a batch normalization layer under parent.
func (m *Model) AddBatchNorm(parent NodeID, name string, bn *BatchNorm) (NodeID, error) {
	return m.add(parent, Node{Kind: KindBatchNorm, Name: name, BN: bn})
}

// AddLeaf appends a parameterless leaf (identity, relu or flatten) under parent.
func (m *Model) AddLeaf(parent NodeID, name string, kind Kind) (NodeID, error) {
	switch kind {
	case KindIdentity, KindReLU, KindFlatten:
		return m.add(parent, Node{Kind: kind, Name: name})
	}
	return NoNode, fmt.Errorf("nn: AddLeaf(%q): kind %s has parameters or children: %w", name, kind, ErrUnknownKind)
}

func (m *Model) add(parent NodeID, n Node) (NodeID, error) {
	if parent < 0 || int(parent) >= len(m.nodes) {
		return NoNode, fmt.Errorf("nn: parent %d out of range", parent)
	}
	p := &m.nodes[parent]
	if !p.Kind.IsContainer() {
		return NoNode, fmt.Errorf("nn: parent %q is a %s: %w", p.Name, p.Kind, ErrNotContainer)
	}
	for _, c := range p.Children {
		if m.nodes[c].Name == n.Name {
			return NoNode, fmt.Errorf("nn: %q already has a child named %q: %w", p.Name, n.Name, ErrDuplicateName)
		}
	}

	id := NodeID(len(m.nodes))
	n.Parent = parent
	n.Slot = len(p.Children)
	p.Children = append(p.Children, id)
	m.nodes = append(m.nodes, n)
	return id, nil
}

// Replace puts a new parameterless leaf of the given kind, with the same
// name, into id's slot of its parent and returns the new node's ID. The
// replaced node stays in the arena, detached, so callers holding its ID can
// still inspect it.
func (m *Model) Replace(id NodeID, kind Kind) NodeID {
	old := m.nodes[id]
	if old.Parent == NoNode {
		panic("nn: Replace of a root or detached node")
	}

	newID := NodeID(len(m.nodes))
	m.nodes = append(m.nodes, Node{Kind: kind, Name: old.Name, Parent: old.Parent, Slot: old.Slot})
	m.nodes[old.Parent].Children[old.Slot] = newID
	m.nodes[id].Parent = NoNode
	return newID
}

// Attached reports whether id is still reachable from the root.
func (m *Model) Attached(id NodeID) bool {
	for id != m.Root() {
		n := &m.nodes[id]
		if n.Parent == NoNode || m.nodes[n.Parent].Children[n.Slot] != id {
			return false
		}
		id = n.Parent
	}
	return true
}

// Path returns the dotted name of id relative to the root, e.g.
// "features.block1.conv". The root's path is "".
func (m *Model) Path(id NodeID) string {
	var parts []string
	for id != m.Root() && id != NoNode {
		parts = append(parts, m.nodes[id].Name)
		id = m.nodes[id].Parent
	}
	slices.Reverse(parts)
	return strings.Join(parts, ".")
}

// Walk visits the attached nodes depth-first in child order, starting at
// the root. Returning false from fn skips the node's children.
func (m *Model) Walk(fn func(id NodeID, depth int) bool) {
	var visit func(id NodeID, depth int)
	visit = func(id NodeID, depth int) {
		if !fn(id, depth) {
			return
		}
		for _, c := range m.nodes[id].Children {
			visit(c, depth+1)
		}
	}
	visit(m.Root(), 0)
}

// Count returns the number of attached nodes of each kind.
func (m *Model) Count() map[Kind]int {
	counts := make(map[Kind]int)
	m.Walk(func(id NodeID, _ int) bool {
		counts[m.nodes[id].Kind]++
		return true
	})
	return counts
}

// Clone returns a deep copy of the model, parameters included.
func (m *Model) Clone() *Model {
	c := &Model{nodes: make([]Node, len(m.nodes)), mode: m.mode}
	for i, n := range m.nodes {
		n.Children = slices.Clone(n.Children)
		if n.Conv != nil {
			conv := *n.Conv
			conv.Weight, conv.Bias = slices.Clone(conv.Weight), slices.Clone(conv.Bias)
			n.Conv = &conv
		}
		if n.Linear != nil {
			lin := *n.Linear
			lin.Weight, lin.Bias = slices.Clone(lin.Weight), slices.Clone(lin.Bias)
			n.Linear = &lin
		}
		if n.BN != nil {
			bn := *n.BN
			bn.RunningMean, bn.RunningVar = slices.Clone(bn.RunningMean), slices.Clone(bn.RunningVar)
			bn.Weight, bn.Bias = slices.Clone(bn.Weight), slices.Clone(bn.Bias)
			n.BN = &bn
		}
		c.nodes[i] = n
	}
	return c
}

// String renders the attached tree, one node per line.
func (m *Model) String() string {
	var sb strings.Builder
	m.Walk(func(id NodeID, depth int) bool {
		n := &m.nodes[id]
		fmt.Fprintf(&sb, "%s%s (%s)", strings.Repeat("  ", depth), n.Name, n.Kind)
		switch n.Kind {
		case KindConv2D:
			fmt.Fprintf(&sb, " %d->%d k=%dx%d s=%d p=%d bias=%t", n.Conv.InChannels, n.Conv.OutChannels,
				n.Conv.KernelH, n.Conv.KernelW, n.Conv.Stride, n.Conv.Padding, n.Conv.Bias != nil)
		case KindLinear:
			fmt.Fprintf(&sb, " %d->%d bias=%t", n.Linear.InFeatures, n.Linear.OutFeatures, n.Linear.Bias != nil)
		case KindBatchNorm:
			fmt.Fprintf(&sb, " c=%d affine=%t eps=%g", n.BN.Channels, n.BN.Affine(), n.BN.Eps)
		}
		sb.WriteByte('\n')
		return true
	})
	return sb.String()
}
