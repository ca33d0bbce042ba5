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
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ajroetker/go-ptq/hwy"
	"github.com/ajroetker/go-ptq/hwy/contrib/nn"
	"github.com/ajroetker/go-ptq/hwy/contrib/quantization"
)

func newInfoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info MODEL.yaml",
		Short: "Show the model tree, its layer counts and how many batch norms would fold",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runInfo(cmd.OutOrStdout(), args[0])
		},
	}
}

type infoResult struct {
	Model    string
	Tree     string
	Counts   map[nn.Kind]int
	Params   int
	Foldable []quantization.FoldedPair
	Dispatch string
	FMA      bool
}

func (a *app) runInfo(w io.Writer, path string) error {
	desc, err := loadModelDesc(path)
	if err != nil {
		return err
	}
	m, err := desc.Build()
	if err != nil {
		return fmt.Errorf("build %s: %w", path, err)
	}

	// Fold a copy to find the eligible pairs without touching m.
	opts, err := a.cfg.FolderOptions(a.logger, a.pool)
	if err != nil {
		return err
	}
	report, err := quantization.NewFolder(opts...).Fold(m.Clone())
	if err != nil {
		return err
	}

	printInfoResult(w, infoResult{
		Model:    desc.Name,
		Tree:     m.String(),
		Counts:   m.Count(),
		Params:   paramCount(m),
		Foldable: report.Pairs,
		Dispatch: hwy.CurrentName(),
		FMA:      hwy.HasFMA(),
	})
	return nil
}

// paramCount counts the weights, biases and batch-norm vectors of the
// attached nodes.
func paramCount(m *nn.Model) int {
	total := 0
	m.Walk(func(id nn.NodeID, _ int) bool {
		n := m.Node(id)
		if abs := n.Absorbing(); abs != nil {
			w, b := abs.Params()
			total += len(w) + len(b)
		}
		if n.BN != nil {
			total += len(n.BN.RunningMean) + len(n.BN.RunningVar) + len(n.BN.Weight) + len(n.BN.Bias)
		}
		return true
	})
	return total
}
