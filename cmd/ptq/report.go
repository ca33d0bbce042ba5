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
	"slices"
	"strings"

	"github.com/fatih/color"
	"github.com/samber/lo"

	"github.com/ajroetker/go-ptq/hwy/contrib/nn"
)

var (
	headerStyle = color.New(color.FgCyan, color.Bold)
	labelStyle  = color.New(color.FgBlue, color.Bold)
	okStyle     = color.New(color.FgGreen, color.Bold)
	failStyle   = color.New(color.FgRed, color.Bold)
	pathStyle   = color.New(color.FgYellow)
)

func printFoldResult(w io.Writer, res foldResult) {
	headerStyle.Fprintf(w, "fold %s\n", res.Model)
	labelStyle.Fprint(w, "  folded: ")
	fmt.Fprintf(w, "%d\n", res.Report.Folded)
	for _, p := range res.Report.Pairs {
		fmt.Fprintf(w, "    %s <- %s (%d channels)\n",
			pathStyle.Sprint(p.Absorbing), pathStyle.Sprint(p.Norm), p.Channels)
	}
	labelStyle.Fprint(w, "  layers: ")
	fmt.Fprintf(w, "%s -> %s\n", formatCounts(res.Before), formatCounts(res.After))
	labelStyle.Fprint(w, "  max abs diff: ")
	fmt.Fprintf(w, "%.3g ", res.MaxDiff)
	if res.OK {
		okStyle.Fprintln(w, "ok")
	} else {
		failStyle.Fprintln(w, "FAIL")
	}
}

func printCalibResult(w io.Writer, res calibResult) {
	headerStyle.Fprintf(w, "calib %s\n", res.Model)
	labelStyle.Fprint(w, "  samples: ")
	fmt.Fprintf(w, "%v from %d batches\n", res.Shape, res.Batches)
	labelStyle.Fprintln(w, "  output ranges:")
	for c, r := range res.Ranges {
		fmt.Fprintf(w, "    %3d  [%9.4f, %9.4f]\n", c, r.Min, r.Max)
	}
}

func printInfoResult(w io.Writer, res infoResult) {
	headerStyle.Fprintf(w, "model %s\n", res.Model)
	for _, line := range strings.Split(strings.TrimRight(res.Tree, "\n"), "\n") {
		fmt.Fprintf(w, "  %s\n", line)
	}
	labelStyle.Fprint(w, "layers: ")
	fmt.Fprintln(w, formatCounts(res.Counts))
	labelStyle.Fprint(w, "parameters: ")
	fmt.Fprintf(w, "%d\n", res.Params)
	labelStyle.Fprint(w, "foldable: ")
	fmt.Fprintf(w, "%d\n", len(res.Foldable))
	for _, p := range res.Foldable {
		fmt.Fprintf(w, "  %s <- %s\n", pathStyle.Sprint(p.Absorbing), pathStyle.Sprint(p.Norm))
	}
	labelStyle.Fprint(w, "dispatch: ")
	fmt.Fprintf(w, "%s fma=%t\n", res.Dispatch, res.FMA)
}

// formatCounts renders counts in Kind order, e.g. "conv2d=2 batchnorm=1".
func formatCounts(counts map[nn.Kind]int) string {
	kinds := lo.Keys(counts)
	slices.Sort(kinds)
	return strings.Join(lo.Map(kinds, func(k nn.Kind, _ int) string {
		return fmt.Sprintf("%s=%d", k, counts[k])
	}), " ")
}
