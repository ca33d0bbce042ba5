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
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ajroetker/go-ptq/hwy"
	"github.com/ajroetker/go-ptq/hwy/contrib/nn"
	"github.com/ajroetker/go-ptq/hwy/contrib/quantization"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

func runPTQ(t *testing.T, args ...string) (string, error) {
	t.Helper()
	a := &app{logger: zaptest.NewLogger(t)}
	t.Cleanup(a.teardown)
	cmd := newRootCmd(a)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ptq.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	return path
}

func TestFoldCommand(t *testing.T) {
	out, err := runPTQ(t, "fold", "testdata/tiny.yaml", "--workers", "2")
	require.NoError(t, err, out)

	assert.Contains(t, out, "fold tiny")
	assert.Contains(t, out, "folded: 3")
	assert.Contains(t, out, "conv1 <- bn1 (4 channels)")
	assert.Contains(t, out, "block.conv1 <- block.bn1 (4 channels)")
	assert.Contains(t, out, "fc <- bn3 (5 channels)")
	assert.Contains(t, out, "batchnorm=4")
	assert.Contains(t, out, "batchnorm=1")
	assert.Contains(t, out, " ok\n")
}

func TestFoldCommandPropagateAll(t *testing.T) {
	// Folding bn2 into the residual block's last conv skips the block's
	// skip connection, so verification must fail.
	out, err := runPTQ(t, "fold", "testdata/tiny.yaml", "--policy", "all")
	require.ErrorIs(t, err, errVerifyFailed)
	assert.Contains(t, out, "folded: 4")
	assert.Contains(t, out, "block.conv2 <- bn2")
	assert.Contains(t, out, "FAIL")
}

func TestFoldCommandValidation(t *testing.T) {
	_, err := runPTQ(t, "fold", "testdata/mismatch.yaml")
	assert.ErrorIs(t, err, nn.ErrShapeMismatch)

	assert.Panics(t, func() {
		_, _ = runPTQ(t, "fold", "testdata/mismatch.yaml", "--no-validate")
	})
}

func TestFoldCommandConfigFile(t *testing.T) {
	cfg := writeConfig(t, "fold:\n  policy: all\nverify:\n  rtol: 10\n  atol: 10\n")
	out, err := runPTQ(t, "--config", cfg, "fold", "testdata/tiny.yaml")
	require.NoError(t, err, out)
	assert.Contains(t, out, "folded: 4")

	// The flag wins over the file.
	out, err = runPTQ(t, "--config", cfg, "fold", "testdata/tiny.yaml", "--policy", "sequential")
	require.NoError(t, err, out)
	assert.Contains(t, out, "folded: 3")
}

func TestCalibCommand(t *testing.T) {
	out, err := runPTQ(t, "calib", "testdata/tiny.yaml", "--samples", "10", "--batch-size", "4")
	require.NoError(t, err, out)
	assert.Contains(t, out, "calib tiny")
	assert.Contains(t, out, "[10 3 6 6] from 3 batches")
	for _, ch := range []string{"  0  [", "  4  ["} {
		assert.Contains(t, out, ch)
	}
}

func TestCalibCommandShortStream(t *testing.T) {
	out, err := runPTQ(t, "calib", "testdata/tiny.yaml", "-n", "10", "--batch-size", "4", "--batches", "2", "--fold=false")
	require.NoError(t, err, out)
	assert.Contains(t, out, "[8 3 6 6] from 2 batches")
}

func TestCalibCommandInvalidSamples(t *testing.T) {
	_, err := runPTQ(t, "calib", "testdata/tiny.yaml", "--samples", "0")
	assert.ErrorIs(t, err, quantization.ErrInvalidSampleCount)
}

func TestInfoCommand(t *testing.T) {
	out, err := runPTQ(t, "info", "testdata/tiny.yaml")
	require.NoError(t, err, out)
	assert.Contains(t, out, "model tiny")
	assert.Contains(t, out, "  conv1 (conv2d) 3->4 k=3x3 s=1 p=1 bias=false")
	assert.Contains(t, out, "foldable: 3")
	assert.Contains(t, out, "bn2 (batchnorm)", "info must not modify the model")
	assert.Contains(t, out, fmt.Sprintf("dispatch: %s fma=%t\n", hwy.CurrentName(), hwy.HasFMA()))
}

func TestCommandErrors(t *testing.T) {
	_, err := runPTQ(t, "fold")
	assert.Error(t, err)

	_, err = runPTQ(t, "info", "testdata/missing.yaml")
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = runPTQ(t, "--config", writeConfig(t, "fold:\n  policy: nope\n"), "info", "testdata/tiny.yaml")
	assert.ErrorIs(t, err, quantization.ErrUnknownPolicy)

	_, err = runPTQ(t, "--workers", "-2", "info", "testdata/tiny.yaml")
	assert.Error(t, err)
}

func TestChannelRanges(t *testing.T) {
	y := nn.FromData([]float32{
		1, 2, -1, 0, // n=0 c=0, c=1
		3, -4, 5, 6, // n=1 c=0, c=1
	}, 2, 2, 2)
	assert.Equal(t, []channelRange{{Min: -4, Max: 3}, {Min: -1, Max: 6}}, channelRanges(y))
	assert.Nil(t, channelRanges(nn.FromData([]float32{1}, 1)))
}

func TestFormatCounts(t *testing.T) {
	got := formatCounts(map[nn.Kind]int{nn.KindBatchNorm: 2, nn.KindSequential: 1, nn.KindConv2D: 3})
	assert.Equal(t, "sequential=1 conv2d=3 batchnorm=2", got)
}
