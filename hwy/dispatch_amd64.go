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

//go:build amd64

package hwy

import "golang.org/x/sys/cpu"

// hasFMA indicates fused multiply-add support (Haswell+).
var hasFMA bool

func init() {
	// Check if SIMD is disabled via environment variable
	if NoSimdEnv() {
		setScalarMode()
		return
	}

	detectCPUFeatures()
}

func detectCPUFeatures() {
	hasFMA = cpu.X86.HasFMA

	switch {
	case cpu.X86.HasAVX512F && cpu.X86.HasAVX512BW:
		currentLevel = DispatchAVX512
		currentWidth = 64
	case cpu.X86.HasAVX2:
		currentLevel = DispatchAVX2
		currentWidth = 32
	case cpu.X86.HasSSE2:
		currentLevel = DispatchSSE2
		currentWidth = 16
	default:
		setScalarMode()
	}
}

// HasFMA returns true if the CPU supports fused multiply-add instructions.
func HasFMA() bool {
	return hasFMA
}
