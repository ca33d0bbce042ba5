//go:build arm64

package hwy

import "golang.org/x/sys/cpu"

func init() {
	if NoSimdEnv() {
		setScalarMode()
		return
	}

	// ARM64 (AArch64) always has NEON (ASIMD) available.
	// It's part of the ARMv8-A base architecture.
	if cpu.ARM64.HasASIMD {
		currentLevel = DispatchNEON
		currentWidth = 16 // NEON is 128-bit (16 bytes)
	} else {
		setScalarMode()
	}
}

// HasFMA returns true on ARM64, where fused multiply-add is part of the base ISA.
func HasFMA() bool {
	return cpu.ARM64.HasASIMD
}
