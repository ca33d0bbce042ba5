//go:build !amd64 && !arm64

package hwy

func init() {
	// Non-amd64 architectures fall back to scalar mode for now.
	setScalarMode()
}

// HasFMA returns false: the scalar fallback makes no fused-multiply-add claim.
func HasFMA() bool {
	return false
}
