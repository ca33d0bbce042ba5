// Package hwy provides the portable vector operations the quantization
// kernels are written against, with runtime CPU dispatch.
//
// Kernels load lanes into a Vec, combine them with element-wise operations
// and store them back, handling the remainder with scalar code:
//
//	import "github.com/ajroetker/go-ptq/hwy"
//
//	lanes := hwy.MaxLanes[float32]()
//	vScale := hwy.Set(scale)
//	i := 0
//	for ; i+lanes <= len(row); i += lanes {
//	    hwy.Store(hwy.Mul(hwy.Load(row[i:]), vScale), row[i:])
//	}
//	for ; i < len(row); i++ {
//	    row[i] *= scale
//	}
//
// The lane count follows the widest vector unit detected at start-up
// (see CurrentLevel), so the same kernel is blocked the way a native SIMD
// implementation would be.
package hwy

// Floats is a constraint for floating-point types.
type Floats interface {
	~float32 | ~float64
}

// SignedInts is a constraint for signed integer types.
type SignedInts interface {
	~int8 | ~int16 | ~int32 | ~int64
}

// Lanes is a constraint for all types that can be stored in vector lanes.
type Lanes interface {
	Floats | SignedInts
}

// Vec is a portable vector handle. It holds up to MaxLanes[T]() elements.
//
// Vec instances should not be created directly; use Load, Set, or Zero instead.
type Vec[T Lanes] struct {
	data []T
}

// NumLanes returns the number of lanes (elements) in this vector.
func (v Vec[T]) NumLanes() int {
	return len(v.data)
}

// Data returns the underlying slice representation of the vector.
// This is primarily for testing and should not be used in performance-critical code.
func (v Vec[T]) Data() []T {
	return v.data
}

// Store writes the vector's data to a slice.
// This is the method form of the hwy.Store function.
func (v Vec[T]) Store(dst []T) {
	Store(v, dst)
}
