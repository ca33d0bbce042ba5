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
	"github.com/ajroetker/go-ptq/hwy"
	"github.com/ajroetker/go-ptq/hwy/contrib/workerpool"
)

// ConvOutputSize returns the spatial output size of a convolution along one axis.
func ConvOutputSize(in, kernel, stride, padding int) int {
	return (in+2*padding-kernel)/stride + 1
}

// BaseConv2D computes a 2-D convolution in NCHW layout:
//
//   - input is [batch, inC, height, width]
//   - weight is [outC, inC, kh, kw] (PyTorch format)
//   - bias is [outC] (optional, pass nil to skip)
//   - output is [batch, outC, outH, outW] with outH/outW from ConvOutputSize
//
// Zero padding is applied symmetrically on both spatial axes.
func BaseConv2D[T hwy.Floats](input, weight, bias, output []T, batch, inC, height, width, outC, kh, kw, stride, padding int) {
	outH := ConvOutputSize(height, kh, stride, padding)
	outW := ConvOutputSize(width, kw, stride, padding)
	if len(input) < batch*inC*height*width {
		panic("conv2d: input slice too short")
	}
	if len(weight) < outC*inC*kh*kw {
		panic("conv2d: weight slice too short")
	}
	if len(output) < batch*outC*outH*outW {
		panic("conv2d: output slice too short")
	}
	if bias != nil && len(bias) < outC {
		panic("conv2d: bias slice too short")
	}

	for plane := range batch * outC {
		conv2DPlane(input, weight, bias, output, plane, inC, height, width, outC, kh, kw, stride, padding, outH, outW)
	}
}

// ParallelConv2D computes BaseConv2D with output planes distributed across
// the pool. A nil pool computes inline.
func ParallelConv2D[T hwy.Floats](pool *workerpool.Pool, input, weight, bias, output []T, batch, inC, height, width, outC, kh, kw, stride, padding int) {
	if pool == nil {
		BaseConv2D(input, weight, bias, output, batch, inC, height, width, outC, kh, kw, stride, padding)
		return
	}
	outH := ConvOutputSize(height, kh, stride, padding)
	outW := ConvOutputSize(width, kw, stride, padding)
	pool.ParallelForAtomic(batch*outC, func(plane int) {
		conv2DPlane(input, weight, bias, output, plane, inC, height, width, outC, kh, kw, stride, padding, outH, outW)
	})
}

// conv2DPlane computes output plane (n, oc) where plane = n*outC + oc.
// For stride 1 each kernel tap is an axpy over a contiguous input row segment.
func conv2DPlane[T hwy.Floats](input, weight, bias, output []T, plane, inC, height, width, outC, kh, kw, stride, padding, outH, outW int) {
	n, oc := plane/outC, plane%outC
	out := output[plane*outH*outW : (plane+1)*outH*outW]

	var b T
	if bias != nil {
		b = bias[oc]
	}
	for i := range out {
		out[i] = b
	}

	for ic := range inC {
		in := input[(n*inC+ic)*height*width : (n*inC+ic+1)*height*width]
		w := weight[(oc*inC+ic)*kh*kw : (oc*inC+ic+1)*kh*kw]

		for ky := range kh {
			for kx := range kw {
				tap := w[ky*kw+kx]
				if tap == 0 {
					continue
				}

				owStart := 0
				if lo := padding - kx; lo > 0 {
					owStart = (lo + stride - 1) / stride
				}
				hi := width - 1 + padding - kx
				if hi < 0 {
					continue
				}
				owEnd := min(outW, hi/stride+1)
				if owStart >= owEnd {
					continue
				}

				for oh := range outH {
					iy := oh*stride + ky - padding
					if iy < 0 || iy >= height {
						continue
					}
					inRow := in[iy*width:]
					outRow := out[oh*outW:]
					if stride == 1 {
						ix := owStart + kx - padding
						axpy(tap, inRow[ix:ix+owEnd-owStart], outRow[owStart:owEnd])
						continue
					}
					for ow := owStart; ow < owEnd; ow++ {
						outRow[ow] += tap * inRow[ow*stride+kx-padding]
					}
				}
			}
		}
	}
}

// axpy computes y += a*x over len(y) elements.
func axpy[T hwy.Floats](a T, x, y []T) {
	lanes := hwy.MaxLanes[T]()
	vA := hwy.Set(a)

	i := 0
	for ; i+lanes <= len(y); i += lanes {
		hwy.Store(hwy.MulAdd(vA, hwy.Load(x[i:]), hwy.Load(y[i:])), y[i:])
	}
	for ; i < len(y); i++ {
		y[i] += a * x[i]
	}
}
