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

package hwy

// ProcessWithTail is a helper for processing arrays that handles both full
// vectors and the tail (remainder) automatically.
//
// It calls:
//   - fullFn(offset) for each full vector (offset is the starting index)
//   - tailFn(offset, count) once for the tail if size is not a multiple of vector width
//
// Example:
//
//	hwy.ProcessWithTail[float32](len(data),
//	    func(offset int) {
//	        v := hwy.Load(data[offset:])
//	        hwy.Store(hwy.Mul(v, vScale), data[offset:])
//	    },
//	    func(offset, count int) {
//	        for i := offset; i < offset+count; i++ {
//	            data[i] *= scale
//	        }
//	    },
//	)
func ProcessWithTail[T Lanes](size int, fullFn func(offset int), tailFn func(offset, count int)) {
	maxLanes := MaxLanes[T]()

	fullVectors := size / maxLanes
	for i := range fullVectors {
		fullFn(i * maxLanes)
	}

	remaining := size % maxLanes
	if remaining > 0 {
		tailFn(fullVectors*maxLanes, remaining)
	}
}
