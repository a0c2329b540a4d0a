// --------------------------------------------------------------------------------
// Author: Thomas F McGeehan V
//
// This file is part of a software project developed by Thomas F McGeehan V.
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.
//
// For more information about the MIT License, please visit:
// https://opensource.org/licenses/MIT
//
// Acknowledgment appreciated but not required.
// --------------------------------------------------------------------------------

package memory

import (
	"sync"

	"github.com/apache/arrow/go/v17/arrow/memory"
)

// allocators hands out Go allocators to the readers, writers and normalizers
// of a run. Each file in a stage borrows one and returns it when the file is done.
var allocators = sync.Pool{
	New: func() interface{} {
		return memory.NewGoAllocator()
	},
}

// GetAllocator borrows an allocator from the pool.
func GetAllocator() memory.Allocator {
	return allocators.Get().(memory.Allocator)
}

// PutAllocator returns an allocator to the pool. Nil and checked allocators
// are dropped so test allocators never leak into production code paths.
func PutAllocator(alloc memory.Allocator) {
	switch alloc.(type) {
	case nil, *memory.CheckedAllocator:
		return
	}
	allocators.Put(alloc)
}

// OrDefault returns alloc, or a pooled allocator when alloc is nil.
func OrDefault(alloc memory.Allocator) memory.Allocator {
	if alloc == nil {
		return GetAllocator()
	}
	return alloc
}
