// Copyright 2025 The go-highway Authors. SPDX-License-Identifier: Apache-2.0

// Package workerpool provides a persistent, reusable worker pool for parallel
// computation. Unlike per-call goroutine spawning, a Pool is created once and
// reused across many operations, eliminating allocation and spawn overhead.
//
// Folding and forward evaluation of a model touch every layer once, so the
// pool is shared across all layers of a tree rather than spawned per layer.
// A nil *Pool is valid and runs every operation inline on the caller's
// goroutine, which is what the single-threaded entry points pass.
//
// Usage:
//
//	pool := workerpool.New(runtime.GOMAXPROCS(0))
//	defer pool.Close()
//
//	out, err := model.Forward(x, pool)
package workerpool

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Pool is a persistent worker pool that can be reused across many parallel
// operations. Workers are spawned once at creation and reused.
type Pool struct {
	numWorkers int
	workC      chan workItem
	closeOnce  sync.Once
	closed     atomic.Bool
}

// workItem represents a single parallel operation to execute.
type workItem struct {
	fn      func()
	barrier *sync.WaitGroup
}

// New creates a new worker pool with the specified number of workers.
// Workers are spawned immediately and persist until Close is called.
// If numWorkers <= 0, uses GOMAXPROCS.
func New(numWorkers int) *Pool {
	if numWorkers <= 0 {
		numWorkers = runtime.GOMAXPROCS(0)
	}

	p := &Pool{
		numWorkers: numWorkers,
		// Buffer enough for all workers to have pending work
		workC: make(chan workItem, numWorkers*2),
	}

	// Spawn persistent workers
	for range numWorkers {
		go p.worker()
	}

	return p
}

// worker is the main loop for each persistent worker goroutine.
func (p *Pool) worker() {
	for item := range p.workC {
		item.fn()
		item.barrier.Done()
	}
}

// NumWorkers returns the number of workers in the pool, 1 for a nil pool.
func (p *Pool) NumWorkers() int {
	if p == nil {
		return 1
	}
	return p.numWorkers
}

// Close shuts down the worker pool. All pending work will complete.
// Calling Close multiple times, or on a nil pool, is safe.
func (p *Pool) Close() {
	if p == nil {
		return
	}
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		close(p.workC)
	})
}

// ParallelFor executes fn for each index in [0, n) using the worker pool.
// Each worker processes a contiguous range of indices, so fn must only write
// to state owned by its range. Blocks until all work completes.
//
// fn receives (start, end) indices where work should process [start, end).
func (p *Pool) ParallelFor(n int, fn func(start, end int)) {
	if n <= 0 {
		return
	}

	if p == nil || p.closed.Load() {
		fn(0, n)
		return
	}

	// Determine number of workers to use (don't use more workers than items)
	workers := min(p.numWorkers, n)

	// For very small n, just run sequentially
	if workers == 1 {
		fn(0, n)
		return
	}

	// Calculate chunk size (ensure all items are covered)
	chunkSize := (n + workers - 1) / workers

	var wg sync.WaitGroup
	wg.Add(workers)

	for i := range workers {
		start := i * chunkSize
		end := min(start+chunkSize, n)
		if start >= n {
			// No work for this worker
			wg.Done()
			continue
		}

		p.workC <- workItem{
			fn: func() {
				fn(start, end)
			},
			barrier: &wg,
		}
	}

	wg.Wait()
}

// ParallelForAtomic executes fn for each index in [0, n) using atomic work
// stealing. Layers of a model differ widely in size, so per-layer work uses
// this form. Blocks until all work completes.
//
// fn receives the index to process.
func (p *Pool) ParallelForAtomic(n int, fn func(i int)) {
	if n <= 0 {
		return
	}

	if p == nil || p.closed.Load() {
		for i := range n {
			fn(i)
		}
		return
	}

	workers := min(p.numWorkers, n)

	if workers == 1 {
		for i := range n {
			fn(i)
		}
		return
	}

	var nextIdx atomic.Int32
	var wg sync.WaitGroup
	wg.Add(workers)

	for range workers {
		p.workC <- workItem{
			fn: func() {
				for {
					idx := int(nextIdx.Add(1)) - 1
					if idx >= n {
						return
					}
					fn(idx)
				}
			},
			barrier: &wg,
		}
	}

	wg.Wait()
}
