// Package parallel provides the bounded execution pool used by the
// analysis engine. Work is grouped into batches: each reach step and each
// parameter-split branch submits its tasks to a batch and joins it before
// moving on. Concurrency is bounded by a weighted semaphore; a task that
// must wait on a child batch releases its slot first, so batches may
// recursively submit new batches without deadlocking the pool.
package parallel

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Pool bounds the number of concurrently running tasks. The zero Pool is
// not usable; create one with NewPool.
type Pool struct {
	sem  *semaphore.Weighted
	size int64
}

// NewPool creates a pool allowing up to maxWorkers concurrent tasks. If
// maxWorkers is 0 or negative, it defaults to the number of CPU cores.
func NewPool(maxWorkers int) *Pool {
	if maxWorkers <= 0 {
		maxWorkers = runtime.NumCPU()
	}
	return &Pool{sem: semaphore.NewWeighted(int64(maxWorkers)), size: int64(maxWorkers)}
}

// Size returns the concurrency bound.
func (p *Pool) Size() int { return int(p.size) }

// Batch groups tasks whose completion is awaited together. Batches are
// created by a pool and must be closed after their final join.
type Batch struct {
	pool   *Pool
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

// CreateBatch opens a new task batch on the pool.
func (p *Pool) CreateBatch() *Batch {
	return &Batch{pool: p}
}

// Submit schedules task on the batch. The task starts as soon as a pool
// slot is free. Submitting to a closed batch fails.
func (b *Batch) Submit(task func()) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBatchClosed
	}
	b.wg.Add(1)
	b.mu.Unlock()

	go func() {
		defer b.wg.Done()
		// pool slots are always granted eventually, so the background
		// context cannot fail the acquire
		_ = b.pool.sem.Acquire(context.Background(), 1)
		defer b.pool.sem.Release(1)
		task()
	}()
	return nil
}

// Join blocks until every task submitted so far has completed. It must
// only be called from outside the pool, e.g. the engine's step loop;
// tasks joining a child batch use JoinWithin instead.
func (b *Batch) Join() {
	b.wg.Wait()
}

// JoinWithin joins the batch from inside a running pool task. The caller
// releases its own slot before blocking and reacquires it afterwards, so
// a full pool can always drain recursively submitted batches.
func (b *Batch) JoinWithin() {
	b.pool.sem.Release(1)
	b.wg.Wait()
	_ = b.pool.sem.Acquire(context.Background(), 1)
}

// Close marks the batch complete. Further submissions fail; joins remain
// valid.
func (b *Batch) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
}

// ErrBatchClosed is returned when submitting to a closed batch.
var ErrBatchClosed = fmt.Errorf("parallel: batch has been closed")
