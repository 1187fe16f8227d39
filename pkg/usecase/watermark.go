package usecase

import (
	"context"
	"sync"
)

// watermark is a monotonically increasing logical counter over event
// submissions. Events commit out of order, so "queue empty" is not a drain
// signal; wait(mark) instead blocks until no event with a sequence at or
// below mark is still in flight.
type watermark struct {
	mu       sync.Mutex
	cond     *sync.Cond
	last     uint64
	inflight map[uint64]struct{}
}

func newWatermark() *watermark {
	w := &watermark{inflight: map[uint64]struct{}{}}
	w.cond = sync.NewCond(&w.mu)
	return w
}

// submit assigns the next sequence and marks it in flight
func (w *watermark) submit() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.last++
	w.inflight[w.last] = struct{}{}
	return w.last
}

// finish marks a sequence as committed and wakes waiters
func (w *watermark) finish(seq uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.inflight, seq)
	w.cond.Broadcast()
}

// current returns the most recently assigned sequence
func (w *watermark) current() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last
}

// wait blocks until every sequence <= mark has finished, or ctx is done
func (w *watermark) wait(ctx context.Context, mark uint64) error {
	stop := context.AfterFunc(ctx, func() {
		w.mu.Lock()
		w.cond.Broadcast()
		w.mu.Unlock()
	})
	defer stop()

	w.mu.Lock()
	defer w.mu.Unlock()
	for w.pendingLocked(mark) {
		if err := ctx.Err(); err != nil {
			return err
		}
		w.cond.Wait()
	}
	return nil
}

func (w *watermark) pendingLocked(mark uint64) bool {
	for seq := range w.inflight {
		if seq <= mark {
			return true
		}
	}
	return false
}
