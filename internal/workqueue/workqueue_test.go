package workqueue

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSubmitSerializesPerOwner(t *testing.T) {
	q := New()
	var order []int
	var mu sync.Mutex
	var wg sync.WaitGroup
	var running, overlapped int32

	for i := 0; i < 5; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = q.Submit("node-a", func() error {
				if atomic.AddInt32(&running, 1) > 1 {
					atomic.StoreInt32(&overlapped, 1)
				}
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				atomic.AddInt32(&running, -1)
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Len(t, order, 5)
	assert.Zero(t, atomic.LoadInt32(&overlapped))
}

func TestSubmitRunsDifferentOwnersConcurrently(t *testing.T) {
	q := New()
	var running int32
	var maxRunning int32
	var wg sync.WaitGroup
	start := make(chan struct{})

	for _, owner := range []string{"node-a", "node-b"} {
		owner := owner
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_ = q.Submit(owner, func() error {
				n := atomic.AddInt32(&running, 1)
				for {
					cur := atomic.LoadInt32(&maxRunning)
					if n <= cur || atomic.CompareAndSwapInt32(&maxRunning, cur, n) {
						break
					}
				}
				// stay running until the other owner's task has started too
				// (bounded, so a queue that serialized owners would still end)
				deadline := time.Now().Add(time.Second)
				for atomic.LoadInt32(&running) < 2 && time.Now().Before(deadline) {
					runtime.Gosched()
				}
				atomic.AddInt32(&running, -1)
				return nil
			})
		}()
	}
	close(start)
	wg.Wait()
	assert.Equal(t, int32(2), maxRunning)
}

func TestSubmitPropagatesError(t *testing.T) {
	q := New()
	boom := errors.New("boom")
	err := q.Submit("node-a", func() error { return boom })
	assert.ErrorIs(t, err, boom)

	// queue is not stalled by a prior failure
	err = q.Submit("node-a", func() error { return nil })
	assert.NoError(t, err)
}
