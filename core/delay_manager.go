package core

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// delayedTask is a submitted task waiting out its start delay.
type delayedTask struct {
	runAt time.Time
	task  runnable
	index int // for heap interface
}

// delayedTaskHeap implements heap.Interface ordered by runAt.
type delayedTaskHeap []*delayedTask

func (h delayedTaskHeap) Len() int           { return len(h) }
func (h delayedTaskHeap) Less(i, j int) bool { return h[i].runAt.Before(h[j].runAt) }
func (h delayedTaskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *delayedTaskHeap) Push(x any) {
	item := x.(*delayedTask)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *delayedTaskHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil // avoid memory leak
	item.index = -1
	*h = old[:n-1]
	return item
}

func (h delayedTaskHeap) peek() *delayedTask {
	if len(h) == 0 {
		return nil
	}
	return h[0]
}

// delayManager holds tasks until their start time, then hands every expired
// task to release from a single timer goroutine. The goroutine is started on
// the first add.
type delayManager struct {
	pq        delayedTaskHeap
	mu        sync.Mutex
	wakeup    chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc
	release   func(runnable)
	startOnce sync.Once
}

func newDelayManager(release func(runnable)) *delayManager {
	ctx, cancel := context.WithCancel(context.Background())
	return &delayManager{
		wakeup:  make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
		release: release,
	}
}

// add schedules r for release after delay. It returns false once stopped.
func (dm *delayManager) add(r runnable, delay time.Duration) bool {
	dm.startOnce.Do(func() { go dm.loop() })

	dm.mu.Lock()
	if dm.ctx.Err() != nil {
		dm.mu.Unlock()
		return false
	}
	item := &delayedTask{runAt: time.Now().Add(delay), task: r}
	heap.Push(&dm.pq, item)
	first := item.index == 0
	dm.mu.Unlock()

	if first {
		select {
		case dm.wakeup <- struct{}{}:
		default:
		}
	}
	return true
}

// remove takes the task with id out of the heap before it is released.
func (dm *delayManager) remove(id TaskID) (runnable, bool) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	for _, item := range dm.pq {
		if item.task.ID() == id {
			heap.Remove(&dm.pq, item.index)
			return item.task, true
		}
	}
	return nil, false
}

func (dm *delayManager) loop() {
	timer := time.NewTimer(time.Hour)
	timer.Stop()

	for {
		next, ok := dm.nextRun()
		if !ok {
			// Nothing scheduled; sleep until woken.
			next = 1000 * time.Hour
		}
		timer.Reset(next)

		select {
		case <-dm.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			dm.releaseExpired()
		case <-dm.wakeup:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}
	}
}

// nextRun returns the wait until the earliest task is due, or false when the
// heap is empty.
func (dm *delayManager) nextRun() (time.Duration, bool) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	item := dm.pq.peek()
	if item == nil {
		return 0, false
	}
	return max(0, time.Until(item.runAt)), true
}

// releaseExpired pops every due task and releases them outside the lock.
func (dm *delayManager) releaseExpired() {
	dm.mu.Lock()
	now := time.Now()
	var expired []runnable
	for dm.pq.Len() > 0 {
		item := dm.pq.peek()
		if item.runAt.After(now) {
			break
		}
		heap.Pop(&dm.pq)
		expired = append(expired, item.task)
	}
	dm.mu.Unlock()

	for _, r := range expired {
		dm.release(r)
	}
}

// stop ends the timer goroutine and returns the tasks that never came due.
func (dm *delayManager) stop() []runnable {
	dm.cancel()

	dm.mu.Lock()
	defer dm.mu.Unlock()
	left := make([]runnable, 0, len(dm.pq))
	for _, item := range dm.pq {
		left = append(left, item.task)
	}
	dm.pq = nil
	return left
}

func (dm *delayManager) count() int {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return len(dm.pq)
}
