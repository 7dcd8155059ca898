package engine

import (
	"sync"
	"sync/atomic"
)

type executionControl struct {
	cancelled  chan struct{}
	cancelOnce sync.Once
	paused     int32
	resume     chan struct{}
}

func newExecutionControl() *executionControl {
	return &executionControl{
		cancelled: make(chan struct{}),
		resume:    make(chan struct{}, 1),
	}
}

func (c *executionControl) cancel() {
	c.cancelOnce.Do(func() {
		close(c.cancelled)
	})
}

func (c *executionControl) isCancelled() bool {
	select {
	case <-c.cancelled:
		return true
	default:
		return false
	}
}

func (c *executionControl) pause() {
	atomic.StoreInt32(&c.paused, 1)
}

func (c *executionControl) unpause() {
	atomic.StoreInt32(&c.paused, 0)
	select {
	case c.resume <- struct{}{}:
	default:
	}
}

func (c *executionControl) isPaused() bool {
	return atomic.LoadInt32(&c.paused) == 1
}
