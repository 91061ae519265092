package stream

import (
	"sync"
	"time"
)

// Timer cancels a scheduled task. Stop reports whether the call stopped it.
type Timer interface {
	Stop() bool
}

// Scheduler owns the reconnect and keepalive timers of a client.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
	Every(d time.Duration, f func()) Timer
}

type wallScheduler struct{}

// WallScheduler runs tasks on real timers.
func WallScheduler() Scheduler { return wallScheduler{} }

func (wallScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

func (wallScheduler) Every(d time.Duration, f func()) Timer {
	t := &ticker{stop: make(chan struct{})}
	go func() {
		tk := time.NewTicker(d)
		defer tk.Stop()
		for {
			select {
			case <-t.stop:
				return
			case <-tk.C:
				f()
			}
		}
	}()
	return t
}

type ticker struct {
	stop chan struct{}
	once sync.Once
}

func (t *ticker) Stop() bool {
	stopped := false
	t.once.Do(func() {
		close(t.stop)
		stopped = true
	})
	return stopped
}
