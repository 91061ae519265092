package stream

import (
	"sync"
	"sync/atomic"
)

// Listener receives every decoded event in arrival order. An error or panic
// from one listener never reaches the others.
type Listener interface {
	OnEvent(Event) error
}

type ListenerFunc func(Event) error

func (f ListenerFunc) OnEvent(e Event) error { return f(e) }

// listenerSet is copy-on-write so dispatch iterates a stable snapshot while
// registrations happen concurrently.
type listenerSet struct {
	mu   sync.Mutex
	list atomic.Pointer[[]Listener]
}

func (s *listenerSet) add(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var next []Listener
	if cur := s.list.Load(); cur != nil {
		next = make([]Listener, len(*cur), len(*cur)+1)
		copy(next, *cur)
	}
	next = append(next, l)
	s.list.Store(&next)
}

func (s *listenerSet) snapshot() []Listener {
	if cur := s.list.Load(); cur != nil {
		return *cur
	}
	return nil
}
