package stream

import (
	"context"
	"errors"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// manualScheduler fires tasks only when Advance moves its clock.
type manualScheduler struct {
	mu     sync.Mutex
	now    time.Duration
	tasks  []*manualTask
	delays []time.Duration
}

type manualTask struct {
	s       *manualScheduler
	due     time.Duration
	period  time.Duration
	f       func()
	stopped bool
}

func (t *manualTask) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	was := !t.stopped
	t.stopped = true
	return was
}

func (s *manualScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &manualTask{s: s, due: s.now + d, f: f}
	s.tasks = append(s.tasks, t)
	s.delays = append(s.delays, d)
	return t
}

func (s *manualScheduler) Every(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &manualTask{s: s, due: s.now + d, period: d, f: f}
	s.tasks = append(s.tasks, t)
	return t
}

// Advance runs every task due within d, in due order, on the calling goroutine.
func (s *manualScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	target := s.now + d
	s.mu.Unlock()

	for {
		s.mu.Lock()
		live := s.tasks[:0]
		for _, t := range s.tasks {
			if !t.stopped {
				live = append(live, t)
			}
		}
		s.tasks = live
		sort.SliceStable(s.tasks, func(i, j int) bool { return s.tasks[i].due < s.tasks[j].due })

		if len(s.tasks) == 0 || s.tasks[0].due > target {
			s.now = target
			s.mu.Unlock()
			return
		}
		t := s.tasks[0]
		s.now = t.due
		if t.period > 0 {
			t.due += t.period
		} else {
			t.stopped = true
		}
		s.mu.Unlock()
		t.f()
	}
}

func (s *manualScheduler) retryDelays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

func (s *manualScheduler) pendingRetries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.tasks {
		if !t.stopped && t.period == 0 {
			n++
		}
	}
	return n
}

type fakeDialer struct {
	mu       sync.Mutex
	failures int // upcoming dial failures, negative fails forever
	dials    int
	conns    []*fakeConn
	onDial   func() // runs before each dial completes
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (Conn, error) {
	d.mu.Lock()
	hook := d.onDial
	d.mu.Unlock()
	if hook != nil {
		hook()
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.failures != 0 {
		if d.failures > 0 {
			d.failures--
		}
		return nil, errors.New("connection refused")
	}
	c := newFakeConn()
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) last() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

type inbound struct {
	data string
	err  error
}

type fakeConn struct {
	mu       sync.Mutex
	writes   []string
	controls [][]byte
	inbound  chan inbound
	done     chan struct{}
	once     sync.Once
	werr     error
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan inbound, 64),
		done:    make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case in := <-c.inbound:
		if in.err != nil {
			return 0, nil, in.err
		}
		return websocket.TextMessage, []byte(in.data), nil
	case <-c.done:
		return 0, nil, net.ErrClosed
	}
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.done:
		return net.ErrClosed
	default:
	}
	if c.werr != nil {
		return c.werr
	}
	c.writes = append(c.writes, string(data))
	return nil
}

func (c *fakeConn) WriteControl(_ int, data []byte, _ time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.controls = append(c.controls, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *fakeConn) failWrites(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.werr = err
}

func (c *fakeConn) send(text string) { c.inbound <- inbound{data: text} }

func (c *fakeConn) fail(err error) { c.inbound <- inbound{err: err} }

func (c *fakeConn) written() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.writes...)
}

func (c *fakeConn) count(text string) int {
	n := 0
	for _, w := range c.written() {
		if w == text {
			n++
		}
	}
	return n
}

func (c *fakeConn) closeFrames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.controls...)
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}
