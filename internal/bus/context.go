package bus

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Context owns the process-wide transport state shared by every Bus.
// The process entry point creates exactly one Context and hands it to each
// stage; Close tears down every socket created through it.
type Context struct {
	mu    sync.Mutex
	state atomic.Pointer[transportState]

	bound       map[int]bool
	publishers  []*Publisher
	subscribers []*Subscriber
	closed      bool
}

// transportState holds the lazily created websocket upgrader/dialer pair.
type transportState struct {
	upgrader websocket.Upgrader
	dialer   websocket.Dialer
}

// NewContext creates an empty transport context. The upgrader and dialer are
// created on first use, not here.
func NewContext() *Context {
	return &Context{bound: make(map[int]bool)}
}

// transport returns the shared upgrader/dialer, creating them on first call.
// Double-checked: the fast path is a single atomic load.
func (c *Context) transport() *transportState {
	if s := c.state.Load(); s != nil {
		return s
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if s := c.state.Load(); s != nil {
		return s
	}
	s := &transportState{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		dialer: websocket.Dialer{HandshakeTimeout: 5 * time.Second},
	}
	c.state.Store(s)
	return s
}

func (c *Context) registerPublisher(p *Publisher) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("bus context closed")
	}
	if c.bound[p.port] {
		return fmt.Errorf("port %d already bound in this process", p.port)
	}
	c.bound[p.port] = true
	c.publishers = append(c.publishers, p)
	return nil
}

func (c *Context) registerSubscriber(s *Subscriber) {
	c.mu.Lock()
	c.subscribers = append(c.subscribers, s)
	c.mu.Unlock()
}

// Close closes every publisher and subscriber created through this context.
// Idempotent; each socket is closed exactly once.
func (c *Context) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	pubs := c.publishers
	subs := c.subscribers
	c.publishers = nil
	c.subscribers = nil
	c.mu.Unlock()

	for _, s := range subs {
		s.Close()
	}
	for _, p := range pubs {
		p.Close()
	}
}
