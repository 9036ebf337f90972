// Package bus is the communication spine of the pipeline: a localhost
// publish/subscribe transport with topic filtering and a fixed JSON envelope.
//
// A publisher binds a TCP port on 127.0.0.1 and fans published messages out
// to every connected subscriber whose topic filter matches. The wire format
// is two frames packed into one websocket binary message:
//
//	frame 0: UTF-8 topic string
//	frame 1: JSON envelope {"timestamp": .., "topic": .., "data": {..}}
//
// separated by a single '\n', so a subscriber can filter on the topic frame
// without parsing JSON for messages it will discard.
//
// There is no backlog or replay: a message published before a subscriber's
// filter registration reaches the publisher is silently missed. Callers must
// insert a short settling delay (a few hundred milliseconds) after creating
// a subscriber before depending on delivery.
package bus

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Fixed port assignments, one per pipeline stage.
const (
	AudioPort      = 5555 // raw audio chunks from the capture stage
	TranscriptPort = 5556 // transcribed text segments
	StressPort     = 5557 // vocal-stress analysis results
	TacticPort     = 5558 // detected scam-tactic classifications
)

// Topic names matching the port table above.
const (
	TopicAudio      = "audio"
	TopicTranscript = "transcript"
	TopicStress     = "stress"
	TopicTactics    = "tactics"
)

const writeTimeout = 2 * time.Second

// Bus creates publishers and subscribers against a shared transport Context.
type Bus struct {
	ctx *Context
}

// New returns a Bus bound to the given transport context.
func New(ctx *Context) *Bus {
	return &Bus{ctx: ctx}
}

// subscribeRequest is the first message a subscriber sends after connecting.
type subscribeRequest struct {
	Topics []string `json:"topics"`
}

// Message is one received (topic, envelope) pair.
type Message struct {
	Topic    string
	Envelope *Envelope
}

// ---------------------------------------------------------------------------
// Publisher
// ---------------------------------------------------------------------------

// Publisher is a bound send-only endpoint on a local port.
type Publisher struct {
	port int
	ln   net.Listener
	srv  *http.Server

	mu    sync.Mutex
	conns map[string]*pubConn

	closeOnce sync.Once
}

type pubConn struct {
	id     string
	ws     *websocket.Conn
	topics []string

	// serializes writes; gorilla allows one concurrent writer per conn
	mu sync.Mutex
}

func (c *pubConn) matches(topic string) bool {
	for _, t := range c.topics {
		if strings.HasPrefix(topic, t) {
			return true
		}
	}
	return false
}

// CreatePublisher binds a publisher endpoint on 127.0.0.1:port. A bind
// failure (port already in use) is returned immediately so operators discover
// port conflicts at startup, not at first publish.
func (b *Bus) CreatePublisher(port int) (*Publisher, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return nil, fmt.Errorf("bind publisher port %d: %w", port, err)
	}

	p := &Publisher{
		port:  port,
		ln:    ln,
		conns: make(map[string]*pubConn),
	}
	if err := b.ctx.registerPublisher(p); err != nil {
		_ = ln.Close()
		return nil, err
	}

	upgrader := &b.ctx.transport().upgrader
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("bus: upgrade failed on :%d: %v", port, err)
			return
		}
		p.serveConn(ws)
	})
	p.srv = &http.Server{Handler: mux}
	go func() {
		if serr := p.srv.Serve(ln); serr != nil && serr != http.ErrServerClosed {
			log.Printf("bus: publisher :%d serve: %v", port, serr)
		}
	}()

	log.Printf("bus: publisher bound on port %d", port)
	return p, nil
}

// serveConn registers a subscriber connection after its filter handshake and
// keeps reading until the peer disconnects.
func (p *Publisher) serveConn(ws *websocket.Conn) {
	_ = ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, raw, err := ws.ReadMessage()
	if err != nil {
		_ = ws.Close()
		return
	}
	var req subscribeRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		log.Printf("bus: bad subscribe frame on :%d: %v", p.port, err)
		_ = ws.Close()
		return
	}
	if len(req.Topics) == 0 {
		req.Topics = []string{""}
	}

	conn := &pubConn{id: uuid.NewString(), ws: ws, topics: req.Topics}
	p.mu.Lock()
	p.conns[conn.id] = conn
	p.mu.Unlock()

	// Block until the subscriber goes away, then unregister.
	_ = ws.SetReadDeadline(time.Time{})
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			break
		}
	}
	p.mu.Lock()
	delete(p.conns, conn.id)
	p.mu.Unlock()
	_ = ws.Close()
}

// Publish serializes {timestamp, topic, data} and sends it to every connected
// subscriber whose filter matches the topic.
func (p *Publisher) Publish(topic string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal payload for %q: %w", topic, err)
	}
	env := Envelope{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Topic:     topic,
		Data:      raw,
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope for %q: %w", topic, err)
	}

	frame := make([]byte, 0, len(topic)+1+len(body))
	frame = append(frame, topic...)
	frame = append(frame, '\n')
	frame = append(frame, body...)

	p.mu.Lock()
	targets := make([]*pubConn, 0, len(p.conns))
	for _, c := range p.conns {
		if c.matches(topic) {
			targets = append(targets, c)
		}
	}
	p.mu.Unlock()

	for _, c := range targets {
		c.mu.Lock()
		_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
		werr := c.ws.WriteMessage(websocket.BinaryMessage, frame)
		c.mu.Unlock()
		if werr != nil {
			log.Printf("bus: dropping subscriber on :%d: %v", p.port, werr)
			p.mu.Lock()
			delete(p.conns, c.id)
			p.mu.Unlock()
			_ = c.ws.Close()
		}
	}
	return nil
}

// Port returns the bound port.
func (p *Publisher) Port() int { return p.port }

// Close shuts the endpoint down and disconnects all subscribers. Idempotent.
func (p *Publisher) Close() {
	p.closeOnce.Do(func() {
		_ = p.srv.Close()
		p.mu.Lock()
		for id, c := range p.conns {
			_ = c.ws.Close()
			delete(p.conns, id)
		}
		p.mu.Unlock()
	})
}

// ---------------------------------------------------------------------------
// Subscriber
// ---------------------------------------------------------------------------

// Subscriber is a receive endpoint connected to one or more publishers.
type Subscriber struct {
	conns []*websocket.Conn
	inbox chan Message
	stop  chan struct{}

	closeOnce sync.Once
	wg        sync.WaitGroup
}

// A stage's subscriber often starts before the sibling stage that binds the
// publisher port, so dials are retried for a short window before the failure
// becomes fatal.
const (
	dialRetryWindow   = 3 * time.Second
	dialRetryInterval = 100 * time.Millisecond
)

func dialWithRetry(dialer *websocket.Dialer, port int) (*websocket.Conn, error) {
	deadline := time.Now().Add(dialRetryWindow)
	for {
		ws, _, err := dialer.Dial(fmt.Sprintf("ws://127.0.0.1:%d/", port), nil)
		if err == nil {
			return ws, nil
		}
		if time.Now().After(deadline) {
			return nil, err
		}
		time.Sleep(dialRetryInterval)
	}
}

// CreateSubscriber connects to publisher endpoints on the given local ports
// and installs topic filters. An empty filter list (or an empty-string topic)
// matches everything. Each dial is retried while the publisher may still be
// starting; a port that stays unbound past the retry window is fatal:
// already-opened connections are closed and the error is returned.
func (b *Bus) CreateSubscriber(ports []int, topics []string) (*Subscriber, error) {
	if len(topics) == 0 {
		topics = []string{""}
	}
	sub := &Subscriber{
		inbox: make(chan Message, 256),
		stop:  make(chan struct{}),
	}

	dialer := &b.ctx.transport().dialer
	req, err := json.Marshal(subscribeRequest{Topics: topics})
	if err != nil {
		return nil, fmt.Errorf("marshal subscribe request: %w", err)
	}

	for _, port := range ports {
		ws, derr := dialWithRetry(dialer, port)
		if derr != nil {
			sub.Close()
			return nil, fmt.Errorf("connect subscriber to port %d: %w", port, derr)
		}
		if werr := ws.WriteMessage(websocket.TextMessage, req); werr != nil {
			_ = ws.Close()
			sub.Close()
			return nil, fmt.Errorf("send topic filters to port %d: %w", port, werr)
		}
		sub.conns = append(sub.conns, ws)
		sub.wg.Add(1)
		go sub.readLoop(ws, port)
	}

	b.ctx.registerSubscriber(sub)
	return sub, nil
}

// readLoop pulls frames off one connection and feeds the shared inbox.
// Per-connection FIFO order is preserved; there is no ordering guarantee
// across connections.
func (s *Subscriber) readLoop(ws *websocket.Conn, port int) {
	defer s.wg.Done()
	for {
		_, frame, err := ws.ReadMessage()
		if err != nil {
			select {
			case <-s.stop:
			default:
				log.Printf("bus: subscriber read on :%d ended: %v", port, err)
			}
			return
		}
		i := bytes.IndexByte(frame, '\n')
		if i < 0 {
			log.Printf("bus: skipping malformed frame from :%d (no topic separator)", port)
			continue
		}
		topic := string(frame[:i])
		var env Envelope
		if err := json.Unmarshal(frame[i+1:], &env); err != nil {
			log.Printf("bus: skipping malformed envelope on %q from :%d: %v", topic, port, err)
			continue
		}
		select {
		case s.inbox <- Message{Topic: topic, Envelope: &env}:
		case <-s.stop:
			return
		}
	}
}

// Receive blocks up to timeout for the next message. The third return value
// is false on timeout, which is an expected steady-state outcome rather than
// a failure.
func (s *Subscriber) Receive(timeout time.Duration) (string, *Envelope, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case m := <-s.inbox:
		return m.Topic, m.Envelope, true
	case <-s.stop:
		return "", nil, false
	case <-timer.C:
		return "", nil, false
	}
}

// Close disconnects from all publishers. Idempotent and safe to call from
// any goroutine.
func (s *Subscriber) Close() {
	s.closeOnce.Do(func() {
		close(s.stop)
		for _, ws := range s.conns {
			_ = ws.Close()
		}
		s.wg.Wait()
	})
}
