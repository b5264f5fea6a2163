// Package client is the Go counterpart of the score tracker's browser
// client: a reconnecting websocket connection, a per-game reconciler keeping
// a local mirror of the roster, and a shared on-disk cache so concurrent
// processes on the same device agree on in-progress scores.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"gamenight-server/internal/protocol"
)

// ErrNotConnected is returned by Send while the socket is down. Callers keep
// their local state and rely on the resync after reconnect instead of
// queueing.
var ErrNotConnected = errors.New("websocket not connected")

// State describes the connection lifecycle.
type State int

const (
	StateConnecting State = iota
	StateOpen
	StateRetrying
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateRetrying:
		return "retrying"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// MessageHandler receives the raw payload of one server message.
type MessageHandler func(data json.RawMessage)

// Config controls the websocket client.
type Config struct {
	// URL is the websocket endpoint, e.g. ws://localhost:3000/websocket.
	URL string

	// ReconnectDelay is the fixed wait between reconnect attempts. There is
	// no backoff and no attempt cap: the client retries at this cadence until
	// Close. Defaults to 3 seconds.
	ReconnectDelay time.Duration

	// HandshakeTimeout bounds each dial attempt. Defaults to 10 seconds.
	HandshakeTimeout time.Duration

	// WriteTimeout bounds each outbound write. Defaults to 5 seconds.
	WriteTimeout time.Duration

	Clock  clockwork.Clock
	Logger zerolog.Logger
}

func (c *Config) applyDefaults() {
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = 3 * time.Second
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
}

// Client maintains one websocket connection to the score server, redialing
// on a fixed delay whenever it drops. Inbound messages are dispatched to
// subscribers by their wire type string.
type Client struct {
	cfg Config
	log zerolog.Logger

	mu       sync.RWMutex
	conn     *websocket.Conn
	state    State
	handlers map[string]map[int]MessageHandler
	watchers map[int]func(State)
	nextID   int

	writeMu sync.Mutex // gorilla allows one concurrent writer

	runOnce   sync.Once
	started   bool
	closeOnce sync.Once
	closed    chan struct{}
	done      chan struct{}
}

func New(cfg Config) *Client {
	cfg.applyDefaults()
	return &Client{
		cfg:      cfg,
		log:      cfg.Logger,
		state:    StateConnecting,
		handlers: make(map[string]map[int]MessageHandler),
		watchers: make(map[int]func(State)),
		closed:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins the connect/read/reconnect loop. It returns immediately; the
// loop runs until Close or ctx cancellation.
func (c *Client) Start(ctx context.Context) {
	c.runOnce.Do(func() {
		c.mu.Lock()
		c.started = true
		c.mu.Unlock()
		go c.run(ctx)
	})
}

// Close stops reconnecting and tears down any live connection. It waits for
// the run loop to exit.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
	})

	c.mu.RLock()
	started := c.started
	c.mu.RUnlock()
	if started {
		<-c.done
	}
}

// Connected reports whether the socket is currently open.
func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state == StateOpen
}

// Send encodes and writes one client message. While disconnected it fails
// fast with ErrNotConnected; nothing is queued.
func (c *Client) Send(msg any) error {
	payload, err := protocol.EncodeClient(msg)
	if err != nil {
		return err
	}

	c.mu.RLock()
	conn := c.conn
	open := c.state == StateOpen
	c.mu.RUnlock()

	if !open || conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return err
	}
	return nil
}

// Subscribe registers h for every inbound message whose type string equals
// msgType. The returned function removes the subscription.
func (c *Client) Subscribe(msgType string, h MessageHandler) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID
	c.nextID++

	if c.handlers[msgType] == nil {
		c.handlers[msgType] = make(map[int]MessageHandler)
	}
	c.handlers[msgType][id] = h

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.handlers[msgType], id)
	}
}

// OnStateChange registers fn to observe connection state transitions. The
// returned function removes the watcher.
func (c *Client) OnStateChange(fn func(State)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID
	c.nextID++
	c.watchers[id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.watchers, id)
	}
}

func (c *Client) run(ctx context.Context) {
	defer close(c.done)
	defer c.setState(StateClosed)

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closed:
			return
		default:
		}

		conn, err := c.dial(ctx)
		if err != nil {
			c.log.Warn().Err(err).Msg("websocket dial failed")
			c.setState(StateRetrying)
			if !c.waitRetry(ctx) {
				return
			}
			continue
		}

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		c.setState(StateOpen)
		c.log.Info().Str("url", c.cfg.URL).Msg("websocket connected")

		c.readLoop(conn)

		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		case <-c.closed:
			return
		default:
		}

		c.setState(StateRetrying)
		c.log.Info().Dur("delay", c.cfg.ReconnectDelay).Msg("websocket lost, reconnecting")
		if !c.waitRetry(ctx) {
			return
		}
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.HandshakeTimeout}

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.HandshakeTimeout)
	defer cancel()

	conn, resp, err := dialer.DialContext(dialCtx, c.cfg.URL, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
			return nil, errors.Join(err, errors.New("handshake rejected: "+resp.Status))
		}
		return nil, err
	}
	return conn, nil
}

// readLoop consumes messages until the connection dies. Messages the client
// doesn't understand are logged and skipped; they never kill the connection.
func (c *Client) readLoop(conn *websocket.Conn) {
	defer conn.Close()

	// a Close while blocked in ReadMessage must unstick us
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-c.closed:
			conn.Close()
		case <-stop:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.log.Debug().Err(err).Msg("websocket read ended")
			return
		}
		c.dispatch(data)
	}
}

func (c *Client) dispatch(data []byte) {
	msgType, err := protocol.RawType(data)
	if err != nil {
		c.log.Warn().Err(err).Msg("skipping unparseable server message")
		return
	}

	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		c.log.Warn().Err(err).Msg("skipping malformed server message")
		return
	}

	c.mu.RLock()
	handlers := make([]MessageHandler, 0, len(c.handlers[msgType]))
	for _, h := range c.handlers[msgType] {
		handlers = append(handlers, h)
	}
	c.mu.RUnlock()

	if len(handlers) == 0 {
		c.log.Debug().Str("type", msgType).Msg("no subscriber for message")
		return
	}
	for _, h := range handlers {
		h(env.Data)
	}
}

// waitRetry sleeps for the fixed reconnect delay. Returns false if the
// client was closed or the context ended while waiting.
func (c *Client) waitRetry(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-c.closed:
		return false
	case <-c.cfg.Clock.After(c.cfg.ReconnectDelay):
		return true
	}
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	watchers := make([]func(State), 0, len(c.watchers))
	for _, fn := range c.watchers {
		watchers = append(watchers, fn)
	}
	c.mu.Unlock()

	for _, fn := range watchers {
		fn(s)
	}
}
