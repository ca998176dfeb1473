// Package ws owns the one live socket connection of an authenticated chat
// session: connect/disconnect lifecycle, typed emit, and ordered event
// dispatch to registered handlers.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"
	"github.com/pborman/uuid"
)

const (
	// Time allowed to write a message to the server.
	writeWait = 3 * time.Second

	// Send pings with this period. Must be less than pongWait.
	pingPeriod = 20 * time.Second

	// Time allowed to read the next pong from the server.
	pongWait = 25 * time.Second

	// websocket max message size to read.
	readLimit = 65536

	sendBuffer = 16
)

const (
	backoffMin        = time.Second
	backoffMax        = 30 * time.Second
	backoffMultiplier = 1.5
)

var (
	// ErrNoToken means the session holds no access token. The caller must
	// treat the user as unauthenticated; no dial is attempted.
	ErrNoToken = errors.New("ws: no access token")

	// ErrNotConnected means an emit was attempted with no live connection.
	// The payload is dropped.
	ErrNotConnected = errors.New("ws: not connected")
)

// TokenSource provides the access token used as connection-time auth data.
type TokenSource interface {
	AccessToken() string
}

// Conf configures a Client.
type Conf struct {
	// URL is the websocket endpoint, e.g. ws://host:port/ws.
	URL string

	HandshakeTimeout time.Duration

	// AutoReconnect redials with backoff after a lost connection.
	// A user-initiated Disconnect never reconnects.
	AutoReconnect bool
}

type connState int

const (
	stateIdle connState = iota
	stateConnecting
	stateConnected
)

// Client is the session transport. It guarantees at most one physical
// connection: re-entrant Connect calls collapse to the existing connection or
// its in-flight attempt.
type Client struct {
	sync.Mutex

	conf   Conf
	tokens TokenSource
	dialer *websocket.Dialer

	state      connState
	userClosed bool
	sid        string
	conn       *websocket.Conn
	sendChan   chan *Envelope
	closing    bool
	gen        uint64

	subs    map[string][]*Subscription
	nextSub int64
}

// Subscription is the de-registration capability returned by On.
type Subscription struct {
	c     *Client
	event string
	id    int64
	fn    func(json.RawMessage)
}

// Cancel removes this handler registration. Safe to call more than once.
func (s *Subscription) Cancel() {
	c := s.c
	c.Lock()
	defer c.Unlock()
	slice := c.subs[s.event]
	for i, x := range slice {
		if x.id == s.id {
			c.subs[s.event] = append(slice[:i:i], slice[i+1:]...)
			return
		}
	}
}

// NewClient creates a transport bound to the given token source. No
// connection is made until Connect.
func NewClient(conf Conf, tokens TokenSource) *Client {
	if conf.HandshakeTimeout == 0 {
		conf.HandshakeTimeout = 10 * time.Second
	}
	return &Client{
		conf:   conf,
		tokens: tokens,
		dialer: &websocket.Dialer{
			HandshakeTimeout: conf.HandshakeTimeout,
			ReadBufferSize:   4096,
			WriteBufferSize:  1024,
		},
		subs: make(map[string][]*Subscription),
	}
}

// Connect establishes the connection. While a connection is open or an
// attempt is in flight, it returns nil without dialing again.
func (c *Client) Connect(ctx context.Context) error {
	c.Lock()
	switch c.state {
	case stateConnected, stateConnecting:
		glog.V(5).Infof("ws: connect: already %v, sid: %s", c.state, c.sid)
		c.Unlock()
		return nil
	}
	token := c.tokens.AccessToken()
	if token == "" {
		c.Unlock()
		glog.Errorf("ws: connect: no access token")
		return ErrNoToken
	}
	c.state = stateConnecting
	c.userClosed = false
	c.Unlock()

	if err := c.dial(ctx, token); err != nil {
		c.Lock()
		if c.state == stateConnecting {
			c.state = stateIdle
		}
		c.Unlock()
		return err
	}
	return nil
}

func (c *Client) dial(ctx context.Context, token string) error {
	hdr := http.Header{}
	hdr.Set("Authorization", "Bearer "+token)

	conn, _, err := c.dialer.DialContext(ctx, c.conf.URL, hdr)
	if err != nil {
		glog.Errorf("ws: dial %s error: %v", c.conf.URL, err)
		return fmt.Errorf("ws: dial: %w", err)
	}

	c.Lock()
	if c.state != stateConnecting {
		// Disconnect() raced the dial; discard the new connection.
		c.Unlock()
		conn.Close()
		return errors.New("ws: connect aborted")
	}
	c.conn = conn
	c.state = stateConnected
	c.closing = false
	c.gen++
	c.sid = strings.ReplaceAll(uuid.New(), "-", "")
	c.sendChan = make(chan *Envelope, sendBuffer)
	gen, sid, sendChan := c.gen, c.sid, c.sendChan
	c.Unlock()

	glog.Infof("ws: connected, sid: %s", sid)

	go c.recvLoop(conn, gen)
	go c.sendLoop(conn, sendChan, gen)
	return nil
}

// IsConnected reports whether a connection is live.
func (c *Client) IsConnected() bool {
	c.Lock()
	defer c.Unlock()
	return c.state == stateConnected
}

// Emit sends one event to the server. With no live connection the payload is
// dropped and ErrNotConnected returned; it never panics past this boundary.
func (c *Client) Emit(event string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("ws: emit %q: marshal: %w", event, err)
	}

	c.Lock()
	if c.state != stateConnected || c.closing {
		c.Unlock()
		emitDropped.WithLabelValues(event).Inc()
		glog.Errorf("ws: emit %q dropped: no live connection", event)
		return ErrNotConnected
	}
	select {
	case c.sendChan <- &Envelope{Event: event, Data: data}:
		c.Unlock()
	default:
		c.Unlock()
		emitDropped.WithLabelValues(event).Inc()
		glog.Errorf("ws: emit %q dropped: send buffer full", event)
		return fmt.Errorf("ws: emit %q: send buffer full", event)
	}

	emitTotal.WithLabelValues(event).Inc()
	glog.V(5).Infof("ws: emit %q: %s", event, string(data))
	return nil
}

// On registers a handler for the named event. Handlers run in registration
// order. The returned Subscription cancels exactly this registration.
func (c *Client) On(event string, fn func(data json.RawMessage)) *Subscription {
	c.Lock()
	defer c.Unlock()
	c.nextSub++
	s := &Subscription{c: c, event: event, id: c.nextSub, fn: fn}
	c.subs[event] = append(c.subs[event], s)
	return s
}

// Disconnect tears down the connection and clears all handler registrations
// bound to it. Calling it when already disconnected is a no-op.
func (c *Client) Disconnect() {
	c.Lock()
	c.userClosed = true
	switch c.state {
	case stateIdle:
		c.subs = make(map[string][]*Subscription)
		c.Unlock()
		glog.V(5).Infof("ws: disconnect: already disconnected")
		return
	case stateConnecting:
		c.state = stateIdle
		c.subs = make(map[string][]*Subscription)
		c.Unlock()
		glog.V(5).Infof("ws: disconnect: aborted in-flight connect")
		return
	}
	c.closing = true
	c.state = stateIdle
	conn, ch, sid := c.conn, c.sendChan, c.sid
	c.conn = nil
	c.subs = make(map[string][]*Subscription)
	c.Unlock()

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
	conn.Close()
	close(ch)

	glog.Infof("ws: disconnected, sid: %s", sid)
}

// connLost handles a read/write/ping failure on the connection identified by
// gen. Stale generations and user-initiated teardowns are ignored.
func (c *Client) connLost(gen uint64, cause error) {
	c.Lock()
	if c.gen != gen || c.state != stateConnected || c.closing {
		c.Unlock()
		return
	}
	c.closing = true
	c.state = stateIdle
	conn, ch, sid := c.conn, c.sendChan, c.sid
	c.conn = nil
	reconnect := c.conf.AutoReconnect && !c.userClosed
	c.Unlock()

	conn.Close()
	close(ch)
	glog.Errorf("ws: connection lost, sid: %s, cause: %v", sid, cause)

	if reconnect {
		go c.reconnectLoop()
	}
}

func (c *Client) reconnectLoop() {
	var sleep time.Duration
	for {
		nextBackoff(&sleep)
		time.Sleep(sleep)

		c.Lock()
		stop := c.userClosed || c.state != stateIdle
		c.Unlock()
		if stop {
			return
		}

		reconnects.Inc()
		err := c.Connect(context.Background())
		if err == nil {
			return
		}
		if errors.Is(err, ErrNoToken) {
			glog.Errorf("ws: reconnect abandoned: %v", err)
			return
		}
		glog.Errorf("ws: reconnect failed, retry in %s: %v", sleep, err)
	}
}

func nextBackoff(d *time.Duration) {
	if *d == 0 {
		*d = backoffMin
		return
	}
	*d = time.Duration(float64(*d) * backoffMultiplier)
	if *d > backoffMax {
		*d = backoffMax
	}
}

func (c *Client) recvLoop(conn *websocket.Conn, gen uint64) {
	defer glog.V(5).Infof("ws: recvLoop exited, gen: %d", gen)

	conn.SetReadLimit(readLimit)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			c.connLost(gen, err)
			return
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			glog.Errorf("ws: bad frame: %s, err: %v", string(raw), err)
			continue
		}

		recvTotal.WithLabelValues(env.Event).Inc()
		glog.V(5).Infof("ws: recv %q: %s", env.Event, string(env.Data))
		c.dispatch(&env)
	}
}

func (c *Client) dispatch(env *Envelope) {
	c.Lock()
	subs := c.subs[env.Event]
	fns := make([]func(json.RawMessage), len(subs))
	for i, s := range subs {
		fns[i] = s.fn
	}
	c.Unlock()

	if len(fns) == 0 {
		glog.V(5).Infof("ws: no handler for %q", env.Event)
		return
	}
	for _, fn := range fns {
		fn(env.Data)
	}
}

func (c *Client) sendLoop(conn *websocket.Conn, ch <-chan *Envelope, gen uint64) {
	pingTicker := time.NewTicker(pingPeriod)
	defer func() {
		pingTicker.Stop()
		glog.V(5).Infof("ws: sendLoop exited, gen: %d", gen)
	}()

	for {
		select {
		case env, ok := <-ch:
			if !ok { // teardown closed the chan
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(env); err != nil {
				glog.Errorf("ws: write %q error: %v", env.Event, err)
				c.connLost(gen, err)
				return
			}
		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				glog.Errorf("ws: write ping error: %v", err)
				c.connLost(gen, err)
				return
			}
		}
	}
}
