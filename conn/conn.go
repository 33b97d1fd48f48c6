// Package conn implements a single switch-facing POF connection: the
// framed read/write path and the handshake state machine.
package conn

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/USTC-INFINITELAB/pctrl/eventbus"
	"github.com/USTC-INFINITELAB/pctrl/pof"
	"github.com/rs/zerolog"
)

// ErrBadVersion is returned by Receive when an inbound Header carries
// a version byte other than pof.Version, for any message type other
// than HELLO. The caller must tear the connection down.
var ErrBadVersion = errors.New("conn: unsupported protocol version")

// State is the connection's handshake/lifecycle phase.
type State int

const (
	StateNew State = iota
	StateWaitFeatures
	StateWaitPorts
	StateUp
	StateDown
)

var stateText = map[State]string{
	StateNew:          "NEW",
	StateWaitFeatures: "WAIT_FEATURES",
	StateWaitPorts:    "WAIT_PORTS",
	StateUp:           "UP",
	StateDown:         "DOWN",
}

func (s State) String() string {
	if t, ok := stateText[s]; ok {
		return t
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Conn is one switch's TCP session: socket, buffers, handshake state,
// and the per-connection event scope. It holds no pointer to the
// listener that owns it, and its Scope points at the shared event bus,
// which keeps no reference to any connection, so there is no
// Connection↔nexus reference cycle.
type Conn struct {
	rwc net.Conn
	r   *bufio.Reader
	w   *bufio.Writer

	mu          sync.Mutex
	state       State
	deviceID    uint32
	features    pof.FeaturesReply
	connectTime time.Time
	lastSeen    time.Time

	portsWanted   int
	portsReceived int

	xids    *pof.XIDGenerator
	pending map[uint32]time.Time

	// queue holds serialized messages awaiting the deferred sender, in
	// strict submission order; wake carries at most one pending signal
	// so Send never blocks, mirroring the socket-level "partial send /
	// EAGAIN → deferred queue" path a real non-blocking socket needs.
	sendMu sync.Mutex
	queue  [][]byte
	wake   chan struct{}

	Scope *eventbus.Scope
	log   zerolog.Logger
}

// New wraps rwc as a fresh, unhandshaked Conn.
func New(rwc net.Conn, scope *eventbus.Scope, log zerolog.Logger) *Conn {
	return &Conn{
		rwc:     rwc,
		r:       bufio.NewReader(rwc),
		w:       bufio.NewWriter(rwc),
		state:   StateNew,
		xids:    pof.NewXIDGenerator(),
		pending: make(map[uint32]time.Time),
		wake:    make(chan struct{}, 1),
		Scope:   scope,
		log:     log.With().Str("component", "conn").Str("remote", rwc.RemoteAddr().String()).Logger(),
	}
}

// State returns the connection's current lifecycle phase.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// DeviceID returns the negotiated device id, valid once past
// WAIT_FEATURES.
func (c *Conn) DeviceID() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deviceID
}

// Features returns the FEATURES_REPLY installed at handshake time.
func (c *Conn) Features() pof.FeaturesReply {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.features
}

// ConnectTime returns when the handshake completed (zero until UP).
func (c *Conn) ConnectTime() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectTime
}

// LastSeen returns the time of the most recently received message.
func (c *Conn) LastSeen() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSeen
}

// InstallFeatures records the handshake FEATURES_REPLY and arms the
// "wait N port-status" completion, transitioning NEW/WAIT_FEATURES →
// WAIT_PORTS.
func (c *Conn) InstallFeatures(f pof.FeaturesReply) {
	c.mu.Lock()
	c.features = f
	c.deviceID = f.DeviceID
	c.portsWanted = int(f.PortNum)
	c.portsReceived = 0
	c.state = StateWaitPorts
	c.mu.Unlock()
}

// CountPortStatus increments the port-status counter while in
// WAIT_PORTS and reports whether the handshake just completed: once
// the count reaches features.PortNum the connect time is stamped and
// the state moves to UP.
func (c *Conn) CountPortStatus() (completed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateWaitPorts {
		return false
	}
	c.portsReceived++
	if c.portsReceived < c.portsWanted {
		return false
	}
	c.connectTime = time.Now()
	c.state = StateUp
	return true
}

// MarkUp forces the connection straight to UP, used when a switch's
// FEATURES_REPLY declares zero ports (no PORT_STATUS will ever
// arrive to complete WAIT_PORTS).
func (c *Conn) MarkUp() {
	c.mu.Lock()
	c.connectTime = time.Now()
	c.state = StateUp
	c.mu.Unlock()
}

// MarkDown transitions the connection to DOWN. It is idempotent:
// only the first call reports transitioned=true, so callers raise
// ConnectionDown exactly once.
func (c *Conn) MarkDown() (transitioned bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateDown {
		return false
	}
	c.state = StateDown
	return true
}

// NextXID returns the next transaction id for an outbound message on
// this connection and remembers it as in-flight.
func (c *Conn) NextXID() uint32 {
	xid := c.xids.Next()
	c.mu.Lock()
	c.pending[xid] = time.Now()
	c.mu.Unlock()
	return xid
}

// CompleteXID drops xid from the in-flight table, returning how long
// it was outstanding and whether it was known.
func (c *Conn) CompleteXID(xid uint32) (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sent, ok := c.pending[xid]
	if !ok {
		return 0, false
	}
	delete(c.pending, xid)
	return time.Since(sent), true
}

// Receive reads and decodes exactly one POF message. A non-HELLO
// message whose version byte is not pof.Version returns ErrBadVersion
// and the caller must tear the connection down.
func (c *Conn) Receive() (pof.Header, pof.Message, error) {
	peek, err := c.r.Peek(pof.HeaderLen)
	if err != nil {
		return pof.Header{}, nil, err
	}

	var hdr pof.Header
	if _, err := hdr.ReadFrom(bytes.NewReader(peek)); err != nil {
		return pof.Header{}, nil, err
	}
	if !hdr.Valid() {
		return hdr, nil, ErrBadVersion
	}

	full := make([]byte, hdr.Length)
	if _, err := readFull(c.r, full); err != nil {
		return hdr, nil, err
	}
	c.mu.Lock()
	c.lastSeen = time.Now()
	c.mu.Unlock()

	msg, err := pof.Decode(hdr, full[pof.HeaderLen:])
	return hdr, msg, err
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// SendMessage marshals msg via its WriteTo and enqueues the resulting
// bytes for the deferred sender; it never blocks the caller.
func (c *Conn) SendMessage(msg pof.Message) error {
	var buf bytes.Buffer
	if _, err := msg.WriteTo(&buf); err != nil {
		return err
	}
	c.enqueue(buf.Bytes())
	return nil
}

// enqueue appends to the send queue and nudges the deferred sender.
// One queue keeps submission order intact even under a burst: messages
// go out in the order they were handed to SendMessage.
func (c *Conn) enqueue(b []byte) {
	c.sendMu.Lock()
	c.queue = append(c.queue, b)
	c.sendMu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// DrainOutbound pops everything currently queued, oldest first. Only
// the deferred sender calls this.
func (c *Conn) DrainOutbound() [][]byte {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	out := c.queue
	c.queue = nil
	return out
}

// Wake receives a signal after every enqueue, holding at most one
// pending signal; the deferred sender parks on it between drains.
func (c *Conn) Wake() <-chan struct{} { return c.wake }

// WriteChunk writes b directly to the connection and flushes it. Only
// the deferred sender goroutine calls this, so writes stay ordered
// per connection.
func (c *Conn) WriteChunk(b []byte) error {
	if _, err := c.w.Write(b); err != nil {
		return err
	}
	return c.w.Flush()
}

// Close closes the underlying socket.
func (c *Conn) Close() error {
	return c.rwc.Close()
}

// RemoteAddr returns the peer's network address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.rwc.RemoteAddr()
}

// Log returns the connection's sub-logger.
func (c *Conn) Log() *zerolog.Logger { return &c.log }
