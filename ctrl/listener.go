// Package ctrl is the accept loop and per-connection deferred
// sender: one goroutine per accepted connection drives its read loop,
// and a second per-connection goroutine drains its deferred send
// queue.
package ctrl

import (
	"context"
	"net"

	"github.com/USTC-INFINITELAB/pctrl/conn"
	"github.com/USTC-INFINITELAB/pctrl/eventbus"
	"github.com/USTC-INFINITELAB/pctrl/pof"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Handler reacts to one fully decoded inbound message on a
// connection.
type Handler interface {
	Serve(c *conn.Conn, hdr pof.Header, msg pof.Message)
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(c *conn.Conn, hdr pof.Header, msg pof.Message)

// Serve implements Handler.
func (f HandlerFunc) Serve(c *conn.Conn, hdr pof.Header, msg pof.Message) { f(c, hdr, msg) }

// Listener accepts POF switch connections and dispatches their
// messages to Handler.
type Listener struct {
	Addr    string
	Handler Handler
	Bus     *eventbus.Bus
	Log     zerolog.Logger

	// conns indexes live connections by negotiated device id. Lookups
	// run on every manager call while registration only happens once
	// per handshake, so a lock-striped map reads without contending
	// against the rest of the connection's state the way a single
	// package-wide mutex would.
	conns *xsync.MapOf[uint32, *conn.Conn]
}

// NewListener returns a Listener ready to Serve.
func NewListener(addr string, h Handler, bus *eventbus.Bus, log zerolog.Logger) *Listener {
	return &Listener{Addr: addr, Handler: h, Bus: bus, Log: log, conns: xsync.NewMapOf[uint32, *conn.Conn]()}
}

// ListenAndServe opens Addr and runs Serve on it until ctx is
// cancelled.
func (l *Listener) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", l.Addr)
	if err != nil {
		return err
	}
	return l.Serve(ctx, ln)
}

// Serve runs the accept loop: one goroutine per accepted connection
// drives its read/dispatch cycle, mirroring of.Server.Serve. Observing
// ctx.Done closes the listener so Accept unblocks and the loop exits
// cleanly.
func (l *Listener) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		rwc, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		scope := l.Bus.NewScope()
		c := conn.New(rwc, scope, l.Log)

		// The read loop and the deferred sender share one connection's
		// lifetime: once either exits, the other should stop too,
		// rather than leaking a sender goroutine blocked on a channel
		// nobody will ever close (grounded on solidcoredata-dca's
		// errgroup.WithContext(ctx) pairing of goroutines that must
		// rise and fall together).
		connCtx, cancel := context.WithCancel(ctx)
		group, groupCtx := errgroup.WithContext(connCtx)
		group.Go(func() error { defer cancel(); l.serveSender(groupCtx, c); return nil })
		group.Go(func() error { defer cancel(); l.serveConn(groupCtx, c); return nil })
		go func() {
			group.Wait()
			cancel()
		}()

		hello := pof.NewHello(c.NextXID())
		if err := c.SendMessage(&hello); err != nil {
			c.Log().Warn().Err(err).Msg("ctrl: failed to send initial hello")
		}
	}
}

// Register indexes c under its negotiated device id once the
// handshake installs one, so the manager can look connections up by
// device without pmdb ever holding a *conn.Conn itself.
func (l *Listener) Register(deviceID uint32, c *conn.Conn) {
	l.conns.Store(deviceID, c)
}

// Unregister drops a connection from the by-device-id index.
func (l *Listener) Unregister(deviceID uint32) {
	l.conns.Delete(deviceID)
}

// Conn looks a connection up by its negotiated device id.
func (l *Listener) Conn(deviceID uint32) (*conn.Conn, bool) {
	return l.conns.Load(deviceID)
}
