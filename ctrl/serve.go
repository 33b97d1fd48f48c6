package ctrl

import (
	"context"
	"errors"
	"io"

	"github.com/USTC-INFINITELAB/pctrl/conn"
	"github.com/USTC-INFINITELAB/pctrl/eventbus"
)

// serveConn is the read half: receive, dispatch, repeat, mirroring
// of.Server.serve. Any Receive error (a transport error, EOF, a bad
// version byte, or a message that fails to decode, including an
// unknown type byte) transitions the connection DOWN and raises
// ConnectionDown exactly once; an undecodable message is not skipped.
func (l *Listener) serveConn(ctx context.Context, c *conn.Conn) {
	defer c.Close()

	for {
		if ctx.Err() != nil {
			return
		}

		hdr, msg, err := c.Receive()
		if err != nil {
			l.teardown(c, err)
			return
		}

		l.Handler.Serve(c, hdr, msg)
	}
}

func (l *Listener) teardown(c *conn.Conn, err error) {
	if errors.Is(err, conn.ErrBadVersion) {
		c.Log().Warn().Err(err).Msg("ctrl: bad version byte, tearing down connection")
	} else if !errors.Is(err, io.EOF) {
		c.Log().Debug().Err(err).Msg("ctrl: connection closed")
	}

	if c.MarkDown() {
		deviceID := c.DeviceID()
		l.Unregister(deviceID)
		c.Scope.Raise(&eventbus.Event{Type: eventbus.ConnectionDown, DeviceID: deviceID})
	}
}

// serveSender is the deferred-send worker: it drains the
// connection's send queue in submission order, writing and flushing
// each chunk, then parks on the wake signal until more arrives. A
// write error ends the worker; the read half notices the dead socket
// and runs the teardown.
func (l *Listener) serveSender(ctx context.Context, c *conn.Conn) {
	done := ctx.Done()
	for {
		for _, chunk := range c.DrainOutbound() {
			if err := c.WriteChunk(chunk); err != nil {
				return
			}
		}

		select {
		case <-done:
			return
		case <-c.Wake():
		}
	}
}
