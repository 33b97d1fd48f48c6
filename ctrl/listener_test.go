package ctrl

import (
	"bytes"
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/USTC-INFINITELAB/pctrl/conn"
	"github.com/USTC-INFINITELAB/pctrl/eventbus"
	"github.com/USTC-INFINITELAB/pctrl/pof"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func nopHandler() Handler {
	return HandlerFunc(func(c *conn.Conn, hdr pof.Header, msg pof.Message) {})
}

func newTestListener() *Listener {
	return NewListener("127.0.0.1:0", nopHandler(), eventbus.New(zerolog.Nop()), zerolog.Nop())
}

func TestListener_RegisterAndLookup(t *testing.T) {
	l := newTestListener()
	server, client := net.Pipe()
	t.Cleanup(func() { server.Close(); client.Close() })
	c := conn.New(server, l.Bus.NewScope(), zerolog.Nop())

	l.Register(7, c)
	got, ok := l.Conn(7)
	require.True(t, ok)
	require.Same(t, c, got)

	l.Unregister(7)
	_, ok = l.Conn(7)
	require.False(t, ok)
}

func TestServeSender_DeliversQueuedMessagesInOrder(t *testing.T) {
	l := newTestListener()
	server, client := net.Pipe()
	t.Cleanup(func() { server.Close(); client.Close() })
	c := conn.New(server, l.Bus.NewScope(), zerolog.Nop())

	// Queue a burst before the sender even starts, the way a manager
	// emitting against a not-yet-writable socket would.
	const total = 1000
	for i := 0; i < total; i++ {
		req := pof.NewGetConfigRequest(uint32(i + 1))
		require.NoError(t, c.SendMessage(&req))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.serveSender(ctx, c)

	buf := make([]byte, total*pof.GetConfigRequestLen)
	require.NoError(t, client.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, err := io.ReadFull(client, buf)
	require.NoError(t, err)

	for i := 0; i < total; i++ {
		var hdr pof.Header
		_, err := hdr.ReadFrom(bytes.NewReader(buf[i*pof.GetConfigRequestLen:]))
		require.NoError(t, err)
		require.Equal(t, uint32(i+1), hdr.XID, "message %d out of order", i)
	}
}

func TestServeSender_DeliversMessagesQueuedWhileRunning(t *testing.T) {
	l := newTestListener()
	server, client := net.Pipe()
	t.Cleanup(func() { server.Close(); client.Close() })
	c := conn.New(server, l.Bus.NewScope(), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.serveSender(ctx, c)

	const total = 50
	go func() {
		for i := 0; i < total; i++ {
			req := pof.NewGetConfigRequest(uint32(i + 1))
			c.SendMessage(&req)
		}
	}()

	buf := make([]byte, total*pof.GetConfigRequestLen)
	require.NoError(t, client.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, err := io.ReadFull(client, buf)
	require.NoError(t, err)

	for i := 0; i < total; i++ {
		var hdr pof.Header
		_, err := hdr.ReadFrom(bytes.NewReader(buf[i*pof.GetConfigRequestLen:]))
		require.NoError(t, err)
		require.Equal(t, uint32(i+1), hdr.XID)
	}
}

func TestListener_ServeSendsHelloOnAccept(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	l := newTestListener()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Serve(ctx, ln) }()

	peer, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { peer.Close() })

	buf := make([]byte, pof.HeaderLen)
	require.NoError(t, peer.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, err = io.ReadFull(peer, buf)
	require.NoError(t, err)

	var hdr pof.Header
	_, err = hdr.ReadFrom(bytes.NewReader(buf))
	require.NoError(t, err)
	require.Equal(t, pof.TypeHello, hdr.Type)
	require.Equal(t, pof.Version, hdr.Version)

	cancel()
	require.NoError(t, <-done)
}
