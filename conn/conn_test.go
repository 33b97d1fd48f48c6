package conn

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/USTC-INFINITELAB/pctrl/eventbus"
	"github.com/USTC-INFINITELAB/pctrl/pof"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func pipeConn(t *testing.T) (*Conn, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	bus := eventbus.New(zerolog.Nop())
	c := New(server, bus.NewScope(), zerolog.Nop())
	t.Cleanup(func() { client.Close(); c.Close() })
	return c, client
}

func TestConn_ReceiveDecodesHeaderAndBody(t *testing.T) {
	c, client := pipeConn(t)

	hello := pof.NewHello(1)
	done := make(chan error, 1)
	go func() {
		_, err := hello.WriteTo(client)
		done <- err
	}()

	hdr, msg, err := c.Receive()
	require.NoError(t, err)
	require.NoError(t, <-done)
	require.Equal(t, pof.TypeHello, hdr.Type)
	_, ok := msg.(*pof.Header)
	require.True(t, ok)
}

func TestConn_ReceiveRejectsBadVersion(t *testing.T) {
	c, client := pipeConn(t)

	bad := pof.Header{Version: 0x01, Type: pof.TypeEchoRequest, Length: pof.HeaderLen, XID: 1}
	go bad.WriteTo(client)

	_, _, err := c.Receive()
	require.ErrorIs(t, err, ErrBadVersion)
}

func TestConn_HandshakeStateMachine(t *testing.T) {
	c, _ := pipeConn(t)
	require.Equal(t, StateNew, c.State())

	c.InstallFeatures(pof.FeaturesReply{DeviceID: 42, PortNum: 2})
	require.Equal(t, StateWaitPorts, c.State())
	require.Equal(t, uint32(42), c.DeviceID())

	require.False(t, c.CountPortStatus())
	require.Equal(t, StateWaitPorts, c.State())

	require.True(t, c.CountPortStatus())
	require.Equal(t, StateUp, c.State())
	require.WithinDuration(t, time.Now(), c.ConnectTime(), time.Second)
}

func TestConn_MarkDownIsIdempotent(t *testing.T) {
	c, _ := pipeConn(t)
	require.True(t, c.MarkDown())
	require.False(t, c.MarkDown())
}

func TestConn_XIDRoundTrip(t *testing.T) {
	c, _ := pipeConn(t)
	xid := c.NextXID()

	_, ok := c.CompleteXID(xid)
	require.True(t, ok)

	_, ok = c.CompleteXID(xid)
	require.False(t, ok, "completing the same xid twice must fail")
}

func TestConn_SendMessageQueuesAndWakes(t *testing.T) {
	c, _ := pipeConn(t)

	req := pof.NewGetConfigRequest(7)
	require.NoError(t, c.SendMessage(&req))

	select {
	case <-c.Wake():
	default:
		t.Fatal("expected a wake signal after SendMessage")
	}

	chunks := c.DrainOutbound()
	require.Len(t, chunks, 1)
	require.Len(t, chunks[0], pof.GetConfigRequestLen)
	require.Empty(t, c.DrainOutbound(), "drain must leave the queue empty")
}

func TestConn_SendOrderPreservedUnderBurst(t *testing.T) {
	c, _ := pipeConn(t)

	const total = 1000
	for i := 0; i < total; i++ {
		req := pof.NewGetConfigRequest(uint32(i + 1))
		require.NoError(t, c.SendMessage(&req))
	}

	chunks := c.DrainOutbound()
	require.Len(t, chunks, total)
	for i, chunk := range chunks {
		var hdr pof.Header
		_, err := hdr.ReadFrom(bytes.NewReader(chunk))
		require.NoError(t, err)
		require.Equal(t, uint32(i+1), hdr.XID)
	}
}
