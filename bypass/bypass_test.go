package bypass

import (
	"bytes"
	"net"
	"sync"
	"testing"

	"github.com/USTC-INFINITELAB/pctrl/conn"
	"github.com/USTC-INFINITELAB/pctrl/eventbus"
	"github.com/USTC-INFINITELAB/pctrl/pmdb"
	"github.com/USTC-INFINITELAB/pctrl/pof"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// fakeRegistrar stands in for ctrl.Listener's device-id index.
type fakeRegistrar struct {
	mu         sync.Mutex
	registered map[uint32]*conn.Conn
}

func newFakeRegistrar() *fakeRegistrar {
	return &fakeRegistrar{registered: make(map[uint32]*conn.Conn)}
}

func (f *fakeRegistrar) Register(deviceID uint32, c *conn.Conn) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registered[deviceID] = c
}

func (f *fakeRegistrar) has(deviceID uint32) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.registered[deviceID]
	return ok
}

func newTestHandler(t *testing.T) (*Handler, *conn.Conn, *pmdb.Database, *fakeRegistrar) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() { client.Close(); server.Close() })

	bus := eventbus.New(zerolog.Nop())
	c := conn.New(server, bus.NewScope(), zerolog.Nop())
	db := pmdb.New()
	reg := newFakeRegistrar()
	return New(db, reg, zerolog.Nop()), c, db, reg
}

// nextOutbound pops the oldest chunk queued on c's deferred sender,
// failing the test if none is queued.
func nextOutbound(t *testing.T, c *conn.Conn) []byte {
	t.Helper()
	chunks := c.DrainOutbound()
	if len(chunks) == 0 {
		t.Fatal("expected a queued outbound message")
	}
	return chunks[0]
}

func TestHandler_OnHelloSendsFeaturesRequest(t *testing.T) {
	h, c, _, _ := newTestHandler(t)

	hello := pof.NewHello(1)
	h.Serve(c, hello, &hello)

	chunk := nextOutbound(t, c)
	var hdr pof.Header
	_, err := hdr.ReadFrom(bytes.NewReader(chunk))
	require.NoError(t, err)
	require.Equal(t, pof.TypeFeaturesRequest, hdr.Type)
}

func TestHandler_OnEchoRequestReplies(t *testing.T) {
	h, c, _, _ := newTestHandler(t)

	req := pof.NewEchoRequest(9, []byte("ping"))
	h.Serve(c, req.Header, &req)

	chunk := nextOutbound(t, c)
	var echo pof.Echo
	_, err := echo.ReadFrom(bytes.NewReader(chunk))
	require.NoError(t, err)
	require.Equal(t, pof.TypeEchoReply, echo.Header.Type)
	require.Equal(t, []byte("ping"), echo.Data)
}

func TestHandler_OnFeaturesReplyInstallsSwitchAndWaitsForPorts(t *testing.T) {
	h, c, db, reg := newTestHandler(t)

	f := pof.FeaturesReply{Header: pof.Header{Type: pof.TypeFeaturesReply}, DeviceID: 7, PortNum: 2}
	h.Serve(c, f.Header, &f)

	require.Equal(t, conn.StateWaitPorts, c.State())
	_, ok := db.Switch(7)
	require.True(t, ok)
	require.False(t, reg.has(7), "must not register until ports handshake completes")

	// GET_CONFIG_REQUEST queued.
	chunk := nextOutbound(t, c)
	var hdr pof.Header
	_, err := hdr.ReadFrom(bytes.NewReader(chunk))
	require.NoError(t, err)
	require.Equal(t, pof.TypeGetConfigRequest, hdr.Type)
}

func TestHandler_OnFeaturesReplyZeroPortsCompletesImmediately(t *testing.T) {
	h, c, _, reg := newTestHandler(t)

	f := pof.FeaturesReply{Header: pof.Header{Type: pof.TypeFeaturesReply}, DeviceID: 11, PortNum: 0}
	h.Serve(c, f.Header, &f)

	require.Equal(t, conn.StateUp, c.State())
	require.True(t, reg.has(11))
}

func TestHandler_OnPortStatusCompletesHandshake(t *testing.T) {
	h, c, db, reg := newTestHandler(t)

	f := pof.FeaturesReply{Header: pof.Header{Type: pof.TypeFeaturesReply}, DeviceID: 5, PortNum: 1}
	h.Serve(c, f.Header, &f)
	require.False(t, reg.has(5))

	ps := pof.PortStatus{Header: pof.Header{Type: pof.TypePortStatus}, Reason: pof.PortReasonAdd, Port: pof.PhyPort{PortID: 1, Name: "eth0"}}
	h.Serve(c, ps.Header, &ps)

	require.Equal(t, conn.StateUp, c.State())
	require.True(t, reg.has(5))

	sw, ok := db.Switch(5)
	require.True(t, ok)
	port, ok := sw.Port(1)
	require.True(t, ok)
	require.Equal(t, "eth0", port.Name)
}

func TestHandler_OnResourceReportInstallsTableBases(t *testing.T) {
	h, c, db, _ := newTestHandler(t)

	f := pof.FeaturesReply{Header: pof.Header{Type: pof.TypeFeaturesReply}, DeviceID: 3, PortNum: 0}
	h.Serve(c, f.Header, &f)

	rr := pof.ResourceReport{
		Header: pof.Header{Type: pof.TypeResourceReport},
		Tables: [pof.NumTableTypes]pof.TableResource{
			{TableType: pof.TableTypeMM, TotalSize: 4},
		},
	}
	h.Serve(c, rr.Header, &rr)

	sw, ok := db.Switch(3)
	require.True(t, ok)
	base, ok := sw.TableBase(pof.TableTypeMM)
	require.True(t, ok)
	require.Equal(t, uint32(0), base)
}

func TestHandler_UnmappedTypeRaisesRaw(t *testing.T) {
	h, c, _, _ := newTestHandler(t)

	var seen *eventbus.Event
	c.Scope.On(eventbus.Raw, func(ev *eventbus.Event) { seen = ev })

	po := pof.PacketOut{Header: pof.Header{Type: pof.TypePacketOut}}
	h.Serve(c, po.Header, &po)

	require.NotNil(t, seen)
	require.Equal(t, eventbus.Raw, seen.Type)
}
