// Package bypass is the static per-type dispatch table that turns a
// decoded inbound message into database mutation and event-bus
// traffic: where pof.Decode maps a wire type byte to a reader,
// Handler.Serve maps it to the side effect that message carries.
package bypass

import (
	"time"

	"github.com/USTC-INFINITELAB/pctrl/conn"
	"github.com/USTC-INFINITELAB/pctrl/eventbus"
	"github.com/USTC-INFINITELAB/pctrl/pmdb"
	"github.com/USTC-INFINITELAB/pctrl/pof"
	"github.com/rs/zerolog"
)

// registrar indexes connections by their negotiated device id.
// ctrl.Listener satisfies this structurally, the same way manager's
// connLookup avoids an import of ctrl.
type registrar interface {
	Register(deviceID uint32, c *conn.Conn)
}

// KeepaliveInterval is the period between ECHO_REQUESTs sent to a
// switch once its connection reaches UP.
const KeepaliveInterval = 30 * time.Second

// entryFunc is one bypass table entry: it reacts to a single decoded
// message type on a connection.
type entryFunc func(h *Handler, c *conn.Conn, hdr pof.Header, msg pof.Message)

// table is the static type-byte registry built once at package load,
// fixed at compile time rather than assembled by callers.
var table = map[pof.Type]entryFunc{
	pof.TypeHello:          func(h *Handler, c *conn.Conn, hdr pof.Header, _ pof.Message) { h.onHello(c, hdr) },
	pof.TypeEchoRequest:    func(h *Handler, c *conn.Conn, _ pof.Header, msg pof.Message) { h.onEchoRequest(c, msg) },
	pof.TypeEchoReply:      func(h *Handler, c *conn.Conn, hdr pof.Header, _ pof.Message) { h.onEchoReply(c, hdr) },
	pof.TypeFeaturesReply:  func(h *Handler, c *conn.Conn, _ pof.Header, msg pof.Message) { h.onFeaturesReply(c, msg) },
	pof.TypeGetConfigReply: func(h *Handler, c *conn.Conn, _ pof.Header, msg pof.Message) { h.onGetConfigReply(c, msg) },
	pof.TypePortStatus:     func(h *Handler, c *conn.Conn, _ pof.Header, msg pof.Message) { h.onPortStatus(c, msg) },
	pof.TypeResourceReport: func(h *Handler, c *conn.Conn, _ pof.Header, msg pof.Message) { h.onResourceReport(c, msg) },
	pof.TypePacketIn:       func(h *Handler, c *conn.Conn, _ pof.Header, msg pof.Message) { h.onPacketIn(c, msg) },
	pof.TypeFlowRemoved:    func(h *Handler, c *conn.Conn, _ pof.Header, msg pof.Message) { h.onFlowRemoved(c, msg) },
	pof.TypeError:          func(h *Handler, c *conn.Conn, _ pof.Header, msg pof.Message) { h.onError(c, msg) },
	pof.TypeCounterReply:   func(h *Handler, c *conn.Conn, _ pof.Header, msg pof.Message) { h.onCounterReply(c, msg) },
	pof.TypeBarrierReply:   func(h *Handler, c *conn.Conn, hdr pof.Header, _ pof.Message) { h.onBarrierReply(c, hdr) },
}

// Handler implements ctrl.Handler: it is the only place inbound POF
// messages become pmdb mutations and eventbus.Event occurrences.
type Handler struct {
	DB  *pmdb.Database
	Reg registrar
	Log zerolog.Logger
}

// New returns a Handler wired to db and reg.
func New(db *pmdb.Database, reg registrar, log zerolog.Logger) *Handler {
	return &Handler{DB: db, Reg: reg, Log: log.With().Str("component", "bypass").Logger()}
}

// Serve implements ctrl.Handler, looking hdr.Type up in table the way
// messageMap looks the same byte up one layer down. A type with no
// entry (e.g. PACKET_OUT or FLOW_MOD, which only ever flow
// controller-to-switch) is surfaced as a Raw event instead of dropped
// silently.
func (h *Handler) Serve(c *conn.Conn, hdr pof.Header, msg pof.Message) {
	if fn, ok := table[hdr.Type]; ok {
		fn(h, c, hdr, msg)
		return
	}
	c.Scope.Raise(&eventbus.Event{Type: eventbus.Raw, DeviceID: c.DeviceID(), Value: msg})
}

// onHello answers a HELLO with a FEATURES_REQUEST, the way a TCP
// accept answers with a SYN-ACK. It does not change the connection's
// state: the connection stays NEW until InstallFeatures moves it to
// WAIT_PORTS, and WAIT_FEATURES is never entered.
func (h *Handler) onHello(c *conn.Conn, hdr pof.Header) {
	req := pof.NewFeaturesRequest(c.NextXID())
	if err := c.SendMessage(&req); err != nil {
		c.Log().Warn().Err(err).Msg("bypass: failed to send features_request")
		return
	}
	c.Log().Debug().Uint32("xid", hdr.XID).Msg("bypass: hello received, features_request sent")
}

// onEchoRequest returns the payload unchanged as an ECHO_REPLY.
func (h *Handler) onEchoRequest(c *conn.Conn, msg pof.Message) {
	echo, ok := msg.(*pof.Echo)
	if !ok {
		return
	}
	reply := echo.Reply()
	if err := c.SendMessage(&reply); err != nil {
		c.Log().Warn().Err(err).Msg("bypass: failed to send echo_reply")
	}
}

// onEchoReply completes the round trip an earlier keepalive started,
// so pending.xid bookkeeping doesn't grow without bound.
func (h *Handler) onEchoReply(c *conn.Conn, hdr pof.Header) {
	if rtt, ok := c.CompleteXID(hdr.XID); ok {
		c.Log().Debug().Dur("rtt", rtt).Msg("bypass: echo_reply")
	}
}

// onFeaturesReply installs the switch identity, seeds its database
// state, requests its miss-handling config, and handles the zero-port
// edge case where WAIT_PORTS would otherwise never complete.
func (h *Handler) onFeaturesReply(c *conn.Conn, msg pof.Message) {
	f, ok := msg.(*pof.FeaturesReply)
	if !ok {
		return
	}
	c.InstallFeatures(*f)
	h.DB.AddSwitch(f.DeviceID)

	c.Scope.Raise(&eventbus.Event{Type: eventbus.FeaturesReceived, DeviceID: f.DeviceID, Value: *f})

	req := pof.NewGetConfigRequest(c.NextXID())
	if err := c.SendMessage(&req); err != nil {
		c.Log().Warn().Err(err).Msg("bypass: failed to send get_config_request")
	}

	if f.PortNum == 0 {
		c.MarkUp()
		h.completeHandshake(c, f.DeviceID)
	}
}

// onGetConfigReply just surfaces the switch's current configuration
// to anything listening.
func (h *Handler) onGetConfigReply(c *conn.Conn, msg pof.Message) {
	cfg, ok := msg.(*pof.GetConfigReply)
	if !ok {
		return
	}
	c.Scope.Raise(&eventbus.Event{Type: eventbus.GetConfigReply, DeviceID: c.DeviceID(), Value: *cfg})
}

// onPortStatus caches the reported port, counts it toward WAIT_PORTS
// completion, and raises PortStatus for every caller watching port
// churn on an already-UP switch.
func (h *Handler) onPortStatus(c *conn.Conn, msg pof.Message) {
	p, ok := msg.(*pof.PortStatus)
	if !ok {
		return
	}
	deviceID := c.DeviceID()
	if sw, ok := h.DB.Switch(deviceID); ok {
		if p.Reason == pof.PortReasonDelete {
			sw.DeletePort(p.Port.PortID)
		} else {
			sw.PutPort(p.Port)
		}
	}

	c.Scope.Raise(&eventbus.Event{Type: eventbus.PortStatus, DeviceID: deviceID, Value: *p})

	if c.CountPortStatus() {
		h.completeHandshake(c, deviceID)
	}
}

// completeHandshake registers the connection under its device id and
// raises ConnectionUp exactly once, whether WAIT_PORTS counted down to
// zero or the zero-port shortcut fired.
func (h *Handler) completeHandshake(c *conn.Conn, deviceID uint32) {
	h.Reg.Register(deviceID, c)
	c.Scope.Raise(&eventbus.Event{Type: eventbus.ConnectionUp, DeviceID: deviceID})
	go h.keepalive(c, deviceID)
}

// keepalive periodically sends ECHO_REQUEST while c stays UP, keeping
// the link alive between control-plane bursts. It exits on the
// first send failure or once the connection leaves UP, so it never
// outlives the connection it watches.
func (h *Handler) keepalive(c *conn.Conn, deviceID uint32) {
	ticker := time.NewTicker(KeepaliveInterval)
	defer ticker.Stop()
	for range ticker.C {
		if c.State() != conn.StateUp {
			return
		}
		req := pof.NewEchoRequest(c.NextXID(), nil)
		if err := c.SendMessage(&req); err != nil {
			c.Log().Debug().Err(err).Uint32("device_id", deviceID).Msg("bypass: keepalive stopped")
			return
		}
	}
}

// onResourceReport installs the switch's table/counter/meter/group
// capacity, which computes the per-table-type global-id bases
// AddFlowTable depends on.
func (h *Handler) onResourceReport(c *conn.Conn, msg pof.Message) {
	rr, ok := msg.(*pof.ResourceReport)
	if !ok {
		return
	}
	deviceID := c.DeviceID()
	if sw, ok := h.DB.Switch(deviceID); ok {
		sw.InstallResourceReport(*rr)
	}
	c.Scope.Raise(&eventbus.Event{Type: eventbus.ResourceReport, DeviceID: deviceID, Value: *rr})
}

// onPacketIn raises PacketIn for the control-plane code that actually
// decides what to do with a missed packet; this package only plumbs
// it through.
func (h *Handler) onPacketIn(c *conn.Conn, msg pof.Message) {
	p, ok := msg.(*pof.PacketIn)
	if !ok {
		return
	}
	c.Scope.Raise(&eventbus.Event{Type: eventbus.PacketIn, DeviceID: c.DeviceID(), Value: *p})
}

// onFlowRemoved raises FlowRemoved and leaves the database untouched,
// so an entry the switch removed on its own stays recorded there.
func (h *Handler) onFlowRemoved(c *conn.Conn, msg pof.Message) {
	f, ok := msg.(*pof.FlowRemoved)
	if !ok {
		return
	}
	c.Scope.Raise(&eventbus.Event{Type: eventbus.FlowRemoved, DeviceID: c.DeviceID(), Value: *f})
}

// onError logs and raises ErrorIn describing the error.
func (h *Handler) onError(c *conn.Conn, msg pof.Message) {
	e, ok := msg.(*pof.ErrorMsg)
	if !ok {
		return
	}
	c.Log().Warn().Str("describe", e.Describe()).Uint32("err_type", e.ErrType).Uint32("err_code", e.ErrCode).Msg("bypass: error_in")
	c.Scope.Raise(&eventbus.Event{Type: eventbus.ErrorIn, DeviceID: c.DeviceID(), Value: *e})
}

// onCounterReply caches the reported value and raises CounterReply so
// a manager.QueryCounterValue caller polling the bus sees it.
func (h *Handler) onCounterReply(c *conn.Conn, msg pof.Message) {
	cr, ok := msg.(*pof.CounterReply)
	if !ok {
		return
	}
	deviceID := c.DeviceID()
	if sw, ok := h.DB.Switch(deviceID); ok {
		sw.SetCounterValue(cr.CounterID, *cr)
	}
	c.Scope.Raise(&eventbus.Event{Type: eventbus.CounterReply, DeviceID: deviceID, Value: *cr})
}

// onBarrierReply raises BarrierIn so a caller waiting for a prior
// batch of mutations to settle at the switch can unblock.
func (h *Handler) onBarrierReply(c *conn.Conn, hdr pof.Header) {
	c.Scope.Raise(&eventbus.Event{Type: eventbus.BarrierIn, DeviceID: c.DeviceID(), Value: hdr})
}
