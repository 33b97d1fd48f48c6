package pof

import (
	"io"

	"github.com/USTC-INFINITELAB/pctrl/internal/wire"
)

// PhyPortNameLen is the fixed width of the zero-padded port name
// buffer on the wire.
const PhyPortNameLen = 64

// PhyPortLen is the fixed wire size of a PhyPort record.
const PhyPortLen = 120

// PhyPort describes one physical port of a switch: identity, a
// human-readable name, and the usual config/state/feature bitmasks.
type PhyPort struct {
	PortID      uint32
	DeviceID    uint32
	HWAddr      [6]byte
	Name        string
	Config      uint32
	State       uint32
	Curr        uint32
	Advertised  uint32
	Supported   uint32
	Peer        uint32
	CurrSpeed   uint32
	MaxSpeed    uint32
	OFEnable    uint8
}

// WriteTo implements io.WriterTo.
func (p PhyPort) WriteTo(w io.Writer) (int64, error) {
	name := make([]byte, PhyPortNameLen)
	copy(name, p.Name)

	return wire.WriteTo(w,
		p.PortID, p.DeviceID, p.HWAddr, defaultPad2, name,
		p.Config, p.State, p.Curr, p.Advertised, p.Supported, p.Peer,
		p.CurrSpeed, p.MaxSpeed, p.OFEnable, zeros(7))
}

// ReadFrom implements io.ReaderFrom.
func (p *PhyPort) ReadFrom(r io.Reader) (int64, error) {
	name := make([]byte, PhyPortNameLen)
	var pad2 [2]byte
	var tail [7]byte

	n, err := wire.ReadFrom(r,
		&p.PortID, &p.DeviceID, &p.HWAddr, &pad2, name,
		&p.Config, &p.State, &p.Curr, &p.Advertised, &p.Supported, &p.Peer,
		&p.CurrSpeed, &p.MaxSpeed, &p.OFEnable, &tail)

	p.Name = trimZeros(name)
	return n, err
}

func trimZeros(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
