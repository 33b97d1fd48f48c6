package pof

import (
	"io"

	"github.com/USTC-INFINITELAB/pctrl/internal/wire"
)

// FlowEntryCommand distinguishes add/modify/delete on the FLOW_MOD
// wire message: "add_flow_entry/modify_flow_entry/
// delete_flow_entry... distinguished only by the command byte".
type FlowEntryCommand uint8

const (
	FlowEntryAdd FlowEntryCommand = iota
	FlowEntryModify
	FlowEntryDelete
)

// FlowEntryLen is the fixed on-wire size of a FLOW_MOD message,
// header included.
const FlowEntryLen = 2192

// flowEntryBodyLen is FlowEntryLen minus the 8-byte Header.
const flowEntryBodyLen = FlowEntryLen - HeaderLen

// FlowEntry is a single pipeline rule: a match key (MatchXList) and
// the instructions run when it hits.
type FlowEntry struct {
	Command      FlowEntryCommand
	LocalTableID uint8
	TableType    TableType
	CounterID    uint32
	Cookie       uint64
	CookieMask   uint64
	IdleTimeout  uint16
	HardTimeout  uint16
	Priority     uint16
	Index        uint32

	MatchXList   MatchXList
	Instructions InstructionList
}

// WriteTo implements io.WriterTo. The scalar header packs to exactly
// 40 bytes before the 320-byte MatchX slot and the 1824-byte
// instruction slot, giving the declared 2184-byte body.
func (e FlowEntry) WriteTo(w io.Writer) (int64, error) {
	if len(e.MatchXList) > MaxMatchFieldNum {
		return 0, errTooManyMatchFields
	}
	if len(e.Instructions) > MaxInstructionNum {
		return 0, errTooManyInstructions
	}

	n, err := wire.WriteTo(w,
		e.Command, uint8(len(e.MatchXList)), uint8(len(e.Instructions)), e.LocalTableID, e.TableType, zeros(3),
		e.CounterID, e.Cookie, e.CookieMask,
		e.IdleTimeout, e.HardTimeout, e.Priority, e.Index, zeros(2))
	if err != nil {
		return n, err
	}

	mn, err := e.MatchXList.WriteTo(w)
	n += mn
	if err != nil {
		return n, err
	}

	in, err := e.Instructions.WriteTo(w)
	n += in
	return n, err
}

// ReadFrom implements io.ReaderFrom.
func (e *FlowEntry) ReadFrom(r io.Reader) (int64, error) {
	var matchFieldNum, instructionNum uint8
	var headPad [3]byte
	var tailPad [2]byte

	n, err := wire.ReadFrom(r,
		&e.Command, &matchFieldNum, &instructionNum, &e.LocalTableID, &e.TableType, &headPad,
		&e.CounterID, &e.Cookie, &e.CookieMask,
		&e.IdleTimeout, &e.HardTimeout, &e.Priority, &e.Index, &tailPad)
	if err != nil {
		return n, err
	}

	var matchList MatchXList
	mn, err := matchList.ReadFrom(r)
	n += mn
	if err != nil {
		return n, err
	}
	if int(matchFieldNum) <= len(matchList) {
		matchList.Truncate(int(matchFieldNum))
	}
	e.MatchXList = matchList

	var instructions InstructionList
	in, err := instructions.ReadFrom(r)
	n += in
	if err != nil {
		return n, err
	}
	if int(instructionNum) <= len(instructions) {
		instructions = instructions[:instructionNum]
	}
	e.Instructions = instructions

	return n, nil
}

// FlowMod is the FLOW_MOD message: a Header followed by the FlowEntry
// being added, modified or deleted.
type FlowMod struct {
	Header Header
	Entry  FlowEntry
}

// NewFlowMod builds a FLOW_MOD message with the header's type and
// length filled in.
func NewFlowMod(xid uint32, entry FlowEntry) FlowMod {
	return FlowMod{
		Header: Header{Version: Version, Type: TypeFlowMod, Length: FlowEntryLen, XID: xid},
		Entry:  entry,
	}
}

// WriteTo implements io.WriterTo.
func (m FlowMod) WriteTo(w io.Writer) (int64, error) {
	return wire.WriteTo(w, m.Header, m.Entry)
}

// ReadFrom implements io.ReaderFrom.
func (m *FlowMod) ReadFrom(r io.Reader) (int64, error) {
	return wire.ReadFrom(r, &m.Header, &m.Entry)
}
