package pof

import (
	"fmt"
	"io"

	"github.com/USTC-INFINITELAB/pctrl/internal/wire"
)

// TableType enumerates the pipeline lookup strategies a FlowTable can
// implement.
type TableType uint8

const (
	TableTypeMM TableType = iota
	TableTypeLPM
	TableTypeEM
	TableTypeLinear
)

var tableTypeText = map[TableType]string{
	TableTypeMM:     "MM",
	TableTypeLPM:    "LPM",
	TableTypeEM:     "EM",
	TableTypeLinear: "LINEAR",
}

func (t TableType) String() string {
	if s, ok := tableTypeText[t]; ok {
		return s
	}
	return fmt.Sprintf("TableType(%d)", uint8(t))
}

// Valid reports whether t is one of the four declared table types.
func (t TableType) Valid() bool {
	return t <= TableTypeLinear
}

// FlowTableCommand distinguishes add/modify/delete on the same wire
// record, mirroring FlowEntryCommand.
type FlowTableCommand uint8

const (
	FlowTableAdd FlowTableCommand = iota
	FlowTableModify
	FlowTableDelete
)

// TableNameLen is the fixed, zero-padded width of a table name.
const TableNameLen = 64

// FlowTableLen is the fixed wire size of a FlowTable body.
const FlowTableLen = 144

// FirstEntryTableName is the mandatory name of the very first table
// added on any switch.
const FirstEntryTableName = "FirstEntryTable"

// FlowTable is a switch pipeline table: its type, capacity, key width,
// and the ordered fields its key is made of.
type FlowTable struct {
	Command       FlowTableCommand
	LocalTableID  uint8
	TableType     TableType
	KeyLength     uint16
	TableSize     uint32
	Name          string
	MatchFieldList []Field
}

// WriteTo implements io.WriterTo.
func (t FlowTable) WriteTo(w io.Writer) (int64, error) {
	if len(t.MatchFieldList) > MaxMatchFieldNum {
		return 0, errTooManyMatchFields
	}

	name := make([]byte, TableNameLen)
	copy(name, t.Name)

	var n int64
	nn, err := wire.WriteTo(w, t.Command, t.LocalTableID, t.TableType,
		t.KeyLength, t.TableSize, uint8(len(t.MatchFieldList)), zeros(6), name)
	n += nn
	if err != nil {
		return n, err
	}

	for _, f := range t.MatchFieldList {
		fn, err := f.WriteTo(w)
		n += fn
		if err != nil {
			return n, err
		}
	}
	pad := zeros((MaxMatchFieldNum - len(t.MatchFieldList)) * FieldLen)
	pn, err := w.Write(pad)
	return n + int64(pn), err
}

// ReadFrom implements io.ReaderFrom.
func (t *FlowTable) ReadFrom(r io.Reader) (int64, error) {
	var matchFieldNum uint8
	var headPad [6]byte
	name := make([]byte, TableNameLen)

	n, err := wire.ReadFrom(r, &t.Command, &t.LocalTableID, &t.TableType,
		&t.KeyLength, &t.TableSize, &matchFieldNum, &headPad, name)
	if err != nil {
		return n, err
	}
	t.Name = trimZeros(name)

	fields := make([]Field, MaxMatchFieldNum)
	for i := range fields {
		fn, err := fields[i].ReadFrom(r)
		n += fn
		if err != nil {
			return n, err
		}
	}
	if int(matchFieldNum) > MaxMatchFieldNum {
		matchFieldNum = MaxMatchFieldNum
	}
	t.MatchFieldList = fields[:matchFieldNum]
	return n, nil
}

// TableModLen is the fixed on-wire length of a TABLE_MOD message.
const TableModLen = HeaderLen + FlowTableLen // 152

// TableMod is the TABLE_MOD message body: a Header followed by the
// FlowTable being added, modified or deleted.
type TableMod struct {
	Header Header
	Table  FlowTable
}

// NewTableMod builds a TABLE_MOD message with the header's type and
// length filled in.
func NewTableMod(xid uint32, table FlowTable) TableMod {
	return TableMod{
		Header: Header{Version: Version, Type: TypeTableMod, Length: TableModLen, XID: xid},
		Table:  table,
	}
}

// WriteTo implements io.WriterTo.
func (m TableMod) WriteTo(w io.Writer) (int64, error) {
	return wire.WriteTo(w, m.Header, m.Table)
}

// ReadFrom implements io.ReaderFrom.
func (m *TableMod) ReadFrom(r io.Reader) (int64, error) {
	return wire.ReadFrom(r, &m.Header, &m.Table)
}
