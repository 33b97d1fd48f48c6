package pof

import (
	"bytes"
	"fmt"
	"io"

	"github.com/USTC-INFINITELAB/pctrl/internal/wire"
)

// InstructionType identifies the kind of an Instruction.
type InstructionType uint16

// The instruction catalogue. WriteActions and ClearActions are
// reserved with no body; until the dialect pins semantics for them
// they are
// rejected on emission until their semantics for this dialect are
// clarified.
const (
	InstructionTypeGotoTable InstructionType = 1 + iota
	InstructionTypeWriteMetadata
	InstructionTypeWriteActions
	InstructionTypeApplyActions
	InstructionTypeClearActions
	InstructionTypeMeter
	InstructionTypeWriteMetadataFromPacket
	InstructionTypeGotoDirectTable
	InstructionTypeConditionalJmp
	InstructionTypeCalculateField
)

var instructionTypeText = map[InstructionType]string{
	InstructionTypeGotoTable:               "GOTO_TABLE",
	InstructionTypeWriteMetadata:           "WRITE_METADATA",
	InstructionTypeWriteActions:            "WRITE_ACTIONS",
	InstructionTypeApplyActions:            "APPLY_ACTIONS",
	InstructionTypeClearActions:            "CLEAR_ACTIONS",
	InstructionTypeMeter:                   "METER",
	InstructionTypeWriteMetadataFromPacket: "WRITE_METADATA_FROM_PACKET",
	InstructionTypeGotoDirectTable:         "GOTO_DIRECT_TABLE",
	InstructionTypeConditionalJmp:          "CONDITIONAL_JMP",
	InstructionTypeCalculateField:          "CALCULATE_FIELD",
}

func (t InstructionType) String() string {
	if s, ok := instructionTypeText[t]; ok {
		return s
	}
	return fmt.Sprintf("InstructionType(%d)", uint16(t))
}

// Reserved reports whether t is one of the instruction types this
// dialect defines no body for; emitting them is refused until
// semantics are clarified.
func (t InstructionType) Reserved() bool {
	return t == InstructionTypeWriteActions || t == InstructionTypeClearActions
}

// Header layout: 2-byte type + 2-byte length + 4-byte pad.
const instructionHeaderLen = 8

// InstructionSlotLen is the fixed size every instruction occupies
// inside a FlowEntry's instruction list, regardless of its actual
// encoded length.
const InstructionSlotLen = 304

// instructionHeader is the common prefix of every Instruction.
type instructionHeader struct {
	Type InstructionType
	Len  uint16
}

func (h instructionHeader) WriteTo(w io.Writer) (int64, error) {
	return wire.WriteTo(w, h.Type, h.Len, zeros(4))
}

func (h *instructionHeader) ReadFrom(r io.Reader) (int64, error) {
	var pad [4]byte
	return wire.ReadFrom(r, &h.Type, &h.Len, &pad)
}

// Instruction is implemented by every concrete instruction record.
type Instruction interface {
	wire.ReadWriter
	Type() InstructionType
}

func writeInstruction(w io.Writer, t InstructionType, body []byte) (int64, error) {
	if t.Reserved() {
		return 0, fmt.Errorf("pof: instruction %s has no defined body for this dialect", t)
	}
	header := instructionHeader{t, uint16(instructionHeaderLen + len(body))}
	return wire.WriteTo(w, header, body)
}

var instructionMap = map[InstructionType]wire.ReaderMaker{
	InstructionTypeGotoTable:               wire.ReaderMakerOf(InstructionGotoTable{}),
	InstructionTypeWriteMetadata:           wire.ReaderMakerOf(InstructionWriteMetadata{}),
	InstructionTypeApplyActions:            wire.ReaderMakerOf(InstructionApplyActions{}),
	InstructionTypeMeter:                   wire.ReaderMakerOf(InstructionMeter{}),
	InstructionTypeWriteMetadataFromPacket: wire.ReaderMakerOf(InstructionWriteMetadataFromPacket{}),
	InstructionTypeGotoDirectTable:         wire.ReaderMakerOf(InstructionGotoDirectTable{}),
	InstructionTypeConditionalJmp:          wire.ReaderMakerOf(InstructionConditionalJmp{}),
	InstructionTypeCalculateField:          wire.ReaderMakerOf(InstructionCalculateField{}),
}

func readInstructionBody(r io.Reader, fn func(body io.Reader) error) (int64, error) {
	var h instructionHeader
	n, err := h.ReadFrom(r)
	if err != nil {
		return n, err
	}
	if h.Len < instructionHeaderLen {
		return n, errTruncatedRecord
	}
	bodyLen := int64(h.Len) - instructionHeaderLen
	lr := io.LimitReader(r, bodyLen)
	if err := fn(lr); err != nil {
		return n, err
	}
	return n + bodyLen, nil
}

// InstructionGotoTable redirects the pipeline to the next table,
// describing which fields to extract (packet_offset-relative) before
// the jump.
type InstructionGotoTable struct {
	NextTableID   uint8
	PacketOffset  uint16
	Fields        [MaxMatchFieldNum]Field
}

func (i *InstructionGotoTable) Type() InstructionType { return InstructionTypeGotoTable }

func (i *InstructionGotoTable) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	matchFieldNum := uint8(0)
	for _, f := range i.Fields {
		if f.LengthInBits != 0 {
			matchFieldNum++
		}
	}
	if _, err := wire.WriteTo(&buf, i.NextTableID, matchFieldNum, i.PacketOffset, zeros(4)); err != nil {
		return 0, err
	}
	for _, f := range i.Fields {
		if _, err := f.WriteTo(&buf); err != nil {
			return 0, err
		}
	}
	return writeInstruction(w, i.Type(), buf.Bytes())
}

func (i *InstructionGotoTable) ReadFrom(r io.Reader) (int64, error) {
	return readInstructionBody(r, func(body io.Reader) error {
		var matchFieldNum uint8
		var pad [4]byte
		if _, err := wire.ReadFrom(body, &i.NextTableID, &matchFieldNum, &i.PacketOffset, &pad); err != nil {
			return err
		}
		for n := range i.Fields {
			if _, err := i.Fields[n].ReadFrom(body); err != nil {
				return err
			}
		}
		return nil
	})
}

// InstructionWriteMetadata overwrites WriteLength bytes of the
// metadata buffer at MetadataOffset with Value.
type InstructionWriteMetadata struct {
	MetadataOffset uint16
	WriteLength    uint16
	Value          [ValueLen]byte
}

func (i *InstructionWriteMetadata) Type() InstructionType { return InstructionTypeWriteMetadata }

func (i *InstructionWriteMetadata) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	if _, err := wire.WriteTo(&buf, i.MetadataOffset, i.WriteLength, i.Value); err != nil {
		return 0, err
	}
	return writeInstruction(w, i.Type(), buf.Bytes())
}

func (i *InstructionWriteMetadata) ReadFrom(r io.Reader) (int64, error) {
	return readInstructionBody(r, func(body io.Reader) error {
		_, err := wire.ReadFrom(body, &i.MetadataOffset, &i.WriteLength, &i.Value)
		return err
	})
}

// InstructionApplyActions applies Actions to the packet immediately,
// in list order.
type InstructionApplyActions struct {
	Actions ActionList
}

func (i *InstructionApplyActions) Type() InstructionType { return InstructionTypeApplyActions }

func (i *InstructionApplyActions) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	if _, err := wire.WriteTo(&buf, uint8(len(i.Actions)), zeros(7)); err != nil {
		return 0, err
	}
	if _, err := i.Actions.WriteTo(&buf); err != nil {
		return 0, err
	}
	return writeInstruction(w, i.Type(), buf.Bytes())
}

func (i *InstructionApplyActions) ReadFrom(r io.Reader) (int64, error) {
	return readInstructionBody(r, func(body io.Reader) error {
		var actionNum uint8
		var pad [7]byte
		if _, err := wire.ReadFrom(body, &actionNum, &pad); err != nil {
			return err
		}
		if _, err := i.Actions.ReadFrom(body); err != nil {
			return err
		}
		i.Actions.Truncate(int(actionNum))
		return nil
	})
}

// Truncate keeps only the first n actions, discarding decoded
// zero-padding slots.
func (l *ActionList) Truncate(n int) {
	if n < 0 {
		n = 0
	}
	if n > len(*l) {
		n = len(*l)
	}
	*l = (*l)[:n]
}

// InstructionMeter applies a rate limiter to the packet.
type InstructionMeter struct {
	MeterID uint32
}

func (i *InstructionMeter) Type() InstructionType { return InstructionTypeMeter }

func (i *InstructionMeter) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	if _, err := wire.WriteTo(&buf, i.MeterID); err != nil {
		return 0, err
	}
	return writeInstruction(w, i.Type(), buf.Bytes())
}

func (i *InstructionMeter) ReadFrom(r io.Reader) (int64, error) {
	return readInstructionBody(r, func(body io.Reader) error {
		_, err := wire.ReadFrom(body, &i.MeterID)
		return err
	})
}

// InstructionWriteMetadataFromPacket copies WriteLength bytes from the
// packet at PacketOffset into the metadata buffer at MetadataOffset.
type InstructionWriteMetadataFromPacket struct {
	MetadataOffset uint16
	PacketOffset   uint16
	WriteLength    uint16
}

func (i *InstructionWriteMetadataFromPacket) Type() InstructionType {
	return InstructionTypeWriteMetadataFromPacket
}

func (i *InstructionWriteMetadataFromPacket) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	if _, err := wire.WriteTo(&buf, i.MetadataOffset, i.PacketOffset, i.WriteLength); err != nil {
		return 0, err
	}
	return writeInstruction(w, i.Type(), buf.Bytes())
}

func (i *InstructionWriteMetadataFromPacket) ReadFrom(r io.Reader) (int64, error) {
	return readInstructionBody(r, func(body io.Reader) error {
		_, err := wire.ReadFrom(body, &i.MetadataOffset, &i.PacketOffset, &i.WriteLength)
		return err
	})
}

// InstructionGotoDirectTable jumps straight to an entry index in the
// next table, either literal or read from the packet via Field.
type InstructionGotoDirectTable struct {
	NextTableID  uint8
	IndexIsField bool
	PacketOffset uint16
	Index        uint32
	Field        Field
}

func (i *InstructionGotoDirectTable) Type() InstructionType { return InstructionTypeGotoDirectTable }

func (i *InstructionGotoDirectTable) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	indexType := uint8(0)
	if i.IndexIsField {
		indexType = 1
	}
	if _, err := wire.WriteTo(&buf, i.NextTableID, indexType, i.PacketOffset, zeros(4)); err != nil {
		return 0, err
	}
	if i.IndexIsField {
		if _, err := i.Field.WriteTo(&buf); err != nil {
			return 0, err
		}
	} else {
		if _, err := wire.WriteTo(&buf, i.Index); err != nil {
			return 0, err
		}
	}
	return writeInstruction(w, i.Type(), buf.Bytes())
}

func (i *InstructionGotoDirectTable) ReadFrom(r io.Reader) (int64, error) {
	return readInstructionBody(r, func(body io.Reader) error {
		var indexType uint8
		var pad [4]byte
		if _, err := wire.ReadFrom(body, &i.NextTableID, &indexType, &i.PacketOffset, &pad); err != nil {
			return err
		}
		i.IndexIsField = indexType == 1
		if i.IndexIsField {
			_, err := i.Field.ReadFrom(body)
			return err
		}
		_, err := wire.ReadFrom(body, &i.Index)
		return err
	})
}

// InstructionConditionalJmp evaluates up to three branch conditions
// over five Field-or-literal operand slots.
type InstructionConditionalJmp struct {
	DirectionFlags [3]uint8
	ValueTypeFlags [3]uint8
	Operands       [5]Field
}

func (i *InstructionConditionalJmp) Type() InstructionType { return InstructionTypeConditionalJmp }

func (i *InstructionConditionalJmp) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	if _, err := wire.WriteTo(&buf, i.DirectionFlags, i.ValueTypeFlags); err != nil {
		return 0, err
	}
	for _, op := range i.Operands {
		if _, err := op.WriteTo(&buf); err != nil {
			return 0, err
		}
	}
	return writeInstruction(w, i.Type(), buf.Bytes())
}

func (i *InstructionConditionalJmp) ReadFrom(r io.Reader) (int64, error) {
	return readInstructionBody(r, func(body io.Reader) error {
		if _, err := wire.ReadFrom(body, &i.DirectionFlags, &i.ValueTypeFlags); err != nil {
			return err
		}
		for n := range i.Operands {
			if _, err := i.Operands[n].ReadFrom(body); err != nil {
				return err
			}
		}
		return nil
	})
}

// InstructionCalculateField computes DestField from a source that is
// either a literal value or another Field.
type InstructionCalculateField struct {
	CalcType     uint16
	SrcIsField   bool
	DestField    Field
	SrcValue     uint32
	SrcField     Field
}

func (i *InstructionCalculateField) Type() InstructionType { return InstructionTypeCalculateField }

func (i *InstructionCalculateField) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	srcValueType := uint8(0)
	if i.SrcIsField {
		srcValueType = 1
	}
	if _, err := wire.WriteTo(&buf, i.CalcType, srcValueType, defaultPad1); err != nil {
		return 0, err
	}
	if _, err := i.DestField.WriteTo(&buf); err != nil {
		return 0, err
	}
	if i.SrcIsField {
		if _, err := i.SrcField.WriteTo(&buf); err != nil {
			return 0, err
		}
	} else {
		if _, err := wire.WriteTo(&buf, i.SrcValue, zeros(4)); err != nil {
			return 0, err
		}
	}
	return writeInstruction(w, i.Type(), buf.Bytes())
}

func (i *InstructionCalculateField) ReadFrom(r io.Reader) (int64, error) {
	return readInstructionBody(r, func(body io.Reader) error {
		var srcValueType uint8
		var pad1b pad1
		if _, err := wire.ReadFrom(body, &i.CalcType, &srcValueType, &pad1b); err != nil {
			return err
		}
		if _, err := i.DestField.ReadFrom(body); err != nil {
			return err
		}
		i.SrcIsField = srcValueType == 1
		if i.SrcIsField {
			_, err := i.SrcField.ReadFrom(body)
			return err
		}
		var pad4b [4]byte
		_, err := wire.ReadFrom(body, &i.SrcValue, &pad4b)
		return err
	})
}

// InstructionList holds up to MaxInstructionNum instructions, each
// padded out to InstructionSlotLen bytes regardless of its own
// encoded size.
const MaxInstructionNum = 6

// InstructionListLen is the fixed size of a FlowEntry's padded
// instruction list.
const InstructionListLen = MaxInstructionNum * InstructionSlotLen // 1824

// InstructionList is a list of instructions serialized one per fixed
// InstructionSlotLen-byte slot.
type InstructionList []Instruction

// WriteTo implements io.WriterTo.
func (l InstructionList) WriteTo(w io.Writer) (int64, error) {
	if len(l) > MaxInstructionNum {
		return 0, errTooManyInstructions
	}
	var n int64
	for _, ins := range l {
		var buf bytes.Buffer
		if _, err := ins.WriteTo(&buf); err != nil {
			return n, err
		}
		if buf.Len() > InstructionSlotLen {
			return n, fmt.Errorf("pof: instruction %s exceeds %d-byte slot", ins.Type(), InstructionSlotLen)
		}
		nn, err := wire.WriteTo(w, buf.Bytes(), zeros(InstructionSlotLen-buf.Len()))
		n += nn
		if err != nil {
			return n, err
		}
	}
	pad := zeros(InstructionSlotLen * (MaxInstructionNum - len(l)))
	if len(pad) == 0 {
		return n, nil
	}
	pn, err := w.Write(pad)
	return n + int64(pn), err
}

// ReadFrom implements io.ReaderFrom. It always consumes exactly
// InstructionListLen bytes; slots whose type is unknown or zero decode
// to nothing and are skipped.
func (l *InstructionList) ReadFrom(r io.Reader) (int64, error) {
	var out InstructionList
	var n int64

	for slot := 0; slot < MaxInstructionNum; slot++ {
		raw := make([]byte, InstructionSlotLen)
		if _, err := io.ReadFull(r, raw); err != nil {
			return n, err
		}
		n += int64(len(raw))

		var h instructionHeader
		if _, err := h.ReadFrom(bytes.NewReader(raw)); err != nil {
			return n, err
		}
		if h.Type == 0 {
			continue
		}

		rm, ok := instructionMap[h.Type]
		if !ok {
			continue
		}
		dec, err := rm.MakeReader()
		if err != nil {
			return n, err
		}
		if _, err := dec.ReadFrom(bytes.NewReader(raw)); err != nil {
			return n, err
		}
		out = append(out, dec.(Instruction))
	}

	*l = out
	return n, nil
}

// Instruction constructors: pure builders assembling the records a
// FlowEntry carries.

// NewInsGotoTable builds a GOTO_TABLE instruction jumping to
// nextTableID, extracting fields at packetOffset.
func NewInsGotoTable(nextTableID uint8, packetOffset uint16, fields...Field) *InstructionGotoTable {
	ins := &InstructionGotoTable{NextTableID: nextTableID, PacketOffset: packetOffset}
	copy(ins.Fields[:], fields)
	return ins
}

// NewInsWriteMetadata builds a WRITE_METADATA instruction.
func NewInsWriteMetadata(metadataOffset, writeLength uint16, value [ValueLen]byte) *InstructionWriteMetadata {
	return &InstructionWriteMetadata{MetadataOffset: metadataOffset, WriteLength: writeLength, Value: value}
}

// NewInsApplyActions builds an APPLY_ACTIONS instruction wrapping
// actions.
func NewInsApplyActions(actions...Action) *InstructionApplyActions {
	return &InstructionApplyActions{Actions: ActionList(actions)}
}

// NewInsMeter builds a METER instruction applying meterID.
func NewInsMeter(meterID uint32) *InstructionMeter {
	return &InstructionMeter{MeterID: meterID}
}

// NewInsWriteMetadataFromPacket builds a
// WRITE_METADATA_FROM_PACKET instruction.
func NewInsWriteMetadataFromPacket(metadataOffset, packetOffset, writeLength uint16) *InstructionWriteMetadataFromPacket {
	return &InstructionWriteMetadataFromPacket{
		MetadataOffset: metadataOffset,
		PacketOffset:   packetOffset,
		WriteLength:    writeLength,
	}
}

// NewInsGotoDirectTable builds a GOTO_DIRECT_TABLE instruction
// jumping straight to a literal entry index.
func NewInsGotoDirectTable(nextTableID uint8, packetOffset uint16, index uint32) *InstructionGotoDirectTable {
	return &InstructionGotoDirectTable{NextTableID: nextTableID, PacketOffset: packetOffset, Index: index}
}

// NewInsGotoDirectTableFromField mirrors NewInsGotoDirectTable but
// reads the entry index from f.
func NewInsGotoDirectTableFromField(nextTableID uint8, packetOffset uint16, f Field) *InstructionGotoDirectTable {
	return &InstructionGotoDirectTable{NextTableID: nextTableID, IndexIsField: true, PacketOffset: packetOffset, Field: f}
}

// NewInsConditionalJmp builds a CONDITIONAL_JMP instruction.
func NewInsConditionalJmp(directionFlags, valueTypeFlags [3]uint8, operands [5]Field) *InstructionConditionalJmp {
	return &InstructionConditionalJmp{DirectionFlags: directionFlags, ValueTypeFlags: valueTypeFlags, Operands: operands}
}

// NewInsCalculateField builds a CALCULATE_FIELD instruction computing
// destField from a literal srcValue.
func NewInsCalculateField(calcType uint16, destField Field, srcValue uint32) *InstructionCalculateField {
	return &InstructionCalculateField{CalcType: calcType, DestField: destField, SrcValue: srcValue}
}

// NewInsCalculateFieldFromField mirrors NewInsCalculateField but reads
// the source operand from srcField.
func NewInsCalculateFieldFromField(calcType uint16, destField, srcField Field) *InstructionCalculateField {
	return &InstructionCalculateField{CalcType: calcType, SrcIsField: true, DestField: destField, SrcField: srcField}
}
