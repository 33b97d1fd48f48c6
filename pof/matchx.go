package pof

import (
	"io"

	"github.com/USTC-INFINITELAB/pctrl/internal/wire"
)

// MatchXLen is the fixed wire size of a MatchX record: an 8-byte Field
// plus a 16-byte value and a 16-byte mask.
const MatchXLen = FieldLen + ValueLen + ValueLen // 40

// MatchX is a Field together with the value and mask a flow entry
// matches it against. Value and Mask are always exactly ValueLen
// bytes; shorter caller-supplied values are zero-padded on the right.
type MatchX struct {
	Field Field
	Value [ValueLen]byte
	Mask  [ValueLen]byte
}

// NewMatchX builds a MatchX from hex-encoded value/mask strings,
// normalising both to the fixed-size wire buffers.
func NewMatchX(f Field, valueHex, maskHex string) (MatchX, error) {
	var m MatchX
	m.Field = f

	v, err := ParseHexValue(valueHex)
	if err != nil {
		return m, err
	}
	mask, err := ParseHexValue(maskHex)
	if err != nil {
		return m, err
	}

	m.Value, m.Mask = v, mask
	return m, nil
}

// WriteTo implements io.WriterTo.
func (m MatchX) WriteTo(w io.Writer) (int64, error) {
	return wire.WriteTo(w, m.Field, m.Value, m.Mask)
}

// ReadFrom implements io.ReaderFrom.
func (m *MatchX) ReadFrom(r io.Reader) (int64, error) {
	return wire.ReadFrom(r, &m.Field, &m.Value, &m.Mask)
}

// MaxMatchFieldNum bounds how many MatchX entries a FlowEntry's
// match_field_list may carry; the slot is always padded out to this
// many slots regardless of how many are actually used, keeping the
// enclosing record's wire size fixed.
const MaxMatchFieldNum = 8

// MatchXListLen is the fixed size of a FlowEntry's padded matchx_list.
const MatchXListLen = MaxMatchFieldNum * MatchXLen // 320

// MatchXList is a list of MatchX records that always serializes to
// exactly MatchXListLen bytes, zero-padding unused tail slots.
type MatchXList []MatchX

// WriteTo implements io.WriterTo.
func (l MatchXList) WriteTo(w io.Writer) (int64, error) {
	if len(l) > MaxMatchFieldNum {
		return 0, errTooManyMatchFields
	}

	n, err := wire.WriteTo(w, sliceArg(l))
	if err != nil {
		return n, err
	}

	pad := zeros((MaxMatchFieldNum - len(l)) * MatchXLen)
	if len(pad) == 0 {
		return n, nil
	}
	pn, err := w.Write(pad)
	return n + int64(pn), err
}

// ReadFrom implements io.ReaderFrom. It always consumes exactly
// MatchXListLen bytes regardless of how many slots are non-zero; count
// is the number of meaningful entries, known from the enclosing
// record's match_field_num and must be set by the caller after the
// fact via Truncate.
func (l *MatchXList) ReadFrom(r io.Reader) (int64, error) {
	buf := make([]MatchX, MaxMatchFieldNum)
	var n int64
	for i := range buf {
		nn, err := buf[i].ReadFrom(r)
		n += nn
		if err != nil {
			return n, err
		}
	}
	*l = buf
	return n, nil
}

// Truncate keeps only the first count entries, discarding the decoded
// zero-padding slots.
func (l *MatchXList) Truncate(count int) {
	if count < 0 {
		count = 0
	}
	if count > len(*l) {
		count = len(*l)
	}
	*l = (*l)[:count]
}

// sliceArg writes each element of a MatchXList in turn; used so the
// wire.WriteTo variadic machinery can treat the whole list as one
// argument implementing io.WriterTo.
type sliceWriter []MatchX

func sliceArg(l MatchXList) io.WriterTo { return sliceWriter(l) }

func (s sliceWriter) WriteTo(w io.Writer) (int64, error) {
	var n int64
	for _, m := range s {
		nn, err := m.WriteTo(w)
		n += nn
		if err != nil {
			return n, err
		}
	}
	return n, nil
}
