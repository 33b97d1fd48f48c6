package pof

import (
	"fmt"
	"io"

	"github.com/USTC-INFINITELAB/pctrl/internal/wire"
)

// FieldLen is the fixed wire size of a Field ("match20").
const FieldLen = 8

// MetadataFieldID is the sentinel field_id that marks a Field as
// referring to controller-side metadata rather than a protocol field.
const MetadataFieldID int16 = -1

// Field is a match descriptor: a named bit-range within some header or
// metadata buffer. Name exists only controller-side; it never appears
// on the wire.
type Field struct {
	Name         string
	FieldID      int16
	OffsetInBits uint16
	LengthInBits uint16
}

// IsMetadata reports whether this Field addresses the metadata buffer
// rather than a protocol header.
func (f Field) IsMetadata() bool {
	return f.FieldID == MetadataFieldID
}

// WriteTo implements io.WriterTo. The wire form is field_id (2 bytes,
// signed), offset_in_bits (2), length_in_bits (2), and a 2-byte pad to
// round the record to 8 bytes; Name never leaves the process.
func (f Field) WriteTo(w io.Writer) (int64, error) {
	return wire.WriteTo(w, f.FieldID, f.OffsetInBits, f.LengthInBits, defaultPad2)
}

// ReadFrom implements io.ReaderFrom.
func (f *Field) ReadFrom(r io.Reader) (int64, error) {
	var pad pad2
	return wire.ReadFrom(r, &f.FieldID, &f.OffsetInBits, &f.LengthInBits, &pad)
}

// String renders a Field for logging.
func (f Field) String() string {
	if f.IsMetadata() {
		return fmt.Sprintf("Field(metadata, off=%d, len=%d)", f.OffsetInBits, f.LengthInBits)
	}
	return fmt.Sprintf("Field(%s, id=%d, off=%d, len=%d)", f.Name, f.FieldID, f.OffsetInBits, f.LengthInBits)
}
