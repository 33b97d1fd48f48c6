// Package codectest supplies the marshal/unmarshal table-test helpers
// used throughout the pof package's tests: give it a ReadWriter and the
// exact bytes it should produce/consume, and it checks both directions.
package codectest

import (
	"bytes"
	"io"
	"testing"
)

// Case pairs a record with the exact wire bytes it should marshal to
// and unmarshal from.
type Case struct {
	RW interface {
		io.ReaderFrom
		io.WriterTo
	}
	Bytes []byte
}

// Run checks that RW.WriteTo produces Bytes exactly, and that a fresh
// decode of Bytes via RW.ReadFrom consumes exactly len(Bytes).
func Run(t *testing.T, tests []Case) {
	t.Helper()

	for _, tc := range tests {
		var buf bytes.Buffer
		n, err := tc.RW.WriteTo(&buf)
		if err != nil {
			t.Fatalf("marshal %T: %s", tc.RW, err)
		}
		if n != int64(len(tc.Bytes)) {
			t.Fatalf("marshal %T: wrote %d bytes, want %d\ngot:  %x\nwant: %x",
				tc.RW, n, len(tc.Bytes), buf.Bytes(), tc.Bytes)
		}
		if !bytes.Equal(buf.Bytes(), tc.Bytes) {
			t.Fatalf("marshal %T:\ngot:  %x\nwant: %x", tc.RW, buf.Bytes(), tc.Bytes)
		}

		n, err = tc.RW.ReadFrom(bytes.NewReader(tc.Bytes))
		if err != nil {
			t.Fatalf("unmarshal %T: %s", tc.RW, err)
		}
		if n != int64(len(tc.Bytes)) {
			t.Fatalf("unmarshal %T: read %d bytes, want %d", tc.RW, n, len(tc.Bytes))
		}
	}
}
