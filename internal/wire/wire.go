// Package wire provides the low-level marshaling primitives shared by
// every fixed-layout record in the pof package. It knows nothing about
// POF semantics; it only knows how to push Go values through an
// io.Writer/io.Reader pair using network byte order, and how to dispatch
// variable-cardinality lists to a type-specific decoder chosen by a
// leading type tag.
package wire

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
	"reflect"
)

// countingReader tracks how many bytes have been pulled through it, so
// ReadFrom can report an accurate byte count even when some of the
// values it reads implement io.ReaderFrom themselves.
type countingReader struct {
	io.Reader
	read int64
}

func (r *countingReader) Read(b []byte) (int, error) {
	n, err := r.Reader.Read(b)
	r.read += int64(n)
	return n, err
}

// ReadWriter is satisfied by every fixed-layout POF record.
type ReadWriter interface {
	io.ReaderFrom
	io.WriterTo
}

// WriteTo serializes v in order into w. Each element is either an
// io.WriterTo (encoded recursively) or a fixed-width value handed to
// encoding/binary directly. All writes happen into an intermediate
// buffer first so a failure partway through never leaves w holding a
// truncated record.
func WriteTo(w io.Writer, v ...interface{}) (int64, error) {
	var buf bytes.Buffer

	for _, elem := range v {
		var err error
		switch elem := elem.(type) {
		case nil:
			continue
		case io.WriterTo:
			_, err = elem.WriteTo(&buf)
		default:
			err = binary.Write(&buf, binary.BigEndian, elem)
		}
		if err != nil {
			return 0, err
		}
	}

	return buf.WriteTo(w)
}

// ReadFrom deserializes into v in order, mirroring WriteTo.
func ReadFrom(r io.Reader, v ...interface{}) (int64, error) {
	rd := &countingReader{Reader: r}

	for _, elem := range v {
		var err error
		switch elem := elem.(type) {
		case io.ReaderFrom:
			var n int64
			n, err = elem.ReadFrom(rd)
			_ = n
		default:
			err = binary.Read(rd, binary.BigEndian, elem)
		}
		if err != nil {
			return rd.read, err
		}
	}

	return rd.read, nil
}

// ReaderMaker constructs fresh io.ReaderFrom values on demand; the POF
// type-byte registries (actionMap, instructionMap, messageMap, ...) are
// built from these.
type ReaderMaker interface {
	MakeReader() (io.ReaderFrom, error)
}

// ReaderMakerFunc adapts a plain function to ReaderMaker.
type ReaderMakerFunc func() (io.ReaderFrom, error)

// MakeReader implements ReaderMaker.
func (fn ReaderMakerFunc) MakeReader() (io.ReaderFrom, error) { return fn() }

// ReaderMakerOf returns a ReaderMaker that allocates a new zero value of
// the same type as v (v is used only for its type, never its value) and
// returns a pointer to it. The pointer must implement io.ReaderFrom.
func ReaderMakerOf(v interface{}) ReaderMaker {
	t := reflect.TypeOf(v)
	return ReaderMakerFunc(func() (io.ReaderFrom, error) {
		return reflect.New(t).Interface().(io.ReaderFrom), nil
	})
}

// ScanFrom decodes a sequence of tagged records from r. It peeks enough
// bytes to populate the tag value v (typically a type byte or uint16),
// rewinds, asks rm to build the concrete decoder for that tag, and lets
// the decoder consume its own bytes including the tag. It repeats until
// r is exhausted.
func ScanFrom(r io.Reader, v interface{}, rm ReaderMaker) (int64, error) {
	tagLen := int(reflect.TypeOf(v).Elem().Size())

	var n int64
	br := bufio.NewReader(r)

	for {
		peek, err := br.Peek(tagLen)
		if err != nil {
			return n, SkipEOF(err)
		}

		if _, err := ReadFrom(bytes.NewReader(peek), v); err != nil {
			return n, err
		}

		dec, err := rm.MakeReader()
		if err != nil {
			return n, err
		}

		num, err := dec.ReadFrom(br)
		n += num
		if err != nil {
			return n, SkipEOF(err)
		}
	}
}

// SkipEOF turns io.EOF into nil, since ScanFrom's termination condition
// is simply running out of buffered bytes.
func SkipEOF(err error) error {
	if err == io.EOF {
		return nil
	}
	return err
}
