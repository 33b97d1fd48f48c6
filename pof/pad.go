package pof

// Fixed-size zero arrays used to pad records out to their declared
// length. POF pads every variable-cardinality list to its maximum slot
// rather than to an 8-byte alignment boundary, so padding widths here
// are dictated by the record layouts in this package, not by a uniform
// rule.
type (
	pad1 [1]uint8
	pad2 [2]uint8
	pad3 [3]uint8
	pad4 [4]uint8
	pad5 [5]uint8
	pad6 [6]uint8
	pad7 [7]uint8
	pad8 [8]uint8
)

var (
	defaultPad1 pad1
	defaultPad2 pad2
	defaultPad3 pad3
	defaultPad4 pad4
	defaultPad5 pad5
	defaultPad6 pad6
	defaultPad7 pad7
	defaultPad8 pad8
)

// zeros returns n zero bytes, used for padding of computed width
// (variable-cardinality action/instruction/match lists).
func zeros(n int) []byte {
	if n <= 0 {
		return nil
	}
	return make([]byte, n)
}
