package pof

import "errors"

// Sentinel errors returned by the codec when a record violates one of
// the fixed-layout invariants.
var (
	errTooManyMatchFields  = errors.New("pof: match field list exceeds MaxMatchFieldNum")
	errTooManyInstructions = errors.New("pof: instruction list exceeds MaxInstructionNum")
	errTooManyActions      = errors.New("pof: action list exceeds MaxActionNumPerInstruction")
	errTruncatedRecord     = errors.New("pof: truncated record")
)

// UnknownTypeError names an action or instruction type byte with no
// registered decoder. The codec does not return it: ActionList and
// InstructionList skip a slot of unknown type without reporting it,
// and Decode reports an unknown message type as
// UnknownMessageTypeError.
type UnknownTypeError struct {
	Kind string
	Type uint16
}

func (e *UnknownTypeError) Error() string {
	return "pof: unknown " + e.Kind + " type"
}
