package types

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ErrorType is a reason a frame was rejected for capture
type ErrorType int

// Rejection reasons, in the order they are reported
const (
	LowLight ErrorType = iota
	TooFar
	OutOfBox
	HorizontalTilt
	VerticalTilt
	YawRotate
	FaceVisibility

	numErrorTypes
)

var errorCodes = [numErrorTypes]string{
	LowLight:       "lowLight",
	TooFar:         "tooFar",
	OutOfBox:       "outOfBox",
	HorizontalTilt: "horizontalTilt",
	VerticalTilt:   "verticalTilt",
	YawRotate:      "yawRotate",
	FaceVisibility: "faceVisibility",
}

// AllErrorTypes returns every rejection reason in reporting order
func AllErrorTypes() []ErrorType {
	out := make([]ErrorType, 0, numErrorTypes)
	for e := ErrorType(0); e < numErrorTypes; e++ {
		out = append(out, e)
	}
	return out
}

// String returns the stable code for the error type
func (e ErrorType) String() string {
	if e < 0 || e >= numErrorTypes {
		return fmt.Sprintf("ErrorType(%d)", int(e))
	}
	return errorCodes[e]
}

// ParseErrorType resolves a code such as "outOfBox" (case-insensitive)
func ParseErrorType(code string) (ErrorType, error) {
	for i, c := range errorCodes {
		if strings.EqualFold(c, code) {
			return ErrorType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown error type: %q", code)
}

// MarshalJSON encodes the error type as its code
func (e ErrorType) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.String())
}

// UnmarshalJSON decodes an error type from its code
func (e *ErrorType) UnmarshalJSON(data []byte) error {
	var code string
	if err := json.Unmarshal(data, &code); err != nil {
		return err
	}
	parsed, err := ParseErrorType(code)
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}

// ErrorSet is an immutable set of rejection reasons.
// Iteration order is the declaration order of ErrorType regardless of insertion order.
type ErrorSet struct {
	bits uint16
}

// NewErrorSet builds a set from the given reasons; duplicates collapse
func NewErrorSet(errs ...ErrorType) ErrorSet {
	var s ErrorSet
	for _, e := range errs {
		if e >= 0 && e < numErrorTypes {
			s.bits |= 1 << uint(e)
		}
	}
	return s
}

// With returns a copy of the set that also contains e
func (s ErrorSet) With(e ErrorType) ErrorSet {
	if e < 0 || e >= numErrorTypes {
		return s
	}
	return ErrorSet{bits: s.bits | 1<<uint(e)}
}

// Union returns a set containing the members of both sets
func (s ErrorSet) Union(o ErrorSet) ErrorSet {
	return ErrorSet{bits: s.bits | o.bits}
}

// Has reports whether e is a member
func (s ErrorSet) Has(e ErrorType) bool {
	if e < 0 || e >= numErrorTypes {
		return false
	}
	return s.bits&(1<<uint(e)) != 0
}

// Len returns the number of members
func (s ErrorSet) Len() int {
	n := 0
	for b := s.bits; b != 0; b &= b - 1 {
		n++
	}
	return n
}

// Empty reports whether the set has no members
func (s ErrorSet) Empty() bool {
	return s.bits == 0
}

// Slice returns the members in reporting order
func (s ErrorSet) Slice() []ErrorType {
	out := make([]ErrorType, 0, s.Len())
	for e := ErrorType(0); e < numErrorTypes; e++ {
		if s.Has(e) {
			out = append(out, e)
		}
	}
	return out
}

// Equal reports whether both sets have the same members
func (s ErrorSet) Equal(o ErrorSet) bool {
	return s.bits == o.bits
}

// String renders the set as a bracketed list of codes
func (s ErrorSet) String() string {
	parts := make([]string, 0, s.Len())
	for _, e := range s.Slice() {
		parts = append(parts, e.String())
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// MarshalJSON encodes the set as an ordered array of codes
func (s ErrorSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Slice())
}

// UnmarshalJSON decodes an array of codes
func (s *ErrorSet) UnmarshalJSON(data []byte) error {
	var list []ErrorType
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*s = NewErrorSet(list...)
	return nil
}
