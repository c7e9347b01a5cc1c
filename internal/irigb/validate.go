package irigb

import (
	"errors"
	"fmt"
)

// ReferencePositions are the frame positions that must hold a reference marker.
var ReferencePositions = [...]int{0, 9, 19, 29, 39, 49, 59, 69, 79, 89, 99}

var (
	// ErrFrameLength is returned for frames that do not hold exactly FrameLen pulses.
	ErrFrameLength = errors.New("irigb: frame length")
	// ErrMissingMarker matches any *MarkerError.
	ErrMissingMarker = errors.New("irigb: missing reference marker")
)

// MarkerError reports the first reference position that does not hold a marker.
type MarkerError struct {
	Position int
	Found    PulseClass
}

func (e *MarkerError) Error() string {
	return fmt.Sprintf("irigb: position %d: expected reference marker, found %q", e.Position, e.Found)
}

// Is makes errors.Is(err, ErrMissingMarker) true for marker errors.
func (e *MarkerError) Is(target error) bool {
	return target == ErrMissingMarker
}

// Validate checks the frame structure. All reference positions must hold ClassReference;
// one mismatch fails the frame.
func Validate(f Frame) error {
	if len(f.Pulses) != FrameLen {
		return fmt.Errorf("%w: got %d pulses, want %d", ErrFrameLength, len(f.Pulses), FrameLen)
	}
	for _, pos := range ReferencePositions {
		if c := f.Pulses[pos].Class; c != ClassReference {
			return &MarkerError{Position: pos, Found: c}
		}
	}
	return nil
}

// Valid reports whether Validate accepts the frame.
func Valid(f Frame) bool {
	return Validate(f) == nil
}

// IsReferencePosition reports whether pos is one of ReferencePositions.
func IsReferencePosition(pos int) bool {
	return pos == 0 || (pos%10 == 9 && pos < FrameLen)
}
