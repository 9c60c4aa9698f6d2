package tle

import (
	"errors"
	"fmt"
)

var (
	// ErrFormat matches any *FormatError.
	ErrFormat = errors.New("malformed TLE")
	// ErrChecksum matches any *ChecksumError.
	ErrChecksum = errors.New("TLE checksum mismatch")
)

// FormatError reports a structurally malformed TLE line: wrong length,
// wrong line number prefix, mismatched catalog numbers or an undecodable
// field.
type FormatError struct {
	Line   int // 1 or 2; 0 when the problem spans both lines
	Field  string
	Reason string
}

func (e *FormatError) Error() string {
	switch {
	case e.Line == 0:
		return fmt.Sprintf("malformed TLE: %s", e.Reason)
	case e.Field != "":
		return fmt.Sprintf("malformed TLE line %d: field %s: %s", e.Line, e.Field, e.Reason)
	default:
		return fmt.Sprintf("malformed TLE line %d: %s", e.Line, e.Reason)
	}
}

// Is lets errors.Is(err, ErrFormat) match.
func (e *FormatError) Is(target error) bool { return target == ErrFormat }

// ChecksumError reports a line whose column-69 digit does not match the
// modulo-10 checksum of columns 1-68.
type ChecksumError struct {
	Line     int
	Computed int
	Declared int
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("TLE line %d checksum mismatch: computed %d, line declares %d", e.Line, e.Computed, e.Declared)
}

// Is lets errors.Is(err, ErrChecksum) match.
func (e *ChecksumError) Is(target error) bool { return target == ErrChecksum }
