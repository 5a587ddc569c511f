package h264parser

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNALUTooShort     = errors.New("h264parser: nalu shorter than its header")
	ErrNALUForbiddenBit = errors.New("h264parser: nalu forbidden_zero_bit set")
	ErrNALUUnknownType  = errors.New("h264parser: unrecognized nalu type")
	ErrNALUFamily       = errors.New("h264parser: unknown nalu family")

	ErrSPSTruncated   = errors.New("h264parser: sps truncated")
	ErrSPSInvalid     = errors.New("h264parser: sps field out of range")
	ErrSPSNoFrameSize = errors.New("h264parser: sps has no usable frame size")

	ErrDecconfInvalid = errors.New("h264parser: invalid AVCDecoderConfigurationRecord")
)

// ParseError locates a failure inside a parameter set or configuration record.
// Errors from nested fields are chained, innermost last.
type ParseError struct {
	Debug  string
	Offset int
	prev   *ParseError
	orig   error
}

func (a *ParseError) Error() string {
	s := []string{}
	for p := a; p != nil; p = p.prev {
		s = append(s, fmt.Sprintf("%s:%d", p.Debug, p.Offset))
		if p.prev == nil && p.orig != nil {
			s = append(s, p.orig.Error())
		}
	}
	return "h264parser: parse error: " + strings.Join(s, ",")
}

func (a *ParseError) Unwrap() error {
	p := a
	for p.prev != nil {
		p = p.prev
	}
	return p.orig
}

func parseErr(debug string, offset int, prev error) error {
	_prev, _ := prev.(*ParseError)
	if _prev != nil {
		prev = nil
	}
	return &ParseError{
		Debug:  debug,
		Offset: offset,
		prev:   _prev,
		orig:   prev,
	}
}
