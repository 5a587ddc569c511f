package cenc

import (
	"errors"
	"fmt"
	"strings"

	"github.com/deepch/vdkpack/format/fmp4/fmp4io"
	"github.com/google/uuid"
)

var ErrInvalidEntry = errors.New("cenc: invalid sample encryption entry")

// SeigEntry is a CencSampleEncryptionInformationGroupEntry (ISO/IEC 23001-7 6).
type SeigEntry struct {
	IsProtected     bool
	PerSampleIVSize uint8
	KeyID           uuid.UUID
	CryptByteBlock  uint8
	SkipByteBlock   uint8
	ConstantIV      []byte
}

func (e SeigEntry) hasConstantIV() bool {
	return e.IsProtected && e.PerSampleIVSize == 0
}

func (e SeigEntry) Validate() error {
	switch e.PerSampleIVSize {
	case 0, 8, 16:
	default:
		return fmt.Errorf("%w: per-sample iv size %d", ErrInvalidEntry, e.PerSampleIVSize)
	}
	if e.CryptByteBlock > 0xf || e.SkipByteBlock > 0xf {
		return fmt.Errorf("%w: pattern %d:%d", ErrInvalidEntry, e.CryptByteBlock, e.SkipByteBlock)
	}
	if e.hasConstantIV() && len(e.ConstantIV) != 8 && len(e.ConstantIV) != 16 {
		return fmt.Errorf("%w: constant iv of %d bytes", ErrInvalidEntry, len(e.ConstantIV))
	}
	return nil
}

func (e SeigEntry) Len() int {
	n := 1 + 1 + 1 + 1 + 16
	if e.hasConstantIV() {
		n += 1 + len(e.ConstantIV)
	}
	return n
}

func (e SeigEntry) Marshal(b []byte) (n int) {
	b[0] = 0
	b[1] = e.CryptByteBlock<<4 | e.SkipByteBlock&0xf
	if e.IsProtected {
		b[2] = 1
	} else {
		b[2] = 0
	}
	b[3] = e.PerSampleIVSize
	n = 4
	n += copy(b[n:], e.KeyID[:])
	if e.hasConstantIV() {
		b[n] = uint8(len(e.ConstantIV))
		n++
		n += copy(b[n:], e.ConstantIV)
	}
	return
}

// NewSampleGroupDescription builds the fragment level 'seig' description that an
// encryptor attaches to a fragment before it is finalized.
func NewSampleGroupDescription(entries ...SeigEntry) (*fmp4io.SampleGroupDescription, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: no entries", ErrInvalidEntry)
	}
	sgpd := &fmp4io.SampleGroupDescription{GroupingType: fmp4io.GroupingSeig}
	for _, entry := range entries {
		if err := entry.Validate(); err != nil {
			return nil, err
		}
		sgpd.Entries = append(sgpd.Entries, entry)
	}
	return sgpd, nil
}

// ParseKeyID accepts a key id as 32 hex digits or in dashed UUID form.
func ParseKeyID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return uuid.Nil, fmt.Errorf("cenc: key id %q: %w", s, err)
	}
	return id, nil
}
