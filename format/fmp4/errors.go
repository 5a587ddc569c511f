package fmp4

import "errors"

var (
	ErrInvalidDuration        = errors.New("fmp4: sample duration must be positive and fit in 32 bits")
	ErrFragmentNotInitialized = errors.New("fmp4: fragment not initialized")
	ErrFragmentFinalized      = errors.New("fmp4: fragment already finalized")
	ErrFragmentNotFinalized   = errors.New("fmp4: fragment not finalized")
	ErrSampleToGroupsExist    = errors.New("fmp4: sample to group entries already present")
	ErrInvalidCTSOffset       = errors.New("fmp4: composition offset out of range")
	ErrSampleTooLarge         = errors.New("fmp4: sample too large")
	ErrReferenceOverflow      = errors.New("fmp4: segment reference field out of range")

	ErrNoStreams     = errors.New("fmp4: segmenter needs at least one stream")
	ErrInvalidTrack  = errors.New("fmp4: no such track")
	ErrEmptySegment  = errors.New("fmp4: segment has no fragments")
	ErrEmptyFragment = errors.New("fmp4: fragment has no samples")
)
