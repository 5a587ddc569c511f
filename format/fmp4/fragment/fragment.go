// Package fragment holds the serialized output of a media segmenter.
package fragment

import (
	"context"
	"time"

	"github.com/deepch/vdkpack/av"
	"github.com/deepch/vdkpack/format/fmp4/fmp4io"
)

// Fragment is one marshalled moof+mdat pair.
type Fragment struct {
	Bytes       []byte
	Length      int
	Independent bool
	Duration    time.Duration
	Reference   fmp4io.SegmentReference
}

// Segment is a styp+sidx header followed by its fragments.
type Segment struct {
	Bytes     []byte
	Fragments int
	Duration  time.Duration
}

type Fragmenter interface {
	AddSample(ctx context.Context, idx int, sample av.Sample) error
	FinalizeFragment(ctx context.Context) (Fragment, error)
	FinalizeSegment() (Segment, error)
	TimeScale() uint32
}
