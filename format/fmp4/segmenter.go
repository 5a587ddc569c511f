package fmp4

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/deepch/vdkpack/av"
	"github.com/deepch/vdkpack/codec/h264parser"
	"github.com/deepch/vdkpack/format/fmp4/fmp4io"
	"github.com/deepch/vdkpack/format/fmp4/fragment"
	"github.com/deepch/vdkpack/format/fmp4/timescale"
	"github.com/deepch/vdkpack/logger"
)

var _ fragment.Fragmenter = (*Segmenter)(nil)

// Segmenter writes the tracks of a stream as moof+mdat fragments and groups them
// into indexed media segments.
type Segmenter struct {
	tracks []*Fragmenter
	ridx   int
	seqNum uint32

	refs      []fmp4io.SegmentReference
	fragments [][]byte
	size      int
}

// NewSegmenter creates one fragmenter per stream, with track IDs assigned in order
// from 1. The first video stream is the reference track of the segment index.
func NewSegmenter(streams []av.StreamInfo, cfg FragmenterConfig) (*Segmenter, error) {
	if len(streams) == 0 {
		return nil, ErrNoStreams
	}
	s := &Segmenter{
		tracks: make([]*Fragmenter, len(streams)),
		ridx:   -1,
	}
	for i, info := range streams {
		if info.TimeScale == 0 {
			return nil, fmt.Errorf("fmp4: track %d: zero timescale", i)
		}
		traf := &fmp4io.TrackFrag{
			Header: &fmp4io.TrackFragHeader{TrackID: uint32(i + 1)},
		}
		s.tracks[i] = NewFragmenter(info, traf, cfg)
		if info.Type.IsVideo() && s.ridx < 0 {
			s.ridx = i
		}
	}
	if s.ridx < 0 {
		s.ridx = 0
	}
	return s, nil
}

func (s *Segmenter) track(idx int) (*Fragmenter, error) {
	if idx < 0 || idx >= len(s.tracks) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidTrack, idx)
	}
	return s.tracks[idx], nil
}

// Fragmenter gives access to the fragmenter of track idx.
func (s *Segmenter) Fragmenter(idx int) (*Fragmenter, error) {
	return s.track(idx)
}

// TimeScale of the reference track
func (s *Segmenter) TimeScale() uint32 {
	return s.tracks[s.ridx].info.TimeScale
}

// AddSample queues a sample of track idx for the next fragment. H.264 access units
// in Annex B form are rewritten with length prefixes.
func (s *Segmenter) AddSample(ctx context.Context, idx int, sample av.Sample) error {
	f, err := s.track(idx)
	if err != nil {
		return err
	}
	info := f.info
	if (info.Codec == av.AVC1 || info.Codec == av.AVC3) && h264parser.IsAnnexB(sample.Data) {
		lengthSize := int(info.NALULengthSize)
		if lengthSize == 0 {
			lengthSize = 4
		}
		data, keyFrame, err := h264parser.AnnexBToLengthPrefixed(sample.Data, lengthSize)
		if err != nil {
			return fmt.Errorf("fmp4: track %d: %w", idx, err)
		}
		sample.Data = data
		sample.IsKeyFrame = sample.IsKeyFrame || keyFrame
	}
	if f.State() == FragmentFinalized {
		f.InitializeFragment(sample.DTS)
	}
	return f.AddSample(ctx, sample)
}

// AddSampleGroupDescription attaches a fragment level sample group description to
// the fragment in progress on track idx.
func (s *Segmenter) AddSampleGroupDescription(idx int, desc *fmp4io.SampleGroupDescription) error {
	f, err := s.track(idx)
	if err != nil {
		return err
	}
	return f.AddSampleGroupDescription(desc)
}

// TrackSampleGroupDescriptions returns the track level descriptions that fragments
// of track idx refer to, for the track's sample table.
func (s *Segmenter) TrackSampleGroupDescriptions(idx int) ([]*fmp4io.SampleGroupDescription, error) {
	f, err := s.track(idx)
	if err != nil {
		return nil, err
	}
	if !f.seekPreroll {
		return nil, nil
	}
	rate := f.info.SampleRate
	if rate == 0 {
		rate = f.info.TimeScale
	}
	distance := timescale.Relative(-f.info.SeekPreroll(), rate)
	if distance < math.MinInt16 {
		distance = math.MinInt16
	}
	return []*fmp4io.SampleGroupDescription{{
		GroupingType: fmp4io.GroupingRoll,
		Entries:      []fmp4io.SampleGroupEntry{fmp4io.RollRecoveryEntry{RollDistance: int16(distance)}},
	}}, nil
}

// FinalizeFragment closes the fragment in progress on every track that received
// samples and marshals them as one moof+mdat.
func (s *Segmenter) FinalizeFragment(ctx context.Context) (fragment.Fragment, error) {
	var active []*Fragmenter
	ref := -1
	for i, f := range s.tracks {
		if f.State() != FragmentAccumulating {
			continue
		}
		if i == s.ridx || ref < 0 {
			ref = len(active)
		}
		active = append(active, f)
	}
	if len(active) == 0 {
		return fragment.Fragment{}, ErrEmptyFragment
	}
	refTrack := s.tracks[s.ridx]
	if refTrack.State() != FragmentAccumulating {
		logger.Warnf(ctx, "fmp4: reference track %d has no samples, indexing fragment %d by track %d",
			s.ridx+1, s.seqNum+1, active[ref].TrackFrag().Header.TrackID)
	}

	var g errgroup.Group
	for _, f := range active {
		f := f
		g.Go(f.FinalizeFragment)
	}
	if err := g.Wait(); err != nil {
		return fragment.Fragment{}, err
	}

	s.seqNum++
	moof := &fmp4io.MovieFrag{
		Header: &fmp4io.MovieFragHeader{Seqnum: s.seqNum},
		Tracks: make([]*fmp4io.TrackFrag, len(active)),
	}
	for i, f := range active {
		moof.Tracks[i] = f.TrackFrag()
	}
	// trun data offsets are relative to the start of the moof
	dataBase := moof.Len() + fmp4io.MediaDataHeaderLen
	dataOffset := dataBase
	for _, f := range active {
		f.TrackFrag().Run.DataOffset = int32(dataOffset)
		dataOffset += len(f.Data())
	}
	b := make([]byte, dataBase, dataOffset)
	n := moof.Marshal(b)
	fmp4io.PutMediaDataHeader(b[n:], dataOffset-dataBase)
	for _, f := range active {
		b = append(b, f.Data()...)
	}

	independent := true
	var reference fmp4io.SegmentReference
	for i, f := range active {
		r, err := f.GenerateSegmentReference()
		if err != nil {
			return fragment.Fragment{}, err
		}
		if !r.StartsWithSAP {
			independent = false
		}
		if i == ref {
			reference = r
		}
	}
	if active[ref] != refTrack {
		r, err := rescaleReference(reference, active[ref].info.TimeScale, refTrack.info.TimeScale)
		if err != nil {
			return fragment.Fragment{}, err
		}
		reference = r
	}
	reference.ReferencedSize = uint32(len(b))
	s.refs = append(s.refs, reference)
	s.fragments = append(s.fragments, b)
	s.size += len(b)

	logger.Debugf(ctx, "fmp4: fragment %d: %d tracks, %d bytes, independent=%v", s.seqNum, len(active), len(b), independent)
	return fragment.Fragment{
		Bytes:       b,
		Length:      len(b),
		Independent: independent,
		Duration:    timescale.FromScale(uint64(reference.SubsegmentDuration), refTrack.info.TimeScale),
		Reference:   reference,
	}, nil
}

// rescaleReference expresses r, taken from a track with timescale from, in the
// timescale of the track the segment index refers to.
func rescaleReference(r fmp4io.SegmentReference, from, to uint32) (fmp4io.SegmentReference, error) {
	duration := timescale.Rescale(uint64(r.SubsegmentDuration), from, to)
	delta := timescale.Rescale(uint64(r.SAPDeltaTime), from, to)
	if duration > math.MaxUint32 || delta > math.MaxUint32 {
		return r, fmt.Errorf("%w: rescaling %d/%d ticks to timescale %d", ErrReferenceOverflow, r.SubsegmentDuration, from, to)
	}
	r.SubsegmentDuration = uint32(duration)
	r.SAPDeltaTime = uint32(delta)
	r.EarliestPresentationTime = timescale.Rescale(r.EarliestPresentationTime, from, to)
	return r, nil
}

// FinalizeSegment returns the fragments finalized since the last segment behind a
// styp and a sidx with one reference per fragment.
func (s *Segmenter) FinalizeSegment() (fragment.Segment, error) {
	if len(s.fragments) == 0 {
		return fragment.Segment{}, ErrEmptySegment
	}
	styp := fmp4io.SegmentType{
		MajorBrand:       fmp4io.BrandMSDH,
		CompatibleBrands: []uint32{fmp4io.BrandMSDH, fmp4io.BrandMSIX},
	}
	ref := s.tracks[s.ridx]
	sidx := fmp4io.SegmentIndex{
		FullAtom:    fmp4io.FullAtom{Version: 1},
		ReferenceID: ref.TrackFrag().Header.TrackID,
		TimeScale:   ref.info.TimeScale,
		EarliestPTS: s.refs[0].EarliestPresentationTime,
		References:  s.refs,
	}
	var duration uint64
	for _, r := range s.refs {
		duration += uint64(r.SubsegmentDuration)
	}

	hdr := styp.Len() + sidx.Len()
	b := make([]byte, hdr, hdr+s.size)
	n := styp.Marshal(b)
	sidx.Marshal(b[n:])
	for _, frag := range s.fragments {
		b = append(b, frag...)
	}
	seg := fragment.Segment{
		Bytes:     b,
		Fragments: len(s.fragments),
		Duration:  timescale.FromScale(duration, ref.info.TimeScale),
	}
	s.refs = nil
	s.fragments = nil
	s.size = 0
	return seg, nil
}
