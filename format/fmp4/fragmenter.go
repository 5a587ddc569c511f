package fmp4

import (
	"context"
	"fmt"
	"math"

	"github.com/deepch/vdkpack/av"
	"github.com/deepch/vdkpack/format/fmp4/fmp4io"
	"github.com/deepch/vdkpack/logger"
)

// invalidTime marks a fragment time that has not been observed yet.
const invalidTime = math.MaxInt64

// FragmenterConfig is fixed when a Fragmenter is created.
type FragmenterConfig struct {
	// UseDecodingTimestampInTimeline makes the earliest presentation time track
	// sample decode times instead of presentation times.
	UseDecodingTimestampInTimeline bool
}

// FragmentState is the position of a Fragmenter in its per-fragment cycle.
type FragmentState uint8

const (
	FragmentEmpty FragmentState = iota
	FragmentAccumulating
	FragmentFinalized
)

func (s FragmentState) String() string {
	switch s {
	case FragmentEmpty:
		return "empty"
	case FragmentAccumulating:
		return "accumulating"
	case FragmentFinalized:
		return "finalized"
	}
	return fmt.Sprintf("FragmentState(%d)", uint8(s))
}

// Fragmenter accumulates the samples of one track into a single 'traf' and its
// payload. It is driven by one goroutine and reused for every fragment of the track.
type Fragmenter struct {
	info        av.StreamInfo
	traf        *fmp4io.TrackFrag
	cfg         FragmenterConfig
	seekPreroll bool

	state                    FragmentState
	data                     []byte
	fragmentDuration         int64
	earliestPresentationTime int64
	firstSAPTime             int64
}

// NewFragmenter creates a fragmenter that fills traf. A nil traf is a programming error.
func NewFragmenter(info av.StreamInfo, traf *fmp4io.TrackFrag, cfg FragmenterConfig) *Fragmenter {
	if traf == nil {
		panic("fmp4: NewFragmenter called with a nil track fragment")
	}
	return &Fragmenter{
		info:                     info,
		traf:                     traf,
		cfg:                      cfg,
		seekPreroll:              info.SeekPreroll() > 0,
		earliestPresentationTime: invalidTime,
		firstSAPTime:             invalidTime,
	}
}

// InitializeFragment starts a new fragment whose first sample decodes at firstSampleDTS.
// The track ID already set on the fragment header is kept.
func (f *Fragmenter) InitializeFragment(firstSampleDTS int64) {
	var trackID uint32
	if f.traf.Header != nil {
		trackID = f.traf.Header.TrackID
	}
	f.traf.Header = &fmp4io.TrackFragHeader{
		Flags:                  fmp4io.TrackFragDefaultBaseIsMOOF | fmp4io.TrackFragSampleDescriptionIndex,
		TrackID:                trackID,
		SampleDescriptionIndex: 1,
	}
	f.traf.DecodeTime = &fmp4io.TrackFragDecodeTime{
		Version: 1,
		Time:    uint64(firstSampleDTS),
	}
	f.traf.Run = &fmp4io.TrackFragRun{
		Flags: fmp4io.TrackRunDataOffset,
	}
	f.traf.SampleGroupDescriptions = nil
	f.traf.SampleToGroups = nil

	f.fragmentDuration = 0
	f.earliestPresentationTime = invalidTime
	f.firstSAPTime = invalidTime
	f.data = make([]byte, 0, cap(f.data))
	f.state = FragmentAccumulating
}

func (f *Fragmenter) requireAccumulating() error {
	switch f.state {
	case FragmentEmpty:
		return ErrFragmentNotInitialized
	case FragmentFinalized:
		return ErrFragmentFinalized
	}
	return nil
}

// AddSample appends sample to the fragment in progress. The first sample of a
// track starts a fragment at its own decode time.
func (f *Fragmenter) AddSample(ctx context.Context, sample av.Sample) error {
	if sample.Duration <= 0 || sample.Duration > math.MaxUint32 {
		return fmt.Errorf("%w: duration %d at dts %d", ErrInvalidDuration, sample.Duration, sample.DTS)
	}
	if cts := sample.PTS - sample.DTS; cts < math.MinInt32 || cts > math.MaxInt32 {
		return fmt.Errorf("%w: pts %d dts %d", ErrInvalidCTSOffset, sample.PTS, sample.DTS)
	}
	if uint64(len(sample.Data)) > math.MaxUint32 {
		return fmt.Errorf("%w: %d bytes at dts %d", ErrSampleTooLarge, len(sample.Data), sample.DTS)
	}
	switch f.state {
	case FragmentFinalized:
		return ErrFragmentFinalized
	case FragmentEmpty:
		f.InitializeFragment(sample.DTS)
	}
	if len(sample.SideData) > 0 {
		logger.Warnf(ctx, "fmp4: track %d: dropping %d bytes of sample side data", f.traf.Header.TrackID, len(sample.SideData))
	}
	logger.Tracef(ctx, "fmp4: track %d: add %s", f.traf.Header.TrackID, sample)

	run := f.traf.Run
	run.SampleSizes = append(run.SampleSizes, uint32(len(sample.Data)))
	run.SampleDurations = append(run.SampleDurations, uint32(sample.Duration))
	run.SampleFlags = append(run.SampleFlags, fmp4io.SyncSampleFlags(sample.IsKeyFrame))
	f.data = append(f.data, sample.Data...)
	f.fragmentDuration += sample.Duration

	timestamp := sample.PTS
	if f.cfg.UseDecodingTimestampInTimeline {
		timestamp = sample.DTS
	}
	if timestamp < f.earliestPresentationTime {
		f.earliestPresentationTime = timestamp
	}

	cts := sample.PTS - sample.DTS
	run.SampleCTSOffsets = append(run.SampleCTSOffsets, int32(cts))
	if cts != 0 {
		run.Flags |= fmp4io.TrackRunSampleCTS
		if cts < 0 {
			run.Version = 1
		}
	}

	if sample.IsKeyFrame && f.firstSAPTime == invalidTime {
		f.firstSAPTime = sample.PTS
	}
	return nil
}

// AddSampleGroupDescription attaches a fragment level sample group description,
// such as the 'seig' description of the encryption layer. It is referenced by one
// sample to group atom when the fragment is finalized.
func (f *Fragmenter) AddSampleGroupDescription(desc *fmp4io.SampleGroupDescription) error {
	if err := f.requireAccumulating(); err != nil {
		return err
	}
	f.traf.SampleGroupDescriptions = append(f.traf.SampleGroupDescriptions, desc)
	return nil
}

// optimizeSampleEntries collapses entries into def when they all hold the same value.
func optimizeSampleEntries[T comparable](entries *[]T, def *T) bool {
	if len(*entries) == 0 {
		return false
	}
	first := (*entries)[0]
	for _, v := range (*entries)[1:] {
		if v != first {
			return false
		}
	}
	*def = first
	*entries = nil
	return true
}

// FinalizeFragment closes the fragment in progress.
func (f *Fragmenter) FinalizeFragment() error {
	if err := f.requireAccumulating(); err != nil {
		return err
	}
	if len(f.traf.SampleToGroups) > 0 {
		return ErrSampleToGroupsExist
	}
	header := f.traf.Header
	run := f.traf.Run
	run.SampleCount = uint32(len(run.SampleSizes))

	if optimizeSampleEntries(&run.SampleDurations, &header.DefaultDuration) {
		header.Flags |= fmp4io.TrackFragDefaultDuration
	} else {
		run.Flags |= fmp4io.TrackRunSampleDuration
	}
	if optimizeSampleEntries(&run.SampleSizes, &header.DefaultSize) {
		header.Flags |= fmp4io.TrackFragDefaultSize
	} else {
		run.Flags |= fmp4io.TrackRunSampleSize
	}
	if optimizeSampleEntries(&run.SampleFlags, &header.DefaultFlags) {
		header.Flags |= fmp4io.TrackFragDefaultFlags
	} else {
		run.Flags |= fmp4io.TrackRunSampleFlags
	}
	if run.Flags&fmp4io.TrackRunSampleCTS == 0 {
		run.SampleCTSOffsets = nil
	}

	if f.seekPreroll {
		f.traf.SampleToGroups = append(f.traf.SampleToGroups, &fmp4io.SampleToGroup{
			GroupingType: fmp4io.GroupingRoll,
			Entries: []fmp4io.SampleToGroupEntry{{
				SampleCount:           run.SampleCount,
				GroupDescriptionIndex: fmp4io.TrackGroupDescriptionIndexBase + 1,
			}},
		})
	}
	for _, desc := range f.traf.SampleGroupDescriptions {
		f.traf.SampleToGroups = append(f.traf.SampleToGroups, &fmp4io.SampleToGroup{
			GroupingType: desc.GroupingType,
			Entries: []fmp4io.SampleToGroupEntry{{
				SampleCount:           run.SampleCount,
				GroupDescriptionIndex: fmp4io.TrackFragmentGroupDescriptionIndexBase + 1,
			}},
		})
	}

	f.state = FragmentFinalized
	return nil
}

// GenerateSegmentReference summarises the finalized fragment for the segment index.
// ReferencedSize is left for the segment writer.
func (f *Fragmenter) GenerateSegmentReference() (fmp4io.SegmentReference, error) {
	if f.state != FragmentFinalized {
		return fmp4io.SegmentReference{}, ErrFragmentNotFinalized
	}
	header := f.traf.Header
	run := f.traf.Run

	if f.fragmentDuration > math.MaxUint32 {
		return fmp4io.SegmentReference{}, fmt.Errorf("%w: subsegment duration %d", ErrReferenceOverflow, f.fragmentDuration)
	}
	ref := fmp4io.SegmentReference{
		ReferencesBox:            false,
		SubsegmentDuration:       uint32(f.fragmentDuration),
		EarliestPresentationTime: uint64(f.earliestPresentationTime),
	}
	switch {
	case len(run.SampleFlags) > 0:
		ref.StartsWithSAP = run.SampleFlags[0].IsSync()
	case header.Flags&fmp4io.TrackFragDefaultFlags != 0:
		ref.StartsWithSAP = header.DefaultFlags.IsSync()
	}
	if f.firstSAPTime == invalidTime {
		ref.SAPType = fmp4io.SAPTypeUnknown
		ref.SAPDeltaTime = 0
	} else {
		delta := f.firstSAPTime - f.earliestPresentationTime
		if delta < 0 || delta > math.MaxUint32 {
			return fmp4io.SegmentReference{}, fmt.Errorf("%w: sap delta %d", ErrReferenceOverflow, delta)
		}
		ref.SAPType = fmp4io.SAPType1
		ref.SAPDeltaTime = uint32(delta)
	}
	return ref, nil
}

func (f *Fragmenter) State() FragmentState {
	return f.state
}

// Data is the payload of the fragment in progress. It is replaced, not reused,
// by the next InitializeFragment.
func (f *Fragmenter) Data() []byte {
	return f.data
}

// FragmentDuration is the sum of the sample durations, in track timescale ticks.
func (f *Fragmenter) FragmentDuration() int64 {
	return f.fragmentDuration
}

// EarliestPresentationTime reports false while no sample has been added.
func (f *Fragmenter) EarliestPresentationTime() (int64, bool) {
	return f.earliestPresentationTime, f.earliestPresentationTime != invalidTime
}

// FirstSAPTime reports false while no key frame has been added.
func (f *Fragmenter) FirstSAPTime() (int64, bool) {
	return f.firstSAPTime, f.firstSAPTime != invalidTime
}

func (f *Fragmenter) TrackFrag() *fmp4io.TrackFrag {
	return f.traf
}

func (f *Fragmenter) StreamInfo() av.StreamInfo {
	return f.info
}
