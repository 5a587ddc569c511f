package fmp4

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepch/vdkpack/av"
	"github.com/deepch/vdkpack/codec/opusparser"
	"github.com/deepch/vdkpack/format/fmp4/fmp4io"
)

var (
	videoInfo = av.StreamInfo{Type: av.VideoStream, Codec: av.AVC1, TimeScale: 90000, Width: 1280, Height: 720}
	opusInfo  = opusparser.NewCodecData(2).StreamInfo()
)

func newTestFragmenter(info av.StreamInfo, cfg FragmenterConfig) *Fragmenter {
	return NewFragmenter(info, &fmp4io.TrackFrag{Header: &fmp4io.TrackFragHeader{TrackID: 1}}, cfg)
}

func sample(pts, dts, dur int64, key bool, size int) av.Sample {
	return av.Sample{PTS: pts, DTS: dts, Duration: dur, IsKeyFrame: key, Data: make([]byte, size)}
}

func TestNewFragmenterNilTrackFrag(t *testing.T) {
	assert.Panics(t, func() { NewFragmenter(videoInfo, nil, FragmenterConfig{}) })
}

func TestInitializeFragment(t *testing.T) {
	f := newTestFragmenter(videoInfo, FragmenterConfig{})
	assert.Equal(t, FragmentEmpty, f.State())

	f.InitializeFragment(9000)
	traf := f.TrackFrag()
	assert.Equal(t, FragmentAccumulating, f.State())
	assert.Equal(t, uint32(1), traf.Header.TrackID)
	assert.Equal(t, uint32(1), traf.Header.SampleDescriptionIndex)
	assert.Equal(t, fmp4io.TrackFragDefaultBaseIsMOOF|fmp4io.TrackFragSampleDescriptionIndex, traf.Header.Flags)
	assert.Equal(t, fmp4io.TrackRunDataOffset, traf.Run.Flags)
	assert.Equal(t, uint64(9000), traf.DecodeTime.Time)
	assert.Empty(t, f.Data())
	_, ok := f.EarliestPresentationTime()
	assert.False(t, ok)
	_, ok = f.FirstSAPTime()
	assert.False(t, ok)
}

func TestAddSampleImplicitInitialize(t *testing.T) {
	ctx := context.Background()
	f := newTestFragmenter(videoInfo, FragmenterConfig{})
	require.NoError(t, f.AddSample(ctx, sample(3000, 1500, 1500, true, 10)))
	assert.Equal(t, FragmentAccumulating, f.State())
	assert.Equal(t, uint64(1500), f.TrackFrag().DecodeTime.Time)
}

func TestAddSampleRejectsNonPositiveDuration(t *testing.T) {
	ctx := context.Background()
	f := newTestFragmenter(videoInfo, FragmenterConfig{})
	for _, dur := range []int64{0, -1} {
		err := f.AddSample(ctx, sample(0, 0, dur, true, 4))
		assert.ErrorIs(t, err, ErrInvalidDuration)
	}
	assert.Equal(t, FragmentEmpty, f.State())
}

func TestAddSampleRejectsOutOfRangeFields(t *testing.T) {
	ctx := context.Background()
	f := newTestFragmenter(videoInfo, FragmenterConfig{})

	err := f.AddSample(ctx, sample(0, 0, 1<<32+5, true, 4))
	assert.ErrorIs(t, err, ErrInvalidDuration)
	err = f.AddSample(ctx, sample(1<<31, 0, 3000, true, 4))
	assert.ErrorIs(t, err, ErrInvalidCTSOffset)
	err = f.AddSample(ctx, sample(0, 1<<31+1, 3000, true, 4))
	assert.ErrorIs(t, err, ErrInvalidCTSOffset)
	assert.Equal(t, FragmentEmpty, f.State())

	require.NoError(t, f.AddSample(ctx, sample(0, 0, math.MaxUint32, true, 4)))
	require.NoError(t, f.AddSample(ctx, sample(math.MaxInt32, 0, 3000, false, 4)))
	assert.Equal(t, int64(math.MaxUint32+3000), f.FragmentDuration())
}

func TestAddSampleAccumulates(t *testing.T) {
	ctx := context.Background()
	f := newTestFragmenter(videoInfo, FragmenterConfig{})
	s := sample(0, 0, 3000, true, 3)
	s.Data = []byte{1, 2, 3}
	s.SideData = []byte{9}
	require.NoError(t, f.AddSample(ctx, s))
	s2 := sample(3000, 3000, 3000, false, 2)
	s2.Data = []byte{4, 5}
	require.NoError(t, f.AddSample(ctx, s2))

	run := f.TrackFrag().Run
	assert.Equal(t, []byte{1, 2, 3, 4, 5}, f.Data())
	assert.Equal(t, []uint32{3, 2}, run.SampleSizes)
	assert.Equal(t, []uint32{3000, 3000}, run.SampleDurations)
	assert.Equal(t, []fmp4io.SampleFlags{0, fmp4io.SampleIsNonSync}, run.SampleFlags)
	assert.Equal(t, int64(6000), f.FragmentDuration())
	assert.Zero(t, run.Flags&fmp4io.TrackRunSampleCTS)
}

func TestAddSampleCompositionOffsets(t *testing.T) {
	ctx := context.Background()
	f := newTestFragmenter(videoInfo, FragmenterConfig{})
	require.NoError(t, f.AddSample(ctx, sample(0, 0, 3000, true, 4)))
	require.NoError(t, f.AddSample(ctx, sample(9000, 3000, 3000, false, 4)))
	run := f.TrackFrag().Run
	assert.NotZero(t, run.Flags&fmp4io.TrackRunSampleCTS)
	assert.Equal(t, uint8(0), run.Version)
	assert.Equal(t, []int32{0, 6000}, run.SampleCTSOffsets)

	require.NoError(t, f.AddSample(ctx, sample(3000, 6000, 3000, false, 4)))
	assert.Equal(t, uint8(1), run.Version)
	assert.Equal(t, []int32{0, 6000, -3000}, run.SampleCTSOffsets)
}

func TestEarliestPresentationTime(t *testing.T) {
	ctx := context.Background()
	samples := []av.Sample{
		sample(6000, 0, 3000, true, 4),
		sample(3000, 3000, 3000, false, 4),
		sample(9000, 6000, 3000, false, 4),
	}
	for _, tc := range []struct {
		name     string
		useDTS   bool
		expected int64
	}{
		{"presentation", false, 3000},
		{"decoding", true, 0},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := newTestFragmenter(videoInfo, FragmenterConfig{UseDecodingTimestampInTimeline: tc.useDTS})
			for _, s := range samples {
				require.NoError(t, f.AddSample(ctx, s))
			}
			ept, ok := f.EarliestPresentationTime()
			require.True(t, ok)
			assert.Equal(t, tc.expected, ept)
		})
	}
}

func TestFinalizeFragmentConstantRun(t *testing.T) {
	ctx := context.Background()
	f := newTestFragmenter(videoInfo, FragmenterConfig{})
	for i := int64(0); i < 4; i++ {
		require.NoError(t, f.AddSample(ctx, sample(i*3000, i*3000, 3000, false, 100)))
	}
	require.NoError(t, f.FinalizeFragment())
	assert.Equal(t, FragmentFinalized, f.State())

	header, run := f.TrackFrag().Header, f.TrackFrag().Run
	assert.Equal(t, uint32(4), run.SampleCount)
	assert.Equal(t, uint32(3000), header.DefaultDuration)
	assert.Equal(t, uint32(100), header.DefaultSize)
	assert.Equal(t, fmp4io.SampleIsNonSync, header.DefaultFlags)
	assert.NotZero(t, header.Flags&fmp4io.TrackFragDefaultDuration)
	assert.NotZero(t, header.Flags&fmp4io.TrackFragDefaultSize)
	assert.NotZero(t, header.Flags&fmp4io.TrackFragDefaultFlags)
	assert.Empty(t, run.SampleDurations)
	assert.Empty(t, run.SampleSizes)
	assert.Empty(t, run.SampleFlags)
	assert.Empty(t, run.SampleCTSOffsets)
	assert.Equal(t, fmp4io.TrackRunDataOffset, run.Flags)
}

func TestFinalizeFragmentVaryingRun(t *testing.T) {
	ctx := context.Background()
	f := newTestFragmenter(videoInfo, FragmenterConfig{})
	require.NoError(t, f.AddSample(ctx, sample(0, 0, 3000, true, 100)))
	require.NoError(t, f.AddSample(ctx, sample(3000, 3000, 3003, false, 100)))
	require.NoError(t, f.AddSample(ctx, sample(6003, 6003, 3000, false, 100)))
	require.NoError(t, f.FinalizeFragment())

	header, run := f.TrackFrag().Header, f.TrackFrag().Run
	assert.Len(t, run.SampleDurations, int(run.SampleCount))
	assert.Zero(t, header.Flags&fmp4io.TrackFragDefaultDuration)
	assert.NotZero(t, run.Flags&fmp4io.TrackRunSampleDuration)

	assert.NotZero(t, header.Flags&fmp4io.TrackFragDefaultSize)
	assert.Zero(t, run.Flags&fmp4io.TrackRunSampleSize)

	assert.Len(t, run.SampleFlags, 3)
	assert.NotZero(t, run.Flags&fmp4io.TrackRunSampleFlags)
}

func TestFinalizeFragmentPreconditions(t *testing.T) {
	ctx := context.Background()
	f := newTestFragmenter(videoInfo, FragmenterConfig{})
	assert.ErrorIs(t, f.FinalizeFragment(), ErrFragmentNotInitialized)

	require.NoError(t, f.AddSample(ctx, sample(0, 0, 3000, true, 4)))
	require.NoError(t, f.FinalizeFragment())
	assert.ErrorIs(t, f.FinalizeFragment(), ErrFragmentFinalized)
	assert.ErrorIs(t, f.AddSample(ctx, sample(3000, 3000, 3000, false, 4)), ErrFragmentFinalized)
	assert.ErrorIs(t, f.AddSampleGroupDescription(&fmp4io.SampleGroupDescription{}), ErrFragmentFinalized)

	f.InitializeFragment(3000)
	require.NoError(t, f.AddSample(ctx, sample(3000, 3000, 3000, false, 4)))
	f.TrackFrag().SampleToGroups = []*fmp4io.SampleToGroup{{GroupingType: fmp4io.GroupingSeig}}
	assert.ErrorIs(t, f.FinalizeFragment(), ErrSampleToGroupsExist)
}

func TestFinalizeFragmentSampleGroups(t *testing.T) {
	ctx := context.Background()
	f := newTestFragmenter(opusInfo, FragmenterConfig{})
	for i := int64(0); i < 3; i++ {
		require.NoError(t, f.AddSample(ctx, sample(i*960, i*960, 960, true, 50)))
	}
	seig := &fmp4io.SampleGroupDescription{GroupingType: fmp4io.GroupingSeig}
	other := &fmp4io.SampleGroupDescription{GroupingType: fmp4io.StringToTag("test")}
	require.NoError(t, f.AddSampleGroupDescription(seig))
	require.NoError(t, f.AddSampleGroupDescription(other))
	require.NoError(t, f.FinalizeFragment())

	sbgps := f.TrackFrag().SampleToGroups
	require.Len(t, sbgps, 3)
	assert.Equal(t, fmp4io.GroupingRoll, sbgps[0].GroupingType)
	assert.Equal(t, []fmp4io.SampleToGroupEntry{{SampleCount: 3, GroupDescriptionIndex: 1}}, sbgps[0].Entries)
	assert.Equal(t, fmp4io.GroupingSeig, sbgps[1].GroupingType)
	assert.Equal(t, []fmp4io.SampleToGroupEntry{{SampleCount: 3, GroupDescriptionIndex: 0x10001}}, sbgps[1].Entries)
	assert.Equal(t, fmp4io.StringToTag("test"), sbgps[2].GroupingType)

	f.InitializeFragment(2880)
	assert.Empty(t, f.TrackFrag().SampleGroupDescriptions)
	assert.Empty(t, f.TrackFrag().SampleToGroups)
}

func TestFinalizeFragmentNoRollForVideo(t *testing.T) {
	ctx := context.Background()
	info := videoInfo
	info.SeekPrerollNS = 80000000
	f := newTestFragmenter(info, FragmenterConfig{})
	require.NoError(t, f.AddSample(ctx, sample(0, 0, 3000, true, 4)))
	require.NoError(t, f.FinalizeFragment())
	assert.Empty(t, f.TrackFrag().SampleToGroups)
}

func TestGenerateSegmentReference(t *testing.T) {
	ctx := context.Background()

	t.Run("not finalized", func(t *testing.T) {
		f := newTestFragmenter(videoInfo, FragmenterConfig{})
		_, err := f.GenerateSegmentReference()
		assert.ErrorIs(t, err, ErrFragmentNotFinalized)
		require.NoError(t, f.AddSample(ctx, sample(0, 0, 3000, true, 4)))
		_, err = f.GenerateSegmentReference()
		assert.ErrorIs(t, err, ErrFragmentNotFinalized)
	})

	t.Run("no key frame", func(t *testing.T) {
		f := newTestFragmenter(videoInfo, FragmenterConfig{})
		require.NoError(t, f.AddSample(ctx, sample(3000, 0, 3000, false, 4)))
		require.NoError(t, f.AddSample(ctx, sample(6000, 3000, 3000, false, 4)))
		require.NoError(t, f.FinalizeFragment())
		ref, err := f.GenerateSegmentReference()
		require.NoError(t, err)
		assert.False(t, ref.StartsWithSAP)
		assert.Equal(t, fmp4io.SAPTypeUnknown, ref.SAPType)
		assert.Zero(t, ref.SAPDeltaTime)
		assert.False(t, ref.ReferencesBox)
		assert.Equal(t, uint32(6000), ref.SubsegmentDuration)
		assert.Equal(t, uint64(3000), ref.EarliestPresentationTime)
	})

	t.Run("late key frame", func(t *testing.T) {
		f := newTestFragmenter(videoInfo, FragmenterConfig{})
		require.NoError(t, f.AddSample(ctx, sample(3000, 0, 3000, false, 4)))
		require.NoError(t, f.AddSample(ctx, sample(9000, 3000, 3000, true, 4)))
		require.NoError(t, f.AddSample(ctx, sample(6000, 6000, 3000, true, 4)))
		require.NoError(t, f.FinalizeFragment())
		ref, err := f.GenerateSegmentReference()
		require.NoError(t, err)
		assert.False(t, ref.StartsWithSAP)
		assert.Equal(t, fmp4io.SAPType1, ref.SAPType)
		assert.Equal(t, uint32(6000), ref.SAPDeltaTime)
	})

	t.Run("starts with key frame", func(t *testing.T) {
		f := newTestFragmenter(videoInfo, FragmenterConfig{})
		require.NoError(t, f.AddSample(ctx, sample(0, 0, 3000, true, 4)))
		require.NoError(t, f.AddSample(ctx, sample(3000, 3000, 3000, false, 4)))
		require.NoError(t, f.FinalizeFragment())
		ref, err := f.GenerateSegmentReference()
		require.NoError(t, err)
		assert.True(t, ref.StartsWithSAP)
		assert.Equal(t, fmp4io.SAPType1, ref.SAPType)
		assert.Zero(t, ref.SAPDeltaTime)
	})

	t.Run("duration overflow", func(t *testing.T) {
		f := newTestFragmenter(videoInfo, FragmenterConfig{})
		require.NoError(t, f.AddSample(ctx, sample(0, 0, math.MaxUint32, true, 4)))
		require.NoError(t, f.AddSample(ctx, sample(math.MaxUint32, math.MaxUint32, 5, false, 4)))
		require.NoError(t, f.FinalizeFragment())
		_, err := f.GenerateSegmentReference()
		assert.ErrorIs(t, err, ErrReferenceOverflow)
	})

	t.Run("sap delta overflow", func(t *testing.T) {
		f := newTestFragmenter(videoInfo, FragmenterConfig{})
		require.NoError(t, f.AddSample(ctx, sample(0, 0, 3000, false, 4)))
		require.NoError(t, f.AddSample(ctx, sample(1<<33, 1<<33, 3000, true, 4)))
		require.NoError(t, f.FinalizeFragment())
		_, err := f.GenerateSegmentReference()
		assert.ErrorIs(t, err, ErrReferenceOverflow)
	})

	t.Run("key frame before earliest decode time", func(t *testing.T) {
		f := newTestFragmenter(videoInfo, FragmenterConfig{UseDecodingTimestampInTimeline: true})
		require.NoError(t, f.AddSample(ctx, sample(0, 3000, 3000, true, 4)))
		require.NoError(t, f.FinalizeFragment())
		_, err := f.GenerateSegmentReference()
		assert.ErrorIs(t, err, ErrReferenceOverflow)
	})

	t.Run("optimized flags", func(t *testing.T) {
		f := newTestFragmenter(opusInfo, FragmenterConfig{})
		require.NoError(t, f.AddSample(ctx, sample(0, 0, 960, true, 4)))
		require.NoError(t, f.AddSample(ctx, sample(960, 960, 960, true, 4)))
		require.NoError(t, f.FinalizeFragment())
		require.Empty(t, f.TrackFrag().Run.SampleFlags)
		ref, err := f.GenerateSegmentReference()
		require.NoError(t, err)
		assert.True(t, ref.StartsWithSAP)
	})
}

func TestFragmenterReuse(t *testing.T) {
	ctx := context.Background()
	f := newTestFragmenter(videoInfo, FragmenterConfig{})
	require.NoError(t, f.AddSample(ctx, sample(0, 0, 3000, true, 4)))
	require.NoError(t, f.FinalizeFragment())
	first := f.Data()

	f.InitializeFragment(3000)
	require.NoError(t, f.AddSample(ctx, sample(3000, 3000, 3000, true, 8)))
	assert.Len(t, first, 4)
	assert.Len(t, f.Data(), 8)
	assert.Equal(t, int64(3000), f.FragmentDuration())
	assert.Equal(t, uint32(1), f.TrackFrag().Header.TrackID)
}
