package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/bluenviron/mediacommon/pkg/codecs/h264"
	"github.com/davecgh/go-spew/spew"
	"github.com/dustin/go-humanize"

	"github.com/deepch/vdkpack/av"
	"github.com/deepch/vdkpack/codec/h264parser"
	"github.com/deepch/vdkpack/config"
	"github.com/deepch/vdkpack/format/cenc"
	"github.com/deepch/vdkpack/format/fmp4"
	"github.com/deepch/vdkpack/format/fmp4/fmp4io"
	"github.com/deepch/vdkpack/logger"
)

var errNoSPS = errors.New("no usable SPS in stream")

type esOptions struct {
	fourcc         av.FourCC
	fps            float64
	fragmentFrames int
	keyID          string
	dump           bool
}

func isVCL(typ int) bool {
	return typ >= h264parser.NALU_NON_IDR_SLICE && typ <= h264parser.NALU_IDR_SLICE
}

// splitAccessUnits groups NAL units into access units. A unit ends before an AUD,
// SPS, PPS, SEI or prefix NAL following a slice, or before a slice whose
// first_mb_in_slice is 0.
func splitAccessUnits(nalus [][]byte) [][][]byte {
	var aus [][][]byte
	var cur [][]byte
	seenVCL := false
	for _, n := range nalus {
		if len(n) == 0 {
			continue
		}
		typ := int(n[0] & 0x1f)
		start := false
		switch {
		case typ == h264parser.NALU_AUD, typ == h264parser.NALU_SPS, typ == h264parser.NALU_PPS,
			typ == h264parser.NALU_SEI, typ >= h264parser.NALU_PREFIX && typ <= 18:
			start = seenVCL
		case isVCL(typ):
			start = seenVCL && len(n) > 1 && n[1]&0x80 != 0
		}
		if start {
			aus = append(aus, cur)
			cur = nil
			seenVCL = false
		}
		cur = append(cur, n)
		if isVCL(typ) {
			seenVCL = true
		}
	}
	if len(cur) > 0 {
		aus = append(aus, cur)
	}
	return aus
}

func annexB(au [][]byte) []byte {
	size := 0
	for _, n := range au {
		size += 4 + len(n)
	}
	b := make([]byte, 0, size)
	for _, n := range au {
		b = append(b, 0, 0, 0, 1)
		b = append(b, n...)
	}
	return b
}

func streamSPS(ctx context.Context, nalus [][]byte) (*h264parser.SPS, error) {
	for _, n := range nalus {
		nalu, err := h264parser.NewNALU(h264parser.FamilyH264, n)
		if err != nil {
			logger.Warnf(ctx, "skipping NAL unit: %v", err)
			continue
		}
		if !nalu.IsSPS() {
			continue
		}
		sps, err := h264parser.ParseSPS(nalu)
		if err != nil {
			logger.Warnf(ctx, "skipping SPS: %v", err)
			continue
		}
		return sps, nil
	}
	return nil, errNoSPS
}

// runES cuts an Annex B stream into fragments and one indexed segment and
// prints a summary of each.
func runES(ctx context.Context, w io.Writer, data []byte, opts esOptions, cfg *config.Config) error {
	nalus, err := h264.AnnexBUnmarshal(data)
	if err != nil {
		return fmt.Errorf("splitting stream: %w", err)
	}
	sps, err := streamSPS(ctx, nalus)
	if err != nil {
		return err
	}
	width, height, pw, ph, err := h264parser.ExtractResolution(sps)
	if err != nil {
		return err
	}
	info := av.StreamInfo{
		Type:           av.VideoStream,
		Codec:          opts.fourcc,
		TimeScale:      videoTimeScale,
		Width:          width,
		Height:         height,
		PixelWidth:     pw,
		PixelHeight:    ph,
		NALULengthSize: 4,
	}
	fps := opts.fps
	if fps <= 0 {
		fps = sps.FPS()
	}
	if fps <= 0 {
		fps = 30
	}
	duration := int64(math.Round(videoTimeScale / fps))
	if duration <= 0 {
		return fmt.Errorf("frame rate %g is too high for a %d Hz timescale", fps, videoTimeScale)
	}

	var seig *fmp4io.SampleGroupDescription
	if opts.keyID != "" {
		kid, err := cenc.ParseKeyID(opts.keyID)
		if err != nil {
			return err
		}
		seig, err = cenc.NewSampleGroupDescription(cenc.SeigEntry{
			IsProtected:     true,
			PerSampleIVSize: 8,
			KeyID:           kid,
		})
		if err != nil {
			return err
		}
	}

	seg, err := fmp4.NewSegmenter([]av.StreamInfo{info}, cfg.FragmenterConfig())
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "track: %dx%d sar %d:%d, %.3f fps, %s\n",
		width, height, pw, ph, fps, cenc.TrackTypeForEncryption(info, cfg.Thresholds()))

	frames := 0
	flush := func() error {
		frag, err := seg.FinalizeFragment(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "fragment: %d frames, %s, %s, independent=%v sap_type=%d sap_delta=%d\n",
			frames, humanize.Bytes(uint64(frag.Length)), frag.Duration, frag.Independent,
			frag.Reference.SAPType, frag.Reference.SAPDeltaTime)
		if opts.dump {
			spew.Fdump(w, frag.Reference)
		}
		frames = 0
		return nil
	}

	for i, au := range splitAccessUnits(nalus) {
		keyFrame := h264.IDRPresent(au)
		if frames > 0 {
			if (opts.fragmentFrames > 0 && frames >= opts.fragmentFrames) || (opts.fragmentFrames <= 0 && keyFrame) {
				if err := flush(); err != nil {
					return err
				}
			}
		}
		ts := int64(i) * duration
		sample := av.Sample{
			PTS:        ts,
			DTS:        ts,
			Duration:   duration,
			IsKeyFrame: keyFrame,
			Data:       annexB(au),
		}
		if err := seg.AddSample(ctx, 0, sample); err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
		if frames == 0 && seig != nil {
			if err := seg.AddSampleGroupDescription(0, seig); err != nil {
				return err
			}
		}
		frames++
	}
	if frames > 0 {
		if err := flush(); err != nil {
			return err
		}
	}

	segment, err := seg.FinalizeSegment()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "segment: %d fragments, %s, %s\n",
		segment.Fragments, humanize.Bytes(uint64(len(segment.Bytes))), segment.Duration)
	return nil
}
