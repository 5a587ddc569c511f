package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/davecgh/go-spew/spew"
	"github.com/dustin/go-humanize"
	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/spf13/pflag"

	"github.com/deepch/vdkpack/av"
	"github.com/deepch/vdkpack/codec/h264parser"
	"github.com/deepch/vdkpack/config"
	"github.com/deepch/vdkpack/format/cenc"
	"github.com/deepch/vdkpack/logger"
)

const videoTimeScale = 90000

func main() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "syntax: %s [flags] <avcC record>\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "        %s --es [flags] <Annex B stream>\n", os.Args[0])
		pflag.PrintDefaults()
	}

	loggerLevel := logger.LevelWarning
	pflag.Var(&loggerLevel, "log-level", "Log level")
	configPath := pflag.String("config", "", "YAML configuration file")
	hexInput := pflag.Bool("hex", false, "the input holds the record as hex text")
	fourccName := pflag.String("fourcc", "avc1", "sample entry name used in the codec string")
	dump := pflag.Bool("dump", false, "dump the parsed structures")
	esMode := pflag.Bool("es", false, "fragment an H.264 Annex B elementary stream")
	fps := pflag.Float64("fps", 0, "frame rate of the elementary stream (default: from the SPS, else 30)")
	fragmentFrames := pflag.Int("fragment-frames", 0, "frames per fragment; 0 starts a fragment at every key frame")
	keyID := pflag.String("key-id", "", "attach a 'seig' sample group for this key id to every fragment")
	pflag.Parse()
	if pflag.NArg() != 1 {
		pflag.Usage()
		os.Exit(1)
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
	if !pflag.CommandLine.Changed("log-level") {
		if l, err := cfg.LogLevel(); err == nil {
			loggerLevel = l
		}
	}

	l := logrus.Default().WithLevel(loggerLevel)
	ctx := logger.CtxWithLogger(context.Background(), l)
	logger.SetDefault(func() logger.Logger {
		return l
	})
	defer belt.Flush(ctx)

	fourcc, err := av.StringToFourCC(*fourccName)
	if err != nil {
		l.Fatal(err)
	}
	data, err := readInput(pflag.Arg(0), *hexInput)
	if err != nil {
		l.Fatal(err)
	}

	if *esMode {
		err = runES(ctx, os.Stdout, data, esOptions{
			fourcc:         fourcc,
			fps:            *fps,
			fragmentFrames: *fragmentFrames,
			keyID:          *keyID,
			dump:           *dump,
		}, cfg)
	} else {
		err = runRecord(ctx, os.Stdout, data, fourcc, cfg.Thresholds(), *dump)
	}
	if err != nil {
		l.Fatal(err)
	}
}

func readInput(path string, hexInput bool) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !hexInput {
		return b, nil
	}
	b, err = hex.DecodeString(strings.Join(strings.Fields(string(b)), ""))
	if err != nil {
		return nil, fmt.Errorf("decoding hex input: %w", err)
	}
	return b, nil
}

func runRecord(ctx context.Context, w io.Writer, data []byte, fourcc av.FourCC, th cenc.Thresholds, dump bool) error {
	rec, err := h264parser.ParseAVCDecoderConfRecord(ctx, data)
	if err != nil {
		return err
	}
	info := rec.StreamInfo(fourcc, videoTimeScale)

	fmt.Fprintf(w, "codec:      %s\n", rec.CodecString(fourcc))
	fmt.Fprintf(w, "profile:    %d (compat 0x%02x)\n", rec.AVCProfileIndication, rec.ProfileCompatibility)
	fmt.Fprintf(w, "level:      %d\n", rec.AVCLevelIndication)
	fmt.Fprintf(w, "length:     %d bytes\n", rec.NALULengthSize())
	for i, sps := range rec.SPS {
		fmt.Fprintf(w, "sps[%d]:     %s\n", i, humanize.Bytes(uint64(len(sps.Data))))
	}
	for i, pps := range rec.PPS {
		fmt.Fprintf(w, "pps[%d]:     %s\n", i, humanize.Bytes(uint64(len(pps.Data))))
	}
	if len(rec.SPS) > 0 {
		fmt.Fprintf(w, "coded size: %dx%d\n", rec.CodedWidth, rec.CodedHeight)
		fmt.Fprintf(w, "sar:        %d:%d\n", rec.PixelWidth, rec.PixelHeight)
		fmt.Fprintf(w, "transfer:   %d\n", rec.TransferCharacteristics)
	}
	fmt.Fprintf(w, "track type: %s\n", cenc.TrackTypeForEncryption(info, th))
	if dump {
		spew.Fdump(w, rec)
	}
	return nil
}
