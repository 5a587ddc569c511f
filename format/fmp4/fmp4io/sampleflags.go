package fmp4io

import "fmt"

// SampleFlags is the sample_flags word of 'trun' and 'tfhd' (ISO/IEC 14496-12 8.8.3.1).
type SampleFlags uint32

const (
	SampleIsNonSync       SampleFlags = 0x00010000
	SampleHasDependencies SampleFlags = 0x01000000
	SampleNoDependencies  SampleFlags = 0x02000000
)

// SyncSampleFlags returns the flags the fragmenter records for a sample.
func SyncSampleFlags(keyFrame bool) SampleFlags {
	if keyFrame {
		return 0
	}
	return SampleIsNonSync
}

func (f SampleFlags) IsSync() bool {
	return f&SampleIsNonSync == 0
}

func (f SampleFlags) String() string {
	return fmt.Sprintf("0x%08x", uint32(f))
}
