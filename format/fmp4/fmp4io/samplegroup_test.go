package fmp4io

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSampleToGroupRoll(t *testing.T) {
	sbgp := SampleToGroup{
		GroupingType: GroupingRoll,
		Entries: []SampleToGroupEntry{
			{SampleCount: 5, GroupDescriptionIndex: TrackGroupDescriptionIndexBase + 1},
		},
	}
	b := marshalAtom(t, sbgp)
	assert.Equal(t, []byte{
		0, 0, 0, 28, 's', 'b', 'g', 'p',
		0, 0, 0, 0,
		'r', 'o', 'l', 'l',
		0, 0, 0, 1,
		0, 0, 0, 5,
		0, 0, 0, 1,
	}, b)
}

func TestSampleToGroupVersion1(t *testing.T) {
	sbgp := SampleToGroup{
		FullAtom:              FullAtom{Version: 1},
		GroupingType:          GroupingSeig,
		GroupingTypeParameter: 9,
		Entries: []SampleToGroupEntry{
			{SampleCount: 2, GroupDescriptionIndex: TrackFragmentGroupDescriptionIndexBase + 1},
		},
	}
	b := marshalAtom(t, sbgp)
	assert.Len(t, b, 32)
	assert.Equal(t, []byte{0, 0, 0, 9}, b[16:20])
	assert.Equal(t, []byte{0, 1, 0, 1}, b[28:32])
}

type rawEntry []byte

func (e rawEntry) Len() int             { return len(e) }
func (e rawEntry) Marshal(b []byte) int { return copy(b, e) }

func TestSampleGroupDescriptionDefaultLength(t *testing.T) {
	sgpd := SampleGroupDescription{
		GroupingType: GroupingRoll,
		Entries:      []SampleGroupEntry{RollRecoveryEntry{RollDistance: -2}},
	}
	b := marshalAtom(t, sgpd)
	assert.Equal(t, []byte{
		0, 0, 0, 26, 's', 'g', 'p', 'd',
		1, 0, 0, 0,
		'r', 'o', 'l', 'l',
		0, 0, 0, 2,
		0, 0, 0, 1,
		0xff, 0xfe,
	}, b)
}

func TestSampleGroupDescriptionVariableLength(t *testing.T) {
	sgpd := SampleGroupDescription{
		FullAtom:     FullAtom{Version: 0},
		GroupingType: GroupingSeig,
		Entries:      []SampleGroupEntry{rawEntry{1, 2}, rawEntry{3, 4, 5}},
	}
	b := marshalAtom(t, sgpd)
	assert.Equal(t, []byte{
		0, 0, 0, 37, 's', 'g', 'p', 'd',
		1, 0, 0, 0,
		's', 'e', 'i', 'g',
		0, 0, 0, 0,
		0, 0, 0, 2,
		0, 0, 0, 2, 1, 2,
		0, 0, 0, 3, 3, 4, 5,
	}, b)
}

func TestSampleFlags(t *testing.T) {
	assert.True(t, SyncSampleFlags(true).IsSync())
	assert.False(t, SyncSampleFlags(false).IsSync())
	assert.Equal(t, SampleIsNonSync, SyncSampleFlags(false))
	assert.Equal(t, "0x00010000", SampleIsNonSync.String())
}
