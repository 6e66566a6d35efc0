package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitLSNParsesHexPair(t *testing.T) {
	hi, lo, err := splitLSN("2/A1000028")
	require.NoError(t, err)
	assert.Equal(t, uint32(2), hi)
	assert.Equal(t, uint32(0xA1000028), lo)
}

func TestSplitLSNRejectsMalformed(t *testing.T) {
	_, _, err := splitLSN("not-an-lsn")
	assert.Error(t, err)

	_, _, err = splitLSN("2/ZZZZZZZZ")
	assert.Error(t, err)
}

func TestLocationFromLSNDerivesSegmentName(t *testing.T) {
	// position 0 lands in timeline 1, log 0, seg 0.
	loc, err := locationFromLSN("0/0", 1, 16*1024*1024)
	require.NoError(t, err)
	assert.Equal(t, "000000010000000000000000", loc.Segment)
	assert.Equal(t, int64(0), loc.Offset)
}

func TestLocationFromLSNAdvancesSegmentAcrossBoundary(t *testing.T) {
	segSize := int64(16 * 1024 * 1024)
	// exactly one segment past the start: seg 1, offset 0.
	loc, err := locationFromLSN("0/1000000", 1, segSize)
	require.NoError(t, err)
	assert.Equal(t, "000000010000000000000001", loc.Segment)
	assert.Equal(t, int64(0), loc.Offset)
}

func TestLocationFromLSNComputesOffsetWithinSegment(t *testing.T) {
	segSize := int64(16 * 1024 * 1024)
	loc, err := locationFromLSN("0/1000028", 1, segSize)
	require.NoError(t, err)
	assert.Equal(t, "000000010000000000000001", loc.Segment)
	assert.Equal(t, int64(0x28), loc.Offset)
}

func TestLocationFromLSNDefaultsSegSize(t *testing.T) {
	loc, err := locationFromLSN("0/0", 1, 0)
	require.NoError(t, err)
	assert.Equal(t, "000000010000000000000000", loc.Segment)
}

func TestLocationFromLSNRejectsMalformedLSN(t *testing.T) {
	_, err := locationFromLSN("garbage", 1, 16*1024*1024)
	assert.Error(t, err)
}
