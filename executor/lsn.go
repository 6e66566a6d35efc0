package executor

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/barmanhq/barman/catalog"
)

// locationFromLSN derives a WAL segment name and byte offset from a raw
// "<hi>/<lo>" LSN string and the server's WAL segment size, the way the
// exclusive-backup end response requires when it supplies a timeline.
func locationFromLSN(rawLSN string, timeline uint32, walSegSize int64) (catalog.WALLocation, error) {
	hi, lo, err := splitLSN(rawLSN)
	if err != nil {
		return catalog.WALLocation{}, err
	}
	if walSegSize <= 0 {
		walSegSize = 16 * 1024 * 1024
	}

	position := (uint64(hi) << 32) | uint64(lo)
	segSize := uint64(walSegSize)
	segNo := position / segSize
	offset := int64(position % segSize)

	segsPerLog := uint64(0x100000000) / segSize
	logID := segNo / segsPerLog
	segID := segNo % segsPerLog

	name := fmt.Sprintf("%08X%08X%08X", timeline, logID, segID)
	return catalog.WALLocation{Segment: name, Offset: offset, LSN: rawLSN}, nil
}

func splitLSN(raw string) (hi, lo uint32, err error) {
	parts := strings.SplitN(raw, "/", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("executor: malformed LSN %q", raw)
	}
	hiVal, err := strconv.ParseUint(parts[0], 16, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("executor: malformed LSN %q: %w", raw, err)
	}
	loVal, err := strconv.ParseUint(parts[1], 16, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("executor: malformed LSN %q: %w", raw, err)
	}
	return uint32(hiVal), uint32(loVal), nil
}
