package store

import (
	"fmt"
	"strconv"
	"strings"
)

func formatToken(lastTs, lastSeq int64) string {
	return fmt.Sprintf("%d_%d", lastTs, lastSeq)
}

func parseToken(s string) (PageToken, error) {
	parts := strings.SplitN(s, "_", 2)
	if len(parts) != 2 {
		return PageToken{}, fmt.Errorf("store: malformed page token %q", s)
	}
	ts, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return PageToken{}, fmt.Errorf("store: malformed page token %q: %w", s, err)
	}
	seq, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return PageToken{}, fmt.Errorf("store: malformed page token %q: %w", s, err)
	}
	return PageToken{LastTs: ts, LastSeq: seq}, nil
}
