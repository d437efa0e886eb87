package taskqueue

import (
	"fmt"
	"sync/atomic"
	"time"
)

var idSequence atomic.Uint32

// NewID generates a task id of the form {UTC-timestamp}-{sequence}-{kind}.
// Zero-padded nanosecond timestamps combined with a monotonic in-process
// sequence number guarantee that ids generated in creation order also sort
// lexicographically in creation order, even when two ids
// are minted within the same clock tick — the common case for a producer
// emitting a rip/transcode pair back to back.
func NewID(kind Kind) string {
	nanos := time.Now().UTC().UnixNano()
	seq := idSequence.Add(1)
	return fmt.Sprintf("%019d-%04d-%s", nanos, seq%10000, kind)
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}
