// Package logstore provides the per-channel ordered append-only log used by
// the chat core. The production implementation stores each channel as a Redis
// list; an in-memory implementation exists for tests and single-process use.
package logstore

import "context"

// End selects the last entry of a channel's log when passed as the stop
// index to Range, mirroring Redis LRANGE's -1 sentinel.
const End int64 = -1

// Log is a single logical store of ordered append-only entry sequences,
// keyed by channel name. Entries are opaque serialized records; indices are
// zero-based and contiguous.
type Log interface {
	// Len returns the number of entries in the channel's log. A channel that
	// has never been appended to has length 0.
	Len(ctx context.Context, channel string) (int64, error)

	// Append adds one entry to the end of the channel's log.
	Append(ctx context.Context, channel string, entry []byte) error

	// Range returns entries [start, stop] inclusive, in index order.
	// stop may be End (-1) to read through the last entry.
	Range(ctx context.Context, channel string, start, stop int64) ([][]byte, error)
}
