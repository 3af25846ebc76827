package logstore

import (
	"context"
	"sync"
)

// MemoryLog is an in-memory Log implementation with the same index semantics
// as RedisLog. It is goroutine-safe and intended for tests and single-process
// deployments without Redis.
type MemoryLog struct {
	mu   sync.RWMutex
	logs map[string][][]byte
}

// NewMemoryLog creates an empty in-memory log store.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{logs: make(map[string][][]byte)}
}

// Len returns the number of entries appended to the channel.
func (l *MemoryLog) Len(_ context.Context, channel string) (int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return int64(len(l.logs[channel])), nil
}

// Append adds one entry to the end of the channel's log. The entry bytes are
// copied so callers may reuse their buffer.
func (l *MemoryLog) Append(_ context.Context, channel string, entry []byte) error {
	stored := make([]byte, len(entry))
	copy(stored, entry)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.logs[channel] = append(l.logs[channel], stored)
	return nil
}

// Range returns entries [start, stop] inclusive. Negative bounds count back
// from the last entry, so a stop of End (-1) reads through the end and a
// start of -1 selects only the last entry; out-of-range bounds are clamped.
// These are exactly LRANGE's offset semantics.
func (l *MemoryLog) Range(_ context.Context, channel string, start, stop int64) ([][]byte, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	entries := l.logs[channel]
	length := int64(len(entries))

	if start < 0 {
		start = length + start
		if start < 0 {
			start = 0
		}
	}
	if stop < 0 {
		stop = length + stop
	}
	if stop >= length {
		stop = length - 1
	}
	if start > stop || length == 0 {
		return [][]byte{}, nil
	}

	out := make([][]byte, 0, stop-start+1)
	for i := start; i <= stop; i++ {
		out = append(out, entries[i])
	}
	return out, nil
}
