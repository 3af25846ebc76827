// Package archive provides PostgreSQL-backed long-term storage of channel
// messages. The archiver service feeds it from the NATS message-event stream;
// the hot path never reads from here.
package archive

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/parley/chat-server/internal/protocol"
)

// Store persists message records in PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore creates an archive store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Save inserts one message for a channel. Replayed events are deduplicated by
// the (channel, idx) unique constraint, so at-least-once delivery from NATS
// is safe.
func (s *Store) Save(ctx context.Context, channel string, m protocol.Message) error {
	const query = `
		INSERT INTO archived_messages (channel, idx, nick, kind, text, ts)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (channel, idx) DO NOTHING`

	_, err := s.db.ExecContext(ctx, query,
		channel,
		m.Index,
		m.Nick,
		m.Type,
		m.Text,
		m.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("archive: insert %s/%d: %w", channel, m.Index, err)
	}
	return nil
}

// Count returns the number of archived messages for a channel.
func (s *Store) Count(ctx context.Context, channel string) (int64, error) {
	const query = `SELECT COUNT(*) FROM archived_messages WHERE channel = $1`

	var count int64
	if err := s.db.QueryRowContext(ctx, query, channel).Scan(&count); err != nil {
		return 0, fmt.Errorf("archive: count %s: %w", channel, err)
	}
	return count, nil
}

// Recent returns the most recent n archived messages for a channel in index
// order. Intended for moderator tooling.
func (s *Store) Recent(ctx context.Context, channel string, n int) ([]protocol.Message, error) {
	const query = `
		SELECT idx, nick, kind, text, ts
		FROM archived_messages
		WHERE channel = $1
		ORDER BY idx DESC
		LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, channel, n)
	if err != nil {
		return nil, fmt.Errorf("archive: recent %s: %w", channel, err)
	}
	defer rows.Close()

	var msgs []protocol.Message
	for rows.Next() {
		var m protocol.Message
		if err := rows.Scan(&m.Index, &m.Nick, &m.Type, &m.Text, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("archive: scan %s: %w", channel, err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("archive: rows %s: %w", channel, err)
	}

	// Flip DESC order back to ascending index order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}
