package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/xqflow/internal/message"
)

// AddMessage appends msg to the named channel.
// Adding a message whose ID the channel already holds is a no-op; the same
// message may wait on any number of channels.
func (s *Store) AddMessage(ctx context.Context, channel string, msg *message.Message) error {
	if msg == nil {
		return fmt.Errorf("add message: nil message")
	}

	headers, err := marshalHeaders(msg.Headers)
	if err != nil {
		return fmt.Errorf("add message: %w", err)
	}
	kind, payload, err := marshalPayload(msg.Payload)
	if err != nil {
		return fmt.Errorf("add message: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO messages (id, channel, created_at, headers, payload_kind, payload)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(channel, id) DO NOTHING
	`,
		msg.ID.String(),
		channel,
		msg.Timestamp.UTC().Format(time.RFC3339Nano),
		headers,
		string(kind),
		payload,
	)
	if err != nil {
		return fmt.Errorf("add message: %w", err)
	}
	return nil
}

// PollMessage removes and returns the oldest message on the channel.
// ok is false when the channel is empty.
//
// A row that cannot be decoded is moved to dead_letters and reported as an
// error naming its seq; the next poll returns the message behind it.
func (s *Store) PollMessage(ctx context.Context, channel string) (*message.Message, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("poll message: %w", err)
	}
	defer tx.Rollback()

	var (
		seq       int64
		id        string
		createdAt string
		headers   string
		kind      string
		payload   []byte
	)
	err = tx.QueryRowContext(ctx, `
		SELECT seq, id, created_at, headers, payload_kind, payload
		FROM messages
		WHERE channel = ?
		ORDER BY seq ASC
		LIMIT 1
	`, channel).Scan(&seq, &id, &createdAt, &headers, &kind, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("poll message: %w", err)
	}

	msg, decodeErr := scanMessage(id, createdAt, headers, kind, payload)
	if decodeErr != nil {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO dead_letters (seq, id, channel, created_at, headers, payload_kind, payload, reason, failed_at)
			SELECT seq, id, channel, created_at, headers, payload_kind, payload, ?, ?
			FROM messages WHERE seq = ?
		`, decodeErr.Error(), time.Now().UTC().Format(time.RFC3339Nano), seq)
		if err != nil {
			return nil, false, fmt.Errorf("poll message: dead-letter seq %d: %w", seq, err)
		}
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM messages WHERE seq = ?`, seq); err != nil {
		return nil, false, fmt.Errorf("poll message: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("poll message: %w", err)
	}
	if decodeErr != nil {
		return nil, false, fmt.Errorf("poll message %s (seq %d) moved to dead letters: %w", id, seq, decodeErr)
	}
	return msg, true, nil
}

// CountDeadLetters returns the number of undecodable messages removed from
// the channel.
func (s *Store) CountDeadLetters(ctx context.Context, channel string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM dead_letters WHERE channel = ?`, channel).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count dead letters: %w", err)
	}
	return n, nil
}

// CountMessages returns the number of messages waiting on the channel.
func (s *Store) CountMessages(ctx context.Context, channel string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE channel = ?`, channel).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}

// Channels returns the names of channels holding messages, sorted.
func (s *Store) Channels(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT channel FROM messages ORDER BY channel ASC`)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("list channels: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	return names, nil
}

func scanMessage(id, createdAt, headers, kind string, payload []byte) (*message.Message, error) {
	msgID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse id: %w", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	h, err := unmarshalHeaders(headers)
	if err != nil {
		return nil, err
	}
	p, err := unmarshalPayload(payloadKind(kind), payload)
	if err != nil {
		return nil, err
	}
	return &message.Message{ID: msgID, Timestamp: ts, Headers: h, Payload: p}, nil
}
