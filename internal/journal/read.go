package journal

import (
	"context"
	"fmt"
)

// ActionRecord is one journaled action.
type ActionRecord struct {
	ID      int64
	Session string
	Seq     int64
	Channel string
	Payload string
	Tags    []string
}

// ChangeRecord is one journaled store change.
type ChangeRecord struct {
	ID        int64
	Session   string
	ActionSeq int64
	Channel   string
	StoreID   string
	State     string
	StateHash string
	Tags      []string
}

// ListSessions returns session tokens in the order they were first seen.
func (j *Journal) ListSessions(ctx context.Context) ([]string, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id FROM sessions ORDER BY ordinal ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// ReadActions returns the actions of a session in dispatch order.
func (j *Journal) ReadActions(ctx context.Context, session string) ([]ActionRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, session, seq, channel, payload, tags
		FROM actions
		WHERE session = ?
		ORDER BY id ASC
	`, session)
	if err != nil {
		return nil, fmt.Errorf("query actions: %w", err)
	}
	defer rows.Close()

	records := []ActionRecord{}
	for rows.Next() {
		var (
			r    ActionRecord
			tags string
		)
		if err := rows.Scan(&r.ID, &r.Session, &r.Seq, &r.Channel, &r.Payload, &tags); err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		r.Tags = splitTags(tags)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate actions: %w", err)
	}
	return records, nil
}

// ReadChanges returns the store changes of a session in broadcast order.
func (j *Journal) ReadChanges(ctx context.Context, session string) ([]ChangeRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, session, action_seq, channel, store_id, state, state_hash, tags
		FROM changes
		WHERE session = ?
		ORDER BY id ASC
	`, session)
	if err != nil {
		return nil, fmt.Errorf("query changes: %w", err)
	}
	defer rows.Close()

	records := []ChangeRecord{}
	for rows.Next() {
		var (
			r    ChangeRecord
			tags string
		)
		if err := rows.Scan(&r.ID, &r.Session, &r.ActionSeq, &r.Channel, &r.StoreID, &r.State, &r.StateHash, &tags); err != nil {
			return nil, fmt.Errorf("scan change: %w", err)
		}
		r.Tags = splitTags(tags)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate changes: %w", err)
	}
	return records, nil
}
