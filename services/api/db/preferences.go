package db

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
)

// UserPreference returns the stored JSON value for key, or nil when unset.
func (s *Store) UserPreference(ctx context.Context, key string) (json.RawMessage, error) {
	var value []byte
	err := s.conn.QueryRow(ctx,
		`SELECT preference_value FROM user_preferences WHERE preference_key = $1`, key,
	).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return json.RawMessage(value), nil
}

// SetUserPreference upserts the JSON value stored under key.
func (s *Store) SetUserPreference(ctx context.Context, key string, value json.RawMessage) (Row, error) {
	return collectOne(s.conn.Query(ctx, `
    INSERT INTO user_preferences (preference_key, preference_value)
    VALUES ($1, $2::jsonb)
    ON CONFLICT (preference_key)
    DO UPDATE SET preference_value = EXCLUDED.preference_value
    RETURNING *
`, key, string(value)))
}
