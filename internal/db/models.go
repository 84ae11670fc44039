package db

import "time"

// Session is a persisted edge-service session. KeyHash is the hashed session id;
// the raw id only ever lives in the client's cookie/header. Token holds the
// backend token sealed with a key derived from the raw id.
type Session struct {
	KeyHash    string
	UserID     string
	Token      string
	User       []byte // entities.User as JSON
	Language   string
	ExpiresAt  time.Time
	CreatedAt  time.Time
	LastSeenAt time.Time
}

// Expired reports whether the session is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Schema creates the sessions table used by the Postgres session store.
const Schema = `
CREATE TABLE IF NOT EXISTS sessions (
	key_hash     TEXT PRIMARY KEY,
	user_id      TEXT NOT NULL,
	token        TEXT NOT NULL,
	user_json    JSONB NOT NULL,
	language     TEXT NOT NULL DEFAULT 'vi',
	expires_at   TIMESTAMPTZ NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	last_seen_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS sessions_expires_at_idx ON sessions (expires_at);
`
