// Package store persists the backend's teams, conversations, messages and
// read positions. The postgres implementation is used in production and
// NewMemory backs tests and local runs.
package store

import (
	"database/sql"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"

	"github.com/tmitchel/sidesync"

	_ "github.com/lib/pq" // postgres drivers
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// MessageFilter selects messages of one channel, oldest first.
type MessageFilter struct {
	Channel int64
	// Parent selects the replies of a thread. Zero selects top-level
	// messages.
	Parent int64
	// After and AfterID are exclusive lower bounds.
	After   time.Time
	AfterID int64
	// Changed selects every message of the channel, replies included,
	// whose last change is after ChangedSince. Parent is ignored.
	Changed      bool
	ChangedSince time.Time
	Limit        int
	// Latest picks the newest Limit messages instead of the oldest.
	Latest bool
}

// Database provides methods to query the database.
type Database interface {
	Getter
	Creater
	Adder
	Updater
	Deleter
	Authenticater
	Reader

	Close()
}

type database struct {
	*sql.DB
}

// New connects to the postgres database
// and returns that connection.
func New(psqlInfo string) (Database, error) {
	db, err := sql.Open("postgres", psqlInfo)
	if err != nil {
		return nil, errors.Wrap(err, "Error opening database")
	}

	// make sure we have a good connection
	err = db.Ping()
	if err != nil {
		return nil, errors.Wrap(err, "Error pinging database")
	}

	return &database{db}, nil
}

// NewWithMigration connects like New and creates any missing table.
func NewWithMigration(psqlInfo string) (Database, error) {
	db, err := New(psqlInfo)
	if err != nil {
		return nil, err
	}
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.(*database).Exec(stmt); err != nil {
			db.Close()
			return nil, errors.Wrap(err, "Error migrating database")
		}
	}
	return db, nil
}

// Close closes the database.
func (d *database) Close() {
	d.DB.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id BIGSERIAL PRIMARY KEY,
	display_name TEXT NOT NULL,
	email TEXT UNIQUE NOT NULL,
	password BYTEA NOT NULL,
	profile_image TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS teams (
	id BIGSERIAL PRIMARY KEY,
	display_name TEXT NOT NULL,
	idx INTEGER NOT NULL DEFAULT 0,
	default_channel BIGINT NOT NULL DEFAULT 0,
	updated_action_time TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS team_members (
	team_id BIGINT REFERENCES teams(id) ON DELETE CASCADE,
	user_id BIGINT REFERENCES users(id) ON DELETE CASCADE,
	is_admin BOOLEAN NOT NULL DEFAULT false,
	PRIMARY KEY (team_id, user_id)
);
CREATE TABLE IF NOT EXISTS conversations (
	id BIGSERIAL PRIMARY KEY,
	kind TEXT NOT NULL,
	display_name TEXT NOT NULL DEFAULT '',
	slug TEXT NOT NULL DEFAULT '',
	details TEXT NOT NULL DEFAULT '',
	team_id BIGINT NOT NULL DEFAULT 0,
	is_archived BOOLEAN NOT NULL DEFAULT false,
	updated_action_time TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS conversation_members (
	conversation_id BIGINT REFERENCES conversations(id) ON DELETE CASCADE,
	user_id BIGINT REFERENCES users(id) ON DELETE CASCADE,
	is_admin BOOLEAN NOT NULL DEFAULT false,
	PRIMARY KEY (conversation_id, user_id)
);
CREATE TABLE IF NOT EXISTS messages (
	id BIGSERIAL PRIMARY KEY,
	temp_id TEXT NOT NULL DEFAULT '',
	channel_id BIGINT REFERENCES conversations(id) ON DELETE CASCADE,
	parent_id BIGINT NOT NULL DEFAULT 0,
	creator_id BIGINT NOT NULL,
	content TEXT NOT NULL,
	mentions BIGINT[] NOT NULL DEFAULT '{}',
	reactions JSONB NOT NULL DEFAULT '[]',
	is_pinned BOOLEAN NOT NULL DEFAULT false,
	created_at TIMESTAMPTZ NOT NULL,
	updated_action_time TIMESTAMPTZ NOT NULL,
	deleted_at TIMESTAMPTZ
);
CREATE TABLE IF NOT EXISTS read_positions (
	user_id BIGINT REFERENCES users(id) ON DELETE CASCADE,
	target_id BIGINT NOT NULL,
	is_thread BOOLEAN NOT NULL,
	message_id BIGINT NOT NULL,
	PRIMARY KEY (user_id, target_id, is_thread)
);
CREATE TABLE IF NOT EXISTS devices (
	user_id BIGINT REFERENCES users(id) ON DELETE CASCADE,
	token TEXT NOT NULL,
	PRIMARY KEY (user_id, token)
)`

// notFound turns a missing row into sidesync.ErrNotFound.
func notFound(err error, what string, id int64) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return errors.Wrapf(sidesync.ErrNotFound, "%s %d", what, id)
	}
	return errors.Wrapf(err, "Error getting %s %d", what, id)
}
