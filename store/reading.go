package store

import (
	"database/sql"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
)

// Reader tracks how far each user has read a conversation or thread.
type Reader interface {
	// MarkRead moves the read position forward. A position behind the
	// stored one is ignored.
	MarkRead(userID, targetID int64, thread bool, messageID int64) error
	// LastRead returns the last read message, zero when the user never
	// read the target.
	LastRead(userID, targetID int64, thread bool) (int64, error)
}

func (d *database) MarkRead(userID, targetID int64, thread bool, messageID int64) error {
	_, err := psql.Insert("read_positions").
		Columns("user_id", "target_id", "is_thread", "message_id").
		Values(userID, targetID, thread, messageID).
		Suffix("ON CONFLICT (user_id, target_id, is_thread) DO UPDATE SET message_id = GREATEST(read_positions.message_id, EXCLUDED.message_id)").
		RunWith(d).Exec()
	return errors.Wrapf(err, "Error marking %d read for user %d", targetID, userID)
}

func (d *database) LastRead(userID, targetID int64, thread bool) (int64, error) {
	var id int64
	err := psql.Select("message_id").From("read_positions").
		Where(sq.Eq{"user_id": userID, "target_id": targetID, "is_thread": thread}).
		RunWith(d).QueryRow().Scan(&id)
	if err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return 0, nil
		}
		return 0, errors.Wrapf(err, "Error getting read position of %d", targetID)
	}
	return id, nil
}
