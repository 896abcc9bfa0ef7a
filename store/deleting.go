package store

import (
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"

	"github.com/tmitchel/sidesync"
)

// Deleter provides methods for removing rows.
type Deleter interface {
	DeleteMessage(id int64, at time.Time) (*sidesync.Message, error)
}

// DeleteMessage marks the message deleted at the given time and returns
// it as it was. Deleted messages stay in the table so reconnecting clients
// can be told about them.
func (d *database) DeleteMessage(id int64, at time.Time) (*sidesync.Message, error) {
	m, err := d.GetMessage(id)
	if err != nil {
		return nil, err
	}

	_, err = psql.Update("messages").
		Set("deleted_at", at).
		Where(sq.Eq{"id": id, "deleted_at": nil}).
		RunWith(d).Exec()
	if err != nil {
		return nil, errors.Wrapf(err, "Error deleting message %d", id)
	}
	return m, nil
}
