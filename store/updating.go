package store

import (
	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"

	"github.com/tmitchel/sidesync"
)

// Updater provides methods for changing existing rows.
type Updater interface {
	UpdateMessage(*sidesync.Message) (*sidesync.Message, error)
}

// UpdateMessage overwrites the mutable fields of a stored message. The
// channel, parent and creator never change.
func (d *database) UpdateMessage(m *sidesync.Message) (*sidesync.Message, error) {
	dmessage, err := messageFromModel(m)
	if err != nil {
		return nil, err
	}

	res, err := psql.Update("messages").
		Set("content", dmessage.Content).
		Set("mentions", dmessage.Mentions).
		Set("reactions", dmessage.Reactions).
		Set("is_pinned", dmessage.IsPinned).
		Set("updated_action_time", dmessage.UpdatedActionTime).
		Where(sq.Eq{"id": m.ID, "deleted_at": nil}).
		RunWith(d).Exec()
	if err != nil {
		return nil, errors.Wrapf(err, "Error updating message %d", m.ID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, errors.Wrapf(sidesync.ErrNotFound, "message %d", m.ID)
	}

	return d.GetMessage(m.ID)
}
