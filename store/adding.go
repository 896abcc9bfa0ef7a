package store

import (
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
)

// Adder changes the membership of teams and conversations. Every change
// bumps the last change time of the team or conversation so reconnecting
// clients pick it up.
type Adder interface {
	AddTeamMembers(teamID int64, userIDs []int64) error
	AddConversationMembers(conversationID int64, userIDs []int64) error
	RemoveConversationMembers(conversationID int64, userIDs []int64) error
}

func (d *database) AddTeamMembers(teamID int64, userIDs []int64) error {
	err := d.inTx(func(tx *sql.Tx) error {
		if err := upsertMembers(tx, "team_members", "team_id", teamID, userIDs); err != nil {
			return err
		}
		return touch(tx, "teams", teamID)
	})
	return errors.Wrapf(err, "Error adding members to team %d", teamID)
}

func (d *database) AddConversationMembers(conversationID int64, userIDs []int64) error {
	err := d.inTx(func(tx *sql.Tx) error {
		if err := upsertMembers(tx, "conversation_members", "conversation_id", conversationID, userIDs); err != nil {
			return err
		}
		return touch(tx, "conversations", conversationID)
	})
	return errors.Wrapf(err, "Error adding members to conversation %d", conversationID)
}

func (d *database) RemoveConversationMembers(conversationID int64, userIDs []int64) error {
	err := d.inTx(func(tx *sql.Tx) error {
		_, err := psql.Delete("conversation_members").
			Where(sq.Eq{"conversation_id": conversationID, "user_id": userIDs}).
			RunWith(tx).Exec()
		if err != nil {
			return err
		}
		return touch(tx, "conversations", conversationID)
	})
	return errors.Wrapf(err, "Error removing members from conversation %d", conversationID)
}

func upsertMembers(tx *sql.Tx, table, column string, id int64, userIDs []int64) error {
	if len(userIDs) == 0 {
		return nil
	}
	q := psql.Insert(table).Columns(column, "user_id")
	for _, uid := range userIDs {
		q = q.Values(id, uid)
	}
	_, err := q.Suffix("ON CONFLICT DO NOTHING").RunWith(tx).Exec()
	return err
}

func touch(tx *sql.Tx, table string, id int64) error {
	_, err := psql.Update(table).
		Set("updated_action_time", time.Now().UTC()).
		Where(sq.Eq{"id": id}).
		RunWith(tx).Exec()
	return err
}
