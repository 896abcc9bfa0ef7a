package store

import (
	"database/sql"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"

	"github.com/tmitchel/sidesync"
)

// Creater provides methods for inserting new rows. Ids are assigned by the
// database and returned on the created model.
type Creater interface {
	CreateUser(*sidesync.User) (*sidesync.User, error)
	CreateTeam(*sidesync.Team) (*sidesync.Team, error)
	CreateConversation(*sidesync.Conversation) (*sidesync.Conversation, error)
	CreateMessage(*sidesync.Message) (*sidesync.Message, error)
	RegisterDevice(userID int64, token string) error
}

// CreateUser stores u. The password must already be hashed.
func (d *database) CreateUser(u *sidesync.User) (*sidesync.User, error) {
	duser := userFromModel(u)
	err := psql.Insert("users").
		Columns("display_name", "email", "password", "profile_image").
		Values(duser.DisplayName, duser.Email, duser.Password, duser.ProfileImg).
		Suffix("RETURNING id").
		RunWith(d).QueryRow().Scan(&duser.ID)
	if err != nil {
		return nil, errors.Wrapf(err, "Error creating user %s", u.Email)
	}

	return duser.ToModel(), nil
}

func (d *database) CreateTeam(t *sidesync.Team) (*sidesync.Team, error) {
	dteam := teamFromModel(t)
	err := d.inTx(func(tx *sql.Tx) error {
		err := psql.Insert("teams").
			Columns("display_name", "idx", "default_channel", "updated_action_time").
			Values(dteam.DisplayName, dteam.Index, dteam.DefaultChannel, dteam.UpdatedActionTime).
			Suffix("RETURNING id").
			RunWith(tx).QueryRow().Scan(&dteam.ID)
		if err != nil {
			return err
		}
		return insertMembers(tx, "team_members", "team_id", dteam.ID, t.Members, t.Admins)
	})
	if err != nil {
		return nil, errors.Wrapf(err, "Error creating team %s", t.DisplayName)
	}
	return dteam.ToModel(), nil
}

func (d *database) CreateConversation(c *sidesync.Conversation) (*sidesync.Conversation, error) {
	dconv, err := conversationFromModel(c)
	if err != nil {
		return nil, err
	}

	err = d.inTx(func(tx *sql.Tx) error {
		err := psql.Insert("conversations").
			Columns("kind", "display_name", "slug", "details", "team_id", "is_archived", "updated_action_time").
			Values(dconv.Kind, dconv.Name, dconv.Slug, dconv.Details, dconv.Team, dconv.IsArchived, dconv.UpdatedActionTime).
			Suffix("RETURNING id").
			RunWith(tx).QueryRow().Scan(&dconv.ID)
		if err != nil {
			return err
		}
		return insertMembers(tx, "conversation_members", "conversation_id", dconv.ID, c.Members, c.Admins)
	})
	if err != nil {
		return nil, errors.Wrapf(err, "Error creating conversation %s", c.Name)
	}
	return dconv.ToModel()
}

// CreateMessage stores m. A reply also bumps the last change of its root
// so thread listings see the activity.
func (d *database) CreateMessage(m *sidesync.Message) (*sidesync.Message, error) {
	dmessage, err := messageFromModel(m)
	if err != nil {
		return nil, err
	}

	err = d.inTx(func(tx *sql.Tx) error {
		err := psql.Insert("messages").
			Columns(messageColumns[1:]...).
			Values(dmessage.TempID, dmessage.Channel, dmessage.Parent, dmessage.Creator, dmessage.Content,
				dmessage.Mentions, dmessage.Reactions, dmessage.IsPinned, dmessage.Created, dmessage.UpdatedActionTime).
			Suffix("RETURNING id").
			RunWith(tx).QueryRow().Scan(&dmessage.ID)
		if err != nil {
			return err
		}
		if m.Parent == 0 {
			return nil
		}
		_, err = psql.Update("messages").
			Set("updated_action_time", dmessage.UpdatedActionTime).
			Where(sq.Eq{"id": m.Parent}).
			RunWith(tx).Exec()
		return err
	})
	if err != nil {
		return nil, errors.Wrapf(err, "Error creating message in %d", m.Channel)
	}
	return dmessage.ToModel()
}

func (d *database) RegisterDevice(userID int64, token string) error {
	_, err := psql.Insert("devices").
		Columns("user_id", "token").Values(userID, token).
		Suffix("ON CONFLICT DO NOTHING").
		RunWith(d).Exec()
	return errors.Wrapf(err, "Error registering device of user %d", userID)
}

func insertMembers(tx *sql.Tx, table, column string, id int64, members, admins []int64) error {
	if len(members) == 0 {
		return nil
	}
	q := psql.Insert(table).Columns(column, "user_id", "is_admin")
	for _, uid := range members {
		q = q.Values(id, uid, containsID(admins, uid))
	}
	_, err := q.RunWith(tx).Exec()
	return err
}

// inTx runs fn in a transaction and commits it when fn succeeds.
func (d *database) inTx(fn func(tx *sql.Tx) error) error {
	tx, err := d.Begin()
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
