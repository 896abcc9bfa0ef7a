package store

import (
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"

	"github.com/tmitchel/sidesync"
)

// Getter provides methods for retrieiving different sets of
// data from the database.
type Getter interface {
	GetUser(id int64) (*sidesync.User, error)
	GetTeam(id int64) (*sidesync.Team, error)
	GetTeamsForUser(userID int64) ([]*sidesync.Team, error)
	GetConversation(id int64) (*sidesync.Conversation, error)
	GetConversationsForTeam(teamID int64) ([]*sidesync.Conversation, error)
	GetDMGsForUser(userID int64) ([]*sidesync.Conversation, error)
	GetMessage(id int64) (*sidesync.Message, error)
	GetMessages(f MessageFilter) ([]*sidesync.Message, error)
	GetRemovedMessages(channelID int64, since time.Time) ([]int64, error)
	GetThreadRoots(teamID, userID int64) ([]*sidesync.Message, error)
}

// GetUser returns the user with the given id.
func (d *database) GetUser(id int64) (*sidesync.User, error) {
	var u user
	err := psql.Select("id", "display_name", "email", "password", "profile_image").
		From("users").Where(sq.Eq{"id": id}).RunWith(d).QueryRow().
		Scan(&u.ID, &u.DisplayName, &u.Email, &u.Password, &u.ProfileImg)
	if err != nil {
		return nil, notFound(err, "user", id)
	}

	return u.ToModel(), nil
}

func (d *database) GetTeam(id int64) (*sidesync.Team, error) {
	var t team
	err := teamsQuery().Where(sq.Eq{"t.id": id}).RunWith(d).QueryRow().Scan(t.fields()...)
	if err != nil {
		return nil, notFound(err, "team", id)
	}
	return t.ToModel(), nil
}

// GetTeamsForUser returns all teams the given user is a member of.
func (d *database) GetTeamsForUser(userID int64) ([]*sidesync.Team, error) {
	rows, err := teamsQuery().
		Where(sq.Expr("t.id IN (SELECT team_id FROM team_members WHERE user_id = ?)", userID)).
		RunWith(d).Query()
	if err != nil {
		return nil, errors.Wrapf(err, "Error getting teams of user %d", userID)
	}
	defer rows.Close()

	var teams []*sidesync.Team
	for rows.Next() {
		var t team
		if err := rows.Scan(t.fields()...); err != nil {
			return nil, errors.Wrap(err, "Error scanning team")
		}
		teams = append(teams, t.ToModel())
	}
	return teams, rows.Err()
}

func (d *database) GetConversation(id int64) (*sidesync.Conversation, error) {
	var c conversation
	err := conversationsQuery().Where(sq.Eq{"c.id": id}).RunWith(d).QueryRow().Scan(c.fields()...)
	if err != nil {
		return nil, notFound(err, "conversation", id)
	}
	return c.ToModel()
}

// GetConversationsForTeam returns every channel of the team, private ones
// included. Callers filter by membership.
func (d *database) GetConversationsForTeam(teamID int64) ([]*sidesync.Conversation, error) {
	return d.queryConversations(conversationsQuery().Where(sq.Eq{"c.team_id": teamID}))
}

// GetDMGsForUser returns the group and direct messages the user is in.
func (d *database) GetDMGsForUser(userID int64) ([]*sidesync.Conversation, error) {
	return d.queryConversations(conversationsQuery().
		Where(sq.Eq{"c.kind": []string{"group", "direct"}}).
		Where(sq.Expr("c.id IN (SELECT conversation_id FROM conversation_members WHERE user_id = ?)", userID)))
}

func (d *database) queryConversations(q sq.SelectBuilder) ([]*sidesync.Conversation, error) {
	rows, err := q.RunWith(d).Query()
	if err != nil {
		return nil, errors.Wrap(err, "Error getting conversations")
	}
	defer rows.Close()

	var convs []*sidesync.Conversation
	for rows.Next() {
		var c conversation
		if err := rows.Scan(c.fields()...); err != nil {
			return nil, errors.Wrap(err, "Error scanning conversation")
		}
		model, err := c.ToModel()
		if err != nil {
			return nil, err
		}
		convs = append(convs, model)
	}
	return convs, rows.Err()
}

// GetMessage returns a message that has not been deleted.
func (d *database) GetMessage(id int64) (*sidesync.Message, error) {
	var m message
	err := psql.Select(messageColumns...).
		From("messages").Where(sq.Eq{"id": id, "deleted_at": nil}).
		RunWith(d).QueryRow().Scan(m.fields()...)
	if err != nil {
		return nil, notFound(err, "message", id)
	}
	return m.ToModel()
}

// GetMessages lists the messages selected by f, oldest first.
func (d *database) GetMessages(f MessageFilter) ([]*sidesync.Message, error) {
	msgs, err := d.queryMessages(messagesQuery(f))
	if err != nil {
		return nil, errors.Wrapf(err, "Error getting messages of %d", f.Channel)
	}
	if f.Latest {
		for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
			msgs[i], msgs[j] = msgs[j], msgs[i]
		}
	}
	return msgs, nil
}

// GetThreadRoots returns the thread roots of a team the user takes part
// in, most recent activity first.
func (d *database) GetThreadRoots(teamID, userID int64) ([]*sidesync.Message, error) {
	msgs, err := d.queryMessages(threadRootsQuery(teamID, userID))
	if err != nil {
		return nil, errors.Wrapf(err, "Error getting threads of team %d", teamID)
	}
	return msgs, nil
}

func (d *database) queryMessages(q sq.SelectBuilder) ([]*sidesync.Message, error) {
	rows, err := q.RunWith(d).Query()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []*sidesync.Message
	for rows.Next() {
		var m message
		if err := rows.Scan(m.fields()...); err != nil {
			return nil, errors.Wrap(err, "Error scanning message")
		}
		model, err := m.ToModel()
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, model)
	}
	return msgs, rows.Err()
}

// GetRemovedMessages returns the ids of the channel's messages deleted
// after since.
func (d *database) GetRemovedMessages(channelID int64, since time.Time) ([]int64, error) {
	rows, err := psql.Select("id").From("messages").
		Where(sq.Eq{"channel_id": channelID}).
		Where(sq.Gt{"deleted_at": since}).
		OrderBy("id").
		RunWith(d).Query()
	if err != nil {
		return nil, errors.Wrapf(err, "Error getting removed messages of %d", channelID)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "Error scanning message id")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
