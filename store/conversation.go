package store

import (
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/tmitchel/sidesync"
)

type conversation struct {
	ID                int64         `db:"id"`
	Kind              string        `db:"kind"`
	Name              string        `db:"display_name"`
	Slug              string        `db:"slug"`
	Details           string        `db:"details"`
	Team              int64         `db:"team_id"`
	IsArchived        bool          `db:"is_archived"`
	UpdatedActionTime time.Time     `db:"updated_action_time"`
	Members           pq.Int64Array `db:"-"`
	Admins            pq.Int64Array `db:"-"`
}

// conversationFromModel converts the normal sidesync.Conversation model
// into a conversation which has properties only useful for the
// database. Per-user fields like read state are dropped.
func conversationFromModel(c *sidesync.Conversation) (*conversation, error) {
	kind, err := c.Type.MarshalText()
	if err != nil {
		return nil, err
	}
	return &conversation{
		ID:                c.ID,
		Kind:              string(kind),
		Name:              c.Name,
		Slug:              c.Slug,
		Details:           c.Details,
		Team:              c.Team,
		IsArchived:        c.IsArchived,
		UpdatedActionTime: c.UpdatedActionTime,
		Members:           c.Members,
		Admins:            c.Admins,
	}, nil
}

func (c *conversation) ToModel() (*sidesync.Conversation, error) {
	var kind sidesync.ConversationType
	if err := kind.UnmarshalText([]byte(c.Kind)); err != nil {
		return nil, errors.Wrapf(err, "conversation %d", c.ID)
	}
	return &sidesync.Conversation{
		ID:                c.ID,
		Type:              kind,
		Name:              c.Name,
		Slug:              c.Slug,
		Details:           c.Details,
		Team:              c.Team,
		IsArchived:        c.IsArchived,
		UpdatedActionTime: c.UpdatedActionTime,
		Members:           []int64(c.Members),
		Admins:            []int64(c.Admins),
	}, nil
}

func (c *conversation) fields() []interface{} {
	return []interface{}{
		&c.ID, &c.Kind, &c.Name, &c.Slug, &c.Details, &c.Team, &c.IsArchived, &c.UpdatedActionTime,
		&c.Members, &c.Admins,
	}
}

// conversationsQuery selects conversations with their member and admin
// ids aggregated.
func conversationsQuery() sq.SelectBuilder {
	return psql.Select(
		"c.id", "c.kind", "c.display_name", "c.slug", "c.details", "c.team_id", "c.is_archived", "c.updated_action_time",
		"COALESCE(array_agg(cm.user_id) FILTER (WHERE cm.user_id IS NOT NULL), '{}')",
		"COALESCE(array_agg(cm.user_id) FILTER (WHERE cm.is_admin), '{}')",
	).
		From("conversations c").
		LeftJoin("conversation_members cm ON ( cm.conversation_id = c.id )").
		GroupBy("c.id").
		OrderBy("c.id")
}
