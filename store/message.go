package store

import (
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/goccy/go-json"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/tmitchel/sidesync"
)

type message struct {
	ID                int64         `db:"id"`
	TempID            string        `db:"temp_id"`
	Channel           int64         `db:"channel_id"`
	Parent            int64         `db:"parent_id"`
	Creator           int64         `db:"creator_id"`
	Content           string        `db:"content"`
	Mentions          pq.Int64Array `db:"mentions"`
	Reactions         []byte        `db:"reactions"`
	IsPinned          bool          `db:"is_pinned"`
	Created           time.Time     `db:"created_at"`
	UpdatedActionTime time.Time     `db:"updated_action_time"`
}

var messageColumns = []string{
	"id", "temp_id", "channel_id", "parent_id", "creator_id", "content",
	"mentions", "reactions", "is_pinned", "created_at", "updated_action_time",
}

// messageFromModel converts the normal sidesync.Message model
// into a message which has properties only useful for the
// database. Reactions are stored as a JSON document.
func messageFromModel(m *sidesync.Message) (*message, error) {
	reactions := m.Reactions
	if reactions == nil {
		reactions = []sidesync.Reaction{}
	}
	encoded, err := json.Marshal(reactions)
	if err != nil {
		return nil, errors.Wrap(err, "encoding reactions")
	}
	mentions := pq.Int64Array(m.Mentions)
	if mentions == nil {
		mentions = pq.Int64Array{}
	}
	return &message{
		ID:                m.ID,
		TempID:            m.TempID,
		Channel:           m.Channel,
		Parent:            m.Parent,
		Creator:           m.Creator,
		Content:           m.Content,
		Mentions:          mentions,
		Reactions:         encoded,
		IsPinned:          m.IsPinned,
		Created:           m.Created,
		UpdatedActionTime: m.UpdatedActionTime,
	}, nil
}

func (m *message) ToModel() (*sidesync.Message, error) {
	out := &sidesync.Message{
		ID:                m.ID,
		TempID:            m.TempID,
		Channel:           m.Channel,
		Parent:            m.Parent,
		Creator:           m.Creator,
		Content:           m.Content,
		IsPinned:          m.IsPinned,
		Created:           m.Created,
		UpdatedActionTime: m.UpdatedActionTime,
	}
	if len(m.Mentions) > 0 {
		out.Mentions = []int64(m.Mentions)
	}
	if len(m.Reactions) > 0 {
		if err := json.Unmarshal(m.Reactions, &out.Reactions); err != nil {
			return nil, errors.Wrapf(err, "decoding reactions of %d", m.ID)
		}
		if len(out.Reactions) == 0 {
			out.Reactions = nil
		}
	}
	return out, nil
}

func (m *message) fields() []interface{} {
	return []interface{}{
		&m.ID, &m.TempID, &m.Channel, &m.Parent, &m.Creator, &m.Content,
		&m.Mentions, &m.Reactions, &m.IsPinned, &m.Created, &m.UpdatedActionTime,
	}
}

func prefixed(prefix string, cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = prefix + "." + c
	}
	return out
}

// messagesQuery builds the listing query for f. Soft-deleted messages are
// never listed.
func messagesQuery(f MessageFilter) sq.SelectBuilder {
	q := psql.Select(messageColumns...).
		From("messages").
		Where(sq.Eq{"channel_id": f.Channel, "deleted_at": nil})

	if f.Changed {
		q = q.Where(sq.Gt{"updated_action_time": f.ChangedSince})
	} else {
		q = q.Where(sq.Eq{"parent_id": f.Parent})
	}
	if !f.After.IsZero() {
		q = q.Where(sq.Gt{"created_at": f.After})
	}
	if f.AfterID != 0 {
		q = q.Where(sq.Gt{"id": f.AfterID})
	}

	if f.Latest {
		q = q.OrderBy("created_at DESC", "id DESC")
	} else {
		q = q.OrderBy("created_at", "id")
	}
	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit))
	}
	return q
}

// threadRootsQuery selects the roots with replies in a team's
// conversations that userID started or replied to, most recent activity
// first.
func threadRootsQuery(teamID, userID int64) sq.SelectBuilder {
	const hasReplies = "EXISTS (SELECT 1 FROM messages r WHERE r.parent_id = m.id AND r.deleted_at IS NULL)"
	const repliedBy = "EXISTS (SELECT 1 FROM messages r WHERE r.parent_id = m.id AND r.deleted_at IS NULL AND r.creator_id = ?)"

	return psql.Select(prefixed("m", messageColumns)...).
		From("messages m").
		Join("conversations c ON ( c.id = m.channel_id )").
		Where(sq.Eq{"c.team_id": teamID, "m.parent_id": 0, "m.deleted_at": nil}).
		Where(sq.Expr(hasReplies)).
		Where(sq.Or{sq.Eq{"m.creator_id": userID}, sq.Expr(repliedBy, userID)}).
		OrderBy("m.updated_action_time DESC", "m.id DESC")
}
