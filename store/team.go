package store

import (
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"github.com/tmitchel/sidesync"
)

type team struct {
	ID                int64         `db:"id"`
	DisplayName       string        `db:"display_name"`
	Index             int           `db:"idx"`
	DefaultChannel    int64         `db:"default_channel"`
	UpdatedActionTime time.Time     `db:"updated_action_time"`
	Members           pq.Int64Array `db:"-"`
	Admins            pq.Int64Array `db:"-"`
}

func teamFromModel(t *sidesync.Team) *team {
	return &team{
		ID:                t.ID,
		DisplayName:       t.DisplayName,
		Index:             t.Index,
		DefaultChannel:    t.DefaultChannel,
		UpdatedActionTime: t.UpdatedActionTime,
		Members:           t.Members,
		Admins:            t.Admins,
	}
}

func (t *team) ToModel() *sidesync.Team {
	return &sidesync.Team{
		ID:                t.ID,
		DisplayName:       t.DisplayName,
		Index:             t.Index,
		DefaultChannel:    t.DefaultChannel,
		UpdatedActionTime: t.UpdatedActionTime,
		Members:           []int64(t.Members),
		Admins:            []int64(t.Admins),
	}
}

func (t *team) fields() []interface{} {
	return []interface{}{&t.ID, &t.DisplayName, &t.Index, &t.DefaultChannel, &t.UpdatedActionTime, &t.Members, &t.Admins}
}

// teamsQuery selects teams with their member and admin ids aggregated.
func teamsQuery() sq.SelectBuilder {
	return psql.Select(
		"t.id", "t.display_name", "t.idx", "t.default_channel", "t.updated_action_time",
		"COALESCE(array_agg(tm.user_id) FILTER (WHERE tm.user_id IS NOT NULL), '{}')",
		"COALESCE(array_agg(tm.user_id) FILTER (WHERE tm.is_admin), '{}')",
	).
		From("teams t").
		LeftJoin("team_members tm ON ( tm.team_id = t.id )").
		GroupBy("t.id").
		OrderBy("t.idx", "t.id")
}
