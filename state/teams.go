package state

import (
	"sort"

	"github.com/tmitchel/sidesync"
)

// Team returns a copy of the team with the given id.
func (s *Store) Team(id int64) (*sidesync.Team, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.team(id)
}

// Teams returns every team ordered by index.
func (s *Store) Teams() []*sidesync.Team {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedTeams()
}

// Team returns a copy of the team with the given id.
func (tx *Tx) Team(id int64) (*sidesync.Team, bool) {
	return tx.s.team(id)
}

// Teams returns every team ordered by index.
func (tx *Tx) Teams() []*sidesync.Team {
	return tx.s.sortedTeams()
}

func (s *Store) team(id int64) (*sidesync.Team, bool) {
	t, ok := s.teams[id]
	if !ok {
		return nil, false
	}
	return cloneTeam(t), true
}

func (s *Store) sortedTeams() []*sidesync.Team {
	teams := make([]*sidesync.Team, 0, len(s.teams))
	for _, t := range s.teams {
		teams = append(teams, cloneTeam(t))
	}
	sort.Slice(teams, func(i, j int) bool {
		if teams[i].Index != teams[j].Index {
			return teams[i].Index < teams[j].Index
		}
		return teams[i].ID < teams[j].ID
	})
	return teams
}

// ReplaceTeams substitutes the whole team collection. Teams that are not in
// the new list are removed together with everything that belongs to them.
func (tx *Tx) ReplaceTeams(teams []*sidesync.Team) {
	keep := make(map[int64]bool, len(teams))
	for _, t := range teams {
		keep[t.ID] = true
	}
	for id := range tx.s.teams {
		if !keep[id] {
			tx.DeleteTeam(id)
		}
	}

	tx.s.teams = make(map[int64]*sidesync.Team, len(teams))
	for _, t := range teams {
		tx.s.teams[t.ID] = cloneTeam(t)
	}
}

// MergeTeams inserts new teams and overwrites existing ones by id.
func (tx *Tx) MergeTeams(teams []*sidesync.Team) {
	for _, t := range teams {
		tx.s.teams[t.ID] = cloneTeam(t)
	}
}

// UpsertTeam merges a single team.
func (tx *Tx) UpsertTeam(t *sidesync.Team) {
	tx.MergeTeams([]*sidesync.Team{t})
}

// DeleteTeam removes the team, its conversations and its notifications. If
// the team was selected the view is cleared.
func (tx *Tx) DeleteTeam(id int64) {
	delete(tx.s.teams, id)
	delete(tx.s.teamNotifications, id)
	delete(tx.s.threadNotifications, id)
	delete(tx.s.threads, id)

	for cid, c := range tx.s.conversations {
		if c.Team == id {
			tx.DeleteConversation(cid)
		}
	}

	if tx.s.view.SelectedTeam == id {
		tx.s.view = sidesync.View{}
		tx.s.thread = nil
	}
}

// AddTeamMembers adds users to the team. Unknown teams are ignored.
func (tx *Tx) AddTeamMembers(teamID int64, users ...int64) {
	if t, ok := tx.s.teams[teamID]; ok {
		t.Members = addIDs(t.Members, users...)
	}
}

// RemoveTeamMembers removes users from the team and from its admins.
func (tx *Tx) RemoveTeamMembers(teamID int64, users ...int64) {
	if t, ok := tx.s.teams[teamID]; ok {
		t.Members = removeIDs(t.Members, users...)
		t.Admins = removeIDs(t.Admins, users...)
	}
}

// PromoteTeamAdmins marks users as admins of the team.
func (tx *Tx) PromoteTeamAdmins(teamID int64, users ...int64) {
	if t, ok := tx.s.teams[teamID]; ok {
		t.Admins = addIDs(t.Admins, users...)
	}
}

// DemoteTeamAdmins removes users from the team's admins.
func (tx *Tx) DemoteTeamAdmins(teamID int64, users ...int64) {
	if t, ok := tx.s.teams[teamID]; ok {
		t.Admins = removeIDs(t.Admins, users...)
	}
}
