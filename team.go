package sidesync

import "time"

// Team represents a set of channels and users in one group.
type Team struct {
	ID                int64     `json:"id"`
	DisplayName       string    `json:"display_name"`
	Admins            []int64   `json:"admins"`
	Members           []int64   `json:"members"`
	Index             int       `json:"index"`
	DefaultChannel    int64     `json:"default_channel,omitempty"`
	UpdatedActionTime time.Time `json:"updated_action_time"`
}

// HasMember reports whether the user belongs to the team.
func (t *Team) HasMember(userID int64) bool {
	return containsID(t.Members, userID)
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
