package store

import (
	"github.com/tmitchel/sidesync"
)

type user struct {
	ID          int64  `db:"id"`
	DisplayName string `db:"display_name"`
	Email       string `db:"email"`
	Password    []byte `db:"password"`
	ProfileImg  string `db:"profile_image"`
}

// userFromModel converts the normal sidesync.User model
// into a user which has properties only useful for the
// database.
func userFromModel(u *sidesync.User) *user {
	return &user{
		ID:          u.ID,
		DisplayName: u.DisplayName,
		Email:       u.Email,
		Password:    u.Password,
		ProfileImg:  u.ProfileImg,
	}
}

func (u *user) ToModel() *sidesync.User {
	return &sidesync.User{
		ID:          u.ID,
		DisplayName: u.DisplayName,
		Email:       u.Email,
		Password:    u.Password,
		ProfileImg:  u.ProfileImg,
	}
}
