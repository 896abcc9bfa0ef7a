package store

import (
	"database/sql"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"

	"github.com/tmitchel/sidesync"
)

// Authenticater looks up the credentials needed to log a user in.
type Authenticater interface {
	UserForAuth(email string) (*sidesync.User, error)
}

// UserForAuth returns the user with the given email, password hash
// included.
func (d *database) UserForAuth(email string) (*sidesync.User, error) {
	var u user
	err := psql.Select("id", "display_name", "email", "password", "profile_image").
		From("users").Where(sq.Eq{"email": email}).RunWith(d).QueryRow().
		Scan(&u.ID, &u.DisplayName, &u.Email, &u.Password, &u.ProfileImg)
	if err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return nil, errors.Wrapf(sidesync.ErrNotFound, "user %s", email)
		}
		return nil, errors.Wrap(err, "Error getting user for auth")
	}

	return u.ToModel(), nil
}
