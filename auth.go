package sidesync

import "github.com/dgrijalva/jwt-go"

// Claims is the payload of the token the backend issues on login.
type Claims struct {
	UserID        int64  `json:"user_id"`
	Email         string `json:"email"`
	UserName      string `json:"user_name"`
	Authenticated bool   `json:"authenticated"`
	jwt.StandardClaims
}
