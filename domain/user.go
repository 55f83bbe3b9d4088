package domain

import "time"

// UserStatus defines the possible statuses of a user account.
type UserStatus string

const (
	UserStatusActive UserStatus = "ACTIVE"
	UserStatusLocked UserStatus = "LOCKED"
)

// User is a resource owner that can authenticate with the password grant.
type User struct {
	ID           string     `bson:"_id,omitempty"  json:"id"`
	Username     string     `bson:"username"       json:"username"`
	PasswordHash string     `bson:"password_hash"  json:"-"`
	Status       UserStatus `bson:"status"         json:"status"`
	Scopes       []string   `bson:"scopes"         json:"scopes,omitempty"`
	CreatedAt    time.Time  `bson:"created_at"     json:"created_at"`
	UpdatedAt    time.Time  `bson:"updated_at"     json:"updated_at"`
}

// IsActive reports whether the user may sign in.
func (u *User) IsActive() bool {
	return u.Status == UserStatusActive
}
