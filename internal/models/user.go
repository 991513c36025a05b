package models

import "time"

// User is a profile record stored at users/<username>.
type User struct {
	Username     string    `json:"username"`
	DisplayName  string    `json:"display_name,omitempty"`
	Bio          string    `json:"bio,omitempty"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Profile leaf names.
const (
	FieldUsername     = "username"
	FieldDisplayName  = "display_name"
	FieldBio          = "bio"
	FieldPasswordHash = "password_hash"
	FieldCreatedAt    = "created_at"
)

// ToRecord flattens the user into datastore leaves.
func (u *User) ToRecord() map[string]string {
	rec := map[string]string{
		FieldUsername:  u.Username,
		FieldCreatedAt: u.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if u.DisplayName != "" {
		rec[FieldDisplayName] = u.DisplayName
	}
	if u.Bio != "" {
		rec[FieldBio] = u.Bio
	}
	if u.PasswordHash != "" {
		rec[FieldPasswordHash] = u.PasswordHash
	}
	return rec
}

// UserFromRecord rebuilds a user from datastore leaves. The username falls
// back to the key the record was read from.
func UserFromRecord(username string, rec map[string]string) *User {
	u := &User{
		Username:     rec[FieldUsername],
		DisplayName:  rec[FieldDisplayName],
		Bio:          rec[FieldBio],
		PasswordHash: rec[FieldPasswordHash],
	}
	if u.Username == "" {
		u.Username = username
	}
	if ts, err := time.Parse(time.RFC3339Nano, rec[FieldCreatedAt]); err == nil {
		u.CreatedAt = ts
	}
	return u
}

// UserProfile is the public view of a user with relationship counts.
type UserProfile struct {
	Username       string    `json:"username"`
	DisplayName    string    `json:"display_name,omitempty"`
	Bio            string    `json:"bio,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	FollowsCount   int       `json:"follows_count"`
	FollowersCount int       `json:"followers_count"`
}
