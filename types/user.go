package types

import "time"

// User represents an account on the board.
// It contains identity, optional contact details and audit metadata.
type User struct {
	// ID is the unique identifier of the user.
	ID int `json:"id" db:"id"`

	// Username is the unique display name chosen by the user.
	Username string `json:"username" db:"username"`

	// Email is the user's unique email address, used to log in.
	Email string `json:"email" db:"email"`

	// PasswordHash stores the bcrypt hash of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// ProfilePic is the public path of the uploaded profile picture, if any.
	ProfilePic *string `json:"profile_pic" db:"profile_pic"`

	// ContactNumber is an optional phone number shown on the user's reports.
	ContactNumber *string `json:"contact_number" db:"contact_number"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent profile update.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// PublicUser is the projection returned alongside a login token.
type PublicUser struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Public returns the login projection of u.
func (u User) Public() PublicUser {
	return PublicUser{ID: u.ID, Username: u.Username, Email: u.Email}
}
