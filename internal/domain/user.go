package domain

import "time"

// Identity is the authenticated caller as seen by the marketplace core.
type Identity struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
}

// User is a registered account. Credentials never leave the auth package.
type User struct {
	ID           string    `gorm:"type:text;primaryKey" json:"id"`
	Username     string    `gorm:"type:text;not null;uniqueIndex:idx_users_username" json:"username"`
	PasswordHash string    `gorm:"type:text;not null" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string {
	return "users"
}

// Identity projects the user to the identity the core works with.
func (u *User) Identity() Identity {
	return Identity{UserID: u.ID, DisplayName: u.Username}
}
