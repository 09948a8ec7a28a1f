package models

import "time"

// User represents a messaging-platform user keyed by the platform id.
type User struct {
	ID        int64     `json:"id" bson:"_id"`
	Username  string    `json:"username,omitempty" bson:"username,omitempty"`
	FirstName string    `json:"first_name" bson:"first_name"`
	LastName  string    `json:"last_name,omitempty" bson:"last_name,omitempty"`
	IsActive  bool      `json:"is_active" bson:"is_active"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// Profile holds the display fields carried by every inbound message.
type Profile struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
}

// DisplayName returns the name used to address the user in prompts.
func (p Profile) DisplayName() string {
	switch {
	case p.FirstName != "":
		return p.FirstName
	case p.Username != "":
		return p.Username
	default:
		return "there"
	}
}

// Differs reports whether any display field of u differs from p.
func (u *User) Differs(p Profile) bool {
	return u.Username != p.Username || u.FirstName != p.FirstName || u.LastName != p.LastName
}
