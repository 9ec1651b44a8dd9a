package domain

import "time"

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name,omitempty"`
	Username     string    `json:"username,omitempty"`
	Bio          string    `json:"bio,omitempty"`
	PasswordHash string    `json:"-"`
	IsVerified   bool      `json:"is_verified"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Profile son los campos que el usuario puede editar. Username vacio significa sin username.
type Profile struct {
	Name     string
	Username string
	Bio      string
}

func (u User) Profile() Profile {
	return Profile{Name: u.Name, Username: u.Username, Bio: u.Bio}
}
