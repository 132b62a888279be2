package entity

import (
	"database/sql"
	"time"
)

const (
	RoleUser  = "User"
	RoleAdmin = "Admin"

	DefaultAvatar = "default.jpg"
)

type Account struct {
	ID             string
	Email          string
	CanonicalEmail string
	PasswordHash   string
	FirstName      sql.NullString
	LastName       sql.NullString
	Avatar         string
	Roles          []string
	LastLoginAt    sql.NullTime
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (a *Account) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}
