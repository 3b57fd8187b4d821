package models

import (
	"fmt"
	"strings"
	"time"
)

// UserRole is the closed set of marketplace roles.
type UserRole string

const (
	RoleCompany UserRole = "COMPANY"
	RoleWorker  UserRole = "WORKER"
	RoleAdmin   UserRole = "ADMIN"
)

// ParseRole normalises a role string from an untrusted boundary.
func ParseRole(raw string) (UserRole, error) {
	switch role := UserRole(strings.ToUpper(strings.TrimSpace(raw))); role {
	case RoleCompany, RoleWorker, RoleAdmin:
		return role, nil
	default:
		return "", fmt.Errorf("unknown role %q", raw)
	}
}

// User is a row in the users table. Companies are users with RoleCompany.
type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	Role         UserRole   `db:"role" json:"role"`
	Active       bool       `db:"active" json:"active"`
	BannedUntil  *time.Time `db:"banned_until" json:"banned_until,omitempty"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// SuspendedAt reports whether the user is banned at the given instant.
func (u *User) SuspendedAt(now time.Time) bool {
	return u.BannedUntil != nil && u.BannedUntil.After(now)
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

// normalizePage clamps page and size to sane bounds.
func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return page, size
}
