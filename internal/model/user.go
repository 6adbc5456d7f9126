package model

import (
	"context"
	"errors"
	"time"
)

// Role is the authorization level of a user.  Only two roles exist; every
// account starts as RoleUser and only an admin can change it.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

var (
	// ErrEmailExists is returned by the store when the unique email
	// constraint rejects a new user.
	ErrEmailExists = errors.New("email already exists")
	// ErrNotFound is returned when no user matches the lookup.
	ErrNotFound = errors.New("user not found")
	// ErrInvalidCredentials covers both an unknown email and a wrong
	// password; callers must not tell the two apart.
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// User represents an application user record as stored in the `users`
// table.  PasswordHash never leaves the server: handlers and sessions work
// with Snapshot instead.
//
// Fields:
//
//	ID           – opaque UUID assigned at creation.
//	Name         – display name, trimmed and non-empty.
//	Email        – unique email address, trimmed.
//	PasswordHash – bcrypt hash of the password.
//	Role         – user or admin.
//	CreatedAt    – timestamp of creation.
//	UpdatedAt    – timestamp of last update.
type User struct {
	ID           string    // users.id
	Name         string    // users.name
	Email        string    // users.email
	PasswordHash string    // users.password_hash
	Role         Role      // users.role
	CreatedAt    time.Time // users.created_at
	UpdatedAt    time.Time // users.updated_at
}

// Snapshot returns the public part of the user that is safe to keep in a
// session and to hand to templates.
func (u User) Snapshot() Snapshot {
	return Snapshot{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role}
}

// Snapshot is the identity held in a session: the minimal set of fields
// needed to personalise pages and make authorization decisions.
type Snapshot struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

// UserStore defines persistence operations for users.  Implementations must
// enforce email uniqueness themselves and report it as ErrEmailExists.
type UserStore interface {
	Create(ctx context.Context, name, email, passwordHash string, role Role) (User, error)
	GetByEmail(ctx context.Context, email string) (User, error)
	GetByID(ctx context.Context, id string) (User, error)
	List(ctx context.Context) ([]User, error)
	UpdateRole(ctx context.Context, id string, role Role) (User, error)
}
