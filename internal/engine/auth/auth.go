package auth

import (
	"context"
	"database/sql"
	"fmt"
)

const roleAdmin = "admin"

// ForbiddenError indicates the caller may not perform an action.
type ForbiddenError struct {
	Action string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("not allowed to %s", e.Action)
}

// Caller is the authenticated identity behind a request. Roles holds the
// roles asserted by the token, if any.
type Caller struct {
	ID    string
	Roles []string
}

func (c Caller) hasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Service answers authorization questions from the profiles table.
type Service struct {
	DB *sql.DB
}

// IsAdmin reports whether the caller is an administrator, either by token
// role or by profile.
func (s Service) IsAdmin(ctx context.Context, c Caller) (bool, error) {
	if c.ID == "" {
		return false, nil
	}
	if c.hasRole(roleAdmin) {
		return true, nil
	}
	var role string
	err := s.DB.QueryRowContext(ctx, `SELECT role FROM profiles WHERE id=?`, c.ID).Scan(&role)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load profile: %w", err)
	}
	return role == roleAdmin, nil
}

func (s Service) RequireAdmin(ctx context.Context, c Caller, action string) error {
	ok, err := s.IsAdmin(ctx, c)
	if err != nil {
		return err
	}
	if !ok {
		return ForbiddenError{Action: action}
	}
	return nil
}

// RequireOwnerOrAdmin allows the owner of a resource and administrators.
func (s Service) RequireOwnerOrAdmin(ctx context.Context, c Caller, ownerID, action string) error {
	if c.ID != "" && c.ID == ownerID {
		return nil
	}
	return s.RequireAdmin(ctx, c, action)
}
