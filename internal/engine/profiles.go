package engine

import (
	"context"
	"fmt"

	"surat/internal/domain"
	"surat/internal/events"
)

// Me describes the caller.
type Me struct {
	ID    string
	Admin bool
}

func (e Engine) WhoAmI(ctx context.Context, caller Caller) (Me, error) {
	admin, err := e.Auth.IsAdmin(ctx, caller)
	if err != nil {
		return Me{}, err
	}
	return Me{ID: caller.ID, Admin: admin}, nil
}

// SetRole grants or revokes administrator rights on a profile.
func (e Engine) SetRole(ctx context.Context, actorID, profileID, role string) (domain.Profile, error) {
	if profileID == "" {
		return domain.Profile{}, fmt.Errorf("profile id required")
	}
	if role != domain.RoleAdmin && role != domain.RoleUser {
		return domain.Profile{}, fmt.Errorf("invalid role %q", role)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Profile{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpsertProfile(ctx, tx, profileID, role, e.timestamp()); err != nil {
		return domain.Profile{}, storageError("upsert profile", err)
	}
	if err := e.eventWriter().Append(ctx, tx, events.ProfileUpdated, "profile", profileID, actorID, events.EventPayload{"role": role}); err != nil {
		return domain.Profile{}, storageError("record event", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Profile{}, storageError("commit", err)
	}
	return e.Repo.GetProfile(ctx, profileID)
}
