package engine

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"surat/internal/domain"
	"surat/internal/events"
	"surat/internal/letter"
	"surat/internal/repo"
)

const entityRequest = "request"

// Submit validates a submission and stores it with its members in one
// transaction.
func (e Engine) Submit(ctx context.Context, ownerID string, sub letter.Submission) (domain.Request, []domain.Member, error) {
	if ownerID == "" {
		return domain.Request{}, nil, errors.New("owner required")
	}
	v, err := letter.Validate(sub)
	if err != nil {
		return domain.Request{}, nil, err
	}

	now := e.timestamp()
	req := v.Request
	req.ID = uuid.NewString()
	req.OwnerID = ownerID
	req.Status = domain.StatusPending
	req.CreatedAt = now
	req.UpdatedAt = now
	members := make([]domain.Member, len(v.Members))
	for i, m := range v.Members {
		m.ID = uuid.NewString()
		m.RequestID = req.ID
		members[i] = m
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Request{}, nil, storageError("begin", err)
	}
	defer tx.Rollback()
	if err := e.Repo.InsertRequest(ctx, tx, req); err != nil {
		return domain.Request{}, nil, storageError("insert request", err)
	}
	if err := e.Repo.InsertMembers(ctx, tx, members); err != nil {
		return domain.Request{}, nil, storageError("insert members", err)
	}
	if err := e.eventWriter().Append(ctx, tx, events.RequestSubmitted, entityRequest, req.ID, ownerID, events.EventPayload{
		"template_key": req.TemplateKey,
		"members":      len(members),
	}); err != nil {
		return domain.Request{}, nil, storageError("record event", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Request{}, nil, storageError("commit", err)
	}
	e.logger().Info("request submitted",
		zap.String("request_id", req.ID),
		zap.String("template_key", req.TemplateKey),
		zap.Int("members", len(members)),
	)
	return req, members, nil
}

// Get returns a request and its members to its owner or an administrator.
func (e Engine) Get(ctx context.Context, id string, caller Caller) (domain.Request, []domain.Member, error) {
	req, err := e.Repo.GetRequest(ctx, id)
	if err != nil {
		return domain.Request{}, nil, fmt.Errorf("request %s: %w", id, err)
	}
	if err := e.Auth.RequireOwnerOrAdmin(ctx, caller, req.OwnerID, "read this request"); err != nil {
		return domain.Request{}, nil, err
	}
	members, err := e.Repo.ListMembers(ctx, id)
	if err != nil {
		return domain.Request{}, nil, err
	}
	return req, members, nil
}

type ListFilter struct {
	TemplateKey string
	Status      string
	Query       string
	Limit       int
}

func (f ListFilter) repoFilter() repo.RequestFilters {
	key := ""
	if f.TemplateKey != "" {
		key = letter.NormalizeKey(f.TemplateKey)
	}
	return repo.RequestFilters{TemplateKey: key, Status: f.Status, Query: f.Query, Limit: f.Limit}
}

// ListMine returns the caller's own requests, newest first.
func (e Engine) ListMine(ctx context.Context, caller Caller, f ListFilter) ([]domain.Request, error) {
	if caller.ID == "" {
		return nil, errors.New("caller required")
	}
	rf := f.repoFilter()
	rf.OwnerID = caller.ID
	return e.Repo.ListRequests(ctx, rf)
}

// ListAll returns every request matching the filter. Administrators only.
func (e Engine) ListAll(ctx context.Context, caller Caller, f ListFilter) ([]domain.Request, error) {
	if err := e.Auth.RequireAdmin(ctx, caller, "list all requests"); err != nil {
		return nil, err
	}
	return e.Repo.ListRequests(ctx, f.repoFilter())
}

// MarkCompleted stores the result file and completes a pending request.
func (e Engine) MarkCompleted(ctx context.Context, id string, caller Caller, filename string, content []byte) (domain.Request, error) {
	if err := e.Auth.RequireAdmin(ctx, caller, "complete requests"); err != nil {
		return domain.Request{}, err
	}
	req, err := e.Repo.GetRequest(ctx, id)
	if err != nil {
		return domain.Request{}, fmt.Errorf("request %s: %w", id, err)
	}
	if req.Status != domain.StatusPending {
		return domain.Request{}, &TransitionError{ID: id, From: req.Status, To: domain.StatusCompleted}
	}
	if len(content) == 0 {
		return domain.Request{}, &letter.ValidationError{Errors: []letter.FieldError{{Kind: letter.KindMissingField, Field: "file"}}}
	}
	if filename == "" {
		filename = "hasil"
	}
	if e.Results == nil {
		return domain.Request{}, storageError("upload result", errors.New("result store not configured"))
	}
	url, err := e.Results.Put(ctx, filename, content, mime.TypeByExtension(filepath.Ext(filename)))
	if err != nil {
		return domain.Request{}, storageError("upload result", err)
	}
	done, err := e.transition(ctx, id, caller, domain.StatusCompleted, &url, events.RequestCompleted, events.EventPayload{"file_hasil": url})
	if err != nil {
		// The upload already happened and nothing references it now.
		e.logger().Warn("result file orphaned",
			zap.String("request_id", id),
			zap.String("file_hasil", url),
			zap.Error(err),
		)
		return domain.Request{}, err
	}
	return done, nil
}

// MarkRejected rejects a pending request.
func (e Engine) MarkRejected(ctx context.Context, id string, caller Caller) (domain.Request, error) {
	if err := e.Auth.RequireAdmin(ctx, caller, "reject requests"); err != nil {
		return domain.Request{}, err
	}
	return e.transition(ctx, id, caller, domain.StatusRejected, nil, events.RequestRejected, nil)
}

func (e Engine) transition(ctx context.Context, id string, caller Caller, to string, resultFile *string, evtType string, payload events.EventPayload) (domain.Request, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Request{}, storageError("begin", err)
	}
	defer tx.Rollback()
	req, err := e.Repo.GetRequestTx(ctx, tx, id)
	if err != nil {
		return domain.Request{}, fmt.Errorf("request %s: %w", id, err)
	}
	if req.Terminal() {
		return domain.Request{}, &TransitionError{ID: id, From: req.Status, To: to}
	}
	if err := e.Repo.UpdateRequestStatus(ctx, tx, id, req.Status, to, resultFile, e.timestamp()); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Request{}, &TransitionError{ID: id, From: req.Status, To: to}
		}
		return domain.Request{}, storageError("update status", err)
	}
	if payload == nil {
		payload = events.EventPayload{}
	}
	payload["from"] = req.Status
	payload["to"] = to
	if err := e.eventWriter().Append(ctx, tx, evtType, entityRequest, id, caller.ID, payload); err != nil {
		return domain.Request{}, storageError("record event", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Request{}, storageError("commit", err)
	}
	e.logger().Info("request status changed",
		zap.String("request_id", id),
		zap.String("from", req.Status),
		zap.String("to", to),
		zap.String("actor_id", caller.ID),
	)
	return e.Repo.GetRequest(ctx, id)
}
