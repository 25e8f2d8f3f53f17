package engine

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"surat/internal/config"
	"surat/internal/docx"
	"surat/internal/engine/auth"
	"surat/internal/events"
	"surat/internal/letter"
	"surat/internal/objstore"
	"surat/internal/repo"
)

// Timestamps sort lexically in creation order.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

const defaultTemplateTimeout = 15 * time.Second

// Caller is the authenticated identity an operation runs for.
type Caller = auth.Caller

type Engine struct {
	DB        *sql.DB
	Repo      repo.Repo
	Events    events.Writer
	Auth      auth.Service
	Config    *config.Config
	Templates objstore.Source
	Results   objstore.Sink
	Renderer  docx.Renderer
	Mapper    letter.Mapper
	Logger    *zap.Logger
	Now       func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:       db,
		Repo:     repo.Repo{DB: db},
		Events:   events.Writer{DB: db},
		Auth:     auth.Service{DB: db},
		Config:   cfg,
		Renderer: docx.New(),
		Mapper:   letter.NewMapper(),
		Logger:   zap.NewNop(),
		Now:      time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) timestamp() string {
	return e.now().UTC().Format(timestampLayout)
}

func (e Engine) logger() *zap.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return zap.NewNop()
}

func (e Engine) location() *time.Location {
	if e.Config != nil {
		return e.Config.Location()
	}
	return time.UTC
}

func (e Engine) templateTimeout() time.Duration {
	if e.Config != nil && e.Config.Templates.Timeout > 0 {
		return e.Config.Templates.Timeout
	}
	return defaultTemplateTimeout
}

// events carry the clock of the engine
func (e Engine) eventWriter() events.Writer {
	w := e.Events
	if w.DB == nil {
		w.DB = e.DB
	}
	w.Now = e.now
	return w
}

// StorageWriteError reports a failed write to the database or object store.
type StorageWriteError struct {
	Op  string
	Err error
}

func (e *StorageWriteError) Error() string {
	return fmt.Sprintf("storage write failed: %s: %v", e.Op, e.Err)
}

func (e *StorageWriteError) Unwrap() error { return e.Err }

// TransitionError reports a status change that the lifecycle forbids.
type TransitionError struct {
	ID   string
	From string
	To   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("request %s cannot move from %s to %s", e.ID, e.From, e.To)
}

func storageError(op string, err error) error {
	var se *StorageWriteError
	if errors.As(err, &se) {
		return err
	}
	return &StorageWriteError{Op: op, Err: err}
}
