package objstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Dir keeps objects as files in one directory.
type Dir struct {
	Root string
	// PublicURL, when set, prefixes the returned download links; otherwise
	// they are file:// URLs.
	PublicURL string
	Now       func() time.Time
}

func (d Dir) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d Dir) Fetch(ctx context.Context, key string) ([]byte, error) {
	if err := validKey(key); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(filepath.Join(d.Root, key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("fetch %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", key, err)
	}
	return b, nil
}

func (d Dir) Put(ctx context.Context, name string, content []byte, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(d.Root, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", d.Root, err)
	}
	object := ObjectName(d.now(), name)
	full := filepath.Join(d.Root, object)
	if err := os.WriteFile(full, content, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", object, err)
	}
	if d.PublicURL != "" {
		return strings.TrimRight(d.PublicURL, "/") + "/" + url.PathEscape(object), nil
	}
	abs, err := filepath.Abs(full)
	if err != nil {
		abs = full
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String(), nil
}
