// Package objstore reads template packages and stores result files.
package objstore

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"
)

var ErrNotFound = errors.New("object not found")

// Source fetches objects by key.
type Source interface {
	Fetch(ctx context.Context, key string) ([]byte, error)
}

// Sink stores an object and returns the URL it can be downloaded from.
type Sink interface {
	Put(ctx context.Context, name string, content []byte, contentType string) (string, error)
}

// ObjectName prefixes a sanitized base name with a millisecond timestamp so
// repeated uploads of the same file never collide.
func ObjectName(now time.Time, name string) string {
	base := path.Base(strings.ReplaceAll(name, `\`, "/"))
	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	clean := strings.Trim(b.String(), ".")
	if clean == "" {
		clean = "file"
	}
	return fmt.Sprintf("%d-%s", now.UnixMilli(), clean)
}

func validKey(key string) error {
	if key == "" || strings.Contains(key, "..") || strings.ContainsAny(key, `/\`) {
		return fmt.Errorf("invalid object key %q", key)
	}
	return nil
}
