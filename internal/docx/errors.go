package docx

import (
	"fmt"
	"strings"
)

type ErrorKind string

const (
	TemplateFetchFailed ErrorKind = "template_fetch_failed"
	TemplateSyntaxError ErrorKind = "template_syntax_error"
)

// RenderError classifies a failure to produce a document. Details holds one
// message per offending tag for syntax errors.
type RenderError struct {
	Kind    ErrorKind
	Details []string
	Err     error
}

func (e *RenderError) Error() string {
	switch e.Kind {
	case TemplateFetchFailed:
		if e.Err != nil {
			return fmt.Sprintf("template fetch failed: %v", e.Err)
		}
		return "template fetch failed"
	default:
		if len(e.Details) == 0 {
			return "template syntax error"
		}
		return "template syntax error: " + strings.Join(e.Details, "; ")
	}
}

func (e *RenderError) Unwrap() error { return e.Err }

// FetchFailed wraps err as a TemplateFetchFailed error.
func FetchFailed(err error) *RenderError {
	return &RenderError{Kind: TemplateFetchFailed, Err: err}
}
