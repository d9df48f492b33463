// Package apperr defines shared sentinel errors and the error kinds a
// sorting run can end with.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidRule   = errors.New("invalid rule")
)

// Kind classifies why a sorting run stopped.
type Kind string

const (
	// KindNotApplicable means there was nothing to do. It is not a failure.
	KindNotApplicable Kind = "not_applicable"
	KindParse         Kind = "parse"
	KindNetwork       Kind = "network"
	KindStorage       Kind = "storage"
)

// Error carries the kind of a failed run plus the context an operator needs
// to diagnose it.
type Error struct {
	Kind       Kind
	Op         string
	Path       string
	URL        string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Op != "" {
		b.WriteString(": ")
		b.WriteString(e.Op)
	}
	if e.Path != "" {
		fmt.Fprintf(&b, " path=%s", e.Path)
	}
	if e.URL != "" {
		fmt.Fprintf(&b, " url=%s", e.URL)
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " status=%d", e.StatusCode)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of err, or "" when err is nil or not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// NotApplicable builds a KindNotApplicable error for path.
func NotApplicable(path, reason string) *Error {
	return &Error{Kind: KindNotApplicable, Op: reason, Path: path}
}
