package media

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure by the stage family that raised it.
type Kind int

const (
	KindInput Kind = iota + 1
	KindResolution
	KindDownload
	KindConversion
	KindSeparation
	KindRemix
)

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindResolution:
		return "resolution"
	case KindDownload:
		return "download"
	case KindConversion:
		return "conversion"
	case KindSeparation:
		return "separation"
	case KindRemix:
		return "remix"
	default:
		return "unknown"
	}
}

// Error is a classified pipeline error. Msg adds context to Err; either may be empty.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

// Sentinels for errors.Is matching on kind alone.
var (
	ErrInput      = &Error{Kind: KindInput}
	ErrResolution = &Error{Kind: KindResolution}
	ErrDownload   = &Error{Kind: KindDownload}
	ErrConversion = &Error{Kind: KindConversion}
	ErrSeparation = &Error{Kind: KindSeparation}
	ErrRemix      = &Error{Kind: KindRemix}
)

func (e *Error) Error() string {
	switch {
	case e.Err == nil && e.Msg == "":
		return e.Kind.String() + " error"
	case e.Err == nil:
		return e.Msg
	case e.Msg == "":
		return e.Err.Error()
	default:
		return e.Msg + ": " + e.Err.Error()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches a bare sentinel of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Msg != "" || t.Err != nil {
		return false
	}
	return t.Kind == e.Kind
}

// Errorf builds a classified error; %w verbs are honored.
func Errorf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Wrap classifies err with kind unless it is nil.
func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf reports the outermost classification in err's chain, or 0.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// Ensure classifies err with kind only if it carries no classification yet.
func Ensure(kind Kind, err error, msg string) error {
	if err == nil || KindOf(err) != 0 {
		return err
	}
	return Wrap(kind, err, msg)
}
