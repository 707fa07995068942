package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures so callers can branch without string matching.
type ErrorKind int

const (
	ErrUnknown ErrorKind = iota
	// ErrConfig covers duplicate configs, missing passwords and bad formats.
	ErrConfig
	// ErrDump means the external dump primitive failed.
	ErrDump
	// ErrCrypto covers encryption, decryption and archive validation.
	ErrCrypto
	// ErrIO covers filesystem and registry failures.
	ErrIO
	// ErrNotFound means the artifact or config does not exist for the caller.
	ErrNotFound
	// ErrForbidden means the request is not allowed as made.
	ErrForbidden
)

func (k ErrorKind) String() string {
	switch k {
	case ErrConfig:
		return "config"
	case ErrDump:
		return "dump"
	case ErrCrypto:
		return "crypto"
	case ErrIO:
		return "io"
	case ErrNotFound:
		return "not found"
	case ErrForbidden:
		return "forbidden"
	default:
		return "unknown"
	}
}

// Error is a classified backup error.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is makes errors.Is match on kind and message, so sentinels compare equal
// to copies that carry a different cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Message == t.Message
}

func NewError(kind ErrorKind, message string, err error) error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// ErrWrongPasswordOrCorrupt never says which of the two happened.
var ErrWrongPasswordOrCorrupt = &Error{Kind: ErrCrypto, Message: "wrong password or corrupted file"}

// KindOf returns the kind of the outermost classified error in err's chain.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrUnknown
}

func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}
