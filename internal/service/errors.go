package service

import (
	"context"
	"errors"

	"github.com/Skotchmaster/usergate/internal/domain"
	"github.com/Skotchmaster/usergate/internal/tokens"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrRevoked            = errors.New("token revoked")
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrForbidden          = errors.New("forbidden")
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrValidation         = errors.New("validation failed")
	ErrConflict           = errors.New("username or email already registered")

	ErrMalformed        = tokens.ErrMalformed
	ErrInvalidSignature = tokens.ErrInvalidSignature
	ErrExpired          = tokens.ErrExpired
	ErrNotFound         = domain.ErrNotFound
)

type Kind string

const (
	KindNone               Kind = ""
	KindInvalidCredentials Kind = "invalid_credentials"
	KindUnauthenticated    Kind = "unauthenticated"
	KindForbidden          Kind = "forbidden"
	KindBackendUnavailable Kind = "backend_unavailable"
	KindValidation         Kind = "validation"
	KindConflict           Kind = "conflict"
	KindNotFound           Kind = "not_found"
	KindInternal           Kind = "internal"
)

// KindOf classifies err for the transport layer. Token level failures
// (malformed, bad signature, expired, revoked) all collapse into
// KindUnauthenticated so callers cannot tell them apart.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrInvalidCredentials):
		return KindInvalidCredentials
	case errors.Is(err, ErrUnauthenticated),
		errors.Is(err, ErrMalformed),
		errors.Is(err, ErrInvalidSignature),
		errors.Is(err, ErrExpired),
		errors.Is(err, ErrRevoked):
		return KindUnauthenticated
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrBackendUnavailable), errors.Is(err, context.DeadlineExceeded):
		return KindBackendUnavailable
	case errors.Is(err, ErrValidation), errors.Is(err, domain.ErrUnknownRole), errors.Is(err, domain.ErrInvalidGrant):
		return KindValidation
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	default:
		return KindInternal
	}
}
