// Package domain defines core entities, ports, and domain-specific errors
// for the breeder worker.
package domain

import (
	"context"
	"errors"
)

// Error taxonomy (sentinels). Mirrors the error classes a trial can fail
// with; callers use errors.Is against these.
var (
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrPreflightFailed    = errors.New("preflight validation failed")
	ErrGuardrailViolated  = errors.New("guardrail violated")
	ErrUpstreamTimeout    = errors.New("upstream timeout")
	ErrUpstreamRateLimit  = errors.New("upstream rate limit")
	ErrRollbackFailed     = errors.New("rollback failed")
	ErrNoParamsToRestore  = errors.New("no parameters to restore")
	ErrUnsupportedService = errors.New("unsupported reconnaissance service")
	ErrInternal           = errors.New("internal error")
)

// Context is a type alias to stdlib context.Context for convenience across
// layers, mirroring the teacher's domain.Context alias.
type Context = context.Context
