package application

import (
	"context"
	"errors"
	"time"

	"ideaforge-billing/internal/domain"
)

// FailureKind classifies a failed facade call for transports.
type FailureKind string

const (
	FailureUnauthorized    FailureKind = "unauthorized"
	FailureNotFound        FailureKind = "not_found"
	FailureQuotaExceeded   FailureKind = "quota_exceeded"
	FailureInvalidArgument FailureKind = "invalid_argument"
	FailureConflict        FailureKind = "conflict"
	FailureGateway         FailureKind = "gateway"
	FailureInternal        FailureKind = "internal"
)

const genericMessage = "Something went wrong. Please try again."

// Failure is the user-facing side of an error. Details stay in the logs.
type Failure struct {
	Kind            FailureKind `json:"kind"`
	Message         string      `json:"message"`
	UpgradeRequired bool        `json:"upgradeRequired,omitempty"`
	ResetAt         time.Time   `json:"resetAt,omitempty"`
	cause           error
}

func (f *Failure) Error() string { return string(f.Kind) + ": " + f.Message }

func (f *Failure) Unwrap() error { return f.cause }

// Result carries either a value or a Failure.
type Result[T any] struct {
	Value   T
	Failure *Failure
}

func (r Result[T]) OK() bool { return r.Failure == nil }

func ok[T any](v T) Result[T] { return Result[T]{Value: v} }

func failed[T any](f *Failure) Result[T] { return Result[T]{Failure: f} }

// Classify maps a domain error onto a Failure.
func Classify(err error) *Failure {
	var qe *domain.QuotaExceededError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &qe):
		return &Failure{Kind: FailureQuotaExceeded, Message: qe.Message, UpgradeRequired: qe.UpgradeRequired, ResetAt: qe.ResetAt, cause: err}
	case errors.Is(err, domain.ErrUnauthorized):
		return &Failure{Kind: FailureUnauthorized, Message: "unauthorized", cause: err}
	case errors.Is(err, domain.ErrNotFound):
		return &Failure{Kind: FailureNotFound, Message: "not found", cause: err}
	case errors.Is(err, domain.ErrInvalidArgument):
		return &Failure{Kind: FailureInvalidArgument, Message: genericMessage, cause: err}
	case errors.Is(err, domain.ErrInvalidState), errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrLockNotAcquired):
		return &Failure{Kind: FailureConflict, Message: genericMessage, cause: err}
	case errors.Is(err, domain.ErrGateway), errors.Is(err, domain.ErrAnalysisFailed):
		return &Failure{Kind: FailureGateway, Message: genericMessage, cause: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &Failure{Kind: FailureGateway, Message: genericMessage, cause: err}
	default:
		return &Failure{Kind: FailureInternal, Message: genericMessage, cause: err}
	}
}
