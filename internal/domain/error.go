package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidState       = errors.New("invalid state")
	ErrConflict           = errors.New("concurrent modification")
	ErrGateway            = errors.New("payment gateway error")
	ErrQuotaExceeded      = errors.New("quota exceeded")
	ErrInvalidExecContext = errors.New("invalid execution context")
	ErrOperationFailed    = errors.New("operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrLockNotAcquired    = errors.New("lock not acquired")
	ErrAnalysisFailed     = errors.New("analysis service error")
)

// GatewayError carries the provider's failure details. Name is the provider's
// error name (e.g. RESOURCE_NOT_FOUND) when one was returned.
type GatewayError struct {
	Op      string
	Status  int
	Name    string
	Message string
}

func (e *GatewayError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("gateway %s: %d %s: %s", e.Op, e.Status, e.Name, e.Message)
	}
	return fmt.Sprintf("gateway %s: %d: %s", e.Op, e.Status, e.Message)
}

func (e *GatewayError) Unwrap() error { return ErrGateway }

// IsResourceNotFound reports whether err is a gateway "not found" outcome.
func IsResourceNotFound(err error) bool {
	var ge *GatewayError
	if !errors.As(err, &ge) {
		return false
	}
	return ge.Name == "RESOURCE_NOT_FOUND" || ge.Status == 404
}

// QuotaExceededError is returned when a free account has used its window budget.
type QuotaExceededError struct {
	ResetAt         time.Time
	Message         string
	UpgradeRequired bool
}

func (e *QuotaExceededError) Error() string { return e.Message }

func (e *QuotaExceededError) Unwrap() error { return ErrQuotaExceeded }
