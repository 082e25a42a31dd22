package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
	ErrMissingTenant     = errors.New("tenant id is required")

	// ErrConstraintViolation means a delta would leave reserved outside
	// [0, actual]. It signals a race or a planner bug, never a client error.
	ErrConstraintViolation = errors.New("balance constraint violation")

	// ErrLockTimeout is returned when the per-item section could not be
	// acquired within the configured wait.
	ErrLockTimeout = errors.New("lock wait timeout")
)

type NotFoundError struct {
	Resource string
	Key      string
}

func NewNotFound(resource, key string) *NotFoundError {
	return &NotFoundError{Resource: resource, Key: key}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.Key)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// InsufficientStockError reports how much could have been reserved.
type InsufficientStockError struct {
	ItemCode  string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d", e.ItemCode, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}
