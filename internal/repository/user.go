package repository

import (
	"context"
	"errors"

	"update-user-service/internal/domain"
)

var (
	// ErrStorage wraps any failure reported by the storage backend.
	ErrStorage = errors.New("storage error")
	// ErrNotFound is returned by reads for an unknown username.
	ErrNotFound = errors.New("user not found")
)

// UserRepository defines persistence operations for User records.
type UserRepository interface {
	// Update sets the provided attributes on the record keyed by username and
	// leaves every other attribute untouched.
	Update(ctx context.Context, username string, fields domain.UserFields) (domain.UpdateResult, error)
}
