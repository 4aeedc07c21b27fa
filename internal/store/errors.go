package store

import (
	"errors"

	"github.com/lib/pq"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a write would violate a uniqueness rule.
var ErrConflict = errors.New("conflict")

// UniqueViolation names the column a rejected write collided on.
type UniqueViolation struct {
	Field string
}

func (e *UniqueViolation) Error() string {
	return e.Field + " already exists"
}

func (e *UniqueViolation) Unwrap() error {
	return ErrConflict
}

const pqUniqueViolation = pq.ErrorCode("23505")

// constraintFields maps unique constraint names from the migrations to fields.
var constraintFields = map[string]string{
	"users_username_key": "username",
	"users_email_key":    "email",
}

// translateError converts a unique constraint violation reported by postgres
// into a *UniqueViolation. Other errors are returned untouched.
func translateError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != pqUniqueViolation {
		return err
	}
	field, ok := constraintFields[pqErr.Constraint]
	if !ok {
		field = pqErr.Constraint
	}
	return &UniqueViolation{Field: field}
}
