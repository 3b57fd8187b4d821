// Package repository holds the Postgres and Redis data access layer.
package repository

import (
	"errors"

	"github.com/lib/pq"
)

// ErrDuplicate is returned when an insert violates a unique constraint.
var ErrDuplicate = errors.New("duplicate record")

const pqUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
}

func pageOffset(page, size int) int {
	return (page - 1) * size
}
