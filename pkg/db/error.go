package db

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	msg := err.Error()

	// PostgreSQL (23505)
	if strings.Contains(msg, "duplicate key value violates unique constraint") || strings.Contains(msg, "SQLSTATE 23505") {
		return true
	}

	// MySQL (1062)
	if strings.Contains(msg, "Error 1062") {
		return true
	}

	// SQLite (2067)
	if strings.Contains(msg, "UNIQUE constraint failed") {
		return true
	}

	return false
}

// IsConstraint reports whether err is a unique violation naming the given index or column.
func IsConstraint(err error, name string) bool {
	if !IsDuplicateKeyErr(err) {
		return false
	}
	return strings.Contains(err.Error(), name)
}
