package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestIsDuplicateKeyErr(t *testing.T) {
	assert.False(t, IsDuplicateKeyErr(nil))
	assert.True(t, IsDuplicateKeyErr(fmt.Errorf("wrap: %w", gorm.ErrDuplicatedKey)))
	assert.True(t, IsDuplicateKeyErr(errors.New(`ERROR: duplicate key value violates unique constraint "ux_referrals_code" (SQLSTATE 23505)`)))
	assert.True(t, IsDuplicateKeyErr(errors.New("Error 1062: Duplicate entry")))
	assert.True(t, IsDuplicateKeyErr(errors.New("UNIQUE constraint failed: referrals.referral_code")))
	assert.False(t, IsDuplicateKeyErr(errors.New("connection refused")))
}

func TestIsConstraint(t *testing.T) {
	err := errors.New("UNIQUE constraint failed: referrals.referral_code")
	assert.True(t, IsConstraint(err, "referral_code"))
	assert.False(t, IsConstraint(err, "referred_address_key"))
}

func TestNewTestIsolated(t *testing.T) {
	a, err := NewTest()
	assert.NoError(t, err)
	b, err := NewTest()
	assert.NoError(t, err)

	assert.NoError(t, a.Exec("CREATE TABLE only_in_a (id INTEGER)").Error)
	assert.Error(t, b.Exec("SELECT * FROM only_in_a").Error)
}
