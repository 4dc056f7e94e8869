package tracing

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestSafeAttributesDropsPII(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("http.route", "/api/referrals"),
		attribute.String("email", "a@example.com"),
		attribute.String("referral_code", "AB12CD34"),
	)
	assert.Len(t, attrs, 1)
	assert.Equal(t, attribute.Key("http.route"), attrs[0].Key)
}

func TestSafeErrorTruncatesDetail(t *testing.T) {
	err := SafeError(errors.New("referral lookup: code AB12CD34"))
	assert.EqualError(t, err, "referral lookup")
	assert.Nil(t, SafeError(nil))
}

func TestClampRatio(t *testing.T) {
	assert.Equal(t, 0.0, clampRatio(-1))
	assert.Equal(t, 1.0, clampRatio(5))
	assert.Equal(t, 0.25, clampRatio(0.25))
}
