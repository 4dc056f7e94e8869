package password

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashVerify(t *testing.T) {
	encoded, err := Hash("s3cret-pass")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(encoded, "$argon2id$v=19$m=65536,t=1,p=4$"))

	assert.True(t, Verify("s3cret-pass", encoded))
	assert.False(t, Verify("other-pass", encoded))
}

func TestHashIsSalted(t *testing.T) {
	a, err := Hash("same-password")
	require.NoError(t, err)
	b, err := Hash("same-password")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestVerifyRejectsMalformedHashes(t *testing.T) {
	for _, encoded := range []string{
		"",
		"$argon2id$v=19$broken",
		"$argon2i$v=19$m=65536,t=1,p=4$c2FsdA$a2V5",
		"$argon2id$v=16$m=65536,t=1,p=4$c2FsdA$a2V5",
		"$argon2id$v=19$m=0,t=1,p=4$c2FsdA$a2V5",
		"$argon2id$v=19$m=65536,t=1,p=4$!!$a2V5",
		"$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$",
	} {
		assert.False(t, Verify("anything", encoded), encoded)
	}
}

func TestValidate(t *testing.T) {
	assert.ErrorIs(t, Validate("short"), ErrTooShort)
	assert.ErrorIs(t, Validate("   pad   "), ErrTooShort)
	assert.ErrorIs(t, Validate(strings.Repeat("x", MaxLength+1)), ErrTooLong)
	assert.NoError(t, Validate("correct-password"))
	assert.NoError(t, Validate("ñandú-solar"))
}
