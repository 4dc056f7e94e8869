package code

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateRandomCodesAreWellFormedAndDistinct(t *testing.T) {
	gen, err := New(Options{})
	require.NoError(t, err)

	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		c, err := gen.Generate(context.Background(), GenerateInput{})
		require.NoError(t, err)
		require.Len(t, c, DefaultLength)
		require.True(t, Valid(c), "invalid code %q", c)
		_, dup := seen[c]
		require.False(t, dup, "duplicate code %q", c)
		seen[c] = struct{}{}
	}
}

func TestNewRejectsLengthOutOfRange(t *testing.T) {
	_, err := New(Options{Length: 7})
	assert.ErrorIs(t, err, ErrInvalidLength)
	_, err = New(Options{Length: 11})
	assert.ErrorIs(t, err, ErrInvalidLength)

	gen, err := New(Options{Length: 10})
	require.NoError(t, err)
	c, err := gen.Generate(context.Background(), GenerateInput{})
	require.NoError(t, err)
	assert.Len(t, c, 10)
}

func TestBrandedPrefix(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "Acme Roofing", want: "ACM"},
		{name: "transliterated", in: "Žluté Okna", want: "ZLU"},
		{name: "short", in: "Jo", want: "JOR"},
		{name: "empty", in: "", want: "REF"},
		{name: "symbols only", in: "!!!", want: "REF"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := BrandedPrefix(tc.in)
			assert.Len(t, got, 3)
			assert.Equal(t, tc.want, got)
			assert.True(t, Valid(got+"00000"))
		})
	}
}

func TestGenerateBranded(t *testing.T) {
	gen, err := New(Options{Policy: PolicyBranded, Length: 9})
	require.NoError(t, err)

	c, err := gen.Generate(context.Background(), GenerateInput{ContractorName: "Acme Roofing"})
	require.NoError(t, err)
	assert.Len(t, c, 9)
	assert.Equal(t, "ACM", c[:3])
	assert.True(t, Valid(c))
}

func TestRandomStringRejectsBiasedBytes(t *testing.T) {
	// 252..255 fall outside the largest multiple of 36 and must be skipped.
	src := bytes.NewReader([]byte{255, 254, 253, 252, 0, 1, 35, 36, 71, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0})
	got, err := randomString(src, 5)
	require.NoError(t, err)
	assert.Equal(t, "01Z0Z", got)
}

func TestNormalizeAndValid(t *testing.T) {
	assert.Equal(t, "AB12CD34", Normalize("  ab12cd34 "))
	assert.True(t, Valid("AB12CD34"))
	assert.False(t, Valid("ab12cd34"))
	assert.False(t, Valid("AB12-D34"))
	assert.False(t, Valid("AB12"))
}

type sequenceGenerator struct {
	codes []string
	calls int
}

func (g *sequenceGenerator) Generate(context.Context, GenerateInput) (string, error) {
	c := g.codes[g.calls%len(g.codes)]
	g.calls++
	return c, nil
}

func TestIssueUniqueRetriesOnCollision(t *testing.T) {
	gen := &sequenceGenerator{codes: []string{"AAAAAAAA", "BBBBBBBB"}}
	taken := map[string]bool{"AAAAAAAA": true}
	var collisions []string

	got, err := IssueUnique(context.Background(), gen, GenerateInput{}, func(_ context.Context, c string) (bool, error) {
		return taken[c], nil
	}, MaxAttempts, func(c string) { collisions = append(collisions, c) })
	require.NoError(t, err)
	assert.Equal(t, "BBBBBBBB", got)
	assert.Equal(t, []string{"AAAAAAAA"}, collisions)
}

func TestIssueUniqueExhausts(t *testing.T) {
	gen := &sequenceGenerator{codes: []string{"AAAAAAAA"}}
	_, err := IssueUnique(context.Background(), gen, GenerateInput{}, func(context.Context, string) (bool, error) {
		return true, nil
	}, MaxAttempts, nil)
	assert.ErrorIs(t, err, ErrCodeGenerationExhausted)
	assert.Equal(t, MaxAttempts, gen.calls)
}

func TestIssueUniquePropagatesLookupError(t *testing.T) {
	boom := errors.New("db down")
	gen := &sequenceGenerator{codes: []string{"AAAAAAAA"}}
	_, err := IssueUnique(context.Background(), gen, GenerateInput{}, func(context.Context, string) (bool, error) {
		return false, boom
	}, MaxAttempts, nil)
	assert.ErrorIs(t, err, boom)
}
