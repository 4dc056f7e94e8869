// Package code issues short human-shareable referral codes.
package code

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"strings"

	"github.com/gosimple/slug"
	"github.com/smallbiznis/referly/internal/errs"
)

const (
	Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

	MinLength     = 8
	MaxLength     = 10
	DefaultLength = 8
	MaxAttempts   = 3

	brandedPrefixLength = 3
	brandedPad          = "REF"
)

const (
	PolicyRandom  = "random"
	PolicyBranded = "branded"
)

var (
	ErrCodeGenerationExhausted = errs.NewRetryable(errs.KindConflict, "code_generation_exhausted")
	ErrInvalidLength           = errs.New(errs.KindValidation, "invalid_code_length")
)

type GenerateInput struct {
	// ContractorName seeds the prefix under the branded policy.
	ContractorName string
}

type Generator interface {
	Generate(ctx context.Context, in GenerateInput) (string, error)
}

type Options struct {
	Policy string
	Length int
	Rand   io.Reader
}

type generator struct {
	policy string
	length int
	rand   io.Reader
}

func New(opts Options) (Generator, error) {
	length := opts.Length
	if length == 0 {
		length = DefaultLength
	}
	if length < MinLength || length > MaxLength {
		return nil, ErrInvalidLength
	}
	policy := strings.ToLower(strings.TrimSpace(opts.Policy))
	if policy != PolicyBranded {
		policy = PolicyRandom
	}
	source := opts.Rand
	if source == nil {
		source = rand.Reader
	}
	return &generator{policy: policy, length: length, rand: source}, nil
}

func (g *generator) Generate(ctx context.Context, in GenerateInput) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var b strings.Builder
	b.Grow(g.length)
	if g.policy == PolicyBranded {
		b.WriteString(BrandedPrefix(in.ContractorName))
	}
	suffix, err := randomString(g.rand, g.length-b.Len())
	if err != nil {
		return "", fmt.Errorf("read randomness: %w", err)
	}
	b.WriteString(suffix)
	return b.String(), nil
}

// BrandedPrefix derives three code characters from a company name.
// Names are transliterated to ASCII and padded with "REF" when short.
func BrandedPrefix(name string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(slug.Make(name)) {
		if strings.ContainsRune(Alphabet, r) {
			b.WriteRune(r)
			if b.Len() == brandedPrefixLength {
				return b.String()
			}
		}
	}
	prefix := b.String()
	return prefix + brandedPad[:brandedPrefixLength-len(prefix)]
}

// randomString draws n alphabet characters, rejecting bytes that would bias the distribution.
func randomString(src io.Reader, n int) (string, error) {
	const limit = 256 - (256 % len(Alphabet))
	out := make([]byte, 0, n)
	buf := make([]byte, n*2)
	for len(out) < n {
		if _, err := io.ReadFull(src, buf); err != nil {
			return "", err
		}
		for _, v := range buf {
			if int(v) >= limit {
				continue
			}
			out = append(out, Alphabet[int(v)%len(Alphabet)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}

func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Valid reports whether code is a well-formed normalised code.
func Valid(code string) bool {
	if len(code) < MinLength || len(code) > MaxLength {
		return false
	}
	for _, r := range code {
		if !strings.ContainsRune(Alphabet, r) {
			return false
		}
	}
	return true
}

// ExistsFunc reports whether a candidate is already taken.
type ExistsFunc func(ctx context.Context, code string) (bool, error)

// IssueUnique generates candidates until one is free or attempts run out.
// onCollision, when set, observes each rejected candidate.
func IssueUnique(ctx context.Context, gen Generator, in GenerateInput, exists ExistsFunc, attempts int, onCollision func(string)) (string, error) {
	if attempts <= 0 {
		attempts = MaxAttempts
	}
	for i := 0; i < attempts; i++ {
		candidate, err := gen.Generate(ctx, in)
		if err != nil {
			return "", err
		}
		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		if onCollision != nil {
			onCollision(candidate)
		}
	}
	return "", ErrCodeGenerationExhausted
}
