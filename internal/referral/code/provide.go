package code

import "github.com/smallbiznis/referly/internal/config"

func Provide(cfg config.Config) (Generator, error) {
	return New(Options{
		Policy: cfg.Referral.CodePolicy,
		Length: cfg.Referral.CodeLength,
	})
}
