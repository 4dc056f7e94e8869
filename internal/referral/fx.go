package referral

import (
	"github.com/smallbiznis/referly/internal/referral/code"
	"github.com/smallbiznis/referly/internal/referral/repository"
	"github.com/smallbiznis/referly/internal/referral/service"
	"go.uber.org/fx"
)

var Module = fx.Module("referral.service",
	fx.Provide(code.Provide),
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
