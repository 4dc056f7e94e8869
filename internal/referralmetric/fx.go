package referralmetric

import (
	"github.com/smallbiznis/referly/internal/referralmetric/repository"
	"github.com/smallbiznis/referly/internal/referralmetric/service"
	"go.uber.org/fx"
)

var Module = fx.Module("referralmetric.service",
	fx.Provide(repository.Provide),
	fx.Provide(repository.NewReferralSource),
	fx.Provide(service.New),
)
