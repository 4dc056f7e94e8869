package reward

import (
	"github.com/smallbiznis/referly/internal/reward/repository"
	"github.com/smallbiznis/referly/internal/reward/service"
	"go.uber.org/fx"
)

var Module = fx.Module("reward.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
