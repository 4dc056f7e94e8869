package providers

import (
	"github.com/smallbiznis/referly/internal/providers/email"
	"github.com/smallbiznis/referly/internal/providers/payout"
	"github.com/smallbiznis/referly/internal/providers/sms"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	email.Module,
	sms.Module,
	payout.Module,
)
