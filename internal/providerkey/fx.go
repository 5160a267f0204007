package providerkey

import (
	"github.com/thinktestai/thinktest/internal/providerkey/repository"
	"github.com/thinktestai/thinktest/internal/providerkey/service"
	"go.uber.org/fx"
)

var Module = fx.Module("providerkey.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
