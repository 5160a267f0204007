package credit

import (
	"github.com/thinktestai/thinktest/internal/credit/repository"
	"github.com/thinktestai/thinktest/internal/credit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("credit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
