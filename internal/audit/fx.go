package audit

import (
	"github.com/thinktestai/thinktest/internal/audit/repository"
	"github.com/thinktestai/thinktest/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
