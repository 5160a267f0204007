package payment

import (
	"github.com/thinktestai/thinktest/internal/config"
	"github.com/thinktestai/thinktest/internal/payment/adapters"
	"github.com/thinktestai/thinktest/internal/payment/adapters/stripe"
	"github.com/thinktestai/thinktest/internal/payment/repository"
	paymentservice "github.com/thinktestai/thinktest/internal/payment/service"
	"github.com/thinktestai/thinktest/internal/payment/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(func(cfg config.Config) *adapters.Registry {
		return adapters.NewRegistry(adapters.SettingsFromConfig(cfg), stripe.NewFactory())
	}),
	fx.Provide(stripe.NewGateway),
	fx.Provide(paymentservice.NewService),
	fx.Provide(webhook.NewService),
)
