package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/thinktestai/thinktest/internal/audit"
	"github.com/thinktestai/thinktest/internal/authorization"
	"github.com/thinktestai/thinktest/internal/clock"
	"github.com/thinktestai/thinktest/internal/config"
	"github.com/thinktestai/thinktest/internal/credit"
	"github.com/thinktestai/thinktest/internal/generation"
	"github.com/thinktestai/thinktest/internal/migration"
	"github.com/thinktestai/thinktest/internal/observability"
	"github.com/thinktestai/thinktest/internal/payment"
	"github.com/thinktestai/thinktest/internal/providercost"
	"github.com/thinktestai/thinktest/internal/providerkey"
	"github.com/thinktestai/thinktest/internal/ratelimit"
	"github.com/thinktestai/thinktest/internal/receipt"
	"github.com/thinktestai/thinktest/internal/server"
	"github.com/thinktestai/thinktest/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		ratelimit.Module,

		// Domains
		providercost.Module,
		credit.Module,
		payment.Module,
		providerkey.Module,
		generation.Module,
		audit.Module,
		authorization.Module,
		receipt.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
