package main

import (
	"context"
	"log"
	"time"

	"github.com/thinktestai/thinktest/internal/config"
	"github.com/thinktestai/thinktest/internal/migration"
	"github.com/thinktestai/thinktest/internal/observability"
	"github.com/thinktestai/thinktest/pkg/db"
	"go.uber.org/fx"
)

// Applies the schema and exits.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		db.Module,
		migration.Module,
	)
	if err := app.Err(); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := app.Start(ctx); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	if err := app.Stop(ctx); err != nil {
		log.Fatalf("migrate: %v", err)
	}
}
