package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/clock"
	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/config"
	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/database"
	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/events"
	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/fixtures"
	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/logging"
	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/services"
)

func main() {
	logging.Setup()

	cfg := config.Load()
	file := pflag.StringP("file", "f", "fixtures.yaml", "fixtures YAML file to load")
	policyPath := pflag.String("policy", cfg.PolicyPath, "path to the engine policy YAML file")
	pflag.Parse()

	f, err := fixtures.ParseFile(*file)
	if err != nil {
		slog.Error("failed to read fixtures", "file", *file, "error", err)
		os.Exit(1)
	}
	policy, err := config.LoadPolicy(*policyPath)
	if err != nil {
		slog.Error("failed to load policy", "path", *policyPath, "error", err)
		os.Exit(1)
	}

	if err := database.Connect(cfg); err != nil {
		slog.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer database.Close(database.DB)
	if err := database.Migrate(database.DB); err != nil {
		slog.Error("migration failed", "error", err)
		os.Exit(1)
	}

	clk := clock.Real()
	// Events recorded while seeding stay in the feed; live delivery goes to
	// a hub nobody listens on.
	feed := events.NewFeed(database.DB, events.NewHub(), nil, clk)
	moderation := services.NewModerationService()
	identity := services.NewIdentityService(database.DB, clk, policy, moderation)
	loader := fixtures.NewLoader(
		services.NewAuthService(database.DB, cfg, clk, moderation),
		identity,
		services.NewConnectionService(database.DB, clk, feed),
	)

	if _, err := loader.Load(context.Background(), f); err != nil {
		slog.Error("seeding failed", "file", *file, "error", err)
		os.Exit(1)
	}
}
