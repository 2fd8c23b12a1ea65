// Package main is the entry point for the job board server.
//
// The main package stays small: it loads configuration, builds the logger,
// picks the payment gateway and hands everything to internal/server. All
// request handling lives in the internal packages so it can be tested
// without a process.
package main

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sakif/jobboard/internal/config"
	"github.com/sakif/jobboard/internal/payment"
	"github.com/sakif/jobboard/internal/server"
	"github.com/sakif/jobboard/internal/service"
)

func main() {
	// === 1. READ CONFIGURATION ===
	// config.yaml, then .env, then the process environment. See
	// internal/config for the variable names (PORT, DB_PATH, JWT_SECRET...).
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// === 2. SET UP LOGGING ===
	level, _ := cfg.Log.SlogLevel() // validated by config.Load
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	// === 3. PREPARE THE DATA DIRECTORY ===
	// SQLite creates the file but not its parent directory.
	dbDir := filepath.Dir(cfg.Database.Path)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		logger.Error("failed to create database directory",
			slog.String("dir", dbDir),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	// === 4. PAYMENT GATEWAY ===
	// Without a Stripe key the board still runs, but every charge is
	// approved locally. Never deploy it that way.
	var gateway payment.Gateway
	if cfg.Stripe.SecretKey != "" {
		gateway = payment.NewStripeGateway(cfg.Stripe.SecretKey)
	} else {
		logger.Warn("STRIPE_SECRET not set, charges are approved offline")
		gateway = payment.OfflineGateway{}
	}

	// === 5. CREATE AND START THE SERVER ===
	srv, err := server.New(server.Config{
		Port:       cfg.Server.Port,
		DBPath:     cfg.Database.Path,
		LogoDir:    cfg.Storage.LogoDir,
		JWTSecret:  cfg.Auth.JWTSecret,
		SessionTTL: cfg.Auth.SessionTTL,
		Pricing: service.Pricing{
			BaseFee:      cfg.Pricing.BaseFee,
			HighlightFee: cfg.Pricing.HighlightFee,
			Currency:     cfg.Stripe.Currency,
		},
	}, server.Deps{Gateway: gateway}, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start blocks until SIGINT or SIGTERM.
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
