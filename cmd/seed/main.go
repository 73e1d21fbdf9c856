package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"termin/internal/config"
	"termin/internal/database"
	"termin/internal/logging"
	"termin/internal/templates"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	defaultConfig := os.Getenv("CONFIG_PATH")
	if defaultConfig == "" {
		defaultConfig = "configs/config.yaml"
	}
	var (
		configPath    = flag.String("config", defaultConfig, "path to config.yaml")
		templatesPath = flag.String("templates", "configs/templates.yaml", "path to templates.yaml")
		overwrite     = flag.Bool("overwrite", false, "replace templates that already exist")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if closer != nil {
		defer closer.Close()
	}
	logger := logging.Component(baseLogger, "seed")

	list, err := templates.LoadSeedFile(*templatesPath)
	if err != nil {
		return fmt.Errorf("load templates: %w", err)
	}
	if len(list) == 0 {
		return fmt.Errorf("no templates in %s", *templatesPath)
	}

	db, err := database.NewDB(cfg.Database.Path, logging.Component(baseLogger, "database"))
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	written, err := templates.Seed(ctx, db, list, *overwrite)
	if err != nil {
		return fmt.Errorf("seed templates: %w", err)
	}

	logger.Info().
		Int("total", len(list)).
		Int("written", written).
		Int("skipped", len(list)-written).
		Bool("overwrite", *overwrite).
		Msg("Email templates seeded")
	return nil
}
