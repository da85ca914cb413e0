package main

import (
	"context"
	"embed"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/lgulliver/docdesk/pkg/config"
	"github.com/lgulliver/docdesk/pkg/migrate"
	"github.com/rs/zerolog/log"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

func main() {
	var (
		up         = flag.Bool("up", false, "Run pending migrations")
		down       = flag.Bool("down", false, "Roll back the last migration")
		status     = flag.Bool("status", false, "List migrations and whether they are applied")
		configPath = flag.String("config", os.Getenv("DOCDESK_CONFIG"), "Path to a TOML config file")
	)
	flag.Parse()

	if !*up && !*down && !*status {
		fmt.Printf("Usage: %s [-up | -down | -status] [-config file]\n", os.Args[0])
		fmt.Println("  -up      Run pending migrations")
		fmt.Println("  -down    Roll back the last migration")
		fmt.Println("  -status  List migrations and whether they are applied")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	cfg.Logging.SetupLogging()

	migrator, err := migrate.Open(&cfg.History, &cfg.Database, migrationsFS, "migrations")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create migrator")
	}
	defer migrator.Close()

	ctx := context.Background()

	if *status {
		if err := printStatus(ctx, os.Stdout, migrator); err != nil {
			log.Fatal().Err(err).Msg("Failed to read migration status")
		}
	}

	if *up {
		applied, err := migrator.Up(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to run migrations")
		}
		log.Info().Int("applied", applied).Msg("Migrations completed successfully")
	}

	if *down {
		if err := migrator.Down(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to roll back migration")
		}
		log.Info().Msg("Rollback completed successfully")
	}
}

func printStatus(ctx context.Context, w io.Writer, migrator *migrate.Migrator) error {
	status, err := migrator.Status(ctx)
	if err != nil {
		return err
	}
	for _, s := range status {
		state := "pending"
		if s.Applied {
			state = "applied"
		}
		fmt.Fprintf(w, "%03d  %-24s %s\n", s.Version, s.Name, state)
	}
	return nil
}
