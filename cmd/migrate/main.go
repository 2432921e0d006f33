// migrate applies the embedded schema. DATABASE_URL comes from the environment or .env.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/commentors-net/Aegis-Mint/internal/config"
	"github.com/commentors-net/Aegis-Mint/internal/db/migrate"
)

var flagSteps = &cli.IntFlag{
	Name:  "steps",
	Value: 0,
	Usage: "Number of migrations to apply; 0 applies all",
}

func run(direction migrate.Direction) cli.ActionFunc {
	return func(cCtx *cli.Context) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
		if err := migrate.Run(cfg.DatabaseURL, direction, cCtx.Int(flagSteps.Name)); err != nil {
			return fmt.Errorf("migrate %s: %w", direction, err)
		}
		v, dirty, err := migrate.Version(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		slog.Info("migrations applied", "direction", direction, "version", v, "dirty", dirty)
		return nil
	}
}

func main() {
	app := &cli.App{
		Name:           "migrate",
		Usage:          "Apply Aegis database migrations",
		DefaultCommand: "up",
		Commands: []*cli.Command{
			{
				Name:   "up",
				Usage:  "Apply pending migrations",
				Flags:  []cli.Flag{flagSteps},
				Action: run(migrate.Up),
			},
			{
				Name:   "down",
				Usage:  "Roll back migrations",
				Flags:  []cli.Flag{flagSteps},
				Action: run(migrate.Down),
			},
			{
				Name:  "version",
				Usage: "Print the current schema version",
				Action: func(cCtx *cli.Context) error {
					cfg, err := config.Load()
					if err != nil {
						return fmt.Errorf("config: %w", err)
					}
					v, dirty, err := migrate.Version(cfg.DatabaseURL)
					if err != nil {
						return err
					}
					fmt.Printf("version=%d dirty=%t\n", v, dirty)
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("migrate failed", "err", err)
		os.Exit(1)
	}
}
