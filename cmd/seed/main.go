// seed loads development users, a demo desktop and its assignments, and mints approver tokens.
// "fixtures" is idempotent: existing rows are left as they are.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	assignmentrepo "github.com/commentors-net/Aegis-Mint/internal/assignment/repository"
	"github.com/commentors-net/Aegis-Mint/internal/config"
	"github.com/commentors-net/Aegis-Mint/internal/db"
	desktopdomain "github.com/commentors-net/Aegis-Mint/internal/desktop/domain"
	desktoprepo "github.com/commentors-net/Aegis-Mint/internal/desktop/repository"
	"github.com/commentors-net/Aegis-Mint/internal/security"
	userdomain "github.com/commentors-net/Aegis-Mint/internal/user/domain"
	userrepo "github.com/commentors-net/Aegis-Mint/internal/user/repository"
)

const (
	devAdminID    = "dev-admin-001"
	devGov1ID     = "dev-gov-001"
	devGov2ID     = "dev-gov-002"
	devDesktopID  = "dev-desktop-001"
	devTokenTTL   = 12 * time.Hour
	devDesktopTag = "Dev Treasury"
)

var devUsers = []*userdomain.User{
	{ID: devAdminID, Email: "admin@example.com", Name: "Dev Admin", Role: userdomain.RoleAdmin},
	{ID: devGov1ID, Email: "gov1@example.com", Name: "Governance One", Role: userdomain.RoleGovernanceAuthority},
	{ID: devGov2ID, Email: "gov2@example.com", Name: "Governance Two", Role: userdomain.RoleGovernanceAuthority},
}

var flagUserID = &cli.StringFlag{
	Name:     "user-id",
	Usage:    "User id to put in the token subject",
	Required: true,
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func seedFixtures(cCtx *cli.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}
	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	defer conn.Close()

	ctx := cCtx.Context
	users := userrepo.NewPostgresRepository(conn)
	now := time.Now().UTC()
	for _, u := range devUsers {
		existing, err := users.GetByID(ctx, u.ID)
		if err != nil {
			return fmt.Errorf("lookup user %s: %w", u.ID, err)
		}
		if existing != nil {
			continue
		}
		u.Status = userdomain.UserStatusActive
		u.CreatedAt = now
		if err := users.Upsert(ctx, u); err != nil {
			return fmt.Errorf("create user %s: %w", u.ID, err)
		}
		slog.Info("user created", "id", u.ID, "role", u.Role)
	}

	key, err := seedDesktop(ctx, desktoprepo.NewPostgresRepository(conn), cfg, now)
	if err != nil {
		return err
	}
	if err := assignmentrepo.NewPostgresRepository(conn).Replace(ctx, devDesktopID, string(desktopdomain.AppTypeTokenControl),
		[]string{devGov1ID, devGov2ID}); err != nil {
		return fmt.Errorf("assign authorities: %w", err)
	}

	slog.Info("seed completed")
	if key != "" {
		fmt.Printf("Desktop %s secret key: %s\n", devDesktopID, key)
	}
	return nil
}

// seedDesktop creates the demo desktop as Active. It returns the new key, or "" if the desktop already existed.
func seedDesktop(ctx context.Context, repo desktoprepo.Repository, cfg *config.Config, now time.Time) (string, error) {
	key, err := security.GenerateSecretKey()
	if err != nil {
		return "", err
	}
	created, err := repo.Create(ctx, &desktopdomain.Desktop{
		DesktopAppID:       devDesktopID,
		AppType:            desktopdomain.AppTypeTokenControl,
		NameLabel:          devDesktopTag,
		Status:             desktopdomain.StatusActive,
		RequiredApprovalsN: cfg.RequiredApprovalsDefault,
		UnlockMinutes:      cfg.UnlockMinutesDefault,
		SecretKey:          key,
		SecretKeyRotatedAt: &now,
		CreatedAt:          now,
	})
	if err != nil {
		return "", fmt.Errorf("create desktop: %w", err)
	}
	if !created {
		slog.Info("desktop already exists", "id", devDesktopID)
		return "", nil
	}
	return key, nil
}

func issueToken(cCtx *cli.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.JWTPrivateKey == "" {
		return errors.New("JWT_PRIVATE_KEY is not set")
	}
	signer, err := security.ParsePrivateKey(cfg.JWTPrivateKey)
	if err != nil {
		return fmt.Errorf("private key: %w", err)
	}
	tokens := security.NewTokenProvider(signer, signer.Public(), cfg.JWTIssuer, cfg.JWTAudience, devTokenTTL)

	userID := cCtx.String(flagUserID.Name)
	email := ""
	for _, u := range devUsers {
		if u.ID == userID {
			email = u.Email
		}
	}
	token, exp, err := tokens.IssueAccess(userID, email)
	if err != nil {
		return err
	}
	fmt.Println(token)
	slog.Info("token issued", "user_id", userID, "expires_at", exp.Format(time.RFC3339))
	return nil
}

func main() {
	app := &cli.App{
		Name:           "seed",
		Usage:          "Development data for the Aegis governance service",
		DefaultCommand: "fixtures",
		Commands: []*cli.Command{
			{
				Name:   "fixtures",
				Usage:  "Create dev users, an active demo desktop and its assignments",
				Action: seedFixtures,
			},
			{
				Name:   "token",
				Usage:  "Print an approver access token signed with JWT_PRIVATE_KEY",
				Flags:  []cli.Flag{flagUserID},
				Action: issueToken,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("seed failed", "err", err)
		os.Exit(1)
	}
}
