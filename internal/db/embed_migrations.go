package db

import "embed"

// MigrationFS embeds the schema for desktops, approval sessions, votes, audit and auth logs.
// Applied by cmd/migrate; the server never migrates on startup.
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
