// Package db provides the embedded database migrations.
package db

import "embed"

// Migrations holds the versioned schema migrations, applied with
// golang-migrate.
//
//go:embed migrations/*.sql
var Migrations embed.FS
