package accounts

import "embed"

// Migrations holds the schema for the Postgres directory under "migrations".
//
//go:embed migrations/*.sql
var Migrations embed.FS
