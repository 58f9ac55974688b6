package checkpoint

import "embed"

// MigrationFS embeds the checkpoint store's SQL migrations so the binary
// carries its own schema; no migration files need to exist on disk.
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
