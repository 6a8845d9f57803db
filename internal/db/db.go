// Package db opens the workspace journal database.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const dbName = "orgpool.db"

type Config struct {
	Workspace string
}

// Open ensures the .orgpool workspace directory exists and opens the
// journal database with foreign keys on.
func Open(cfg Config) (*sql.DB, error) {
	workspace := cfg.Workspace
	if workspace == "" {
		workspace = "."
	}
	dir := filepath.Join(workspace, ".orgpool")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=foreign_keys(1)", filepath.Join(dir, dbName))
	return sql.Open("sqlite", dsn)
}
