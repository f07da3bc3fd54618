package db

import (
	"database/sql"
	"fmt"
)

// migrations is a list of SQL statements applied in order after schema creation.
// Each migration must be idempotent. Append new migrations at the end.
var migrations = []string{
	// Migration 1: category filter and listing.
	`CREATE INDEX IF NOT EXISTS idx_items_category ON items(category)`,
	// Migration 2: "current inventory" view filters on quantity.
	`CREATE INDEX IF NOT EXISTS idx_items_quantity ON items(quantity) WHERE quantity > 0`,
}

// Migrate ensures the schema and runs the migrations.
func Migrate(db *sql.DB) error {
	if err := EnsureSchema(db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	for i, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("running migration %d: %w", i+1, err)
		}
	}

	return nil
}
