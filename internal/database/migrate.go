package database

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	log "github.com/sirupsen/logrus"
)

//go:embed schema.sql
var schema string

// Migrate creates the tables and indexes if they do not exist yet.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("error applying schema: %w", err)
	}
	log.Println("[DB] Schema is up to date")
	return nil
}
