// Package tests holds integration tests that run against a real PostgreSQL
// database. They skip unless DATABASE_URL is set.
package tests

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/phoneotp/server/internal/db"
)

// PrepareDatabase applies the embedded migrations and empties the auth tables.
func PrepareDatabase(ctx context.Context, database *sql.DB) error {
	if err := db.Migrate(database); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return TruncateAuthTables(ctx, database)
}

// TruncateAuthTables truncates auth-related tables for a clean test state.
func TruncateAuthTables(ctx context.Context, database *sql.DB) error {
	_, err := database.ExecContext(ctx, "TRUNCATE TABLE otps, users RESTART IDENTITY CASCADE")
	if err != nil {
		return fmt.Errorf("truncate auth tables: %w", err)
	}
	return nil
}
