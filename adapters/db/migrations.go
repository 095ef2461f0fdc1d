package db

import (
	"context"
	"embed"
	"fmt"
	"sort"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

// Migrate applies the enhancement-layer schema for the connected dialect.
// Statements are idempotent (CREATE ... IF NOT EXISTS) and run in file-name
// order. The tasks table itself belongs to the primary store and is assumed
// to exist already in shared deployments.
func (s *Storage) Migrate(ctx context.Context) error {
	dir := "migrations/postgres"
	if s.driver == "sqlite" {
		dir = "migrations/sqlite"
	}
	s.log.Debug("running migrations", "dialect", s.driver)

	entries, err := migrationsFS.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		raw, err := migrationsFS.ReadFile(dir + "/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := s.conn.ExecContext(ctx, string(raw)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
	}

	s.log.Debug("migrations finished", "count", len(names))
	return nil
}
