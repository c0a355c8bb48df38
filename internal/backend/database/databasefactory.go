package database

import (
	"context"
	"fmt"
	"log"
)

const (
	TypeSQLite   = "sqlite"
	TypePostgres = "postgres"
)

func NewDatabase(ctx context.Context, databaseType, connectionString string) (database DatabaseService, err error) {
	switch databaseType {
	case TypeSQLite:
		database, err = NewSQLiteDatabase(connectionString)
		if err != nil {
			return nil, err
		}
	case TypePostgres:
		database, err = NewPostgresDatabase(ctx, connectionString)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", databaseType)
	}

	// Ensure database schema exists (idempotent), important for in-memory SQLite
	log.Print("initializing database schema (ensuring tables exist)")
	if err = database.CreateDatabase(ctx); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to create database: %w", err)
	}

	return database, nil
}
