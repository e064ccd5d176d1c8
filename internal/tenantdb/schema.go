// Package tenantdb holds everything that talks to an individual workspace
// database: schema bootstrap, pooled handles, the admin/user repository and
// table introspection.
package tenantdb

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	apierrors "github.com/devrev/workspace-panel/internal/errors"
)

// schemaStatements only ever create; existing tables and rows are left alone.
var schemaStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS pgcrypto`,
	`CREATE TABLE IF NOT EXISTS admins (
		id TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
		name TEXT NOT NULL,
		email TEXT UNIQUE NOT NULL,
		password TEXT NOT NULL,
		role TEXT DEFAULT 'admin',
		"createdAt" TIMESTAMP(3) DEFAULT CURRENT_TIMESTAMP,
		"updatedAt" TIMESTAMP(3) DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
		name TEXT NOT NULL,
		email TEXT UNIQUE NOT NULL,
		password TEXT,
		role TEXT DEFAULT 'user',
		"createdAt" TIMESTAMP(3) DEFAULT CURRENT_TIMESTAMP,
		"updatedAt" TIMESTAMP(3) DEFAULT CURRENT_TIMESTAMP
	)`,
}

// SchemaInitializer creates the admins and users tables in a workspace database.
type SchemaInitializer struct {
	logger *zap.Logger
}

// NewSchemaInitializer creates a new schema initializer.
func NewSchemaInitializer(logger *zap.Logger) *SchemaInitializer {
	return &SchemaInitializer{logger: logger}
}

// Initialize runs the schema statements on a short-lived connection. It is
// safe to call any number of times.
func (s *SchemaInitializer) Initialize(ctx context.Context, connString string) error {
	start := time.Now()

	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return apierrors.SchemaSetupFailed(fmt.Errorf("connect: %w", err))
	}
	defer conn.Close(context.Background())

	for _, stmt := range schemaStatements {
		if _, err := conn.Exec(ctx, stmt); err != nil {
			return apierrors.SchemaSetupFailed(err)
		}
	}

	s.logger.Info("Workspace schema ready",
		zap.String("database", describeTarget(connString)),
		zap.Duration("duration", time.Since(start)))

	return nil
}

// describeTarget renders host/database for logs without credentials.
func describeTarget(connString string) string {
	u, err := url.Parse(connString)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return u.Host + u.Path
}
