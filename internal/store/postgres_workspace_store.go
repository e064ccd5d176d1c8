package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/devrev/workspace-panel/internal/model"
)

const workspacesSchema = `
	CREATE TABLE IF NOT EXISTS workspaces (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		database_url TEXT NOT NULL,
		neon_project_id TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`

const workspaceColumns = `id, name, database_url, neon_project_id, created_at`

// PostgresWorkspaceStore implements WorkspaceStore for PostgreSQL
type PostgresWorkspaceStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresWorkspaceStore connects to the master database and makes sure
// the workspaces table exists.
func NewPostgresWorkspaceStore(ctx context.Context, connString string, maxConns, minConns int, logger *zap.Logger) (*PostgresWorkspaceStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if maxConns > 0 {
		config.MaxConns = int32(maxConns)
	}
	if minConns > 0 {
		config.MinConns = int32(minConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, workspacesSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create workspaces table: %w", err)
	}

	return &PostgresWorkspaceStore{
		pool:   pool,
		logger: logger,
	}, nil
}

// ListWorkspaces returns every workspace, newest first.
func (s *PostgresWorkspaceStore) ListWorkspaces(ctx context.Context) ([]*model.Workspace, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+workspaceColumns+` FROM workspaces ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list workspaces: %w", err)
	}
	defer rows.Close()

	workspaces := []*model.Workspace{}
	for rows.Next() {
		ws, err := scanWorkspace(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workspace: %w", err)
		}
		workspaces = append(workspaces, ws)
	}

	return workspaces, rows.Err()
}

// GetWorkspace retrieves a workspace by id
func (s *PostgresWorkspaceStore) GetWorkspace(ctx context.Context, workspaceID string) (*model.Workspace, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+workspaceColumns+` FROM workspaces WHERE id = $1`, workspaceID)

	ws, err := scanWorkspace(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workspace: %w", err)
	}

	return ws, nil
}

// CreateWorkspace inserts a workspace. CreatedAt is filled from the database.
func (s *PostgresWorkspaceStore) CreateWorkspace(ctx context.Context, ws *model.Workspace) error {
	query := `
		INSERT INTO workspaces (id, name, database_url, neon_project_id)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`

	err := s.pool.QueryRow(ctx, query,
		ws.ID,
		ws.Name,
		ws.ConnectionString,
		ws.ExternalProjectID,
	).Scan(&ws.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create workspace: %w", err)
	}

	return nil
}

// UpdateConnectionString points a workspace at a different database.
func (s *PostgresWorkspaceStore) UpdateConnectionString(ctx context.Context, workspaceID, connString string) (*model.Workspace, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE workspaces SET database_url = $2 WHERE id = $1 RETURNING `+workspaceColumns,
		workspaceID, connString)

	ws, err := scanWorkspace(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update workspace: %w", err)
	}

	return ws, nil
}

// DeleteWorkspace deletes a workspace record
func (s *PostgresWorkspaceStore) DeleteWorkspace(ctx context.Context, workspaceID string) error {
	result, err := s.pool.Exec(ctx, `DELETE FROM workspaces WHERE id = $1`, workspaceID)
	if err != nil {
		return fmt.Errorf("failed to delete workspace: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// Ping checks database connectivity
func (s *PostgresWorkspaceStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the database connection pool
func (s *PostgresWorkspaceStore) Close() {
	s.pool.Close()
}

func scanWorkspace(row pgx.Row) (*model.Workspace, error) {
	var ws model.Workspace
	err := row.Scan(
		&ws.ID,
		&ws.Name,
		&ws.ConnectionString,
		&ws.ExternalProjectID,
		&ws.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &ws, nil
}
