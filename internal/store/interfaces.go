// Package store holds the master workspace registry and the lookup cache in front of it.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/devrev/workspace-panel/internal/model"
)

// ErrNotFound is returned when a key is not found
var ErrNotFound = errors.New("not found")

// WorkspaceStore is the authoritative registry of workspaces.
type WorkspaceStore interface {
	ListWorkspaces(ctx context.Context) ([]*model.Workspace, error)
	GetWorkspace(ctx context.Context, workspaceID string) (*model.Workspace, error)
	CreateWorkspace(ctx context.Context, workspace *model.Workspace) error
	UpdateConnectionString(ctx context.Context, workspaceID, connString string) (*model.Workspace, error)
	DeleteWorkspace(ctx context.Context, workspaceID string) error

	// Health check
	Ping(ctx context.Context) error
	Close()
}

// Cache stores serialized values with a TTL.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// NoopCache never holds anything. Used when caching is switched off.
type NoopCache struct{}

func (NoopCache) Get(ctx context.Context, key string) ([]byte, error) { return nil, ErrNotFound }

func (NoopCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return nil
}

func (NoopCache) Delete(ctx context.Context, key string) error { return nil }
