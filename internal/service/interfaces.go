package service

import (
	"context"

	"github.com/devrev/workspace-panel/internal/aggregator"
	"github.com/devrev/workspace-panel/internal/model"
	"github.com/devrev/workspace-panel/internal/tenantdb"
)

// SchemaInitializer creates the workspace tables behind a connection string.
type SchemaInitializer interface {
	Initialize(ctx context.Context, connString string) error
}

// TableLister lists the tables of a workspace database.
type TableLister interface {
	ListTables(ctx context.Context, connString string) ([]string, error)
}

// RepositoryProvider hands out the admin/user repository for a workspace database.
type RepositoryProvider interface {
	Repository(ctx context.Context, connString string) (tenantdb.Repository, error)
}

// RegistryMirror is the best-effort copy of the workspace list.
type RegistryMirror interface {
	Upsert(ctx context.Context, entry model.RegistryEntry) aggregator.Outcome
	Delete(ctx context.Context, workspaceID string) aggregator.Outcome
	List(ctx context.Context) ([]model.RegistryEntry, aggregator.Outcome)
}

var (
	_ SchemaInitializer  = (*tenantdb.SchemaInitializer)(nil)
	_ TableLister        = (*tenantdb.Introspector)(nil)
	_ RepositoryProvider = (*tenantdb.Pool)(nil)
	_ RegistryMirror     = (*aggregator.Mirror)(nil)
)
