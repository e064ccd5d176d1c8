package tenantdb

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	apierrors "github.com/devrev/workspace-panel/internal/errors"
)

// ORM bookkeeping tables are not workspace data.
const listTablesQuery = `
	SELECT table_name
	FROM information_schema.tables
	WHERE table_schema = 'public'
	  AND table_type = 'BASE TABLE'
	  AND table_name NOT LIKE '\_prisma%'
	  AND table_name <> 'schema_migrations'
	ORDER BY table_name`

// Introspector lists the base tables of a workspace database.
type Introspector struct{}

// NewIntrospector creates a new table introspector.
func NewIntrospector() *Introspector {
	return &Introspector{}
}

// ListTables returns the public base table names ordered by name. The
// connection is released before returning on every path.
func (i *Introspector) ListTables(ctx context.Context, connString string) ([]string, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, apierrors.IntrospectionFailed(fmt.Errorf("connect: %w", err))
	}
	defer conn.Close(context.Background())

	rows, err := conn.Query(ctx, listTablesQuery)
	if err != nil {
		return nil, apierrors.IntrospectionFailed(err)
	}

	tables, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, apierrors.IntrospectionFailed(err)
	}
	if tables == nil {
		tables = []string{}
	}

	return tables, nil
}
