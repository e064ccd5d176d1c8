// Package aggregator mirrors a summary of every workspace into an optional
// registry database. Every write is best effort: callers get an Outcome back
// and decide what to log, the primary operation is never affected.
package aggregator

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/devrev/workspace-panel/internal/metrics"
	"github.com/devrev/workspace-panel/internal/model"
)

const registrySchema = `
	CREATE TABLE IF NOT EXISTS workspace_registry (
		workspace_id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		database_url TEXT NOT NULL,
		table_names TEXT[] NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`

const upsertEntry = `
	INSERT INTO workspace_registry (workspace_id, name, database_url, table_names, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, NOW())
	ON CONFLICT (workspace_id) DO UPDATE SET
		name = EXCLUDED.name,
		database_url = EXCLUDED.database_url,
		table_names = EXCLUDED.table_names,
		updated_at = NOW()`

const deleteEntry = `DELETE FROM workspace_registry WHERE workspace_id = $1`

const listEntries = `
	SELECT workspace_id, name, database_url, table_names, created_at
	FROM workspace_registry
	ORDER BY created_at DESC`

// defaultSchemaTimeout bounds the registry DDL independently of any request.
const defaultSchemaTimeout = 5 * time.Second

// Operation names used in logs and metrics.
const (
	OpUpsert = "upsert"
	OpDelete = "delete"
	OpList   = "list"
)

// dbtx is the slice of *pgxpool.Pool the mirror uses.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Ping(ctx context.Context) error
	Close()
}

// Config holds the aggregator connection settings.
type Config struct {
	URL      string
	MaxConns int32
}

// Outcome reports what a mirror operation did. Active is false when no
// aggregator is configured, in which case Err is always nil.
type Outcome struct {
	Active bool
	Err    error
}

// Failed reports whether an active mirror operation returned an error.
func (o Outcome) Failed() bool {
	return o.Active && o.Err != nil
}

func (o Outcome) result() string {
	switch {
	case !o.Active:
		return "inactive"
	case o.Err != nil:
		return "failed"
	default:
		return "ok"
	}
}

// Log writes a warning for a failed outcome and nothing otherwise.
func (o Outcome) Log(logger *zap.Logger, op string, fields ...zap.Field) {
	if !o.Failed() {
		return
	}
	fields = append(fields, zap.String("operation", op), zap.Error(o.Err))
	logger.Warn("Aggregator mirror update failed", fields...)
}

// Mirror maintains the workspace_registry table.
type Mirror struct {
	db      dbtx
	logger  *zap.Logger
	metrics *metrics.Metrics

	schemaGroup   singleflight.Group
	schemaReady   atomic.Bool
	schemaTimeout time.Duration
}

// New builds a mirror from cfg. An empty URL yields an inactive mirror. The
// pool connects lazily so an unreachable aggregator does not block startup.
func New(ctx context.Context, cfg Config, logger *zap.Logger, m *metrics.Metrics) (*Mirror, error) {
	if cfg.URL == "" {
		logger.Info("Aggregator mirror disabled")
		return Disabled(logger, m), nil
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid aggregator url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create aggregator pool: %w", err)
	}

	logger.Info("Aggregator mirror enabled", zap.String("host", poolCfg.ConnConfig.Host))
	return newWithDB(pool, logger, m), nil
}

// Disabled returns a mirror on which every operation is a no-op.
func Disabled(logger *zap.Logger, m *metrics.Metrics) *Mirror {
	return &Mirror{logger: logger, metrics: m}
}

func newWithDB(db dbtx, logger *zap.Logger, m *metrics.Metrics) *Mirror {
	return &Mirror{db: db, logger: logger, metrics: m, schemaTimeout: defaultSchemaTimeout}
}

// Active reports whether an aggregator is configured.
func (m *Mirror) Active() bool {
	return m.db != nil
}

// Upsert inserts or replaces the registry row for entry.WorkspaceID.
func (m *Mirror) Upsert(ctx context.Context, entry model.RegistryEntry) Outcome {
	return m.run(ctx, OpUpsert, func() error {
		tables := entry.TableNames
		if tables == nil {
			tables = []string{}
		}
		createdAt := entry.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		_, err := m.db.Exec(ctx, upsertEntry,
			entry.WorkspaceID, entry.Name, entry.ConnectionString, tables, createdAt)
		return err
	})
}

// Delete removes the registry row for workspaceID. A missing row is not an error.
func (m *Mirror) Delete(ctx context.Context, workspaceID string) Outcome {
	return m.run(ctx, OpDelete, func() error {
		_, err := m.db.Exec(ctx, deleteEntry, workspaceID)
		return err
	})
}

// List returns every registry row, newest first.
func (m *Mirror) List(ctx context.Context) ([]model.RegistryEntry, Outcome) {
	entries := []model.RegistryEntry{}
	outcome := m.run(ctx, OpList, func() error {
		rows, err := m.db.Query(ctx, listEntries)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var e model.RegistryEntry
			if err := rows.Scan(&e.WorkspaceID, &e.Name, &e.ConnectionString, &e.TableNames, &e.CreatedAt); err != nil {
				return err
			}
			if e.TableNames == nil {
				e.TableNames = []string{}
			}
			entries = append(entries, e)
		}
		return rows.Err()
	})
	if outcome.Err != nil {
		return []model.RegistryEntry{}, outcome
	}
	return entries, outcome
}

// Ping checks the aggregator connection. An inactive mirror is always healthy.
func (m *Mirror) Ping(ctx context.Context) error {
	if !m.Active() {
		return nil
	}
	return m.db.Ping(ctx)
}

// Close releases the aggregator pool.
func (m *Mirror) Close() {
	if m.Active() {
		m.db.Close()
	}
}

func (m *Mirror) run(ctx context.Context, op string, fn func() error) Outcome {
	outcome := Outcome{Active: m.Active()}
	if outcome.Active {
		if err := m.ensureSchema(ctx); err != nil {
			outcome.Err = fmt.Errorf("ensure registry schema: %w", err)
		} else if err := fn(); err != nil {
			outcome.Err = fmt.Errorf("%s registry entry: %w", op, err)
		}
	}

	if m.metrics != nil {
		m.metrics.RecordMirrorOperation(op, outcome.result())
	}
	return outcome
}

// ensureSchema creates the registry table once per process. Concurrent
// callers share one DDL run, which has its own timeout; each caller waits
// only as long as its own context allows. A failed run is retried on the
// next operation.
func (m *Mirror) ensureSchema(ctx context.Context) error {
	if m.schemaReady.Load() {
		return nil
	}

	ch := m.schemaGroup.DoChan("schema", func() (interface{}, error) {
		if m.schemaReady.Load() {
			return nil, nil
		}
		ddlCtx, cancel := context.WithTimeout(context.Background(), m.schemaTimeout)
		defer cancel()
		if _, err := m.db.Exec(ddlCtx, registrySchema); err != nil {
			return nil, err
		}
		m.schemaReady.Store(true)
		return nil, nil
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}
