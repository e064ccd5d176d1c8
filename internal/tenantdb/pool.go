package tenantdb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/devrev/workspace-panel/internal/metrics"
)

// DialFunc opens a database handle for a workspace connection string.
type DialFunc func(ctx context.Context, connString string) (*gorm.DB, error)

// DialConfig tunes the handles produced by GormDialer.
type DialConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// GormDialer returns a DialFunc that opens a gorm handle over pgx and pings it.
func GormDialer(cfg DialConfig) DialFunc {
	return func(ctx context.Context, connString string) (*gorm.DB, error) {
		db, err := gorm.Open(postgres.Open(connString), &gorm.Config{
			Logger:               gormlogger.Default.LogMode(gormlogger.Warn),
			DisableAutomaticPing: true,
		})
		if err != nil {
			return nil, err
		}

		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		if cfg.MaxOpenConns > 0 {
			sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		}
		if cfg.ConnMaxLifetime > 0 {
			sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		}

		if err := sqlDB.PingContext(ctx); err != nil {
			_ = sqlDB.Close()
			return nil, err
		}
		return db, nil
	}
}

// Client is a pooled handle to one workspace database. It implements Repository.
type Client struct {
	db     *gorm.DB
	target string
}

func (c *Client) close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Pool keeps one Client per connection string for the life of the process.
// Clients are never evicted.
type Pool struct {
	mu      sync.RWMutex
	clients map[string]*Client
	group   singleflight.Group

	dial        DialFunc
	dialTimeout time.Duration
	logger      *zap.Logger
	metrics     *metrics.Metrics
}

// NewPool creates an empty pool. m may be nil.
func NewPool(dial DialFunc, logger *zap.Logger, m *metrics.Metrics) *Pool {
	return &Pool{
		clients:     make(map[string]*Client),
		dial:        dial,
		dialTimeout: 15 * time.Second,
		logger:      logger,
		metrics:     m,
	}
}

// Get returns the client for connString, dialing it on first use. Concurrent
// first requests for the same key share a single dial.
func (p *Pool) Get(ctx context.Context, connString string) (*Client, error) {
	if connString == "" {
		return nil, errors.New("empty connection string")
	}

	p.mu.RLock()
	client, ok := p.clients[connString]
	p.mu.RUnlock()
	if ok {
		return client, nil
	}

	ch := p.group.DoChan(connString, func() (interface{}, error) {
		p.mu.RLock()
		existing, ok := p.clients[connString]
		p.mu.RUnlock()
		if ok {
			return existing, nil
		}

		// The dial outlives the caller that triggered it; others may be waiting.
		dialCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.dialTimeout)
		defer cancel()

		db, err := p.dial(dialCtx, connString)
		if err != nil {
			return nil, err
		}

		created := &Client{db: db, target: describeTarget(connString)}

		p.mu.Lock()
		p.clients[connString] = created
		size := len(p.clients)
		p.mu.Unlock()

		if p.metrics != nil {
			p.metrics.SetPoolClients(size)
		}
		p.logger.Info("Opened workspace database client",
			zap.String("database", created.target),
			zap.Int("pool_size", size))

		return created, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("failed to open workspace database: %w", res.Err)
		}
		return res.Val.(*Client), nil
	}
}

// Repository returns the pooled client for connString as a Repository.
func (p *Pool) Repository(ctx context.Context, connString string) (Repository, error) {
	client, err := p.Get(ctx, connString)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// Size returns the number of pooled clients.
func (p *Pool) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.clients)
}

// CloseAll closes every client and empties the pool.
func (p *Pool) CloseAll() error {
	p.mu.Lock()
	clients := p.clients
	p.clients = make(map[string]*Client)
	p.mu.Unlock()

	var errs []error
	for _, c := range clients {
		if err := c.close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", c.target, err))
		}
	}

	if p.metrics != nil {
		p.metrics.SetPoolClients(0)
	}
	p.logger.Info("Closed workspace database clients", zap.Int("count", len(clients)))

	return errors.Join(errs...)
}
