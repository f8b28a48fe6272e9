package database

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrNotConfigured is returned when no connection string was provided.
var ErrNotConfigured = errors.New("database: no connection string configured")

func getLogger() logger.Interface {
	return logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags), // io writer
		logger.Config{
			SlowThreshold:             time.Second, // Slow SQL threshold
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true, // Ignore ErrRecordNotFound error for logger
			ParameterizedQueries:      true, // Don't include params in the SQL log
			Colorful:                  true,
		},
	)
}

func configureConnectionPool(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	// SetMaxIdleConns sets the maximum number of connections in the idle connection pool.
	sqlDB.SetMaxIdleConns(10)

	// SetMaxOpenConns sets the maximum number of open connections to the database.
	sqlDB.SetMaxOpenConns(100)

	// SetConnMaxLifetime sets the maximum amount of time a connection may be reused.
	sqlDB.SetConnMaxLifetime(time.Hour)

	return nil
}

func NewGormDBFromDSN(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, ErrNotConfigured
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: getLogger(),
	})
	if err != nil {
		return nil, err
	}

	if err := configureConnectionPool(db); err != nil {
		return nil, err
	}

	return db, nil
}

// Connector opens the database on first use. A failed attempt is not cached,
// so the next request tries again; attempts are spaced by retryAfter.
type Connector struct {
	dsn        string
	open       func(dsn string) (*gorm.DB, error)
	retryAfter time.Duration

	mu      sync.Mutex
	db      *gorm.DB
	lastErr error
	lastTry time.Time
	now     func() time.Time
}

func NewConnector(dsn string) *Connector {
	return &Connector{
		dsn:        dsn,
		open:       NewGormDBFromDSN,
		retryAfter: 5 * time.Second,
		now:        time.Now,
	}
}

func (c *Connector) Configured() bool {
	return c.dsn != ""
}

func (c *Connector) DB(ctx context.Context) (*gorm.DB, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db != nil {
		return c.db.WithContext(ctx), nil
	}
	if c.lastErr != nil && c.now().Sub(c.lastTry) < c.retryAfter {
		return nil, c.lastErr
	}

	c.lastTry = c.now()
	db, err := c.open(c.dsn)
	if err != nil {
		c.lastErr = fmt.Errorf("database: connect: %w", err)
		return nil, c.lastErr
	}
	c.db, c.lastErr = db, nil
	return db.WithContext(ctx), nil
}

func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return nil
	}
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	c.db = nil
	return sqlDB.Close()
}
