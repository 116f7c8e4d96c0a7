package observer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/readystackgo/rsgo/internal/manifest"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// driverAliases maps manifest driver names to registered database/sql drivers.
var driverAliases = map[string]string{
	"sqlite":  "sqlite",
	"sqlite3": "sqlite",
}

// sqlObserver reads a single value with a query. The connection is opened lazily.
type sqlObserver struct {
	base
	cfg    manifest.SQLObserver
	driver string
	logger zerolog.Logger

	mu sync.Mutex
	db *sql.DB
}

func newSQLObserver(b base, cfg manifest.SQLObserver, logger zerolog.Logger) (*sqlObserver, error) {
	driver, ok := driverAliases[cfg.Driver]
	if !ok {
		driver = cfg.Driver
	}
	if !registered(driver) {
		return nil, fmt.Errorf("sql driver %q is not available", cfg.Driver)
	}
	return &sqlObserver{base: b, cfg: cfg, driver: driver, logger: logger}, nil
}

func registered(driver string) bool {
	for _, name := range sql.Drivers() {
		if name == driver {
			return true
		}
	}
	return false
}

func (o *sqlObserver) conn() (*sql.DB, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.db != nil {
		return o.db, nil
	}
	db, err := sql.Open(o.driver, o.cfg.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", o.cfg.Driver, err)
	}
	db.SetMaxOpenConns(1)
	o.db = db
	return db, nil
}

func (o *sqlObserver) Observe(ctx context.Context) (Result, error) {
	db, err := o.conn()
	if err != nil {
		return Result{}, err
	}
	var value sql.NullString
	err = db.QueryRowContext(ctx, o.cfg.Query).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		o.logger.Debug().Msg("maintenance query returned no rows")
		return o.result(""), nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("maintenance query: %w", err)
	}
	return o.result(value.String), nil
}

func (o *sqlObserver) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.db == nil {
		return nil
	}
	err := o.db.Close()
	o.db = nil
	return err
}
