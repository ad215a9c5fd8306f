// Package integrationtest wires the wallet against a real database for
// integration tests.
package integrationtest

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/go-petr/pet-wallet/cmd/httpserver"
	"github.com/go-petr/pet-wallet/internal/domain"
	"github.com/go-petr/pet-wallet/internal/middleware"
	"github.com/go-petr/pet-wallet/pkg/configpkg"
	"github.com/go-petr/pet-wallet/pkg/dbpkg"
)

const configPath = "../../configs"

// Env is a wallet server backed by the test database.
type Env struct {
	Server *httpserver.Server
	DB     *sql.DB
	Config configpkg.Config
	Events *EventRecorder
}

// EventRecorder collects the transfer events the server publishes.
type EventRecorder struct {
	mu     sync.Mutex
	events []domain.TransferCompleted
}

// Publish records event.
func (r *EventRecorder) Publish(_ context.Context, event domain.TransferCompleted) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, event)

	return nil
}

// Events returns the events recorded so far in publish order.
func (r *EventRecorder) Events() []domain.TransferCompleted {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]domain.TransferCompleted(nil), r.events...)
}

// SetupServer builds the wallet server on the configured database. Users
// and accounts are wiped when the test ends.
func SetupServer(t *testing.T) Env {
	t.Helper()

	config, err := configpkg.Load(configPath)
	if err != nil {
		t.Fatalf("configpkg.Load(%v) returned error: %v", configPath, err)
	}

	zerolog.SetGlobalLevel(zerolog.FatalLevel)
	gin.SetMode(gin.ReleaseMode)

	db := SetupDB(t, config.DBDriver, config.DBSource)
	events := &EventRecorder{}

	server, err := httpserver.New(db, middleware.CreateLogger(config), config, events)
	if err != nil {
		t.Fatalf("httpserver.New() returned error: %v", err)
	}

	return Env{Server: server, DB: db, Config: config, Events: events}
}

// Flush removes every user and account.
func Flush(t *testing.T, db *sql.DB) {
	t.Helper()

	if _, err := db.Exec(`TRUNCATE TABLE accounts, users CASCADE`); err != nil {
		t.Fatalf("cannot flush wallet tables: %v", err)
	}
}

// SetupDB connects to the test database and flushes it when the test ends.
// Tests that commit through it must not run in parallel.
func SetupDB(t *testing.T, driver, source string) *sql.DB {
	t.Helper()

	db, err := dbpkg.Setup(driver, source)
	if err != nil {
		t.Fatalf("dbpkg.Setup(%v) returned error: %v", driver, err)
	}

	t.Cleanup(func() {
		Flush(t, db)

		if err := db.Close(); err != nil {
			t.Errorf("db.Close() returned error: %v", err)
		}
	})

	return db
}

// SetupTX opens a transaction that is rolled back when the test ends, so
// whatever the test writes is never seen by other tests.
func SetupTX(t *testing.T, driver, source string) *sql.Tx {
	t.Helper()

	db, err := dbpkg.Setup(driver, source)
	if err != nil {
		t.Fatalf("dbpkg.Setup(%v) returned error: %v", driver, err)
	}

	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("db.Begin() returned error: %v", err)
	}

	t.Cleanup(func() {
		if err := tx.Rollback(); err != nil {
			t.Errorf("tx.Rollback() returned error: %v", err)
		}

		if err := db.Close(); err != nil {
			t.Errorf("db.Close() returned error: %v", err)
		}
	})

	return tx
}
