package testdb

import (
	"context"
	"sync"
	"testing"

	"attendance-service/internal/db"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
)

var (
	sharedContainer *PostgresContainer
	sharedOnce      sync.Once
	sharedErr       error
)

// PostgresContainer wraps the postgres testcontainer
type PostgresContainer struct {
	Container *postgres.PostgresContainer
	DB        *bun.DB
	DSN       string
}

// SetupSharedPostgres starts one migrated PostgreSQL container per test binary.
// The container is reaped by testcontainers when the process exits.
//
// IMPORTANT: Tests using the shared container CANNOT run in parallel!
//
// Usage:
//
//	func TestMyRepository(t *testing.T) {
//	    pg := testdb.SetupSharedPostgres(t)
//
//	    t.Run("Case", func(t *testing.T) {
//	        testdb.CleanupTables(t, pg.DB, "attendance_records", "users")
//	        // ... test
//	    })
//	}
func SetupSharedPostgres(t *testing.T) *PostgresContainer {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	sharedOnce.Do(func() {
		ctx := context.Background()
		pgContainer, err := postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("testdb"),
			postgres.WithUsername("postgres"),
			postgres.WithPassword("postgres"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2),
			),
		)
		if err != nil {
			sharedErr = err
			return
		}

		connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			sharedErr = err
			return
		}

		database, err := db.NewWithDSN(ctx, connStr)
		if err != nil {
			sharedErr = err
			return
		}

		if err := db.Migrate(ctx, database); err != nil {
			sharedErr = err
			return
		}

		sharedContainer = &PostgresContainer{
			Container: pgContainer,
			DB:        database,
			DSN:       connStr,
		}
	})

	require.NoError(t, sharedErr, "failed to start shared postgres")
	return sharedContainer
}

func CleanupTables(t *testing.T, db *bun.DB, tables ...string) {
	t.Helper()

	ctx := context.Background()

	for _, table := range tables {
		_, err := db.ExecContext(ctx, "TRUNCATE "+table+" RESTART IDENTITY CASCADE")
		require.NoError(t, err, "failed to truncate table: %s", table)
	}
}
