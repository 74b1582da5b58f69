// Package pgtest gives integration tests a migrated Postgres pool in a
// throwaway schema. Tests are skipped unless POSTGRES_TEST_DSN is set.
package pgtest

import (
	"context"
	"github.com/ariefcatur/go-orders-inventory/internal/postgres"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"os"
	"strings"
	"testing"
	"time"
)

const EnvDSN = "POSTGRES_TEST_DSN"

// Pool connects to POSTGRES_TEST_DSN, creates a fresh schema, applies the
// migrations inside it and drops it when the test ends. Packages run in
// parallel under go test, so each test gets its own schema.
func Pool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv(EnvDSN)
	if dsn == "" {
		t.Skipf("%s not set", EnvDSN)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	admin, err := postgres.Connect(ctx, dsn, 2)
	require.NoError(t, err)
	t.Cleanup(admin.Close)

	schema := "it_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
	ident := pgx.Identifier{schema}.Sanitize()
	_, err = admin.Exec(ctx, "CREATE SCHEMA "+ident)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = admin.Exec(context.Background(), "DROP SCHEMA "+ident+" CASCADE")
	})

	cfg, err := pgxpool.ParseConfig(dsn)
	require.NoError(t, err)
	cfg.MaxConns = 16
	cfg.ConnConfig.RuntimeParams["search_path"] = schema
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	require.NoError(t, err)
	// registered after the schema drop, so it runs first
	t.Cleanup(pool.Close)

	require.NoError(t, postgres.Migrate(ctx, pool))
	return pool
}

// SeedUser inserts a user row with a derived unique email.
func SeedUser(t *testing.T, pool *pgxpool.Pool, id, role string) {
	t.Helper()
	_, err := pool.Exec(context.Background(),
		`INSERT INTO users(id, email, role) VALUES ($1, $2, $3)`, id, id+"@example.test", role)
	require.NoError(t, err)
}

// SeedProduct inserts an approved product unless status says otherwise.
func SeedProduct(t *testing.T, pool *pgxpool.Pool, id string, priceCents int64, stock int, status string) {
	t.Helper()
	if status == "" {
		status = "APPROVED"
	}
	_, err := pool.Exec(context.Background(),
		`INSERT INTO products(id, name, price_cents, stock, status) VALUES ($1, $2, $3, $4, $5)`,
		id, "Product "+id, priceCents, stock, status)
	require.NoError(t, err)
}

// Stock reads the committed stock of a product.
func Stock(t *testing.T, pool *pgxpool.Pool, id string) int {
	t.Helper()
	var n int
	require.NoError(t, pool.QueryRow(context.Background(),
		`SELECT stock FROM products WHERE id=$1`, id).Scan(&n))
	return n
}
