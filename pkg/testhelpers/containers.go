// Package testhelpers starts disposable sources for integration tests.
package testhelpers

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ekaya-inc/sourcesense/pkg/models"
)

// PostgresImage is the source image used by integration tests.
const PostgresImage = "postgres:16-alpine"

const (
	testUser     = "sourcesense"
	testPassword = "test_password"
	testDatabase = "shop"
)

// SeedSQL creates a small shop schema: customers, products, orders with
// declared foreign keys, shipments whose order_id has no constraint, and a
// view joining orders to customers.
const SeedSQL = `
CREATE TABLE customers (
	id          serial PRIMARY KEY,
	email       text NOT NULL,
	full_name   text,
	created_at  timestamptz NOT NULL DEFAULT now(),
	is_active   boolean NOT NULL DEFAULT true
);

CREATE TABLE products (
	sku    text PRIMARY KEY,
	title  text NOT NULL,
	price  numeric(10,2) NOT NULL
);

CREATE TABLE orders (
	id            serial PRIMARY KEY,
	customer_id   integer NOT NULL REFERENCES customers(id),
	product_sku   text REFERENCES products(sku),
	status        text NOT NULL,
	total_amount  numeric(10,2) NOT NULL,
	ordered_at    timestamptz NOT NULL
);

CREATE TABLE shipments (
	id        serial PRIMARY KEY,
	order_id  integer NOT NULL,
	carrier   text
);

CREATE VIEW active_customer_orders AS
	SELECT o.id, c.email, o.total_amount
	FROM orders o
	JOIN customers c ON c.id = o.customer_id
	WHERE c.is_active;

INSERT INTO customers (email, full_name, created_at, is_active)
SELECT 'user' || i || '@example.com',
       CASE WHEN i % 10 = 0 THEN NULL ELSE 'Customer ' || i END,
       timestamptz '2024-01-01' + (i || ' days')::interval,
       i % 7 <> 0
FROM generate_series(1, 50) AS i;

INSERT INTO products (sku, title, price)
SELECT 'SKU-' || lpad(i::text, 4, '0'), 'Product ' || i, (i * 3.5)::numeric(10,2)
FROM generate_series(1, 20) AS i;

INSERT INTO orders (customer_id, product_sku, status, total_amount, ordered_at)
SELECT (i % 50) + 1,
       'SKU-' || lpad(((i % 20) + 1)::text, 4, '0'),
       (ARRAY['pending', 'shipped', 'delivered'])[(i % 3) + 1],
       (i * 1.25)::numeric(10,2),
       timestamptz '2024-03-01' + (i || ' hours')::interval
FROM generate_series(1, 200) AS i;

INSERT INTO shipments (order_id, carrier)
SELECT i, (ARRAY['ups', 'dhl'])[(i % 2) + 1]
FROM generate_series(1, 100) AS i;

ANALYZE;
`

// TestDB holds a shared PostgreSQL container seeded with SeedSQL.
type TestDB struct {
	Container testcontainers.Container
	Pool      *pgxpool.Pool
	ConnStr   string
	Host      string
	Port      int
}

// Descriptor returns a descriptor for the seeded database.
func (db *TestDB) Descriptor() models.ConnectionDescriptor {
	return models.ConnectionDescriptor{
		Kind:        models.SourceKindPostgres,
		Host:        db.Host,
		Port:        db.Port,
		Database:    testDatabase,
		Credentials: models.Credentials{Username: testUser, Password: testPassword},
		Options:     map[string]string{"sslmode": "disable"},
	}
}

var (
	sharedTestDB     *TestDB
	sharedTestDBOnce sync.Once
	sharedTestDBErr  error
)

// GetTestDB returns a shared PostgreSQL container for integration tests.
// The container is created once and reused across all tests in the run.
func GetTestDB(t *testing.T) *TestDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedTestDBOnce.Do(func() {
		sharedTestDB, sharedTestDBErr = setupTestDB()
	})

	if sharedTestDBErr != nil {
		t.Fatalf("Failed to setup test database: %v", sharedTestDBErr)
	}

	return sharedTestDB
}

func setupTestDB() (*TestDB, error) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        PostgresImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       testDatabase,
			"POSTGRES_USER":     testUser,
			"POSTGRES_PASSWORD": testPassword,
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start test container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	connStr := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		testUser, testPassword, host, port.Port(), testDatabase)

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Verify connection with retry
	for i := 0; i < 10; i++ {
		if err := pool.Ping(ctx); err == nil {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}

	if _, err := pool.Exec(ctx, SeedSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to seed test database: %w", err)
	}

	return &TestDB{
		Container: container,
		Pool:      pool,
		ConnStr:   connStr,
		Host:      host,
		Port:      port.Int(),
	}, nil
}
