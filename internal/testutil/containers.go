// Package testutil starts the Postgres and S3-compatible containers used by
// integration and e2e tests.
package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/cloo-solutions/citadoc/internal/database"
	"github.com/docker/go-connections/nat"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	postgresImage = "pgvector/pgvector:0.8.1-pg18"
	rustfsImage   = "rustfs/rustfs:latest"

	// RustFSCredential is both the access key and the secret of the RustFS
	// container.
	RustFSCredential = "rustfsadmin"
)

// PostgresContainer is a pgvector-enabled Postgres for tests.
type PostgresContainer struct {
	Container testcontainers.Container
	Host      string
	Port      string
	User      string
	Password  string
	Database  string
}

// NewPostgresContainer starts Postgres with the pgvector extension available.
func NewPostgresContainer(ctx context.Context, t *testing.T) *PostgresContainer {
	t.Helper()
	container, host, port := startContainer(ctx, t, testcontainers.ContainerRequest{
		Image:        postgresImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "citadoc",
			"POSTGRES_PASSWORD": "citadoc",
			"POSTGRES_DB":       "citadoc",
		},
		WaitingFor: wait.ForAll(
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
			wait.ForListeningPort("5432/tcp"),
		).WithStartupTimeout(60 * time.Second),
	}, "5432")

	return &PostgresContainer{
		Container: container,
		Host:      host,
		Port:      port,
		User:      "citadoc",
		Password:  "citadoc",
		Database:  "citadoc",
	}
}

// ConnectionString returns the PostgreSQL connection string
func (pc *PostgresContainer) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		pc.User, pc.Password, pc.Host, pc.Port, pc.Database)
}

// Terminate stops and removes the container
func (pc *PostgresContainer) Terminate(ctx context.Context) error {
	return testcontainers.TerminateContainer(pc.Container)
}

// RustFSContainer is an S3-compatible object store for tests.
type RustFSContainer struct {
	Container testcontainers.Container
	Host      string
	Port      string
}

// NewRustFSContainer starts RustFS with RustFSCredential as its key pair.
func NewRustFSContainer(ctx context.Context, t *testing.T) *RustFSContainer {
	t.Helper()
	container, host, port := startContainer(ctx, t, testcontainers.ContainerRequest{
		Image:        rustfsImage,
		ExposedPorts: []string{"9000/tcp"},
		Env: map[string]string{
			"RUSTFS_ACCESS_KEY": RustFSCredential,
			"RUSTFS_SECRET_KEY": RustFSCredential,
		},
		WaitingFor: wait.ForListeningPort("9000/tcp").WithStartupTimeout(30 * time.Second),
	}, "9000")

	return &RustFSContainer{Container: container, Host: host, Port: port}
}

// Endpoint returns the RustFS endpoint URL
func (rc *RustFSContainer) Endpoint() string {
	return fmt.Sprintf("http://%s:%s", rc.Host, rc.Port)
}

// Terminate stops and removes the container
func (rc *RustFSContainer) Terminate(ctx context.Context) error {
	return testcontainers.TerminateContainer(rc.Container)
}

func startContainer(ctx context.Context, t *testing.T, req testcontainers.ContainerRequest, port string) (testcontainers.Container, string, string) {
	t.Helper()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("failed to start %s: %v", req.Image, err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get %s host: %v", req.Image, err)
	}
	mapped, err := container.MappedPort(ctx, nat.Port(port))
	if err != nil {
		t.Fatalf("failed to get %s port: %v", req.Image, err)
	}
	return container, host, mapped.Port()
}

// NewTestPool applies the migrations in migrationsDir with the same
// golang-migrate path the server uses, then connects a pool. The container
// may accept connections a moment after its port opens, so connecting is
// retried.
func NewTestPool(ctx context.Context, t *testing.T, pc *PostgresContainer, migrationsDir string) *pgxpool.Pool {
	t.Helper()
	url := pc.ConnectionString()

	var pool *pgxpool.Pool
	var err error
	for attempt := 1; attempt <= 5; attempt++ {
		pool, err = database.NewPool(ctx, database.Config{URL: url})
		if err == nil {
			break
		}
		time.Sleep(time.Duration(attempt) * 500 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("failed to connect after retries: %v", err)
	}

	if err := database.Migrate(url, migrationsDir); err != nil {
		pool.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	return pool
}
