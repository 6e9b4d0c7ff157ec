// Package testutil starts a throwaway Postgres for sink integration tests.
//
//	func TestMain(m *testing.M) {
//	    pg := testutil.MustStartPostgres()
//	    testDB, _ = pg.NewTestDB(context.Background(), testutil.TestLogger())
//	    code := m.Run()
//	    pg.Terminate()
//	    os.Exit(code)
//	}
package testutil

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ashita-ai/kiroku/internal/storage"
	"github.com/ashita-ai/kiroku/migrations"
)

const (
	postgresImage = "postgres:17-alpine"
	postgresUser  = "kiroku"
	postgresDB    = "kiroku_test"
)

// Postgres is a running container and the DSN that reaches it.
type Postgres struct {
	Container testcontainers.Container
	DSN       string
}

// StartPostgres starts a Postgres container and waits until it accepts
// connections.
func StartPostgres(ctx context.Context) (*Postgres, error) {
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        postgresImage,
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     postgresUser,
				"POSTGRES_PASSWORD": postgresUser,
				"POSTGRES_DB":       postgresDB,
			},
			// The entrypoint restarts the server once after init.
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(90 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		return nil, fmt.Errorf("testutil: start postgres: %w", err)
	}
	endpoint, err := c.PortEndpoint(ctx, "5432/tcp", "")
	if err != nil {
		_ = c.Terminate(ctx)
		return nil, fmt.Errorf("testutil: postgres endpoint: %w", err)
	}
	return &Postgres{
		Container: c,
		DSN:       fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=disable", postgresUser, postgresUser, endpoint, postgresDB),
	}, nil
}

// MustStartPostgres is StartPostgres for TestMain: it exits the process on
// failure.
func MustStartPostgres() *Postgres {
	pg, err := StartPostgres(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	return pg
}

// NewTestDB opens a sink database on the container with all migrations
// applied.
func (p *Postgres) NewTestDB(ctx context.Context, logger *slog.Logger) (*storage.DB, error) {
	db, err := storage.New(ctx, p.DSN, logger)
	if err != nil {
		return nil, fmt.Errorf("testutil: open db: %w", err)
	}
	if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("testutil: migrate: %w", err)
	}
	return db, nil
}

// Terminate removes the container.
func (p *Postgres) Terminate() {
	_ = p.Container.Terminate(context.Background())
}

// TestLogger logs warnings and above to stderr, or everything when
// KIROKU_TEST_VERBOSE is set.
func TestLogger() *slog.Logger {
	level := slog.LevelWarn
	if os.Getenv("KIROKU_TEST_VERBOSE") != "" {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
