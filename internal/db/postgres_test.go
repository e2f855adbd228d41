package db_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/hpungsan/keepsake/internal/db"
	"github.com/hpungsan/keepsake/internal/db/dbtest"
)

// postgresDSN returns KEEPSAKE_TEST_POSTGRES_DSN, or starts a throwaway
// container. Skips when neither is available.
func postgresDSN(t *testing.T) string {
	t.Helper()
	if dsn := os.Getenv("KEEPSAKE_TEST_POSTGRES_DSN"); dsn != "" {
		return dsn
	}
	if testing.Short() {
		t.Skip("short mode; skipping postgres container")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "keepsake",
			"POSTGRES_PASSWORD": "keepsake",
			"POSTGRES_DB":       "keepsake",
		},
		// postgres logs readiness twice: once for the init server, once for the real one
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("container port: %v", err)
	}
	return "postgres://keepsake:keepsake@" + host + ":" + port.Port() + "/keepsake?sslmode=disable"
}

func makePGStore(t *testing.T) *db.Store {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s, err := db.OpenPostgres(ctx, postgresDSN(t))
	if err != nil {
		t.Fatalf("postgres open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPostgresStore_Compliance(t *testing.T) {
	dbtest.Run(t, makePGStore)
}
