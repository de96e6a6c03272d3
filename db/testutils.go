package db

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

var (
	testDB        *sqlx.DB
	getTestDbOnce sync.Once
)

// GetTestDb connects to POSTGRES_URL once per test binary and makes sure the schema exists.
func GetTestDb(t *testing.T) *sqlx.DB {
	getTestDbOnce.Do(func() {
		var err error
		testDB, err = Open(os.Getenv("POSTGRES_URL"))
		require.NoError(t, err)

		require.NoError(t, InitializeDatabaseSchema(testDB))
	})

	return testDB
}

// RunTests runs the package tests against POSTGRES_URL, starting a container when it isn't set.
func RunTests(m *testing.M) {
	if os.Getenv("POSTGRES_URL") != "" {
		os.Exit(m.Run())
	}

	container, url := StartPostgresContainer()
	os.Setenv("POSTGRES_URL", url)

	code := m.Run()
	_ = container.Terminate(context.Background())
	os.Exit(code)
}

func StartPostgresContainer() (testcontainers.Container, string) {
	ctx := context.Background()

	postgresContainer, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("docker.io/postgres:15.2-alpine"),
		postgres.WithDatabase("stays"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		panic(err)
	}

	connStr, err := postgresContainer.ConnectionString(ctx, "sslmode=disable", "application_name=test")
	if err != nil {
		panic(err)
	}

	return postgresContainer, connStr
}
