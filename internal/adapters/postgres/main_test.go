package postgres

import (
	"EkgPlatform/internal/adapters/security"
	"EkgPlatform/internal/core/ports"
	"EkgPlatform/internal/shared/config"
	"context"
	"fmt"
	"log"
	"os"
	"testing"

	"github.com/rs/zerolog"
)

var (
	testDB     *DB
	testSecSvc ports.SecurityPort
)

// TestMain sets up a connection to the test database. The package is skipped
// when DATABASE_URL is not configured.
func TestMain(m *testing.M) {
	// 1. Load config from the project root .env
	os.Chdir("../../../")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("TestMain: Failed to load config: %v", err)
	}
	if cfg.Postgres.URL == "" {
		fmt.Println("DATABASE_URL not set, skipping postgres tests")
		os.Exit(0)
	}

	// 2. Set up logger
	nopLogger := zerolog.Nop()

	// 3. Set up Security Service
	keyBytes, err := security.ParseKey(cfg.EncryptionKey)
	if err != nil {
		log.Fatalf("TestMain: Invalid encryption key: %v", err)
	}
	testSecSvc, err = security.NewAESService(keyBytes, &nopLogger)
	if err != nil {
		log.Fatalf("TestMain: Failed to create security service: %v", err)
	}

	// 4. Set up DB Connection and schema
	testDB, err = NewDB(context.Background(), cfg.Postgres.URL, &nopLogger)
	if err != nil {
		log.Fatalf("TestMain: Failed to connect to test database: %v", err)
	}
	if err := testDB.Migrate(); err != nil {
		log.Fatalf("TestMain: Failed to migrate test database: %v", err)
	}

	// 5. Run tests
	code := m.Run()

	// 6. Teardown
	testDB.Close()
	os.Exit(code)
}

// Helper to clean up the DB after tests
func cleanupDeadLetter(t *testing.T, id fmt.Stringer) {
	_, err := testDB.pool.Exec(t.Context(), "DELETE FROM dead_letters WHERE id = $1", id.String())
	if err != nil {
		t.Logf("Warning: Failed to cleanup dead letter %s: %v", id, err)
	}
}
