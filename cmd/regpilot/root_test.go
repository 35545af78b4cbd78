package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/entrhq/regpilot/pkg/auth"
	"github.com/entrhq/regpilot/pkg/config"
	"github.com/entrhq/regpilot/pkg/license"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123"

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	configPath, tokenUser, seedFile = "", "", ""
	var stdout, stderr bytes.Buffer
	rootCmd.SetArgs(args)
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	err := rootCmd.Execute()
	return stdout.String(), err
}

func TestRootCommand_Version(t *testing.T) {
	out, err := execute(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, "dev (commit: unknown")
}

func TestTokenCommand(t *testing.T) {
	t.Setenv("REGPILOT_JWT_SECRET", testSecret)

	out, err := execute(t, "token", "--user", "owner-9")
	require.NoError(t, err)

	m, err := auth.NewJWTManager(testSecret, config.DefaultConfig().Auth.Issuer, time.Hour)
	require.NoError(t, err)
	claims, err := m.VerifyToken(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "owner-9", claims.UserID())
}

func TestTokenCommand_Errors(t *testing.T) {
	t.Setenv("REGPILOT_JWT_SECRET", "")

	_, err := execute(t, "token")
	assert.ErrorContains(t, err, "--user is required")

	_, err = execute(t, "token", "--user", "owner-9")
	assert.Error(t, err, "missing secret")
}

func TestSeedCommand_SQLite(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "regpilot.db")
	t.Setenv("REGPILOT_STORE_DRIVER", "sqlite")
	t.Setenv("REGPILOT_SQLITE_PATH", dbPath)

	seedPath := filepath.Join(dir, "businesses.yaml")
	require.NoError(t, os.WriteFile(seedPath, []byte(`
businesses:
  - owner_id: owner-1
    name: Kaveri Foods
    contact:
      phone: "+919845000123"
    required_licenses:
      - type: GST Registration
        department: GSTN
`), 0600))

	out, err := execute(t, "seed", "--file", seedPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Seeded 1 business profiles into sqlite store")

	store, err := license.OpenSQLite(dbPath)
	require.NoError(t, err)
	defer store.Close(context.Background())
	b, err := store.FindByOwner(context.Background(), "owner-1")
	require.NoError(t, err)
	assert.Equal(t, "Kaveri Foods", b.Name)
}

func TestSeedCommand_RejectsMemoryStore(t *testing.T) {
	t.Setenv("REGPILOT_STORE_DRIVER", "memory")
	_, err := execute(t, "seed", "--file", "whatever.yaml")
	assert.ErrorContains(t, err, "memory store")
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	s, err := openStore(ctx, config.StoreConfig{Driver: config.StoreMemory})
	require.NoError(t, err)
	assert.NoError(t, s.Ping(ctx))

	_, err = openStore(ctx, config.StoreConfig{Driver: "redis"})
	assert.Error(t, err)
}

func TestServe_InvalidConfig(t *testing.T) {
	t.Setenv("REGPILOT_JWT_SECRET", "")
	_, err := execute(t, "serve", "--store", "memory")
	assert.ErrorContains(t, err, "jwt_secret")
}
