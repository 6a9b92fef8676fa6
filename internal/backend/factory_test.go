package backend

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spendly/internal/config"
	"spendly/internal/core"
)

func TestFromAppConfig(t *testing.T) {
	_, err := FromAppConfig(nil)
	require.Error(t, err)

	_, err = FromAppConfig(&config.Config{DataBackend: "mongodb"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"mongodb" (want one of memory, sqlite, postgres)`)

	cfg, err := FromAppConfig(&config.Config{
		DataBackend:    "postgres",
		PostgresURL:    "postgres://localhost/spendly",
		AMQPURL:        "amqp://localhost/",
		AMQPExchange:   "spendly",
		AMQPRoutingKey: "expense_events",
	})
	require.NoError(t, err)
	assert.Equal(t, PostgresBackend, cfg.Type)
	assert.Equal(t, "postgres://localhost/spendly", cfg.PostgresURL)
	assert.Equal(t, "expense_events", cfg.AMQPRoutingKey)
}

func TestConfigValidate(t *testing.T) {
	assert.Error(t, Config{Type: "oracle"}.Validate())
	assert.Error(t, Config{Type: SQLiteBackend}.Validate())
	assert.Error(t, Config{Type: PostgresBackend}.Validate())
	assert.NoError(t, Config{Type: MemoryBackend}.Validate())
	assert.Equal(t, []string{"memory", "sqlite", "postgres"}, GetBackendTypeStrings())

	err := Config{Type: "mongodb"}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "want one of memory, sqlite, postgres")
}

func TestCreateMemoryBackend(t *testing.T) {
	result, err := NewFactory(nil).CreateBackend(context.Background(), Config{Type: MemoryBackend})
	require.NoError(t, err)
	assert.Nil(t, result.Events)
	require.NoError(t, result.Store.Ping(context.Background()))
	require.NoError(t, result.Cleanup())
}

func TestCreateMemoryBackendFromSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.json")
	seed := `{"expenses":[{"id":"e1","owner":"u1","amount":12.5,"category":"Food",
		"paymentMethod":"Cash","description":"","date":"2025-03-01T10:00:00Z",
		"syncStatus":"synced","localId":null,
		"createdAt":"2025-03-01T10:00:00Z","updatedAt":"2025-03-01T10:00:00Z"}]}`
	require.NoError(t, os.WriteFile(path, []byte(seed), 0o600))

	result, err := NewFactory(nil).CreateBackend(context.Background(), Config{Type: MemoryBackend, MemorySeedFile: path})
	require.NoError(t, err)

	e, err := result.Store.GetExpense(context.Background(), "u1", "e1")
	require.NoError(t, err)
	assert.Equal(t, core.NewMoney(1250), e.Amount)
}

func TestCreateSQLiteBackend(t *testing.T) {
	result, err := NewFactory(nil).CreateBackend(context.Background(), Config{
		Type:         SQLiteBackend,
		SQLiteDBPath: filepath.Join(t.TempDir(), "spendly.db"),
	})
	require.NoError(t, err)
	require.NoError(t, result.Store.Ping(context.Background()))
	require.NoError(t, result.Cleanup())
}
