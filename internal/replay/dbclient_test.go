package replay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caseforge/caseforge/internal/apispec"
)

func TestNewDBClientRejectsUnsupportedType(t *testing.T) {
	_, err := NewDBClient([]apispec.DatabaseConfig{
		{Name: "cache", Type: "redis", Config: map[string]any{"host": "127.0.0.1"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unsupported type "redis"`)
}

func TestNewDBClientRequiresHost(t *testing.T) {
	_, err := NewDBClient([]apispec.DatabaseConfig{
		{Name: "main", Type: "mysql", Config: map[string]any{}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing host")
}

func TestDBClientRegistersConnections(t *testing.T) {
	// sql.Open validates lazily, so registration succeeds without a
	// reachable server.
	client, err := NewDBClient([]apispec.DatabaseConfig{
		{Name: "main", Type: "mysql", Config: map[string]any{
			"host": "127.0.0.1", "port": float64(3307),
			"user": "tester", "password": "pw", "database": "app",
		}},
	})
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Query("unknown", "SELECT 1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown database connection "unknown"`)
}

func TestDBClientCloseNilSafe(t *testing.T) {
	var client *DBClient
	client.Close()
}

func TestMysqlDSN(t *testing.T) {
	dsn, err := mysqlDSN(map[string]any{
		"host": "db.internal", "port": float64(3307),
		"user": "svc", "password": "pw", "database": "orders",
	})
	require.NoError(t, err)
	assert.Equal(t, "svc:pw@tcp(db.internal:3307)/orders?parseTime=true", dsn)

	dsn, err = mysqlDSN(map[string]any{"host": "localhost"})
	require.NoError(t, err)
	assert.Equal(t, ":@tcp(localhost:3306)/?parseTime=true", dsn)
}
