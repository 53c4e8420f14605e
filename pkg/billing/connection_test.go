package billing

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigurePool(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	configurePool(db, PoolConfig{MaxConns: 7, MinConns: 2, MaxLifetime: time.Minute, MaxIdleTime: time.Second})
	assert.Equal(t, 7, db.Stats().MaxOpenConnections)
}

func TestDefaultPoolConfig(t *testing.T) {
	cfg := DefaultPoolConfig("postgres://localhost/chartpay")
	assert.Equal(t, "postgres://localhost/chartpay", cfg.URL)
	assert.Equal(t, 20, cfg.MaxConns)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
}

func TestOpenPostgres_Errors(t *testing.T) {
	t.Run("error - missing URL", func(t *testing.T) {
		_, err := OpenPostgres(context.Background(), PoolConfig{})
		assert.Error(t, err)
	})

	t.Run("error - unreachable server", func(t *testing.T) {
		cfg := DefaultPoolConfig("postgres://chartpay@127.0.0.1:1/chartpay?sslmode=disable&connect_timeout=1")
		cfg.Timeout = 2 * time.Second
		_, err := OpenPostgres(context.Background(), cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to ping database")
	})
}
