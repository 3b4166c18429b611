package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"PORT", "STORE", "ROUND_TICKS", "TICK_INTERVAL", "LOCK_TIMEOUT", "REDIS_ADDR"} {
		t.Setenv(k, "")
	}
	c := Load()
	assert.Equal(t, "8080", c.Port)
	assert.Equal(t, StoreMemory, c.Store)
	assert.Equal(t, 10, c.RoundTicks)
	assert.Equal(t, time.Second, c.TickInterval)
	assert.Equal(t, 5*time.Second, c.LockTimeout)
	assert.Empty(t, c.RedisAddr)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("STORE", StorePostgres)
	t.Setenv("PG_HOST", "db")
	t.Setenv("ROUND_TICKS", "60")
	t.Setenv("TICK_INTERVAL", "250ms")
	t.Setenv("LOCK_TIMEOUT", "not-a-duration")

	c := Load()
	assert.Equal(t, "9090", c.Port)
	assert.Equal(t, StorePostgres, c.Store)
	assert.Equal(t, "db", c.Postgres.Host)
	assert.Equal(t, 60, c.RoundTicks)
	assert.Equal(t, 250*time.Millisecond, c.TickInterval)
	assert.Equal(t, 5*time.Second, c.LockTimeout)
}

func TestGetEnvIntFallsBack(t *testing.T) {
	t.Setenv("REDIS_DB", "x")
	assert.Equal(t, 0, getEnvInt("REDIS_DB", 0))
	t.Setenv("REDIS_DB", "2")
	assert.Equal(t, 2, getEnvInt("REDIS_DB", 0))
}
