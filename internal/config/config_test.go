package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("PROCESSOR_TIMEOUT", "")
	t.Setenv("RECONCILE_BATCH", "")
	t.Setenv("DEFAULT_CURRENCY", "")

	cfg := LoadConfig()

	assert.Equal(t, 15*time.Second, cfg.ProcessorTimeout)
	assert.Equal(t, 50, cfg.ReconcileBatch)
	assert.Equal(t, "RWF", cfg.DefaultCurrency)
	assert.Equal(t, "@every 1m", cfg.ReconcileSchedule)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("PROCESSOR_TIMEOUT", "3s")
	t.Setenv("RECONCILE_BATCH", "10")
	t.Setenv("RECONCILE_MIN_AGE", "bogus")
	t.Setenv("DB_USER", "app")
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_PORT", "3307")
	t.Setenv("DB_NAME", "brokerage")

	cfg := LoadConfig()

	assert.Equal(t, 3*time.Second, cfg.ProcessorTimeout)
	assert.Equal(t, 10, cfg.ReconcileBatch)
	assert.Equal(t, 2*time.Minute, cfg.ReconcileMinAge)
	assert.Equal(t, "app:secret@tcp(db:3307)/brokerage?parseTime=true", cfg.DSN())
}
