package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, int64(100), cfg.Checkout.MinChargeMinor)
	assert.Equal(t, 30*time.Second, cfg.Checkout.AttemptWindow)
	assert.Equal(t, time.Minute, cfg.Checkout.SweepInterval)
	assert.Equal(t, 30*time.Minute, cfg.Checkout.StaleAfter)
	assert.Equal(t, "", cfg.Geo.FallbackCountry)
	assert.True(t, cfg.Database.Migrate)
	assert.Empty(t, cfg.Auth.JWTSecret)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("MIN_CHARGE_MINOR", "250")
	t.Setenv("CHECKOUT_ATTEMPT_WINDOW", "45")
	t.Setenv("SWEEP_INTERVAL", "2m")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("CORS_ORIGINS", "https://shop.example")
	t.Setenv("DATABASE_MIGRATE", "false")
	t.Setenv("TRACE_SAMPLE_RATIO", "0.25")

	cfg := Load()

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, int64(250), cfg.Checkout.MinChargeMinor)
	assert.Equal(t, 45*time.Second, cfg.Checkout.AttemptWindow)
	assert.Equal(t, 2*time.Minute, cfg.Checkout.SweepInterval)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, []string{"https://shop.example"}, cfg.Server.CORSOrigins)
	assert.False(t, cfg.Database.Migrate)
	assert.Equal(t, 0.25, cfg.Observ.TraceSampleRatio)
}
