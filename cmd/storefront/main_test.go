package main

import (
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/app"
)

func mapEnv(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := loadConfig(mapEnv(nil))
	require.NoError(t, err)
	require.Equal(t, app.DefaultConfig(), cfg)
}

func TestLoadConfig_Overrides(t *testing.T) {
	cfg, err := loadConfig(mapEnv(map[string]string{
		"STOREFRONT_HTTP_ADDR":    ":18080",
		"STOREFRONT_STOCK_DRIVER": "redis",
		"STOREFRONT_REDIS_ADDR":   "redis:6379",
		"STOREFRONT_LOG_LEVEL":    "debug",
	}))
	require.NoError(t, err)
	require.Equal(t, ":18080", cfg.HTTPAddr)
	require.Equal(t, app.StockDriverRedis, cfg.StockDriver)
	require.Equal(t, "redis:6379", cfg.RedisAddr)
	require.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadConfig_Invalid(t *testing.T) {
	_, err := loadConfig(mapEnv(map[string]string{"STOREFRONT_STORAGE_DRIVER": "mongo"}))
	require.Error(t, err)
}

func TestSetupLogger(t *testing.T) {
	prev := log.GetLevel()
	t.Cleanup(func() { log.SetLevel(prev) })

	require.NoError(t, setupLogger("warn"))
	require.Equal(t, log.WarnLevel, log.GetLevel())

	require.Error(t, setupLogger("chatty"))
}
