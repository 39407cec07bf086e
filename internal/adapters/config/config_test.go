package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, 300, cfg.Cache.DefaultTTLSeconds)
	assert.Equal(t, 150, cfg.Cache.FeedTTLSeconds)
	assert.Equal(t, 900, cfg.Cache.ProfileTTLSeconds)
	assert.Equal(t, 3, cfg.Comments.MaxDepth)
	assert.Equal(t, "flatten", cfg.Comments.DepthPolicy)
	assert.Equal(t, 1800, cfg.Comments.IdleThreadTimeoutSeconds)
	assert.Equal(t, 60, cfg.Comments.ReaperIntervalSeconds)
	assert.False(t, cfg.NATS.Enabled)
}

func TestTTL(t *testing.T) {
	assert.Equal(t, 90*time.Second, TTL(90, time.Minute))
	assert.Equal(t, time.Minute, TTL(0, time.Minute))
	assert.Equal(t, time.Minute, TTL(-5, time.Minute))
}

func TestNewViperProviderReadsFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	yaml := []byte("cache:\n  feed_ttl_seconds: 120\ncomments:\n  depth_policy: reject\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "shutterbug-test.yaml"), yaml, 0o600))

	t.Setenv("VIPER_CONFIG_NAME", "shutterbug-test")
	t.Setenv("VIPER_CONFIG_PATH", dir)
	t.Setenv("SHUTTERBUG_SERVER_HTTP_PORT", "9191")
	t.Setenv("SHUTTERBUG_COMMENTS_REAPER_INTERVAL_SECONDS", "0")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p, err := NewViperProvider(ctx, zaptest.NewLogger(t))
	require.NoError(t, err)

	cfg := p.Get()
	assert.Equal(t, 120, cfg.Cache.FeedTTLSeconds)
	assert.Equal(t, "reject", cfg.Comments.DepthPolicy)
	assert.Equal(t, 9191, cfg.Server.HTTPPort)
	assert.Equal(t, 0, cfg.Comments.ReaperIntervalSeconds)
	assert.Equal(t, 900, cfg.Cache.ProfileTTLSeconds, "unset keys keep their defaults")
}

func TestNewViperProviderWithoutFile(t *testing.T) {
	t.Setenv("VIPER_CONFIG_NAME", "does-not-exist")
	t.Setenv("VIPER_CONFIG_PATH", t.TempDir())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p, err := NewViperProvider(ctx, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, Defaults(), p.Get())
}

func TestStaticProvider(t *testing.T) {
	cfg := Defaults()
	cfg.App.ServiceName = "static"
	assert.Same(t, cfg, NewStaticProvider(cfg).Get())
}
