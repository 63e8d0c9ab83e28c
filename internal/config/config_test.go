package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/koopa0/video-engagement/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDefault 測試預設值對應原系統常數
func TestDefault(t *testing.T) {
	cfg := config.Default()

	assert.Equal(t, 24*time.Hour, cfg.Cache.ProfileTTL)
	assert.Equal(t, int64(1000), cfg.Cache.LikesFlushEvery)
	assert.Equal(t, int64(1000), cfg.Cache.ViewsFlushEvery)
	assert.Equal(t, int64(10), cfg.Cache.RecentLimit)
	assert.Equal(t, 20, cfg.Comments.PageSize)
	assert.Equal(t, 3, cfg.Reconcile.LikeAttempts)
	require.NoError(t, cfg.Validate())
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlContent := `
server:
  port: 9090
store:
  driver: memory
comments:
  page_size: 5
nats:
  enabled: false
`
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0o600))

	t.Setenv("VIDEO_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("VIDEO_CACHE_LIKES_FLUSH_EVERY", "50")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, config.StoreDriverMemory, cfg.Store.Driver)
	assert.Equal(t, 5, cfg.Comments.PageSize)
	assert.False(t, cfg.NATS.Enabled)
	assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr)
	assert.Equal(t, int64(50), cfg.Cache.LikesFlushEvery)
	// 未覆蓋的欄位保留預設值
	assert.Equal(t, int64(1000), cfg.Cache.ViewsFlushEvery)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr bool
	}{
		{"defaults", func(*config.Config) {}, false},
		{"bad port", func(c *config.Config) { c.Server.Port = 0 }, true},
		{"unknown driver", func(c *config.Config) { c.Store.Driver = "cassandra" }, true},
		{"zero page size", func(c *config.Config) { c.Comments.PageSize = 0 }, true},
		{"zero flush", func(c *config.Config) { c.Cache.ViewsFlushEvery = 0 }, true},
		{"nats without url", func(c *config.Config) { c.NATS.URL = "" }, true},
		{"nats disabled without url", func(c *config.Config) {
			c.NATS.Enabled = false
			c.NATS.URL = ""
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
