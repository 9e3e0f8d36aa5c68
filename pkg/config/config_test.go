package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromViperDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg := fromViper(v)
	require.NotNil(t, cfg)
	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, StorageDriverLocal, cfg.Storage.Driver)
	assert.Equal(t, "coursework", cfg.Storage.Bucket)
	assert.Equal(t, 30*time.Second, cfg.Storage.OperationTimeout)
	assert.Equal(t, 4, cfg.Storage.DeleteConcurrency)
	assert.Equal(t, int64(50*1024*1024), cfg.Storage.MaxUploadBytes)
	assert.Equal(t, 50, cfg.Sweeper.BatchSize)
	assert.Equal(t, 5*time.Minute, cfg.Sweeper.Lease)
	assert.False(t, cfg.Progress.CacheEnabled)
	assert.InDelta(t, 0.1, cfg.Tracing.SampleRatio, 0.0001)
}

func TestFromViperOverrides(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("STORAGE_DRIVER", "GCS")
	v.Set("STORAGE_PUBLIC_BASE_URL", "https://cdn.example.com/")
	v.Set("PROGRESS_CACHE_TTL", "bogus")
	v.Set("OTEL_SAMPLER_RATIO", 4.0)
	v.Set("ALLOWED_ORIGINS", " https://a.example.com , ,https://b.example.com")

	cfg := fromViper(v)
	assert.Equal(t, StorageDriverGCS, cfg.Storage.Driver)
	assert.Equal(t, "https://cdn.example.com", cfg.Storage.PublicBaseURL)
	assert.Equal(t, 2*time.Minute, cfg.Progress.CacheTTL)
	assert.Equal(t, 1.0, cfg.Tracing.SampleRatio)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORS.AllowedOrigins)
}
