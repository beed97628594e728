package consumer

import (
	"context"
	"testing"
	"time"

	"netmon-alert/internal/config"
	"netmon-alert/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// testConfig 测试用配置（键前缀与默认配置一致）
func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Alert.Cache.SampleKeyPrefix = "netmon:metric:"
	cfg.Alert.Cache.SampleSuffix = ":latest"
	cfg.Alert.Cache.AlertKeyPrefix = "netmon:device:"
	cfg.Alert.Cache.AlertSuffix = ":alerts"
	cfg.Alert.Cache.AlertTTL = 30
	cfg.Alert.Cache.StateKeyPrefix = "alert:state:"
	cfg.Alert.Cache.LockKeyPrefix = "alert:lock:"
	cfg.Alert.Cache.LockTTL = 30
	cfg.Alert.PollInterval = 5
	cfg.Alert.Evaluation.BatchSize = 10
	return cfg
}

func setupCacheManager(t *testing.T) (*miniredis.Miniredis, *CacheManager) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return mr, NewCacheManager(client, testConfig(), zap.NewNop())
}

func TestGetLatestSample_RoundTrip(t *testing.T) {
	_, cm := setupCacheManager(t)
	ctx := context.Background()

	sample := &models.MetricSample{
		MetricID:  "cpu_usage",
		DeviceID:  "device-001",
		Value:     85.5,
		Timestamp: time.Now().Unix(),
	}
	require.NoError(t, cm.SetLatestSample(ctx, sample))

	got, err := cm.GetLatestSample(ctx, "device-001", "cpu_usage")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 85.5, got.Value)
	assert.Equal(t, sample.Timestamp, got.Timestamp)
}

// 没有采样数据时返回 (nil, nil)
func TestGetLatestSample_Missing(t *testing.T) {
	_, cm := setupCacheManager(t)

	got, err := cm.GetLatestSample(context.Background(), "device-001", "unknown")
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestGetLatestSample_CorruptedData(t *testing.T) {
	mr, cm := setupCacheManager(t)
	mr.Set("netmon:metric:device-001:cpu_usage:latest", "not-json")

	_, err := cm.GetLatestSample(context.Background(), "device-001", "cpu_usage")
	assert.Error(t, err)
}

func TestActiveAlertCache_RoundTripWithTTL(t *testing.T) {
	mr, cm := setupCacheManager(t)
	ctx := context.Background()

	metricID := "cpu_usage"
	alerts := []*models.Alert{
		{
			AlertID:  uuid.New().String(),
			DeviceID: "device-001",
			MetricID: &metricID,
			Severity: models.SeverityCritical,
			Status:   models.StatusActive,
		},
	}

	require.NoError(t, cm.UpdateActiveAlertCache(ctx, "device-001", alerts))

	got, err := cm.GetActiveAlertCache(ctx, "device-001")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, alerts[0].AlertID, got[0].AlertID)

	// 缓存过期后回源
	mr.FastForward(31 * time.Second)
	got, err = cm.GetActiveAlertCache(ctx, "device-001")
	assert.NoError(t, err)
	assert.Nil(t, got)
}
