package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"netmon-alert/internal/config"
	"netmon-alert/internal/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// CacheManager 指标采样缓存访问
// 采集方写入 Redis，评估器只读；活跃报警缓存由评估侧维护供面板快速读取
type CacheManager struct {
	client *redis.Client
	cfg    *config.Config
	logger *zap.Logger
}

// NewCacheManager 创建缓存管理器
func NewCacheManager(client *redis.Client, cfg *config.Config, logger *zap.Logger) *CacheManager {
	return &CacheManager{
		client: client,
		cfg:    cfg,
		logger: logger,
	}
}

// sampleKey 指标实时采样键，如 netmon:metric:device-001:cpu_usage:latest
func (cm *CacheManager) sampleKey(deviceID, metricID string) string {
	return cm.cfg.Alert.Cache.SampleKeyPrefix + deviceID + ":" + metricID + cm.cfg.Alert.Cache.SampleSuffix
}

// alertsKey 设备活跃报警缓存键，如 netmon:device:device-001:alerts
func (cm *CacheManager) alertsKey(deviceID string) string {
	return cm.cfg.Alert.Cache.AlertKeyPrefix + deviceID + cm.cfg.Alert.Cache.AlertSuffix
}

// GetLatestSample 读取指标最新采样值
// 缓存不存在时返回 (nil, nil)，表示该指标暂无数据
func (cm *CacheManager) GetLatestSample(ctx context.Context, deviceID, metricID string) (*models.MetricSample, error) {
	data, err := cm.client.Get(ctx, cm.sampleKey(deviceID, metricID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get metric sample: %w", err)
	}

	var sample models.MetricSample
	if err := json.Unmarshal([]byte(data), &sample); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metric sample: %w", err)
	}

	return &sample, nil
}

// SetLatestSample 写入指标采样值（采集侧和测试使用）
func (cm *CacheManager) SetLatestSample(ctx context.Context, sample *models.MetricSample) error {
	data, err := json.Marshal(sample)
	if err != nil {
		return fmt.Errorf("failed to marshal metric sample: %w", err)
	}

	key := cm.sampleKey(sample.DeviceID, sample.MetricID)
	if err := cm.client.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set metric sample: %w", err)
	}

	return nil
}

// UpdateActiveAlertCache 刷新设备活跃报警缓存
func (cm *CacheManager) UpdateActiveAlertCache(ctx context.Context, deviceID string, alerts []*models.Alert) error {
	data, err := json.Marshal(alerts)
	if err != nil {
		return fmt.Errorf("failed to marshal active alerts: %w", err)
	}

	ttl := time.Duration(cm.cfg.Alert.Cache.AlertTTL) * time.Second
	if err := cm.client.Set(ctx, cm.alertsKey(deviceID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to update active alert cache: %w", err)
	}

	return nil
}

// GetActiveAlertCache 读取设备活跃报警缓存
// 缓存不存在时返回 (nil, nil)，调用方回源数据库
func (cm *CacheManager) GetActiveAlertCache(ctx context.Context, deviceID string) ([]*models.Alert, error) {
	data, err := cm.client.Get(ctx, cm.alertsKey(deviceID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get active alert cache: %w", err)
	}

	var alerts []*models.Alert
	if err := json.Unmarshal([]byte(data), &alerts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal active alerts: %w", err)
	}

	return alerts, nil
}
