package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"netmon-alert/internal/config"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// EvaluationState 指标评估状态（Redis JSON，多实例共享）
// 记录最后评估过的采样时间戳，避免同一采样被重复评估
type EvaluationState struct {
	LastTimestamp int64   `json:"last_timestamp"`
	LastValue     float64 `json:"last_value"`
	EvaluatedAt   int64   `json:"evaluated_at"`
}

// StateManager 评估状态和并发锁管理
type StateManager struct {
	client *redis.Client
	cfg    *config.Config
	logger *zap.Logger
}

// NewStateManager 创建状态管理器
func NewStateManager(client *redis.Client, cfg *config.Config, logger *zap.Logger) *StateManager {
	return &StateManager{
		client: client,
		cfg:    cfg,
		logger: logger,
	}
}

func (sm *StateManager) stateKey(deviceID, metricID string) string {
	return sm.cfg.Alert.Cache.StateKeyPrefix + deviceID + ":" + metricID
}

func (sm *StateManager) lockKey(deviceID, metricID string) string {
	return sm.cfg.Alert.Cache.LockKeyPrefix + deviceID + ":" + metricID
}

// GetState 读取评估状态
// 状态不存在时返回 (nil, nil)，表示该指标首次评估
func (sm *StateManager) GetState(ctx context.Context, deviceID, metricID string) (*EvaluationState, error) {
	data, err := sm.client.Get(ctx, sm.stateKey(deviceID, metricID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get evaluation state: %w", err)
	}

	var state EvaluationState
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal evaluation state: %w", err)
	}

	return &state, nil
}

// SetState 写入评估状态
func (sm *StateManager) SetState(ctx context.Context, deviceID, metricID string, state *EvaluationState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal evaluation state: %w", err)
	}

	if err := sm.client.Set(ctx, sm.stateKey(deviceID, metricID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set evaluation state: %w", err)
	}

	return nil
}

// AcquireLock 获取 (device_id, metric_id) 的评估锁（SETNX）
// 锁带 TTL，持有方崩溃后自动释放；拿不到锁说明其他实例正在评估
func (sm *StateManager) AcquireLock(ctx context.Context, deviceID, metricID string) (bool, error) {
	ttl := time.Duration(sm.cfg.Alert.Cache.LockTTL) * time.Second
	ok, err := sm.client.SetNX(ctx, sm.lockKey(deviceID, metricID), 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire evaluation lock: %w", err)
	}
	return ok, nil
}

// ReleaseLock 释放评估锁
func (sm *StateManager) ReleaseLock(ctx context.Context, deviceID, metricID string) error {
	if err := sm.client.Del(ctx, sm.lockKey(deviceID, metricID)).Err(); err != nil {
		return fmt.Errorf("failed to release evaluation lock: %w", err)
	}
	return nil
}
