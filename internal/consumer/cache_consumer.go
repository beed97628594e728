package consumer

import (
	"context"
	"sync"
	"time"

	"netmon-alert/internal/config"
	"netmon-alert/internal/models"
	"netmon-alert/internal/repository"

	"go.uber.org/zap"
)

// SampleProcessor 采样处理（由评估器实现）
type SampleProcessor interface {
	ProcessSample(ctx context.Context, def *models.MetricDefinition, sample *models.MetricSample) error
}

// CacheConsumer 指标缓存轮询消费者
// 定时加载启用的指标定义，分批读取最新采样并交给评估器处理
// 单个指标的失败不影响批次内其他指标
type CacheConsumer struct {
	metrics   *repository.MetricsRepository
	alerts    *repository.AlertsRepository
	cache     *CacheManager
	state     *StateManager
	processor SampleProcessor
	cfg       *config.Config
	logger    *zap.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewCacheConsumer 创建轮询消费者
func NewCacheConsumer(
	metrics *repository.MetricsRepository,
	alerts *repository.AlertsRepository,
	cache *CacheManager,
	state *StateManager,
	processor SampleProcessor,
	cfg *config.Config,
	logger *zap.Logger,
) *CacheConsumer {
	return &CacheConsumer{
		metrics:   metrics,
		alerts:    alerts,
		cache:     cache,
		state:     state,
		processor: processor,
		cfg:       cfg,
		logger:    logger,
		stopCh:    make(chan struct{}),
	}
}

// Start 启动轮询
func (c *CacheConsumer) Start(ctx context.Context) {
	interval := time.Duration(c.cfg.Alert.PollInterval) * time.Second

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		c.logger.Info("Cache consumer started",
			zap.Duration("poll_interval", interval),
			zap.Int("batch_size", c.cfg.Alert.Evaluation.BatchSize))

		for {
			select {
			case <-ctx.Done():
				return
			case <-c.stopCh:
				return
			case <-ticker.C:
				c.PollOnce(ctx)
			}
		}
	}()
}

// Stop 停止轮询并等待当前批次完成
func (c *CacheConsumer) Stop() {
	close(c.stopCh)
	c.wg.Wait()
	c.logger.Info("Cache consumer stopped")
}

// PollOnce 执行一轮评估
func (c *CacheConsumer) PollOnce(ctx context.Context) {
	defs, err := c.metrics.ListEnabledMetrics(ctx)
	if err != nil {
		c.logger.Error("Failed to load metric definitions", zap.Error(err))
		return
	}
	if len(defs) == 0 {
		return
	}

	batchSize := c.cfg.Alert.Evaluation.BatchSize
	if batchSize <= 0 {
		batchSize = len(defs)
	}

	processed := 0
	// 批内并发评估，批间串行，控制数据库压力
	for start := 0; start < len(defs); start += batchSize {
		end := start + batchSize
		if end > len(defs) {
			end = len(defs)
		}

		var wg sync.WaitGroup
		for _, def := range defs[start:end] {
			wg.Add(1)
			go func(def *models.MetricDefinition) {
				defer wg.Done()
				c.processMetric(ctx, def)
			}(def)
		}
		wg.Wait()

		processed += end - start

		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		default:
		}
	}

	c.logger.Debug("Evaluation round completed", zap.Int("metrics", processed))
}

// processMetric 处理单个指标：读采样 → 去重检查 → 加锁评估 → 更新状态和缓存
func (c *CacheConsumer) processMetric(ctx context.Context, def *models.MetricDefinition) {
	sample, err := c.cache.GetLatestSample(ctx, def.DeviceID, def.MetricID)
	if err != nil {
		c.logger.Warn("Failed to read metric sample",
			zap.String("device_id", def.DeviceID),
			zap.String("metric_id", def.MetricID),
			zap.Error(err))
		return
	}
	if sample == nil {
		return // 该指标暂无采样数据
	}

	// 同一采样只评估一次
	state, err := c.state.GetState(ctx, def.DeviceID, def.MetricID)
	if err != nil {
		c.logger.Warn("Failed to read evaluation state",
			zap.String("device_id", def.DeviceID),
			zap.String("metric_id", def.MetricID),
			zap.Error(err))
		return
	}
	if state != nil && state.LastTimestamp >= sample.Timestamp {
		return
	}

	// 多实例部署时同一指标只有一个实例评估
	locked, err := c.state.AcquireLock(ctx, def.DeviceID, def.MetricID)
	if err != nil {
		c.logger.Warn("Failed to acquire evaluation lock",
			zap.String("device_id", def.DeviceID),
			zap.String("metric_id", def.MetricID),
			zap.Error(err))
		return
	}
	if !locked {
		return
	}
	defer func() {
		if err := c.state.ReleaseLock(ctx, def.DeviceID, def.MetricID); err != nil {
			c.logger.Warn("Failed to release evaluation lock", zap.Error(err))
		}
	}()

	if err := c.processor.ProcessSample(ctx, def, sample); err != nil {
		c.logger.Warn("Sample evaluation failed",
			zap.String("device_id", def.DeviceID),
			zap.String("metric_id", def.MetricID),
			zap.Float64("value", sample.Value),
			zap.Error(err))
		return
	}

	if err := c.state.SetState(ctx, def.DeviceID, def.MetricID, &EvaluationState{
		LastTimestamp: sample.Timestamp,
		LastValue:     sample.Value,
		EvaluatedAt:   time.Now().Unix(),
	}); err != nil {
		c.logger.Warn("Failed to update evaluation state", zap.Error(err))
	}

	c.refreshAlertCache(ctx, def.DeviceID)
}

// refreshAlertCache 刷新设备活跃报警缓存（非关键路径，失败只记日志）
func (c *CacheConsumer) refreshAlertCache(ctx context.Context, deviceID string) {
	alerts, err := c.alerts.GetActiveAlertsByDevice(ctx, deviceID)
	if err != nil {
		c.logger.Warn("Failed to load active alerts for cache",
			zap.String("device_id", deviceID),
			zap.Error(err))
		return
	}

	if err := c.cache.UpdateActiveAlertCache(ctx, deviceID, alerts); err != nil {
		c.logger.Warn("Failed to refresh active alert cache",
			zap.String("device_id", deviceID),
			zap.Error(err))
	}
}
