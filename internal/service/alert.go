package service

import (
	"context"
	"database/sql"
	"fmt"

	"netmon-alert/internal/config"
	"netmon-alert/internal/consumer"
	"netmon-alert/internal/evaluator"
	"netmon-alert/internal/lifecycle"
	"netmon-alert/internal/mqtt"
	"netmon-alert/internal/notifier"
	"netmon-alert/internal/repository"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// AlertService 报警服务
// 组装评估链路的全部组件并管理其生命周期
type AlertService struct {
	cfg    *config.Config
	logger *zap.Logger

	// 仓库
	Metrics       *repository.MetricsRepository
	Alerts        *repository.AlertsRepository
	History       *repository.AlertHistoryRepository
	Notifications *repository.NotificationsRepository

	// 组件
	Lifecycle  *lifecycle.Manager
	Dispatcher *notifier.Dispatcher
	Evaluator  *evaluator.Evaluator
	Cache      *consumer.CacheManager
	Ops        *AlertOpsService

	consumer *consumer.CacheConsumer
}

// NewAlertService 创建报警服务（依赖注入入口）
// mqttClient 可以为 nil（未配置 MQTT broker 时 MQTT 通道不可用）
func NewAlertService(
	db *sql.DB,
	redisClient *redis.Client,
	mqttClient *mqtt.Client,
	cfg *config.Config,
	logger *zap.Logger,
) (*AlertService, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if redisClient == nil {
		return nil, fmt.Errorf("redis client is required")
	}

	s := &AlertService{
		cfg:    cfg,
		logger: logger,
	}

	// 仓库层
	s.Metrics = repository.NewMetricsRepository(db, logger)
	s.Alerts = repository.NewAlertsRepository(db, logger)
	s.History = repository.NewAlertHistoryRepository(db, logger)
	s.Notifications = repository.NewNotificationsRepository(db, logger)

	// 生命周期
	s.Lifecycle = lifecycle.NewManager(s.Alerts, logger)

	// 通知分发
	var mqttPublisher notifier.MQTTPublisher
	if mqttClient != nil {
		mqttPublisher = mqttClient
	}
	dispatcher, err := notifier.NewDispatcher(cfg.Notifications, s.Notifications, redisClient, mqttPublisher, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build notification dispatcher: %w", err)
	}
	s.Dispatcher = dispatcher

	// 评估链路
	reconciler := evaluator.NewReconciler(s.Alerts, logger)
	s.Evaluator = evaluator.NewEvaluator(reconciler, s.Lifecycle, s.Dispatcher, logger)

	// 缓存与轮询
	s.Cache = consumer.NewCacheManager(redisClient, cfg, logger)
	state := consumer.NewStateManager(redisClient, cfg, logger)
	s.consumer = consumer.NewCacheConsumer(s.Metrics, s.Alerts, s.Cache, state, s.Evaluator, cfg, logger)

	// 运维操作
	s.Ops = NewAlertOpsService(s.Alerts, s.History, s.Notifications, s.Lifecycle, s.Dispatcher, logger)

	return s, nil
}

// Start 启动评估轮询
func (s *AlertService) Start(ctx context.Context) {
	s.consumer.Start(ctx)
	s.logger.Info("Alert service started")
}

// Stop 停止评估轮询并等待当前批次完成
func (s *AlertService) Stop() {
	s.consumer.Stop()
	s.logger.Info("Alert service stopped")
}
