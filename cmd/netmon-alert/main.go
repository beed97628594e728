package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"netmon-alert/internal/config"
	"netmon-alert/internal/database"
	"netmon-alert/internal/logger"
	"netmon-alert/internal/mqtt"
	"netmon-alert/internal/service"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load config: " + err.Error())
	}

	// 初始化日志
	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, "netmon-alert")
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer log.Sync()

	log.Info("Starting netmon-alert service")

	// 连接数据库
	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close(db)

	// 连接 Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatal("Failed to connect to Redis", zap.Error(err))
	}

	// 连接 MQTT（可选，未配置 broker 时 MQTT 通知通道不可用）
	var mqttClient *mqtt.Client
	if cfg.MQTT.Broker != "" {
		mqttClient, err = mqtt.NewClient(&cfg.MQTT)
		if err != nil {
			log.Fatal("Failed to connect to MQTT broker", zap.Error(err))
		}
		defer mqttClient.Close()
	}

	// 组装报警服务
	alertService, err := service.NewAlertService(db, redisClient, mqttClient, cfg, log)
	if err != nil {
		log.Fatal("Failed to create alert service", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	alertService.Start(ctx)

	log.Info("netmon-alert service started",
		zap.Int("poll_interval", cfg.Alert.PollInterval),
		zap.Int("batch_size", cfg.Alert.Evaluation.BatchSize),
		zap.Bool("notifications_enabled", cfg.Notifications.Enabled))

	// 等待退出信号
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	log.Info("Shutting down", zap.String("signal", sig.String()))

	cancel()
	alertService.Stop()

	log.Info("netmon-alert service stopped")
}
