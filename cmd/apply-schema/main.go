package main

import (
	"flag"
	"os"

	"netmon-alert/internal/config"
	"netmon-alert/internal/database"
	"netmon-alert/internal/logger"

	"go.uber.org/zap"
)

// 将 scripts/schema.sql 应用到配置的数据库
func main() {
	schemaPath := flag.String("schema", "scripts/schema.sql", "path to schema file")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load config: " + err.Error())
	}

	log, err := logger.New(cfg.Log.Level, "console", "apply-schema")
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer log.Sync()

	schema, err := os.ReadFile(*schemaPath)
	if err != nil {
		log.Fatal("Failed to read schema file", zap.String("path", *schemaPath), zap.Error(err))
	}

	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close(db)

	if _, err := db.Exec(string(schema)); err != nil {
		log.Fatal("Failed to apply schema", zap.Error(err))
	}

	log.Info("Schema applied",
		zap.String("path", *schemaPath),
		zap.String("database", cfg.Database.Database))
}
