// cmd/product-service/main.go
package main

import (
	"flag"
	"os"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"shopmesh/internal/pkg/bootstrap"
	"shopmesh/internal/pkg/config"
	"shopmesh/internal/pkg/logger"
	"shopmesh/internal/service/product/application"
	"shopmesh/internal/service/product/infrastructure"
	"shopmesh/internal/service/product/interfaces"
)

const (
	serviceName = "product-service"
	defaultPort = 4001
)

// main 函数是应用的"组装根" (Composition Root)
// 它的核心职责是：创建并组装所有依赖项，然后启动应用。
func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to YAML config file")
	flag.Parse()

	logger.Init(serviceName)
	log := logger.Logger()

	if err := config.Load(*configPath); err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	cfg := config.GetCurrent()
	port := cfg.App.Port
	if port == 0 {
		port = defaultPort
	}

	db, err := gorm.Open(mysql.Open(cfg.Infra.Mysql.DSN), &gorm.Config{})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to mysql")
	}
	if err := db.AutoMigrate(&infrastructure.ProductModel{}); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate product schema")
	}

	// Redis 未配置时缓存层自动退化为直连数据库
	var redisClient *redis.Client
	if cfg.Infra.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Infra.Redis.Addr,
			Password: cfg.Infra.Redis.Password,
			DB:       cfg.Infra.Redis.DB,
		})
	}

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        port,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			repo := infrastructure.NewGormProductRepository(db)
			cache := infrastructure.NewProductCache(redisClient)
			service := application.NewProductApplicationService(repo, cache, otel.Tracer(serviceName))
			interfaces.NewProductHandler(service).RegisterRoutes(appCtx.Mux)
		},
	})
}
