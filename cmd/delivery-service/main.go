// cmd/delivery-service/main.go
package main

import (
	"flag"
	"os"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"shopmesh/internal/pkg/bootstrap"
	"shopmesh/internal/pkg/config"
	"shopmesh/internal/pkg/httpclient"
	"shopmesh/internal/pkg/logger"
	"shopmesh/internal/pkg/mq"
	"shopmesh/internal/service/delivery/application"
	"shopmesh/internal/service/delivery/application/saga"
	"shopmesh/internal/service/delivery/domain"
	"shopmesh/internal/service/delivery/infrastructure"
	"shopmesh/internal/service/delivery/infrastructure/adapter"
	"shopmesh/internal/service/delivery/interfaces"
)

const (
	serviceName        = "delivery-service"
	productServiceName = "product-service"
	defaultPort        = 4000
	defaultTopic       = "delivery-status-events"
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

	strategy, err := saga.ParseStrategy(cfg.Saga.Strategy)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid saga strategy in config")
	}

	db, err := gorm.Open(mysql.Open(cfg.Infra.Mysql.DSN), &gorm.Config{})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to mysql")
	}
	if err := db.AutoMigrate(&infrastructure.DeliveryModel{}); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate delivery schema")
	}

	// Kafka 未配置时状态事件静默跳过，主流程不受影响
	var writer *kafka.Writer
	if len(cfg.Infra.Kafka.Brokers) > 0 {
		topic := cfg.Infra.Kafka.Topic
		if topic == "" {
			topic = defaultTopic
		}
		writer = mq.NewWriter(cfg.Infra.Kafka.Brokers, topic)
		defer writer.Close()
	}

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        port,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			tracer := otel.Tracer(serviceName)

			client := httpclient.NewClient(tracer, appCtx.Nacos, map[string]string{
				productServiceName: cfg.Services.ProductServiceURL,
			})
			stock := adapter.NewProductHTTPAdapter(client, time.Duration(cfg.Saga.RemoteTimeoutMs)*time.Millisecond)

			var producer domain.EventProducer
			if writer != nil {
				producer = adapter.NewDeliveryKafkaAdapter(writer)
			}

			repo := infrastructure.NewGormDeliveryRepository(db)
			coordinator := saga.NewCoordinator(stock, tracer, strategy)
			service := application.NewDeliveryApplicationService(
				repo, coordinator, stock, producer, tracer, cfg.Saga.TrackingMaxAttempts)
			interfaces.NewDeliveryHandler(service).RegisterRoutes(appCtx.Mux)
		},
	})
}
