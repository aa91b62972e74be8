// internal/pkg/config/config.go
package config

import (
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config 聚合了一个服务启动所需的全部配置。
// 配置从 YAML 文件加载，环境变量可以覆盖关键字段，方便容器化部署。
type Config struct {
	App struct {
		Name string `yaml:"name"`
		Port int    `yaml:"port"`
	} `yaml:"app"`

	Infra struct {
		Mysql struct {
			DSN string `yaml:"dsn"`
		} `yaml:"mysql"`
		Redis struct {
			Addr     string `yaml:"addr"` // 为空表示不启用缓存
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
		} `yaml:"redis"`
		Kafka struct {
			Brokers []string `yaml:"brokers"` // 为空表示不发送事件
			Topic   string   `yaml:"topic"`
		} `yaml:"kafka"`
		Jaeger struct {
			Endpoint string `yaml:"endpoint"`
		} `yaml:"jaeger"`
		Nacos struct {
			ServerAddrs string `yaml:"server_addrs"` // 为空表示使用静态服务地址
			Namespace   string `yaml:"namespace"`
			Group       string `yaml:"group"`
		} `yaml:"nacos"`
	} `yaml:"infra"`

	Services struct {
		// ProductServiceURL 是未接入 Nacos 时商品服务的静态地址。
		ProductServiceURL string `yaml:"product_service_url"`
	} `yaml:"services"`

	Saga struct {
		// Strategy 选择库存预留策略: optimistic 或 validate_first。
		Strategy string `yaml:"strategy"`
		// RemoteTimeoutMs 是每次远程库存调用的超时上限，超时视为预留失败。
		RemoteTimeoutMs int `yaml:"remote_timeout_ms"`
		// TrackingMaxAttempts 是运单号生成冲突时的最大重试次数。
		TrackingMaxAttempts int `yaml:"tracking_max_attempts"`
	} `yaml:"saga"`
}

var (
	current Config
	mu      sync.RWMutex
)

// Load 从指定路径加载配置文件并应用环境变量覆盖。
// path 为空时只使用默认值和环境变量，方便本地测试。
func Load(path string) error {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return errors.Wrap(err, "failed to read config file")
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return errors.Wrap(err, "failed to parse config file")
		}
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	mu.Lock()
	current = cfg
	mu.Unlock()
	return nil
}

// GetCurrent 返回当前生效的配置快照。
func GetCurrent() Config {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

func applyEnvOverrides(cfg *Config) {
	if v, ok := os.LookupEnv("APP_PORT"); ok {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.App.Port = port
		}
	}
	if v, ok := os.LookupEnv("MYSQL_DSN"); ok {
		cfg.Infra.Mysql.DSN = v
	}
	if v, ok := os.LookupEnv("REDIS_ADDR"); ok {
		cfg.Infra.Redis.Addr = v
	}
	if v, ok := os.LookupEnv("KAFKA_BROKERS"); ok {
		cfg.Infra.Kafka.Brokers = strings.Split(v, ",")
	}
	if v, ok := os.LookupEnv("JAEGER_ENDPOINT"); ok {
		cfg.Infra.Jaeger.Endpoint = v
	}
	if v, ok := os.LookupEnv("NACOS_SERVER_ADDRS"); ok {
		cfg.Infra.Nacos.ServerAddrs = v
	}
	if v, ok := os.LookupEnv("NACOS_NAMESPACE"); ok {
		cfg.Infra.Nacos.Namespace = v
	}
	if v, ok := os.LookupEnv("NACOS_GROUP"); ok {
		cfg.Infra.Nacos.Group = v
	}
	if v, ok := os.LookupEnv("PRODUCT_SERVICE_URL"); ok {
		cfg.Services.ProductServiceURL = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Infra.Jaeger.Endpoint == "" {
		cfg.Infra.Jaeger.Endpoint = "http://localhost:14268/api/traces"
	}
	if cfg.Infra.Nacos.Group == "" {
		cfg.Infra.Nacos.Group = "DEFAULT_GROUP"
	}
	if cfg.Services.ProductServiceURL == "" {
		cfg.Services.ProductServiceURL = "http://localhost:4001"
	}
	if cfg.Saga.Strategy == "" {
		cfg.Saga.Strategy = "validate_first"
	}
	if cfg.Saga.RemoteTimeoutMs <= 0 {
		cfg.Saga.RemoteTimeoutMs = 5000
	}
	if cfg.Saga.TrackingMaxAttempts <= 0 {
		cfg.Saga.TrackingMaxAttempts = 10
	}
}
