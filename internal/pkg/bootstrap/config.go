// internal/pkg/bootstrap/config.go
package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 是服务的完整配置。文件由 CONFIG_FILE 指定，环境变量覆盖文件中的值。
type Config struct {
	App      AppConfig      `yaml:"app"`
	Infra    InfraConfig    `yaml:"infra"`
	Payment  PaymentConfig  `yaml:"payment"`
	Checkout CheckoutConfig `yaml:"checkout"`
}

type AppConfig struct {
	ServiceName string `yaml:"service_name"`
	Port        int    `yaml:"port"`
	LogLevel    string `yaml:"log_level"`
	// StoreID 是默认门店。当前只有一个门店，但所有库存/购物车调用都显式携带它。
	StoreID string `yaml:"store_id"`
}

type InfraConfig struct {
	Mysql     MysqlConfig     `yaml:"mysql"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Jaeger    JaegerConfig    `yaml:"jaeger"`
	Zookeeper ZookeeperConfig `yaml:"zookeeper"`
	Nacos     NacosConfig     `yaml:"nacos"`
}

type MysqlConfig struct {
	Addr     string `yaml:"addr"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers           []string `yaml:"brokers"`
	NotificationTopic string   `yaml:"notification_topic"`
	ConsumerGroup     string   `yaml:"consumer_group"`
}

type JaegerConfig struct {
	Endpoint string `yaml:"endpoint"`
}

type ZookeeperConfig struct {
	Servers []string `yaml:"servers"`
}

type NacosConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServerAddrs string `yaml:"server_addrs"`
	Namespace   string `yaml:"namespace"`
	Group       string `yaml:"group"`
}

type PaymentConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

type CheckoutConfig struct {
	// LockBackend 取值 redis | zookeeper
	LockBackend string        `yaml:"lock_backend"`
	LockTTL     time.Duration `yaml:"lock_ttl"`
	// Policy 是一个 CEL 表达式，可用变量: total(double) total_cents(int) lines(int) items(int) user_id(string)
	Policy string `yaml:"policy"`
}

// lockTTLMargin 是锁 TTL 在支付调用之外为数据库读写预留的余量
const lockTTLMargin = 5 * time.Second

var current atomic.Pointer[Config]

// DefaultConfig 返回本地开发用的默认配置。
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{ServiceName: "order-service", Port: 8081, LogLevel: "info", StoreID: "store-main"},
		Infra: InfraConfig{
			Mysql:     MysqlConfig{Addr: "localhost:3306", User: "root", Password: "root", Database: "storefront"},
			Redis:     RedisConfig{Addr: "localhost:6379"},
			Kafka:     KafkaConfig{Brokers: []string{"localhost:9092"}, NotificationTopic: "order-notifications", ConsumerGroup: "notification-group"},
			Jaeger:    JaegerConfig{Endpoint: "http://localhost:14268/api/traces"},
			Zookeeper: ZookeeperConfig{Servers: []string{"localhost:2181"}},
			Nacos:     NacosConfig{ServerAddrs: "localhost:8848", Group: "DEFAULT_GROUP"},
		},
		Payment:  PaymentConfig{BaseURL: "http://localhost:8090", Timeout: 10 * time.Second},
		Checkout: CheckoutConfig{LockBackend: "redis", LockTTL: 45 * time.Second, Policy: "total > 0.0"},
	}
}

// LoadConfig 读取 CONFIG_FILE（可选），然后用环境变量覆盖。
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()
	if path := getEnv("CONFIG_FILE", ""); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}
	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	current.Store(cfg)
	return cfg, nil
}

// GetCurrentConfig 返回最近一次加载的配置；未加载时返回默认配置。
func GetCurrentConfig() *Config {
	if cfg := current.Load(); cfg != nil {
		return cfg
	}
	return DefaultConfig()
}

func (c *Config) Validate() error {
	if c.App.StoreID == "" {
		return fmt.Errorf("app.store_id is required")
	}
	switch c.Checkout.LockBackend {
	case "redis", "zookeeper":
	default:
		return fmt.Errorf("unknown checkout.lock_backend %q", c.Checkout.LockBackend)
	}
	if c.Payment.Timeout <= 0 {
		return fmt.Errorf("payment.timeout must be positive")
	}
	// Redis 锁不续期，必须覆盖 Tokenize + Charge + 补偿 Refund 三次支付调用
	if c.Checkout.LockBackend == "redis" {
		if minTTL := 3*c.Payment.Timeout + lockTTLMargin; c.Checkout.LockTTL < minTTL {
			return fmt.Errorf("checkout.lock_ttl %s must be at least %s (3 x payment.timeout + %s)", c.Checkout.LockTTL, minTTL, lockTTLMargin)
		}
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.App.ServiceName = getEnv("SERVICE_NAME", cfg.App.ServiceName)
	cfg.App.Port = getEnvInt("PORT", cfg.App.Port)
	cfg.App.LogLevel = getEnv("LOG_LEVEL", cfg.App.LogLevel)
	cfg.App.StoreID = getEnv("STORE_ID", cfg.App.StoreID)

	cfg.Infra.Mysql.Addr = getEnv("MYSQL_ADDR", cfg.Infra.Mysql.Addr)
	cfg.Infra.Mysql.User = getEnv("MYSQL_USER", cfg.Infra.Mysql.User)
	cfg.Infra.Mysql.Password = getEnv("MYSQL_PASSWORD", cfg.Infra.Mysql.Password)
	cfg.Infra.Mysql.Database = getEnv("MYSQL_DATABASE", cfg.Infra.Mysql.Database)
	cfg.Infra.Redis.Addr = getEnv("REDIS_ADDR", cfg.Infra.Redis.Addr)
	if brokers := getEnv("KAFKA_BROKERS", ""); brokers != "" {
		cfg.Infra.Kafka.Brokers = splitCSV(brokers)
	}
	cfg.Infra.Jaeger.Endpoint = getEnv("JAEGER_ENDPOINT", cfg.Infra.Jaeger.Endpoint)
	if servers := getEnv("ZOOKEEPER_SERVERS", ""); servers != "" {
		cfg.Infra.Zookeeper.Servers = splitCSV(servers)
	}
	if addrs := getEnv("NACOS_SERVER_ADDRS", ""); addrs != "" {
		cfg.Infra.Nacos.Enabled = true
		cfg.Infra.Nacos.ServerAddrs = addrs
	}
	cfg.Infra.Nacos.Namespace = getEnv("NACOS_NAMESPACE", cfg.Infra.Nacos.Namespace)
	cfg.Infra.Nacos.Group = getEnv("NACOS_GROUP", cfg.Infra.Nacos.Group)

	cfg.Payment.BaseURL = getEnv("PAYMENT_BASE_URL", cfg.Payment.BaseURL)
	cfg.Payment.APIKey = getEnv("PAYMENT_API_KEY", cfg.Payment.APIKey)
	cfg.Payment.Timeout = getEnvDuration("PAYMENT_TIMEOUT", cfg.Payment.Timeout)
	cfg.Checkout.LockBackend = getEnv("CHECKOUT_LOCK_BACKEND", cfg.Checkout.LockBackend)
	cfg.Checkout.LockTTL = getEnvDuration("CHECKOUT_LOCK_TTL", cfg.Checkout.LockTTL)
	cfg.Checkout.Policy = getEnv("CHECKOUT_POLICY", cfg.Checkout.Policy)
}

// getEnv 是一个内部辅助函数，从环境变量中读取配置。
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
