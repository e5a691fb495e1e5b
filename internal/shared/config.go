package shared

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

type Config struct {
	AppEnv      string
	LogLevel    string
	HTTPAddr    string
	MetricsAddr string
	MySQLDSN    string
	RedisAddr   string
	RedisDB     int
	RedisPass   string

	BackendBase string
	BackendKey  string
	BackendRPS  int

	SyncWorkers  int
	SyncPageSize int
	CacheTTL     time.Duration

	JWTSecret string
	JWTIssuer string

	KafkaBrokers       []string
	KafkaTopicRefunds  string
	KafkaTopicListings string

	MaxResubmissions int
	Currency         string
}

// fileConfig mirrors the optional YAML file; zero values leave defaults alone.
type fileConfig struct {
	App struct {
		Env      string `yaml:"env"`
		LogLevel string `yaml:"log_level"`
		HTTPAddr string `yaml:"http_addr"`
		Metrics  string `yaml:"metrics_addr"`
		Currency string `yaml:"currency"`
	} `yaml:"app"`
	MySQL struct {
		DSN string `yaml:"dsn"`
	} `yaml:"mysql"`
	Redis struct {
		Addr     string `yaml:"addr"`
		DB       int    `yaml:"db"`
		Password string `yaml:"password"`
	} `yaml:"redis"`
	Backend struct {
		BaseURL string `yaml:"base_url"`
		APIKey  string `yaml:"api_key"`
		RPS     int    `yaml:"rps"`
	} `yaml:"backend"`
	Sync struct {
		Workers  int `yaml:"workers"`
		PageSize int `yaml:"page_size"`
	} `yaml:"sync"`
	Cache struct {
		TTLSeconds int `yaml:"ttl_seconds"`
	} `yaml:"cache"`
	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
		JWTIssuer string `yaml:"jwt_issuer"`
	} `yaml:"auth"`
	Kafka struct {
		Brokers       []string `yaml:"brokers"`
		TopicRefunds  string   `yaml:"topic_refunds"`
		TopicListings string   `yaml:"topic_listings"`
	} `yaml:"kafka"`
	Refunds struct {
		MaxResubmissions *int `yaml:"max_resubmissions"`
	} `yaml:"refunds"`
}

func defaults() Config {
	return Config{
		AppEnv:             "prod",
		LogLevel:           "info",
		HTTPAddr:           ":8080",
		MetricsAddr:        "",
		MySQLDSN:           "root:root@tcp(localhost:3306)/condotel?parseTime=true&charset=utf8mb4,utf8&loc=UTC",
		RedisAddr:          "localhost:6379",
		BackendBase:        "http://localhost:5000/api",
		BackendRPS:         10,
		SyncWorkers:        8,
		SyncPageSize:       100,
		CacheTTL:           15 * time.Minute,
		JWTIssuer:          "condotel",
		KafkaTopicRefunds:  "condotel.refunds",
		KafkaTopicListings: "condotel.listings",
		MaxResubmissions:   1,
		Currency:           "VND",
	}
}

// Load builds the config from defaults, then CONFIG_FILE (YAML) when set, then env.
func Load() (Config, error) {
	c := defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := c.applyYAML(raw); err != nil {
			return Config{}, err
		}
	}
	c.applyEnv()

	if c.BackendKey == "" {
		log.Warn().Msg("BACKEND_API_KEY is empty")
	}
	if c.JWTSecret == "" {
		log.Warn().Msg("JWT_SECRET is empty; every request will be anonymous")
	}
	return c, nil
}

func (c *Config) applyYAML(raw []byte) error {
	var f fileConfig
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	setStr(&c.AppEnv, f.App.Env)
	setStr(&c.LogLevel, f.App.LogLevel)
	setStr(&c.HTTPAddr, f.App.HTTPAddr)
	setStr(&c.MetricsAddr, f.App.Metrics)
	setStr(&c.Currency, f.App.Currency)
	setStr(&c.MySQLDSN, f.MySQL.DSN)
	setStr(&c.RedisAddr, f.Redis.Addr)
	setStr(&c.RedisPass, f.Redis.Password)
	setInt(&c.RedisDB, f.Redis.DB)
	setStr(&c.BackendBase, f.Backend.BaseURL)
	setStr(&c.BackendKey, f.Backend.APIKey)
	setInt(&c.BackendRPS, f.Backend.RPS)
	setInt(&c.SyncWorkers, f.Sync.Workers)
	setInt(&c.SyncPageSize, f.Sync.PageSize)
	if f.Cache.TTLSeconds > 0 {
		c.CacheTTL = time.Duration(f.Cache.TTLSeconds) * time.Second
	}
	setStr(&c.JWTSecret, f.Auth.JWTSecret)
	setStr(&c.JWTIssuer, f.Auth.JWTIssuer)
	if len(f.Kafka.Brokers) > 0 {
		c.KafkaBrokers = f.Kafka.Brokers
	}
	setStr(&c.KafkaTopicRefunds, f.Kafka.TopicRefunds)
	setStr(&c.KafkaTopicListings, f.Kafka.TopicListings)
	if f.Refunds.MaxResubmissions != nil && *f.Refunds.MaxResubmissions >= 0 {
		c.MaxResubmissions = *f.Refunds.MaxResubmissions
	}
	return nil
}

func (c *Config) applyEnv() {
	atoi := func(k string, def int) int {
		if v := os.Getenv(k); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
		}
		return def
	}
	c.AppEnv = env("APP_ENV", c.AppEnv)
	c.LogLevel = env("LOG_LEVEL", c.LogLevel)
	c.HTTPAddr = env("HTTP_ADDR", c.HTTPAddr)
	c.MetricsAddr = env("METRICS_ADDR", c.MetricsAddr)
	c.MySQLDSN = env("MYSQL_DSN", c.MySQLDSN)
	c.RedisAddr = env("REDIS_ADDR", c.RedisAddr)
	c.RedisPass = env("REDIS_PASSWORD", c.RedisPass)
	c.RedisDB = atoi("REDIS_DB", c.RedisDB)
	c.BackendBase = strings.TrimRight(env("BACKEND_BASE_URL", c.BackendBase), "/")
	c.BackendKey = env("BACKEND_API_KEY", c.BackendKey)
	c.BackendRPS = atoi("BACKEND_RPS", c.BackendRPS)
	c.SyncWorkers = atoi("SYNC_WORKERS", c.SyncWorkers)
	c.SyncPageSize = atoi("SYNC_PAGE_SIZE", c.SyncPageSize)
	c.CacheTTL = time.Duration(atoi("CACHE_TTL_SECONDS", int(c.CacheTTL.Seconds()))) * time.Second
	c.JWTSecret = env("JWT_SECRET", c.JWTSecret)
	c.JWTIssuer = env("JWT_ISSUER", c.JWTIssuer)
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.KafkaBrokers = splitList(v)
	}
	c.KafkaTopicRefunds = env("KAFKA_TOPIC_REFUNDS", c.KafkaTopicRefunds)
	c.KafkaTopicListings = env("KAFKA_TOPIC_LISTINGS", c.KafkaTopicListings)
	if n := atoi("MAX_REFUND_RESUBMISSIONS", c.MaxResubmissions); n >= 0 {
		c.MaxResubmissions = n
	}
	c.Currency = env("CURRENCY", c.Currency)

	// a zero-weight semaphore or page size would stall the syncer
	c.SyncWorkers = max(c.SyncWorkers, 1)
	c.SyncPageSize = max(c.SyncPageSize, 1)
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func setStr(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
