package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DriverMemory = "memory"
	DriverMySQL  = "mysql"
)

type Config struct {
	Service string       `yaml:"service"`
	HTTP    ServerConfig `yaml:"http"`
	GRPC    ServerConfig `yaml:"grpc"`
	Storage Storage      `yaml:"storage"`
	Redis   Redis        `yaml:"redis"`
	Kafka   Kafka        `yaml:"kafka"`
	Lock    Lock         `yaml:"lock"`
	Events  Events       `yaml:"events"`
	Log     Log          `yaml:"log"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type Storage struct {
	Driver  string `yaml:"driver"`
	MySQL   MySQL  `yaml:"mysql"`
	Migrate bool   `yaml:"migrate"`
}

type MySQL struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// Redis enables the lease decorator when Addr is set.
type Redis struct {
	Addr     string        `yaml:"addr"`
	PoolSize int           `yaml:"pool_size"`
	LeaseTTL time.Duration `yaml:"lease_ttl"`
}

// Kafka enables event publishing when Brokers is non-empty.
type Kafka struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type Lock struct {
	Timeout time.Duration `yaml:"timeout"`
}

type Events struct {
	Workers        int           `yaml:"workers"`
	QueueSize      int           `yaml:"queue_size"`
	PublishTimeout time.Duration `yaml:"publish_timeout"`
}

type Log struct {
	Level string `yaml:"level"`
}

func Default() Config {
	return Config{
		Service: "stock-reservation",
		HTTP:    ServerConfig{Addr: ":8080", ShutdownTimeout: 5 * time.Second},
		GRPC:    ServerConfig{Addr: ":50051", ShutdownTimeout: 5 * time.Second},
		Storage: Storage{
			Driver: DriverMemory,
			MySQL: MySQL{
				DSN:             "root:root@tcp(localhost:3306)/stock?parseTime=true",
				MaxOpenConns:    50,
				MaxIdleConns:    25,
				ConnMaxLifetime: 5 * time.Minute,
			},
		},
		Redis:  Redis{PoolSize: 100, LeaseTTL: 30 * time.Second},
		Kafka:  Kafka{Topic: "stock-events"},
		Lock:   Lock{Timeout: 5 * time.Second},
		Events: Events{Workers: 10, QueueSize: 10000, PublishTimeout: 5 * time.Second},
		Log:    Log{Level: "info"},
	}
}

// Load reads path (optional) over the defaults and then applies environment
// overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	setString(&c.HTTP.Addr, "HTTP_ADDR")
	setString(&c.GRPC.Addr, "GRPC_ADDR")
	setString(&c.Storage.Driver, "STORAGE_DRIVER")
	setString(&c.Storage.MySQL.DSN, "MYSQL_DSN")
	setString(&c.Redis.Addr, "REDIS_ADDR")
	setString(&c.Kafka.Topic, "KAFKA_TOPIC")
	setString(&c.Log.Level, "LOG_LEVEL")

	if v, ok := os.LookupEnv("KAFKA_BROKERS"); ok && v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v, ok := os.LookupEnv("LOCK_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("LOCK_TIMEOUT: %w", err)
		}
		c.Lock.Timeout = d
	}
	return nil
}

func (c Config) Validate() error {
	switch c.Storage.Driver {
	case DriverMemory, DriverMySQL:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Lock.Timeout <= 0 {
		return fmt.Errorf("lock timeout must be positive, got %s", c.Lock.Timeout)
	}
	if c.Redis.Addr != "" && c.Redis.LeaseTTL <= c.Lock.Timeout {
		return fmt.Errorf("redis lease ttl %s must exceed lock timeout %s", c.Redis.LeaseTTL, c.Lock.Timeout)
	}
	if c.Events.Workers <= 0 || c.Events.QueueSize <= 0 {
		return fmt.Errorf("events workers and queue size must be positive")
	}
	return nil
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}
