package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type AppConf struct {
	Env             string `mapstructure:"env"`
	Port            int    `mapstructure:"port"`
	ShutdownSeconds int    `mapstructure:"shutdown_seconds"`
	UploadLimitMB   int    `mapstructure:"upload_limit_mb"`
}

type MongoConf struct {
	URI              string `mapstructure:"uri"`
	Database         string `mapstructure:"database"`
	OpTimeoutSeconds int    `mapstructure:"op_timeout_seconds"`
}

type RedisConf struct {
	Addr           string `mapstructure:"addr"`
	Password       string `mapstructure:"password"`
	DB             int    `mapstructure:"db"`
	Prefix         string `mapstructure:"prefix"`
	RateLimitCount int    `mapstructure:"rate_limit_count"`
	RateWindowSecs int    `mapstructure:"rate_window_seconds"`
}

type KafkaConf struct {
	Brokers            []string `mapstructure:"brokers"`
	EventsTopic        string   `mapstructure:"events_topic"`
	FanoutTopic        string   `mapstructure:"fanout_topic"`
	DLQTopic           string   `mapstructure:"dlq_topic"`
	GroupID            string   `mapstructure:"group_id"`
	MaxRetrySeconds    int      `mapstructure:"max_retry_seconds"`
	BreakerMaxFailures uint32   `mapstructure:"breaker_max_failures"`
	BreakerTimeoutSecs int      `mapstructure:"breaker_timeout_seconds"`
}

type JWTConf struct {
	Alg           string `mapstructure:"alg"`
	PublicKeyPath string `mapstructure:"public_key_path"`
	HSSecret      string `mapstructure:"hs_secret"`
}

type WSConf struct {
	PingSeconds          int   `mapstructure:"ping_seconds"`
	WriteDeadlineSeconds int   `mapstructure:"write_deadline_seconds"`
	MaxMessageBytes      int64 `mapstructure:"max_message_bytes"`
	RatePerSecond        int   `mapstructure:"rate_per_second"`
	SendBuffer           int   `mapstructure:"send_buffer"`
}

type AWSConf struct {
	Region            string `mapstructure:"region"`
	Bucket            string `mapstructure:"bucket"`
	Endpoint          string `mapstructure:"endpoint"`
	PublicRead        bool   `mapstructure:"public_read"`
	PresignTTLSeconds int    `mapstructure:"presign_ttl_seconds"`
}

type Config struct {
	App   AppConf   `mapstructure:"app"`
	Mongo MongoConf `mapstructure:"mongodb"`
	Redis RedisConf `mapstructure:"redis"`
	Kafka KafkaConf `mapstructure:"kafka"`
	JWT   JWTConf   `mapstructure:"jwt"`
	WS    WSConf    `mapstructure:"ws"`
	AWS   AWSConf   `mapstructure:"aws"`
	Log   struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`

	// derived
	ShutdownTimeout time.Duration
	MongoTimeout    time.Duration
	RateWindow      time.Duration
	PingInterval    time.Duration
	WriteDeadline   time.Duration
	PresignTTL      time.Duration
	RetryMaxElapsed time.Duration
	BreakerTimeout  time.Duration
}

// Load reads an optional .env, then the yaml file at path, then APP_* environment
// overrides (APP_MONGODB_URI, APP_KAFKA_BROKERS=a:9092,b:9092 ...).
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.derive()
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", 5000)
	v.SetDefault("app.shutdown_seconds", 15)
	v.SetDefault("app.upload_limit_mb", 20)

	v.SetDefault("mongodb.uri", "")
	v.SetDefault("mongodb.database", "school")
	v.SetDefault("mongodb.op_timeout_seconds", 3)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "school-chat")
	v.SetDefault("redis.rate_limit_count", 120)
	v.SetDefault("redis.rate_window_seconds", 60)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.events_topic", "chat.events")
	v.SetDefault("kafka.fanout_topic", "school.events")
	v.SetDefault("kafka.dlq_topic", "school.events.dlq")
	v.SetDefault("kafka.group_id", "school-chat")
	v.SetDefault("kafka.max_retry_seconds", 30)
	v.SetDefault("kafka.breaker_max_failures", 5)
	v.SetDefault("kafka.breaker_timeout_seconds", 30)

	v.SetDefault("jwt.alg", "HS256")
	v.SetDefault("jwt.public_key_path", "")
	v.SetDefault("jwt.hs_secret", "")

	v.SetDefault("ws.ping_seconds", 30)
	v.SetDefault("ws.write_deadline_seconds", 10)
	v.SetDefault("ws.max_message_bytes", 64*1024)
	v.SetDefault("ws.rate_per_second", 10)
	v.SetDefault("ws.send_buffer", 256)

	v.SetDefault("aws.region", "ap-south-1")
	v.SetDefault("aws.bucket", "")
	v.SetDefault("aws.endpoint", "")
	v.SetDefault("aws.public_read", true)
	v.SetDefault("aws.presign_ttl_seconds", 600)

	v.SetDefault("log.level", "info")
}

func (c *Config) derive() {
	c.JWT.Alg = strings.ToUpper(strings.TrimSpace(c.JWT.Alg))
	c.ShutdownTimeout = time.Duration(c.App.ShutdownSeconds) * time.Second
	c.MongoTimeout = time.Duration(c.Mongo.OpTimeoutSeconds) * time.Second
	c.RateWindow = time.Duration(c.Redis.RateWindowSecs) * time.Second
	c.PingInterval = time.Duration(c.WS.PingSeconds) * time.Second
	c.WriteDeadline = time.Duration(c.WS.WriteDeadlineSeconds) * time.Second
	c.PresignTTL = time.Duration(c.AWS.PresignTTLSeconds) * time.Second
	c.RetryMaxElapsed = time.Duration(c.Kafka.MaxRetrySeconds) * time.Second
	c.BreakerTimeout = time.Duration(c.Kafka.BreakerTimeoutSecs) * time.Second
}

func (c *Config) IsDev() bool { return c.App.Env == "development" }

func (c *Config) Addr() string { return fmt.Sprintf(":%d", c.App.Port) }

// Validate checks the keys the server cannot start without. Redis, Kafka and S3 are
// optional: an empty address disables the feature.
func (c *Config) Validate() error {
	if c.App.Port <= 0 {
		return errors.New("app.port missing or invalid")
	}
	if c.Mongo.URI == "" {
		return errors.New("mongodb.uri missing")
	}
	if c.Mongo.Database == "" {
		return errors.New("mongodb.database missing")
	}
	switch strings.ToUpper(c.JWT.Alg) {
	case "RS256":
		if c.JWT.PublicKeyPath == "" {
			return errors.New("jwt.public_key_path required for RS256")
		}
	case "HS256":
		if c.JWT.HSSecret == "" {
			return errors.New("jwt.hs_secret required for HS256")
		}
	default:
		return errors.New("invalid jwt.alg (use RS256 or HS256)")
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.FanoutTopic == "" {
		return errors.New("kafka.fanout_topic missing")
	}
	return nil
}
