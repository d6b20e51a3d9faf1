package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	pstrings "eda/pkg/platform/strings"
)

// Backend names accepted by STORE_BACKEND, BUS_BACKEND and NOTIFY_BACKEND.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"

	BusLocal = "local"
	BusKafka = "kafka"

	NotifyLog   = "log"
	NotifyRedis = "redis"
	NotifyKafka = "kafka"
)

// Config is the resolved runtime configuration. Everything comes from the
// process environment at start-up.
type Config struct {
	Stage   string
	Account string
	Region  string

	Addr string

	TableName    string
	EventBusName string
	TopicARN     string

	StoreBackend  string
	BusBackend    string
	NotifyBackend string

	DatabaseURL string
	Redis       RedisConfig
	Kafka       KafkaConfig

	RoutingRulesFile string

	RequestTimeout   time.Duration
	DeliveryTimeout  time.Duration
	BreakerThreshold int
	BreakerCooldown  time.Duration

	LogLevel  string
	LogFormat string
}

// RedisConfig configures the shared Redis client.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures producer and consumer clients.
type KafkaConfig struct {
	Brokers           []string
	ConsumerGroup     string
	Partitions        int32
	ReplicationFactor int16
}

// FromEnv builds a Config from environment variables so main stays lean.
// Unset keys fall back to development defaults; malformed values and
// backends missing their connection settings are reported together.
func FromEnv() (Config, error) {
	var problems []string

	str := func(key, def string) string {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
		return def
	}
	dur := func(key string, def time.Duration) time.Duration {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			return def
		}
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			problems = append(problems, fmt.Sprintf("%s: invalid duration %q", key, v))
			return def
		}
		return d
	}
	num := func(key string, def int) int {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			return def
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			problems = append(problems, fmt.Sprintf("%s: invalid integer %q", key, v))
			return def
		}
		return n
	}

	cfg := Config{
		Stage:   str("STAGE", "dev"),
		Account: str("AWSACCOUNT", ""),
		Region:  str("AWSREGION", ""),

		Addr: str("ADDR", ":8080"),

		TableName:    str("TABLE_NAME", "eda-user-table"),
		EventBusName: str("EVENT_BUS_NAME", "eda-lecture-event-bus"),
		TopicARN:     str("TOPIC_ARN", "notify-new-user"),

		StoreBackend:  strings.ToLower(str("STORE_BACKEND", StoreMemory)),
		BusBackend:    strings.ToLower(str("BUS_BACKEND", BusLocal)),
		NotifyBackend: strings.ToLower(str("NOTIFY_BACKEND", NotifyLog)),

		DatabaseURL: str("DATABASE_URL", ""),
		Redis: RedisConfig{
			URL:          str("REDIS_URL", ""),
			PoolSize:     num("REDIS_POOL_SIZE", 10),
			MinIdleConns: num("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  dur("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  dur("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: dur("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:           pstrings.SplitList(os.Getenv("KAFKA_BROKERS")),
			ConsumerGroup:     str("KAFKA_CONSUMER_GROUP", "notify-user"),
			Partitions:        int32(num("KAFKA_TOPIC_PARTITIONS", 1)),
			ReplicationFactor: int16(num("KAFKA_REPLICATION_FACTOR", 1)),
		},

		RoutingRulesFile: str("ROUTING_RULES_FILE", ""),

		RequestTimeout:   dur("REQUEST_TIMEOUT", 10*time.Second),
		DeliveryTimeout:  dur("DELIVERY_TIMEOUT", 10*time.Second),
		BreakerThreshold: num("BUS_BREAKER_THRESHOLD", 5),
		BreakerCooldown:  dur("BUS_BREAKER_COOLDOWN", 30*time.Second),

		LogLevel:  str("LOG_LEVEL", "info"),
		LogFormat: str("LOG_FORMAT", "json"),
	}

	problems = append(problems, cfg.validate()...)
	if len(problems) > 0 {
		return Config{}, fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return cfg, nil
}

func (c Config) validate() []string {
	var problems []string

	switch c.StoreBackend {
	case StoreMemory:
	case StorePostgres:
		if c.DatabaseURL == "" {
			problems = append(problems, "DATABASE_URL is required for postgres store")
		}
	case StoreRedis:
		if c.Redis.URL == "" {
			problems = append(problems, "REDIS_URL is required for redis store")
		}
	default:
		problems = append(problems, fmt.Sprintf("STORE_BACKEND: unknown backend %q", c.StoreBackend))
	}

	switch c.BusBackend {
	case BusLocal:
	case BusKafka:
		if len(c.Kafka.Brokers) == 0 {
			problems = append(problems, "KAFKA_BROKERS is required for kafka bus")
		}
	default:
		problems = append(problems, fmt.Sprintf("BUS_BACKEND: unknown backend %q", c.BusBackend))
	}

	switch c.NotifyBackend {
	case NotifyLog:
	case NotifyRedis:
		if c.Redis.URL == "" {
			problems = append(problems, "REDIS_URL is required for redis notifications")
		}
	case NotifyKafka:
		if len(c.Kafka.Brokers) == 0 {
			problems = append(problems, "KAFKA_BROKERS is required for kafka notifications")
		}
	default:
		problems = append(problems, fmt.Sprintf("NOTIFY_BACKEND: unknown backend %q", c.NotifyBackend))
	}
	return problems
}

// NeedsRedis reports whether any component talks to Redis.
func (c Config) NeedsRedis() bool {
	return c.StoreBackend == StoreRedis || c.NotifyBackend == NotifyRedis
}

// NeedsKafka reports whether any component talks to Kafka.
func (c Config) NeedsKafka() bool {
	return c.BusBackend == BusKafka || c.NotifyBackend == NotifyKafka
}
