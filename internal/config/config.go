package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"

	"github.com/glorisonglotech/omnibiz-sub004/internal/util"
)

// Config holds all runtime configuration for the security engine.
type Config struct {
	Environment   string
	Server        ServerConfig
	Redis         RedisConfig
	ClickHouse    ClickHouseConfig
	Kafka         KafkaConfig
	Elasticsearch ElasticsearchConfig
	Security      SecurityConfig
	Logging       LoggingConfig
}

type ServerConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	CORSOrigins  []string
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
}

type ClickHouseConfig struct {
	URL      string
	Username string
	Password string
	Database string
}

type KafkaConfig struct {
	Enabled     bool
	Brokers     []string
	AlertsTopic string
	EventsTopic string
}

type ElasticsearchConfig struct {
	Enabled  bool
	URL      string
	Username string
	Password string
	Index    string
}

// SecurityConfig carries the detection thresholds, remediation durations
// and pipeline sizing. Defaults mirror the documented rule set.
type SecurityConfig struct {
	LoginFailureThreshold  int
	LoginFailureWindow     time.Duration
	APIRateThreshold       int
	APIRateWindow          time.Duration
	FailedRequestThreshold int
	FailedRequestWindow    time.Duration

	// Unusual access hours, half-open interval [start, end).
	UnusualHoursStart int
	UnusualHoursEnd   int

	SensitivePaths []string

	AccountLockDuration time.Duration
	RateLimitDuration   time.Duration

	PipelineBuffer   int
	PipelineWorkers  int
	MaxBodyScanBytes int64

	EventBuckets int
}

type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig reads configuration from the environment. A .env file is
// honored in development setups; missing values fall back to defaults.
func LoadConfig() *Config {
	_ = godotenv.Load()

	return &Config{
		Environment: util.GetEnv("APP_ENV", "development"),
		Server: ServerConfig{
			Port:         util.GetEnvInt("SERVER_PORT", 8090),
			ReadTimeout:  util.GetEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: util.GetEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:  util.GetEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			CORSOrigins:  util.GetEnvSlice("CORS_ORIGINS", []string{"https://*"}),
		},
		Redis: RedisConfig{
			URL:      util.GetEnv("REDIS_URL", "redis://localhost:6379"),
			Password: util.GetEnv("REDIS_PASSWORD", ""),
			DB:       util.GetEnvInt("REDIS_DB", 0),
			PoolSize: util.GetEnvInt("REDIS_POOL_SIZE", 50),
		},
		ClickHouse: ClickHouseConfig{
			URL:      util.GetEnv("CLICKHOUSE_URL", "localhost:9000"),
			Username: util.GetEnv("CLICKHOUSE_USER", "default"),
			Password: util.GetEnv("CLICKHOUSE_PASSWORD", ""),
			Database: util.GetEnv("CLICKHOUSE_DATABASE", "omnibiz_security"),
		},
		Kafka: KafkaConfig{
			Enabled:     util.GetEnvBool("KAFKA_ENABLED", false),
			Brokers:     util.GetEnvSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
			AlertsTopic: util.GetEnv("KAFKA_ALERTS_TOPIC", "security.alerts"),
			EventsTopic: util.GetEnv("KAFKA_EVENTS_TOPIC", "security.events"),
		},
		Elasticsearch: ElasticsearchConfig{
			Enabled:  util.GetEnvBool("ELASTICSEARCH_ENABLED", false),
			URL:      util.GetEnv("ELASTICSEARCH_URL", "http://localhost:9200"),
			Username: util.GetEnv("ELASTICSEARCH_USER", ""),
			Password: util.GetEnv("ELASTICSEARCH_PASSWORD", ""),
			Index:    util.GetEnv("ELASTICSEARCH_INDEX", "security-events"),
		},
		Security: SecurityConfig{
			LoginFailureThreshold:  util.GetEnvInt("SEC_LOGIN_FAILURE_THRESHOLD", 5),
			LoginFailureWindow:     util.GetEnvDuration("SEC_LOGIN_FAILURE_WINDOW", 5*time.Minute),
			APIRateThreshold:       util.GetEnvInt("SEC_API_RATE_THRESHOLD", 100),
			APIRateWindow:          util.GetEnvDuration("SEC_API_RATE_WINDOW", time.Minute),
			FailedRequestThreshold: util.GetEnvInt("SEC_FAILED_REQUEST_THRESHOLD", 20),
			FailedRequestWindow:    util.GetEnvDuration("SEC_FAILED_REQUEST_WINDOW", 5*time.Minute),
			UnusualHoursStart:      util.GetEnvInt("SEC_UNUSUAL_HOURS_START", 2),
			UnusualHoursEnd:        util.GetEnvInt("SEC_UNUSUAL_HOURS_END", 6),
			SensitivePaths: util.GetEnvSlice("SEC_SENSITIVE_PATHS",
				[]string{"/admin", "/config", "/env", "/.git", "/backup"}),
			AccountLockDuration: util.GetEnvDuration("SEC_ACCOUNT_LOCK_DURATION", 30*time.Minute),
			RateLimitDuration:   util.GetEnvDuration("SEC_RATE_LIMIT_DURATION", time.Minute),
			PipelineBuffer:      util.GetEnvInt("SEC_PIPELINE_BUFFER", 4096),
			PipelineWorkers:     util.GetEnvInt("SEC_PIPELINE_WORKERS", 4),
			MaxBodyScanBytes:    int64(util.GetEnvInt("SEC_MAX_BODY_SCAN_BYTES", 1<<20)),
			EventBuckets:        util.GetEnvInt("SEC_EVENT_BUCKETS", 64),
		},
		Logging: LoggingConfig{
			Level:  util.GetEnv("LOG_LEVEL", "info"),
			Format: util.GetEnv("LOG_FORMAT", "json"),
		},
	}
}

// GetServerAddress returns the listen address for the HTTP server.
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return !c.IsProduction()
}
