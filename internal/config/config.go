package config

import (
	"fmt"
	"sync"
	"time"

	"github.com/joho/godotenv"

	"secmon-service/internal/util"
)

type Config struct {
	Environment string

	Server        ServerConfig
	Logging       LoggingConfig
	Redis         RedisConfig
	Scylla        ScyllaConfig
	Kafka         KafkaConfig
	Elasticsearch ElasticsearchConfig
	Clickhouse    ClickhouseConfig
	KMS           KMSConfig
	Hashing       HashingConfig
	Bucketing     BucketingConfig
	Security      SecurityConfig
	Session       SessionConfig
}

type ServerConfig struct {
	Port         int
	TLSPort      int
	EnableTLS    bool
	AutoCert     bool
	Domain       string
	CertFile     string
	KeyFile      string
	AutoCertDir  string
	Email        string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
}

type ScyllaConfig struct {
	Nodes    []string
	Keyspace string
	Username string
	Password string
}

type KafkaConfig struct {
	Brokers    []string
	EventTopic string
}

type ElasticsearchConfig struct {
	URL      string
	Username string
	Password string
	Index    string
}

type ClickhouseConfig struct {
	URL      string
	Database string
	Username string
	Password string
}

type KMSConfig struct {
	Enabled bool
	Region  string
	KeyID   string
}

type HashingConfig struct {
	PepperRotationDays int
}

type BucketingConfig struct {
	EventBuckets   int
	AttemptBuckets int
}

// SecurityConfig carries the rate-limit and lockout policy knobs
type SecurityConfig struct {
	RateLimitMaxRequests int
	RateLimitWindow      time.Duration
	LockoutThreshold     int
	LockoutLookback      time.Duration
	LockoutDuration      time.Duration
	AuditQueueSize       int
	AuditWriteTimeout    time.Duration
}

type SessionConfig struct {
	DefaultTTL    time.Duration
	ShortTTL      time.Duration
	SweepInterval time.Duration
}

var (
	instance *Config
	loadOnce sync.Once
)

// LoadConfig reads configuration from the environment, loading .env first when
// present. Subsequent calls return the same instance.
func LoadConfig() *Config {
	loadOnce.Do(func() {
		// .env is optional; real deployments inject the environment directly
		_ = godotenv.Load()

		instance = &Config{
			Environment: util.GetEnv("ENVIRONMENT", "development"),
			Server: ServerConfig{
				Port:         util.GetEnvInt("SERVER_PORT", 8080),
				TLSPort:      util.GetEnvInt("SERVER_TLS_PORT", 8443),
				EnableTLS:    util.GetEnvBool("SERVER_ENABLE_TLS", false),
				AutoCert:     util.GetEnvBool("SERVER_AUTO_CERT", false),
				Domain:       util.GetEnv("SERVER_DOMAIN", "localhost"),
				CertFile:     util.GetEnv("SERVER_CERT_FILE", ""),
				KeyFile:      util.GetEnv("SERVER_KEY_FILE", ""),
				AutoCertDir:  util.GetEnv("SERVER_AUTOCERT_DIR", "/var/lib/secmon/certs"),
				Email:        util.GetEnv("SERVER_ACME_EMAIL", ""),
				ReadTimeout:  util.GetEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
				WriteTimeout: util.GetEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
				IdleTimeout:  util.GetEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			},
			Logging: LoggingConfig{
				Level:  util.GetEnv("LOG_LEVEL", "info"),
				Format: util.GetEnv("LOG_FORMAT", "json"),
			},
			Redis: RedisConfig{
				URL:      util.GetEnv("REDIS_URL", "redis://localhost:6379"),
				Password: util.GetEnv("REDIS_PASSWORD", ""),
				DB:       util.GetEnvInt("REDIS_DB", 0),
				PoolSize: util.GetEnvInt("REDIS_POOL_SIZE", 50),
			},
			Scylla: ScyllaConfig{
				Nodes:    util.GetEnvSlice("SCYLLA_NODES", []string{"localhost:9042"}),
				Keyspace: util.GetEnv("SCYLLA_KEYSPACE", "secmon"),
				Username: util.GetEnv("SCYLLA_USERNAME", ""),
				Password: util.GetEnv("SCYLLA_PASSWORD", ""),
			},
			Kafka: KafkaConfig{
				Brokers:    util.GetEnvSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
				EventTopic: util.GetEnv("KAFKA_EVENT_TOPIC", "security-events"),
			},
			Elasticsearch: ElasticsearchConfig{
				URL:      util.GetEnv("ELASTICSEARCH_URL", "http://localhost:9200"),
				Username: util.GetEnv("ELASTICSEARCH_USERNAME", ""),
				Password: util.GetEnv("ELASTICSEARCH_PASSWORD", ""),
				Index:    util.GetEnv("ELASTICSEARCH_EVENT_INDEX", "security-events"),
			},
			Clickhouse: ClickhouseConfig{
				URL:      util.GetEnv("CLICKHOUSE_URL", "http://localhost:8123"),
				Database: util.GetEnv("CLICKHOUSE_DATABASE", "secmon"),
				Username: util.GetEnv("CLICKHOUSE_USERNAME", "default"),
				Password: util.GetEnv("CLICKHOUSE_PASSWORD", ""),
			},
			KMS: KMSConfig{
				Enabled: util.GetEnvBool("KMS_ENABLED", false),
				Region:  util.GetEnv("KMS_REGION", "us-east-1"),
				KeyID:   util.GetEnv("KMS_KEY_ID", ""),
			},
			Hashing: HashingConfig{
				PepperRotationDays: util.GetEnvInt("HASHING_PEPPER_ROTATION_DAYS", 30),
			},
			Bucketing: BucketingConfig{
				EventBuckets:   util.GetEnvInt("BUCKETING_EVENT_BUCKETS", 64),
				AttemptBuckets: util.GetEnvInt("BUCKETING_ATTEMPT_BUCKETS", 64),
			},
			Security: SecurityConfig{
				RateLimitMaxRequests: util.GetEnvInt("SECURITY_RATE_LIMIT_MAX", 100),
				RateLimitWindow:      util.GetEnvDuration("SECURITY_RATE_LIMIT_WINDOW", time.Minute),
				LockoutThreshold:     util.GetEnvInt("SECURITY_LOCKOUT_THRESHOLD", 5),
				LockoutLookback:      util.GetEnvDuration("SECURITY_LOCKOUT_LOOKBACK", 15*time.Minute),
				LockoutDuration:      util.GetEnvDuration("SECURITY_LOCKOUT_DURATION", 30*time.Minute),
				AuditQueueSize:       util.GetEnvInt("SECURITY_AUDIT_QUEUE_SIZE", 4096),
				AuditWriteTimeout:    util.GetEnvDuration("SECURITY_AUDIT_WRITE_TIMEOUT", 5*time.Second),
			},
			Session: SessionConfig{
				DefaultTTL:    util.GetEnvDuration("SESSION_DEFAULT_TTL", 24*time.Hour),
				ShortTTL:      util.GetEnvDuration("SESSION_SHORT_TTL", 8*time.Hour),
				SweepInterval: util.GetEnvDuration("SESSION_SWEEP_INTERVAL", 5*time.Minute),
			},
		}
	})

	return instance
}

// Get returns the loaded configuration, loading it on first use
func Get() *Config {
	return LoadConfig()
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) GetServerAddress() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
