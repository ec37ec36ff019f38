package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment string

	Server     ServerConfig
	Redis      RedisConfig
	Scylla     ScyllaConfig
	Kafka      KafkaConfig
	Elastic    ElasticConfig
	Clickhouse ClickhouseConfig
	KMS        KMSConfig
	Security   SecurityConfig
	Hashing    HashingConfig
	Bucketing  BucketingConfig
	Logging    LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
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
	AlertTopic string
}

type ElasticConfig struct {
	URL      string
	Username string
	Password string
	Enabled  bool
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

// SecurityConfig holds the tunables of the admin login core.
type SecurityConfig struct {
	IdentityProviderURL string
	LoginRateLimit      int
	LoginRateWindow     time.Duration
	SessionTTL          time.Duration
	AdminIPAllowlist    []string
	MFAIssuer           string
	BackupCodeCount     int
	ExternalTimeout     time.Duration
	FailedLoginWindow   time.Duration
	FailedLoginMedium   int
	FailedLoginCritical int
}

type HashingConfig struct {
	Argon2MemoryCost  int
	Argon2TimeCost    int
	Argon2Parallelism int
}

type BucketingConfig struct {
	UserBuckets  int
	EventBuckets int
}

type LoggingConfig struct {
	Level  string
	Format string
}

var (
	loaded *Config
	mu     sync.RWMutex
)

// LoadConfig reads configuration from the environment (an optional .env file
// is merged first). Malformed security patterns are rejected here, not at
// check time.
func LoadConfig() *Config {
	mu.Lock()
	defer mu.Unlock()
	if loaded != nil {
		return loaded
	}

	// Best effort: absence of a .env file is normal outside development.
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("APP_ENV", "development"),
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvInt("SERVER_PORT", 8443),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", "redis://localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			PoolSize: getEnvInt("REDIS_POOL_SIZE", 50),
		},
		Scylla: ScyllaConfig{
			Nodes:    splitList(getEnv("SCYLLA_NODES", "localhost:9042")),
			Keyspace: getEnv("SCYLLA_KEYSPACE", "admin_auth"),
			Username: getEnv("SCYLLA_USERNAME", ""),
			Password: getEnv("SCYLLA_PASSWORD", ""),
		},
		Kafka: KafkaConfig{
			Brokers:    splitList(getEnv("KAFKA_BROKERS", "localhost:9092")),
			AlertTopic: getEnv("KAFKA_ALERT_TOPIC", "admin-security-alerts"),
		},
		Elastic: ElasticConfig{
			URL:      getEnv("ELASTIC_URL", "http://localhost:9200"),
			Username: getEnv("ELASTIC_USERNAME", ""),
			Password: getEnv("ELASTIC_PASSWORD", ""),
			Enabled:  getEnvBool("ELASTIC_ENABLED", false),
		},
		Clickhouse: ClickhouseConfig{
			URL:      getEnv("CLICKHOUSE_URL", "localhost:9000"),
			Database: getEnv("CLICKHOUSE_DATABASE", "admin_security"),
			Username: getEnv("CLICKHOUSE_USERNAME", "default"),
			Password: getEnv("CLICKHOUSE_PASSWORD", ""),
		},
		KMS: KMSConfig{
			Enabled: getEnvBool("KMS_ENABLED", false),
			Region:  getEnv("KMS_REGION", "us-east-1"),
			KeyID:   getEnv("KMS_KEY_ID", ""),
		},
		Security: SecurityConfig{
			IdentityProviderURL: getEnv("IDENTITY_PROVIDER_URL", "http://localhost:8081/internal/identity/verify"),
			LoginRateLimit:      getEnvInt("LOGIN_RATE_LIMIT", 5),
			LoginRateWindow:     getEnvDuration("LOGIN_RATE_WINDOW", time.Minute),
			SessionTTL:          getEnvDuration("ADMIN_SESSION_TTL", 30*time.Minute),
			AdminIPAllowlist:    splitList(getEnv("ADMIN_IP_ALLOWLIST", "")),
			MFAIssuer:           getEnv("MFA_ISSUER", "storefront-admin"),
			BackupCodeCount:     getEnvInt("MFA_BACKUP_CODE_COUNT", 10),
			ExternalTimeout:     getEnvDuration("EXTERNAL_CALL_TIMEOUT", 5*time.Second),
			FailedLoginWindow:   getEnvDuration("FAILED_LOGIN_WINDOW", 15*time.Minute),
			FailedLoginMedium:   getEnvInt("FAILED_LOGIN_MEDIUM", 3),
			FailedLoginCritical: getEnvInt("FAILED_LOGIN_CRITICAL", 8),
		},
		Hashing: HashingConfig{
			Argon2MemoryCost:  getEnvInt("ARGON2_MEMORY_COST", 64*1024),
			Argon2TimeCost:    getEnvInt("ARGON2_TIME_COST", 3),
			Argon2Parallelism: getEnvInt("ARGON2_PARALLELISM", 2),
		},
		Bucketing: BucketingConfig{
			UserBuckets:  getEnvInt("USER_BUCKETS", 64),
			EventBuckets: getEnvInt("EVENT_BUCKETS", 128),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	loaded = cfg
	return cfg
}

// Get returns the loaded configuration, loading it on first use.
func Get() *Config {
	mu.RLock()
	c := loaded
	mu.RUnlock()
	if c != nil {
		return c
	}
	return LoadConfig()
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
