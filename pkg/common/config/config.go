package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// Server
	ServerPort     string        `yaml:"server_port"`
	ServerHost     string        `yaml:"server_host"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	MaxRequestBody int64         `yaml:"max_request_body"`
	RateLimitRPS   int           `yaml:"rate_limit_rps"`
	RateLimitBurst int           `yaml:"rate_limit_burst"`

	LogLevel string `yaml:"log_level"`

	// Model
	ModelArtifactPath string `yaml:"model_artifact_path"`
	AttributionMethod string `yaml:"attribution_method"`

	// Database
	PostgresHost     string `yaml:"postgres_host"`
	PostgresPort     string `yaml:"postgres_port"`
	PostgresUser     string `yaml:"postgres_user"`
	PostgresPassword string `yaml:"postgres_password"`
	PostgresDB       string `yaml:"postgres_db"`
	PostgresSSLMode  string `yaml:"postgres_sslmode"`

	// Redis
	RedisHost     string `yaml:"redis_host"`
	RedisPort     string `yaml:"redis_port"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	// Snapshot store
	FeatureStoreEnabled   bool          `yaml:"feature_store_enabled"`
	FeatureOnlinePrefix   string        `yaml:"feature_online_prefix"`
	FeatureStoreCacheTTL  time.Duration `yaml:"feature_store_cache_ttl"`
	FeatureStoreRetention time.Duration `yaml:"feature_store_retention"`

	// Kafka
	KafkaEnabled      bool     `yaml:"kafka_enabled"`
	KafkaBrokers      []string `yaml:"kafka_brokers"`
	KafkaGroupID      string   `yaml:"kafka_group_id"`
	KafkaRequestTopic string   `yaml:"kafka_request_topic"`
	KafkaResultTopic  string   `yaml:"kafka_result_topic"`
}

func defaults() *Config {
	return &Config{
		ServerPort:     "8089",
		ServerHost:     "0.0.0.0",
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		MaxRequestBody: 1024 * 1024,
		RateLimitRPS:   50,
		RateLimitBurst: 100,

		LogLevel: "info",

		ModelArtifactPath: "models/heart_model.json",
		AttributionMethod: "auto",

		PostgresHost:    "localhost",
		PostgresPort:    "5432",
		PostgresUser:    "synaptica",
		PostgresDB:      "synaptica",
		PostgresSSLMode: "disable",

		RedisHost: "localhost",
		RedisPort: "6379",

		FeatureOnlinePrefix:   "heartrisk:snapshot:",
		FeatureStoreCacheTTL:  5 * time.Minute,
		FeatureStoreRetention: 90 * 24 * time.Hour,

		KafkaBrokers:      []string{"localhost:9092"},
		KafkaGroupID:      "heartrisk-serving",
		KafkaRequestTopic: "risk-assessment-requests",
		KafkaResultTopic:  "risk-assessment-results",
	}
}

// Load builds the configuration from defaults, the optional YAML file named by
// CONFIG_FILE, and environment variables, in that order of precedence.
func Load() (*Config, error) {
	cfg := defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(content, c); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.ServerPort = getEnv("SERVER_PORT", c.ServerPort)
	c.ServerHost = getEnv("SERVER_HOST", c.ServerHost)
	c.ReadTimeout = getDuration("READ_TIMEOUT", c.ReadTimeout)
	c.WriteTimeout = getDuration("WRITE_TIMEOUT", c.WriteTimeout)
	c.MaxRequestBody = int64(getIntEnv("MAX_REQUEST_BODY_BYTES", int(c.MaxRequestBody)))
	c.RateLimitRPS = getIntEnv("RATE_LIMIT_RPS", c.RateLimitRPS)
	c.RateLimitBurst = getIntEnv("RATE_LIMIT_BURST", c.RateLimitBurst)

	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)

	c.ModelArtifactPath = getEnv("MODEL_ARTIFACT_PATH", c.ModelArtifactPath)
	c.AttributionMethod = getEnv("ATTRIBUTION_METHOD", c.AttributionMethod)

	c.PostgresHost = getEnv("POSTGRES_HOST", c.PostgresHost)
	c.PostgresPort = getEnv("POSTGRES_PORT", c.PostgresPort)
	c.PostgresUser = getEnv("POSTGRES_USER", c.PostgresUser)
	c.PostgresPassword = getEnv("POSTGRES_PASSWORD", c.PostgresPassword)
	c.PostgresDB = getEnv("POSTGRES_DB", c.PostgresDB)
	c.PostgresSSLMode = getEnv("POSTGRES_SSLMODE", c.PostgresSSLMode)

	c.RedisHost = getEnv("REDIS_HOST", c.RedisHost)
	c.RedisPort = getEnv("REDIS_PORT", c.RedisPort)
	c.RedisPassword = getEnv("REDIS_PASSWORD", c.RedisPassword)
	c.RedisDB = getIntEnv("REDIS_DB", c.RedisDB)

	c.FeatureStoreEnabled = getBoolEnv("FEATURE_STORE_ENABLED", c.FeatureStoreEnabled)
	c.FeatureOnlinePrefix = getEnv("FEATURE_ONLINE_PREFIX", c.FeatureOnlinePrefix)
	c.FeatureStoreCacheTTL = getDuration("FEATURE_STORE_CACHE_TTL", c.FeatureStoreCacheTTL)
	c.FeatureStoreRetention = getDuration("FEATURE_STORE_RETENTION", c.FeatureStoreRetention)

	c.KafkaEnabled = getBoolEnv("KAFKA_ENABLED", c.KafkaEnabled)
	c.KafkaBrokers = getStringSliceEnv("KAFKA_BROKERS", c.KafkaBrokers)
	c.KafkaGroupID = getEnv("KAFKA_GROUP_ID", c.KafkaGroupID)
	c.KafkaRequestTopic = getEnv("KAFKA_REQUEST_TOPIC", c.KafkaRequestTopic)
	c.KafkaResultTopic = getEnv("KAFKA_RESULT_TOPIC", c.KafkaResultTopic)
}

func (c *Config) PostgresDSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		c.PostgresHost,
		c.PostgresUser,
		c.PostgresPassword,
		c.PostgresDB,
		c.PostgresPort,
		c.PostgresSSLMode,
	)
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getStringSliceEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
