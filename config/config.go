package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

const defaultJWTSecret = "change-me-in-production"

const (
	StoreMongo  = "mongo"
	StoreMemory = "memory"
)

type Config struct {
	Env           string
	Port          string
	Store         string // StoreMongo or StoreMemory
	MongoURI      string
	DBName        string
	MongoTimeout  time.Duration
	S3Bucket      string
	S3Region      string
	S3AccessKeyID string
	S3SecretKey   string
	JWTSecret     string
	TokenTTL      time.Duration
	BcryptCost    int
	PageSize      int
	MaxCoverMB    int64
	LogLevel      string
	CORSOrigins   []string
}

// Load reads the configuration from the environment. Call godotenv.Load first
// to pick up a .env file.
func Load() (*Config, error) {
	cfg := &Config{
		Env:           getEnv("APP_ENV", "development"),
		Port:          getEnv("PORT", "8080"),
		Store:         strings.ToLower(getEnv("STORE", StoreMongo)),
		MongoURI:      getEnv("MONGODB_URI", "mongodb://localhost:27017"),
		DBName:        getEnv("MONGODB_DB", "bookreviews"),
		S3Bucket:      getEnv("AWS_S3_BUCKET", ""),
		S3Region:      getEnv("AWS_REGION", "us-east-1"),
		S3AccessKeyID: getEnv("AWS_ACCESS_KEY_ID", ""),
		S3SecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		JWTSecret:     getEnv("JWT_SECRET", defaultJWTSecret),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		CORSOrigins:   strings.Split(getEnv("CORS_ORIGINS", "*"), ","),
	}
	var errs []error
	cfg.MongoTimeout = getDuration("MONGODB_TIMEOUT", 10*time.Second, &errs)
	cfg.TokenTTL = getDuration("TOKEN_TTL", 7*24*time.Hour, &errs)
	cfg.BcryptCost = getInt("BCRYPT_COST", bcrypt.DefaultCost, &errs)
	cfg.PageSize = getInt("PAGE_SIZE", 10, &errs)
	cfg.MaxCoverMB = int64(getInt("MAX_COVER_MB", 5, &errs))

	if cfg.Store != StoreMongo && cfg.Store != StoreMemory {
		errs = append(errs, fmt.Errorf("STORE must be %q or %q, got %q", StoreMongo, StoreMemory, cfg.Store))
	}
	if cfg.BcryptCost < bcrypt.MinCost || cfg.BcryptCost > bcrypt.MaxCost {
		errs = append(errs, fmt.Errorf("BCRYPT_COST must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost))
	}
	if cfg.Production() && cfg.JWTSecret == defaultJWTSecret {
		errs = append(errs, errors.New("JWT_SECRET must be set to a strong secret in production"))
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

func (c *Config) Production() bool {
	return c.Env == "production"
}

// LogSummary reports which settings were loaded without printing secrets.
func (c *Config) LogSummary(log logrus.FieldLogger) {
	log.WithFields(logrus.Fields{
		"env":        c.Env,
		"port":       c.Port,
		"store":      c.Store,
		"db":         c.DBName,
		"s3_bucket":  c.S3Bucket,
		"token_ttl":  c.TokenTTL.String(),
		"page_size":  c.PageSize,
		"jwt_secret": c.JWTSecret != defaultJWTSecret,
	}).Info("configuration loaded")
	if c.JWTSecret == defaultJWTSecret {
		log.Warn("JWT_SECRET is the default value; set a strong secret")
	}
	if c.S3Bucket == "" {
		log.Warn("AWS_S3_BUCKET not set; cover uploads are disabled")
	}
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration, errs *[]error) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		*errs = append(*errs, fmt.Errorf("%s: invalid duration %q", key, v))
		return fallback
	}
	return d
}

func getInt(key string, fallback int, errs *[]error) int {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		*errs = append(*errs, fmt.Errorf("%s: invalid positive integer %q", key, v))
		return fallback
	}
	return n
}
