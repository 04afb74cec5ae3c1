package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds the full service configuration.
type Config struct {
	Service  ServiceConfig
	Server   ServerConfig
	GRPC     GRPCConfig
	Database DatabaseConfig
	Workflow WorkflowConfig
	Auth     AuthConfig
	NATS     NATSConfig
	Storage  StorageConfig
}

type ServiceConfig struct {
	Name        string
	Version     string
	Environment string
	LogLevel    string
}

type ServerConfig struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	RequestTimeout  time.Duration
	CORSOrigins     []string
}

type GRPCConfig struct {
	Port int
}

type DatabaseConfig struct {
	Backend     string // postgres | memory
	Host        string
	Port        int
	User        string
	Password    string
	Database    string
	SSLMode     string
	MaxConns    int32
	MinConns    int32
	MaxConnTime time.Duration
	MaxIdleTime time.Duration
	HealthCheck time.Duration
	AutoMigrate bool
}

// WorkflowConfig carries the business policy knobs of the approval workflow.
type WorkflowConfig struct {
	// ApprovalLimit is the request amount above which only a director may pay.
	ApprovalLimit     decimal.Decimal
	Currency          string
	VendorAutoApprove bool
	ReceiptRequired   bool
}

type AuthConfig struct {
	JWTSecret string
	Issuer    string
}

type NATSConfig struct {
	URL           string
	Stream        string
	SubjectPrefix string
}

type StorageConfig struct {
	Driver          string // local | gcs
	Bucket          string
	CredentialsFile string
	LocalDir        string
	PublicBaseURL   string
}

// Load reads configuration from the environment, after loading a .env file
// when one is present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	limit, err := decimal.NewFromString(getEnv("APPROVAL_LIMIT", "500000"))
	if err != nil {
		return nil, fmt.Errorf("invalid APPROVAL_LIMIT: %w", err)
	}

	cfg := &Config{
		Service: ServiceConfig{
			Name:        getEnv("SERVICE_NAME", "be-procurement"),
			Version:     getEnv("SERVICE_VERSION", "0.1.0"),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
		},
		Server: ServerConfig{
			Port:            getEnvInt("PORT", 8086),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:     getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 20*time.Second),
			RequestTimeout:  getEnvDuration("SERVER_REQUEST_TIMEOUT", 30*time.Second),
			CORSOrigins:     getEnvList("CORS_ORIGINS", []string{"*"}),
		},
		GRPC: GRPCConfig{
			Port: getEnvInt("GRPC_PORT", 9086),
		},
		Database: DatabaseConfig{
			Backend:     getEnv("STORAGE_BACKEND", "postgres"),
			Host:        getEnv("DB_HOST", "localhost"),
			Port:        getEnvInt("DB_PORT", 5432),
			User:        getEnv("DB_USER", "postgres"),
			Password:    getEnv("DB_PASSWORD", ""),
			Database:    getEnv("DB_NAME", "procurement"),
			SSLMode:     getEnv("DB_SSLMODE", "disable"),
			MaxConns:    int32(getEnvInt("DB_MAX_CONNS", 10)),
			MinConns:    int32(getEnvInt("DB_MIN_CONNS", 2)),
			MaxConnTime: getEnvDuration("DB_MAX_CONN_LIFETIME", time.Hour),
			MaxIdleTime: getEnvDuration("DB_MAX_CONN_IDLE", 30*time.Minute),
			HealthCheck: getEnvDuration("DB_HEALTH_CHECK_PERIOD", time.Minute),
			AutoMigrate: getEnvBool("DB_AUTO_MIGRATE", true),
		},
		Workflow: WorkflowConfig{
			ApprovalLimit:     limit,
			Currency:          strings.ToUpper(getEnv("CURRENCY", "NGN")),
			VendorAutoApprove: getEnvBool("VENDOR_AUTO_APPROVE", false),
			ReceiptRequired:   getEnvBool("RECEIPT_REQUIRED", false),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
			Issuer:    getEnv("JWT_ISSUER", ""),
		},
		NATS: NATSConfig{
			URL:           getEnv("NATS_URL", ""),
			Stream:        getEnv("NATS_STREAM", "NOTIFICATIONS"),
			SubjectPrefix: getEnv("NATS_SUBJECT_PREFIX", "notifications.procurement"),
		},
		Storage: StorageConfig{
			Driver:          getEnv("BLOB_DRIVER", "local"),
			Bucket:          getEnv("GCS_BUCKET", ""),
			CredentialsFile: getEnv("GCS_CREDENTIALS_FILE", ""),
			LocalDir:        getEnv("UPLOAD_DIR", "./uploads"),
			PublicBaseURL:   getEnv("UPLOAD_PUBLIC_BASE_URL", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if !c.Workflow.ApprovalLimit.IsPositive() {
		return fmt.Errorf("APPROVAL_LIMIT must be positive, got %s", c.Workflow.ApprovalLimit)
	}
	if len(c.Workflow.Currency) != 3 {
		return fmt.Errorf("CURRENCY must be a 3-letter ISO code, got %q", c.Workflow.Currency)
	}
	switch c.Database.Backend {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.Database.Backend)
	}
	switch c.Storage.Driver {
	case "local":
	case "gcs":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("GCS_BUCKET is required when BLOB_DRIVER=gcs")
		}
	default:
		return fmt.Errorf("unknown BLOB_DRIVER %q", c.Storage.Driver)
	}
	if c.Auth.JWTSecret == "" && !c.IsDevelopment() {
		return fmt.Errorf("JWT_SECRET is required outside development")
	}
	return nil
}

// IsDevelopment reports whether the service runs in a local environment.
func (c *Config) IsDevelopment() bool {
	return c.Service.Environment == "development" || c.Service.Environment == "local"
}

// DSN builds the postgres connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Database, d.SSLMode)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if result, err := strconv.Atoi(value); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if result, err := strconv.ParseBool(value); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if result, err := time.ParseDuration(value); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
