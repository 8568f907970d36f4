package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	DriverMongo  = "mongo"
	DriverMemory = "memory"
)

// Config holds every setting read from the environment (optionally seeded from a .env file).
type Config struct {
	ServerPort      string        `env:"SERVER_PORT" envDefault:"8080"`
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"15s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	CORSOrigin      string        `env:"CORS_ORIGIN" envDefault:"*"`
	WSOutboxSize    int           `env:"WS_OUTBOX_SIZE" envDefault:"64"`

	StorageDriver string `env:"STORAGE_DRIVER" envDefault:"mongo"`
	MongoURI      string `env:"MONGO_URI" envDefault:"mongodb://localhost:27017/?replicaSet=rs0"`
	MongoDBName   string `env:"MONGO_DB_NAME" envDefault:"nls_portal"`

	TxTimeout     time.Duration `env:"TX_TIMEOUT" envDefault:"10s"`
	TxMaxAttempts int           `env:"TX_MAX_ATTEMPTS" envDefault:"3"`

	JWTSecret     string `env:"JWT_SECRET"`
	WebhookSecret string `env:"WEBHOOK_SECRET"`

	LogFile  string `env:"LOG_FILE" envDefault:"logs/nls-portal.log"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	SendgridAPIKey string `env:"SENDGRID_API_KEY"`
	MailFrom       string `env:"MAIL_FROM" envDefault:"noreply@localhost"`
	MailFromName   string `env:"MAIL_FROM_NAME" envDefault:"NLS Portal"`

	ObjectStorageURL   string `env:"OBJECT_STORAGE_URL"`
	ObjectStorageToken string `env:"OBJECT_STORAGE_TOKEN"`
}

// Load reads the optional dotenv file and parses the environment into a Config.
// A missing dotenv file is not an error.
func Load(dotenvPath string) (*Config, error) {
	if dotenvPath != "" {
		if err := godotenv.Load(dotenvPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", dotenvPath, err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.StorageDriver {
	case DriverMongo, DriverMemory:
	default:
		return fmt.Errorf("STORAGE_DRIVER must be %q or %q, got %q", DriverMongo, DriverMemory, c.StorageDriver)
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is not set")
	}
	if c.TxMaxAttempts < 1 {
		return fmt.Errorf("TX_MAX_ATTEMPTS must be at least 1, got %d", c.TxMaxAttempts)
	}
	if c.WSOutboxSize < 1 {
		return fmt.Errorf("WS_OUTBOX_SIZE must be at least 1, got %d", c.WSOutboxSize)
	}
	if c.TxTimeout <= 0 {
		return fmt.Errorf("TX_TIMEOUT must be positive, got %s", c.TxTimeout)
	}
	return nil
}

func (c *Config) Addr() string {
	return ":" + c.ServerPort
}
