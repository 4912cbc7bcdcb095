package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all environment configuration values for the application.
// These values are loaded from a .env file at startup, then from the process
// environment, which wins on conflicts.
type Config struct {
	// SupabaseURL is the URL of the Supabase project
	SupabaseURL string `envconfig:"SUPABASE_URL" required:"true"`

	// SupabaseKey is the service role key used for REST, Realtime and Storage
	// This key has elevated privileges and should never be exposed to clients
	SupabaseKey string `envconfig:"SUPABASE_SERVICE_ROLE_KEY" required:"true"`

	// ServerPort is the port the HTTP server listens on
	ServerPort string `envconfig:"PORT" default:"8080"`

	// CorsOrigins is a comma-separated list of allowed origins
	CorsOrigins []string `envconfig:"CORS_ORIGINS" default:"http://localhost:5173,http://localhost:3000"`

	// PollInterval is the tick of the polling fallback feed
	PollInterval time.Duration `envconfig:"POLL_INTERVAL" default:"3s"`

	// RequestTimeout bounds every call to the store
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"10s"`

	RealtimeHeartbeat time.Duration `envconfig:"REALTIME_HEARTBEAT" default:"30s"`
	PushRetryMaxDelay time.Duration `envconfig:"PUSH_RETRY_MAX_DELAY" default:"30s"`

	// BroadcastOnSend also publishes each inserted message on the realtime
	// broadcast channel of its conversation
	BroadcastOnSend bool `envconfig:"BROADCAST_ON_SEND" default:"true"`

	// SessionTimeout is how long a gateway session may go without heartbeat
	SessionTimeout  time.Duration `envconfig:"SESSION_TIMEOUT" default:"5m"`
	CleanupInterval time.Duration `envconfig:"CLEANUP_INTERVAL" default:"1m"`

	MaxMessageLength int `envconfig:"MAX_MESSAGE_LENGTH" default:"2000"`

	// UploadBucket is the storage bucket profile images are written to
	UploadBucket string `envconfig:"UPLOAD_BUCKET" default:"profile-images"`

	// EthRPCURL and ContractAddress enable the contacts endpoint when both are set
	EthRPCURL       string `envconfig:"ETH_RPC_URL"`
	ContractAddress string `envconfig:"CONTRACT_ADDRESS"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// LogFile enables a rotating log file next to stderr output
	LogFile string `envconfig:"LOG_FILE"`
}

// Load reads the optional .env file and the environment into a Config.
// It reports whether a .env file was found so the caller can log it once a
// logger exists.
func Load() (*Config, bool, error) {
	// Not an error if it doesn't exist, as we may be running in production
	// with real environment variables
	dotenv := godotenv.Load() == nil

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, dotenv, fmt.Errorf("config error: %w", err)
	}
	for i, origin := range cfg.CorsOrigins {
		cfg.CorsOrigins[i] = strings.TrimSpace(origin)
	}
	cfg.SupabaseURL = strings.TrimRight(cfg.SupabaseURL, "/")

	if err := cfg.Validate(); err != nil {
		return nil, dotenv, err
	}
	return &cfg, dotenv, nil
}

// Validate checks the values envconfig cannot express with tags.
func (c *Config) Validate() error {
	var errs []error
	if c.SupabaseURL == "" {
		errs = append(errs, errors.New("SUPABASE_URL is not set"))
	}
	if c.SupabaseKey == "" {
		errs = append(errs, errors.New("SUPABASE_SERVICE_ROLE_KEY is not set"))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, errors.New("POLL_INTERVAL must be positive"))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, errors.New("REQUEST_TIMEOUT must be positive"))
	}
	if c.RealtimeHeartbeat <= 0 {
		errs = append(errs, errors.New("REALTIME_HEARTBEAT must be positive"))
	}
	if c.MaxMessageLength <= 0 {
		errs = append(errs, errors.New("MAX_MESSAGE_LENGTH must be positive"))
	}
	if (c.EthRPCURL == "") != (c.ContractAddress == "") {
		errs = append(errs, errors.New("ETH_RPC_URL and CONTRACT_ADDRESS must be set together"))
	}
	return errors.Join(errs...)
}

// ContractEnabled reports whether the contract reader should be started.
func (c *Config) ContractEnabled() bool {
	return c.EthRPCURL != "" && c.ContractAddress != ""
}
