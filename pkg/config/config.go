package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the regpilot server configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server" json:"server"`
	Auth       AuthConfig       `yaml:"auth" json:"auth"`
	Store      StoreConfig      `yaml:"store" json:"store"`
	Browser    BrowserConfig    `yaml:"browser" json:"browser"`
	Automation AutomationConfig `yaml:"automation" json:"automation"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr           string   `yaml:"addr" json:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins"`
	Debug          bool     `yaml:"debug" json:"debug"`
	ShutdownGrace  Duration `yaml:"shutdown_grace" json:"shutdown_grace"`
}

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	JWTSecret string   `yaml:"jwt_secret" json:"-"`
	Issuer    string   `yaml:"issuer" json:"issuer"`
	TokenTTL  Duration `yaml:"token_ttl" json:"token_ttl"`
}

// StoreDriver selects the business/license store backend.
type StoreDriver string

const (
	// StoreMemory keeps business records in process memory
	StoreMemory StoreDriver = "memory"
	// StoreSQLite keeps business records in a local SQLite file
	StoreSQLite StoreDriver = "sqlite"
	// StoreMongo keeps business records in MongoDB
	StoreMongo StoreDriver = "mongo"
)

// StoreConfig configures the business/license store.
type StoreConfig struct {
	Driver        StoreDriver `yaml:"driver" json:"driver"`
	SQLitePath    string      `yaml:"sqlite_path" json:"sqlite_path"`
	MongoURI      string      `yaml:"mongo_uri" json:"-"`
	MongoDatabase string      `yaml:"mongo_database" json:"mongo_database"`
	SeedFile      string      `yaml:"seed_file" json:"seed_file"`
	OpTimeout     Duration    `yaml:"op_timeout" json:"op_timeout"`
}

// BrowserMode selects the automation driver implementation.
type BrowserMode string

const (
	// BrowserPlaywright drives a real Chromium instance
	BrowserPlaywright BrowserMode = "playwright"
	// BrowserSimulated runs the portal simulation without a browser
	BrowserSimulated BrowserMode = "simulated"
)

// BrowserConfig configures the automation driver.
type BrowserConfig struct {
	Mode           BrowserMode       `yaml:"mode" json:"mode"`
	Headless       bool              `yaml:"headless" json:"headless"`
	MaxSessions    int               `yaml:"max_sessions" json:"max_sessions"`
	Timeout        Duration          `yaml:"timeout" json:"timeout"`
	AllowedHosts   []string          `yaml:"allowed_hosts" json:"allowed_hosts"`
	FieldSelectors map[string]string `yaml:"field_selectors" json:"field_selectors"`
	OTPSelector    string            `yaml:"otp_selector" json:"otp_selector"`
	SubmitSelector string            `yaml:"submit_selector" json:"submit_selector"`
	StepDelay      Duration          `yaml:"step_delay" json:"step_delay"`
}

// AutomationConfig configures the session orchestrator.
type AutomationConfig struct {
	OTPExpiry      Duration `yaml:"otp_expiry" json:"otp_expiry"`
	MaxOTPAttempts int      `yaml:"max_otp_attempts" json:"max_otp_attempts"`
	OTPRateEvery   Duration `yaml:"otp_rate_every" json:"otp_rate_every"`
	OTPRateBurst   int      `yaml:"otp_rate_burst" json:"otp_rate_burst"`
	Retention      Duration `yaml:"retention" json:"retention"`
	SweepInterval  Duration `yaml:"sweep_interval" json:"sweep_interval"`
	SyncTimeout    Duration `yaml:"sync_timeout" json:"sync_timeout"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error
	Level string `yaml:"level" json:"level"`
	// Stdout writes logs to stdout instead of ~/.regpilot/logs
	Stdout bool `yaml:"stdout" json:"stdout"`
}

// Duration is a time.Duration that reads "5m"-style strings from YAML.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// DefaultConfig returns a configuration suitable for local development.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:           ":3005",
			AllowedOrigins: []string{"*"},
			ShutdownGrace:  Duration(15 * time.Second),
		},
		Auth: AuthConfig{
			Issuer:   "regpilot",
			TokenTTL: Duration(24 * time.Hour),
		},
		Store: StoreConfig{
			Driver:        StoreMemory,
			SQLitePath:    "./regpilot.db",
			MongoDatabase: "regpilot",
			OpTimeout:     Duration(5 * time.Second),
		},
		Browser: BrowserConfig{
			Mode:        BrowserSimulated,
			Headless:    true,
			MaxSessions: 5,
			Timeout:     Duration(30 * time.Second),
			AllowedHosts: []string{
				"www.gst.gov.in",
				"*.gst.gov.in",
				"udyamregistration.gov.in",
				"*.udyamregistration.gov.in",
			},
			OTPSelector:    `input[autocomplete="one-time-code"], input[name*="otp" i]`,
			SubmitSelector: `button[type="submit"]`,
			StepDelay:      Duration(2 * time.Second),
		},
		Automation: AutomationConfig{
			OTPExpiry:      Duration(5 * time.Minute),
			MaxOTPAttempts: 3,
			OTPRateEvery:   Duration(2 * time.Second),
			OTPRateBurst:   3,
			Retention:      Duration(time.Hour),
			SweepInterval:  Duration(time.Minute),
			SyncTimeout:    Duration(10 * time.Second),
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Validate checks the configuration for values the server cannot run with.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required (or set REGPILOT_JWT_SECRET)")
	}
	if len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("auth.jwt_secret must be at least 16 characters")
	}

	switch c.Store.Driver {
	case StoreMemory:
	case StoreSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("store.sqlite_path is required for the sqlite driver")
		}
	case StoreMongo:
		if c.Store.MongoURI == "" {
			return fmt.Errorf("store.mongo_uri is required for the mongo driver")
		}
		if c.Store.MongoDatabase == "" {
			return fmt.Errorf("store.mongo_database is required for the mongo driver")
		}
	default:
		return fmt.Errorf("invalid store.driver: %s (must be 'memory', 'sqlite' or 'mongo')", c.Store.Driver)
	}

	if c.Browser.Mode != BrowserPlaywright && c.Browser.Mode != BrowserSimulated {
		return fmt.Errorf("invalid browser.mode: %s (must be 'playwright' or 'simulated')", c.Browser.Mode)
	}
	if c.Browser.MaxSessions <= 0 {
		return fmt.Errorf("browser.max_sessions must be positive")
	}
	if c.Browser.Timeout < 0 || c.Browser.StepDelay < 0 {
		return fmt.Errorf("browser durations cannot be negative")
	}

	if c.Automation.OTPExpiry <= 0 {
		return fmt.Errorf("automation.otp_expiry must be positive")
	}
	if c.Automation.MaxOTPAttempts <= 0 {
		return fmt.Errorf("automation.max_otp_attempts must be positive")
	}
	if c.Automation.OTPRateBurst <= 0 {
		return fmt.Errorf("automation.otp_rate_burst must be positive")
	}
	if c.Automation.Retention < 0 || c.Automation.SweepInterval < 0 || c.Automation.OTPRateEvery < 0 {
		return fmt.Errorf("automation durations cannot be negative")
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging.level: %s (must be 'debug', 'info', 'warn', or 'error')", c.Logging.Level)
	}

	return nil
}

// Overrides optionally overrides values after the file and environment are
// applied. A nil pointer means "keep the loaded value".
type Overrides struct {
	Addr        *string
	StoreDriver *StoreDriver
	BrowserMode *BrowserMode
	Debug       *bool
}

// Load reads the YAML file at path (if non-empty), applies environment
// variables and then explicit overrides. The result is not validated.
func Load(path string, overrides Overrides) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnv(cfg)

	if overrides.Addr != nil {
		cfg.Server.Addr = *overrides.Addr
	}
	if overrides.StoreDriver != nil {
		cfg.Store.Driver = *overrides.StoreDriver
	}
	if overrides.BrowserMode != nil {
		cfg.Browser.Mode = *overrides.BrowserMode
	}
	if overrides.Debug != nil {
		cfg.Server.Debug = *overrides.Debug
	}

	return cfg, nil
}

func applyEnv(cfg *Config) {
	if portStr := os.Getenv("PORT"); portStr != "" {
		if p, err := strconv.Atoi(portStr); err == nil {
			cfg.Server.Addr = fmt.Sprintf(":%d", p)
		}
	}
	if secret := os.Getenv("REGPILOT_JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}
	if driver := os.Getenv("REGPILOT_STORE_DRIVER"); driver != "" {
		cfg.Store.Driver = StoreDriver(driver)
	}
	if path := os.Getenv("REGPILOT_SQLITE_PATH"); path != "" {
		cfg.Store.SQLitePath = path
	}
	if uri := os.Getenv("REGPILOT_MONGO_URI"); uri != "" {
		cfg.Store.MongoURI = uri
	}
	if mode := os.Getenv("REGPILOT_BROWSER_MODE"); mode != "" {
		cfg.Browser.Mode = BrowserMode(mode)
	}
	if debugStr := os.Getenv("DEBUG"); debugStr == "true" || debugStr == "1" {
		cfg.Server.Debug = true
		cfg.Logging.Level = "debug"
	}
}
