package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Credential store backends.
const (
	StoreFile     = "file"
	StoreSQLite   = "sqlite3"
	StorePostgres = "pgx"
)

// Config holds all application configuration. Values come from an optional
// TOML file and are overridden by environment variables.
type Config struct {
	Port    int
	BaseURL string

	SessionSecret string

	GoogleClientID          string
	GoogleClientSecret      string
	GoogleClientSecretsFile string

	CredentialStore string
	CredentialPath  string
	DatabaseURL     string

	DisplayTimezone string
	Location        *time.Location

	ProviderTimeout time.Duration
	AllowedOrigins  []string
	LogLevel        slog.Level
}

// fileConfig mirrors the TOML layout.
type fileConfig struct {
	Port            int      `toml:"port"`
	BaseURL         string   `toml:"base_url"`
	SessionSecret   string   `toml:"session_secret"`
	DisplayTimezone string   `toml:"display_timezone"`
	ProviderTimeout string   `toml:"provider_timeout"`
	AllowedOrigins  []string `toml:"allowed_origins"`
	LogLevel        string   `toml:"log_level"`

	Google struct {
		ClientID     string `toml:"client_id"`
		ClientSecret string `toml:"client_secret"`
		SecretsFile  string `toml:"client_secrets_file"`
	} `toml:"google"`

	Credentials struct {
		Store       string `toml:"store"`
		Path        string `toml:"path"`
		DatabaseURL string `toml:"database_url"`
	} `toml:"credentials"`
}

// DefaultFile is read when CALWIDGET_CONFIG is unset and the file exists.
const DefaultFile = "calwidget.toml"

// Load reads configuration and validates required fields.
func Load() (Config, error) {
	file, err := readFile()
	if err != nil {
		return Config{}, err
	}

	port, err := getEnvInt("PORT", orInt(file.Port, 9876))
	if err != nil {
		return Config{}, fmt.Errorf("parse PORT: %w", err)
	}

	timeout, err := getEnvDuration("PROVIDER_TIMEOUT", orString(file.ProviderTimeout, "5s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse PROVIDER_TIMEOUT: %w", err)
	}

	level, err := parseLevel(getEnv("LOG_LEVEL", orString(file.LogLevel, "info")))
	if err != nil {
		return Config{}, fmt.Errorf("parse LOG_LEVEL: %w", err)
	}

	origins := file.AllowedOrigins
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		origins = splitList(v)
	}
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	cfg := Config{
		Port:                    port,
		BaseURL:                 strings.TrimRight(getEnv("BASE_URL", orString(file.BaseURL, fmt.Sprintf("http://localhost:%d", port))), "/"),
		SessionSecret:           getEnv("SESSION_SECRET", file.SessionSecret),
		GoogleClientID:          getEnv("GOOGLE_CLIENT_ID", file.Google.ClientID),
		GoogleClientSecret:      getEnv("GOOGLE_CLIENT_SECRET", file.Google.ClientSecret),
		GoogleClientSecretsFile: getEnv("GOOGLE_CLIENT_SECRETS_FILE", file.Google.SecretsFile),
		CredentialStore:         getEnv("CREDENTIAL_STORE", orString(file.Credentials.Store, StoreFile)),
		CredentialPath:          getEnv("CREDENTIAL_PATH", orString(file.Credentials.Path, "token.json")),
		DatabaseURL:             getEnv("DATABASE_URL", file.Credentials.DatabaseURL),
		DisplayTimezone:         getEnv("DISPLAY_TIMEZONE", orString(file.DisplayTimezone, "Asia/Kolkata")),
		ProviderTimeout:         timeout,
		AllowedOrigins:          origins,
		LogLevel:                level,
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	loc, err := time.LoadLocation(cfg.DisplayTimezone)
	if err != nil {
		return Config{}, fmt.Errorf("DISPLAY_TIMEZONE: %w", err)
	}
	cfg.Location = loc

	return cfg, nil
}

// RedirectURL is the OAuth callback registered with Google.
func (c Config) RedirectURL() string {
	return c.BaseURL + "/oauth2callback"
}

// SecureCookies reports whether the session cookie should be HTTPS-only.
func (c Config) SecureCookies() bool {
	return strings.HasPrefix(c.BaseURL, "https://")
}

func (c Config) validate() error {
	if c.SessionSecret == "" {
		return fmt.Errorf("SESSION_SECRET is required")
	}
	if c.GoogleClientSecretsFile == "" && (c.GoogleClientID == "" || c.GoogleClientSecret == "") {
		return fmt.Errorf("GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET, or GOOGLE_CLIENT_SECRETS_FILE, are required")
	}
	if c.ProviderTimeout <= 0 {
		return fmt.Errorf("PROVIDER_TIMEOUT must be positive")
	}

	switch c.CredentialStore {
	case StoreFile:
		if c.CredentialPath == "" {
			return fmt.Errorf("CREDENTIAL_PATH is required for the file store")
		}
	case StoreSQLite, StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the %s store", c.CredentialStore)
		}
	default:
		return fmt.Errorf("unknown CREDENTIAL_STORE %q", c.CredentialStore)
	}
	return nil
}

func readFile() (fileConfig, error) {
	var file fileConfig

	path := os.Getenv("CALWIDGET_CONFIG")
	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return file, nil
		}
		return file, fmt.Errorf("read config file: %w", err)
	}
	if err := toml.Unmarshal(data, &file); err != nil {
		return file, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return file, nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	return strconv.Atoi(v)
}

func getEnvDuration(key string, defaultValue string) (time.Duration, error) {
	return time.ParseDuration(getEnv(key, defaultValue))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	err := level.UnmarshalText([]byte(s))
	return level, err
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func orString(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

func orInt(v, fallback int) int {
	if v != 0 {
		return v
	}
	return fallback
}
