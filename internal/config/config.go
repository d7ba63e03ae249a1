package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is where Load looks for the YAML file when BULLWATCH_CONFIG is unset.
const DefaultPath = "configs/bullwatch.yaml"

// Session store backends.
const (
	StoreFile   = "file"
	StoreSQLite = "sqlite"
)

// Live price sources.
const (
	SourceBackend      = "backend"
	SourceAlpaca       = "alpaca"        // latest trade, polled over REST
	SourceAlpacaStream = "alpaca_stream" // latest trade, pushed over the websocket feed
)

// Config holds all client configuration.
type Config struct {
	API struct {
		BaseURL        string        `yaml:"base_url"`
		RequestTimeout time.Duration `yaml:"request_timeout"`
	} `yaml:"api"`
	Log struct {
		Level      string `yaml:"level"` // DEBUG, INFO, WARN, ERROR
		File       string `yaml:"file"`  // empty = stderr only
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
	} `yaml:"log"`
	Session struct {
		Store      string `yaml:"store"` // file | sqlite
		File       string `yaml:"file"`
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"session"`
	Wallet struct {
		PollInterval time.Duration `yaml:"poll_interval"`
	} `yaml:"wallet"`
	Ticker struct {
		PollInterval time.Duration `yaml:"poll_interval"`
		Source       string        `yaml:"source"` // backend | alpaca | alpaca_stream
	} `yaml:"ticker"`
	Market struct {
		CacheTTL time.Duration `yaml:"cache_ttl"` // 0 disables caching
	} `yaml:"market"`
	Bridge struct {
		Addr string `yaml:"addr"`
	} `yaml:"bridge"`
	Digest struct {
		Cron string `yaml:"cron"`
		Top  int    `yaml:"top"`
	} `yaml:"digest"`
	Alpaca struct {
		KeyID     string `yaml:"-"`
		SecretKey string `yaml:"-"`
	} `yaml:"-"`
	Telegram struct {
		BotToken string `yaml:"-"`
		ChatID   int64  `yaml:"chat_id"`
	} `yaml:"telegram"`
	Gemini struct {
		APIKey string `yaml:"-"`
		Model  string `yaml:"model"`
	} `yaml:"gemini"`
}

// secretVars are printed masked when the .env file is echoed.
var secretVars = map[string]bool{
	"APCA_API_KEY_ID":     true,
	"APCA_API_SECRET_KEY": true,
	"TELEGRAM_BOT_TOKEN":  true,
	"GEMINI_API_KEY":      true,
}

// Load builds the configuration: .env into the process environment, then the
// YAML file (optional), then environment overrides, then defaults.
// The result is validated before it is returned.
func Load() (*Config, error) {
	// Load .env variables into the process environment
	if err := godotenv.Load(); err != nil {
		log.Println("[INFO] no .env file found, using system environment variables")
	} else {
		logEnvFile()
	}

	path := DefaultPath
	if v := os.Getenv("BULLWATCH_CONFIG"); v != "" {
		path = v
	}

	cfg, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// LoadFile reads a YAML config. A missing file yields an empty config.
func LoadFile(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	envString("API_BASE_URL", &c.API.BaseURL)
	envSeconds("REQUEST_TIMEOUT_SEC", &c.API.RequestTimeout)

	envString("LOG_LEVEL", &c.Log.Level)
	envString("LOG_FILE", &c.Log.File)
	envInt("MAX_LOG_SIZE_MB", &c.Log.MaxSizeMB)
	envInt("MAX_LOG_BACKUPS", &c.Log.MaxBackups)

	envString("SESSION_STORE", &c.Session.Store)
	envString("SESSION_FILE", &c.Session.File)
	envString("SESSION_SQLITE_PATH", &c.Session.SQLitePath)

	envSeconds("WALLET_POLL_SEC", &c.Wallet.PollInterval)
	envSeconds("TICKER_POLL_SEC", &c.Ticker.PollInterval)
	envString("PRICE_SOURCE", &c.Ticker.Source)
	envSeconds("MARKET_CACHE_TTL_SEC", &c.Market.CacheTTL)

	envString("BRIDGE_ADDR", &c.Bridge.Addr)
	envString("DIGEST_CRON", &c.Digest.Cron)
	envInt("DIGEST_TOP", &c.Digest.Top)

	envString("APCA_API_KEY_ID", &c.Alpaca.KeyID)
	envString("APCA_API_SECRET_KEY", &c.Alpaca.SecretKey)

	envString("TELEGRAM_BOT_TOKEN", &c.Telegram.BotToken)
	envInt64("TELEGRAM_CHAT_ID", &c.Telegram.ChatID)

	envString("GEMINI_API_KEY", &c.Gemini.APIKey)
	envString("GEMINI_MODEL", &c.Gemini.Model)
}

func (c *Config) applyDefaults() {
	if c.API.BaseURL == "" {
		c.API.BaseURL = "http://localhost:8000"
	}
	c.API.BaseURL = strings.TrimRight(c.API.BaseURL, "/")
	if c.API.RequestTimeout == 0 {
		c.API.RequestTimeout = 10 * time.Second
	}
	if c.Log.Level == "" {
		c.Log.Level = "INFO"
	}
	c.Log.Level = strings.ToUpper(c.Log.Level)
	if c.Log.MaxSizeMB == 0 {
		c.Log.MaxSizeMB = 10
	}
	if c.Log.MaxBackups == 0 {
		c.Log.MaxBackups = 3
	}
	if c.Session.Store == "" {
		c.Session.Store = StoreFile
	}
	if c.Session.File == "" {
		c.Session.File = "session_state.json"
	}
	if c.Session.SQLitePath == "" {
		c.Session.SQLitePath = "data/bullwatch.db"
	}
	if c.Wallet.PollInterval == 0 {
		c.Wallet.PollInterval = 60 * time.Second
	}
	if c.Ticker.PollInterval == 0 {
		c.Ticker.PollInterval = 5 * time.Second
	}
	if c.Ticker.Source == "" {
		c.Ticker.Source = SourceBackend
	}
	if c.Bridge.Addr == "" {
		c.Bridge.Addr = "127.0.0.1:8090"
	}
	if c.Digest.Top == 0 {
		c.Digest.Top = 5
	}
	if c.Gemini.Model == "" {
		c.Gemini.Model = "gemini-2.5-flash"
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("api.base_url %q is not an absolute URL", c.API.BaseURL)
	}
	if c.API.RequestTimeout < 0 {
		return fmt.Errorf("api.request_timeout must not be negative")
	}
	switch c.Log.Level {
	case "DEBUG", "INFO", "WARN", "ERROR":
	default:
		return fmt.Errorf("log.level %q must be one of DEBUG, INFO, WARN, ERROR", c.Log.Level)
	}
	switch c.Session.Store {
	case StoreFile, StoreSQLite:
	default:
		return fmt.Errorf("session.store %q must be %q or %q", c.Session.Store, StoreFile, StoreSQLite)
	}
	if c.Wallet.PollInterval <= 0 {
		return fmt.Errorf("wallet.poll_interval must be positive")
	}
	if c.Ticker.PollInterval <= 0 {
		return fmt.Errorf("ticker.poll_interval must be positive")
	}
	switch c.Ticker.Source {
	case SourceBackend:
	case SourceAlpaca, SourceAlpacaStream:
		if c.Alpaca.KeyID == "" || c.Alpaca.SecretKey == "" {
			return fmt.Errorf("ticker.source=%s requires APCA_API_KEY_ID and APCA_API_SECRET_KEY", c.Ticker.Source)
		}
	default:
		return fmt.Errorf("ticker.source %q must be one of %q, %q, %q",
			c.Ticker.Source, SourceBackend, SourceAlpaca, SourceAlpacaStream)
	}
	if c.Market.CacheTTL < 0 {
		return fmt.Errorf("market.cache_ttl must not be negative")
	}
	if c.Digest.Top < 0 {
		return fmt.Errorf("digest.top must not be negative")
	}
	if (c.Telegram.BotToken == "") != (c.Telegram.ChatID == 0) {
		return fmt.Errorf("telegram needs both TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID")
	}
	return nil
}

// logEnvFile prints the variables defined in .env, masking secrets.
func logEnvFile() {
	envMap, err := godotenv.Read()
	if err != nil {
		return
	}
	log.Println("--- .env File Variables ---")
	for key, val := range envMap {
		if secretVars[key] {
			// Mask secret values: show only last 4 chars
			masked := "***"
			if len(val) > 4 {
				masked = "***" + val[len(val)-4:]
			}
			log.Printf("%s=%s", key, masked)
		} else {
			log.Printf("%s=%s", key, val)
		}
	}
	log.Println("---------------------------")
}
