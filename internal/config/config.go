package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds the relay daemon configuration. Values come from an
// optional TOML file overlaid with RELAY_* environment variables; the
// environment wins so tokens never have to live in the file.
type Config struct {
	Addr            string `toml:"addr" envconfig:"ADDR"`
	DataDir         string `toml:"data_dir" envconfig:"DATA_DIR"`
	DBPath          string `toml:"db_path" envconfig:"DB_PATH"`
	VerifyToken     string `toml:"verify_token" envconfig:"VERIFY_TOKEN"`
	DefaultPlatform string `toml:"default_platform" envconfig:"DEFAULT_PLATFORM"`
	GraphBaseURL    string `toml:"graph_base_url" envconfig:"GRAPH_BASE_URL"`
	LogLevel        string `toml:"log_level" envconfig:"LOG_LEVEL"`

	WhatsAppToken         string `toml:"whatsapp_token" envconfig:"WHATSAPP_TOKEN"`
	WhatsAppPhoneNumberID string `toml:"whatsapp_phone_number_id" envconfig:"WHATSAPP_PHONE_NUMBER_ID"`
	InstagramToken        string `toml:"instagram_token" envconfig:"INSTAGRAM_TOKEN"`
}

// Load reads configuration: .env (if present), then the TOML file at path
// (if present), then RELAY_* environment variables, then defaults for
// anything still unset. path may be empty to skip the file entirely.
func Load(path string) (*Config, error) {
	_ = godotenv.Load(".env")

	var c Config
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &c); err != nil {
				return nil, fmt.Errorf("decode config file %s: %w", path, err)
			}
		}
	}

	if err := envconfig.Process("relay", &c); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	c.applyDefaults()
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.DataDir == "" {
		home, _ := os.UserHomeDir()
		c.DataDir = filepath.Join(home, ".relayd")
	}
	if c.DBPath == "" {
		c.DBPath = ":memory:"
	}
	if c.DefaultPlatform == "" {
		c.DefaultPlatform = "whatsapp"
	}
	if c.GraphBaseURL == "" {
		c.GraphBaseURL = "https://graph.facebook.com/v21.0"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func (c *Config) validate() error {
	switch c.DefaultPlatform {
	case "whatsapp", "instagram":
	default:
		return fmt.Errorf("invalid default_platform %q: must be whatsapp or instagram", c.DefaultPlatform)
	}
	return nil
}

// LogPath returns the daemon log file path under the data dir.
func (c *Config) LogPath() string {
	return filepath.Join(c.DataDir, "logs", "relayd.log")
}
