package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/joho/godotenv"
)

var (
	config     *Config
	configOnce sync.Once
)

type Config struct {
	Server struct {
		Port     string `json:"port"`
		Host     string `json:"host"`
		BaseURL  string `json:"base_url"`
		LogLevel string `json:"log_level"`
	} `json:"server"`

	Store struct {
		Path string `json:"path"`
	} `json:"store"`

	Events struct {
		Path string `json:"path"`
	} `json:"events"`

	Uploads struct {
		MaxShareSize int64 `json:"max_share_size"`
	} `json:"uploads"`

	Logging struct {
		Directory  string `json:"directory"`
		MaxSize    int64  `json:"max_size"`
		MaxBackups int    `json:"max_backups"`
	} `json:"logging"`
}

// LoadConfig loads the configuration from environment variables and an
// optional JSON file named by CONFIG_FILE. Defaults are filled in first,
// then the environment, then the file, so the file wins.
func LoadConfig() (*Config, error) {
	var err error
	configOnce.Do(func() {
		config = &Config{}

		// Load .env file if it exists
		godotenv.Load()

		loadDefaultConfig(config)

		if err = loadEnvConfig(config); err != nil {
			return
		}

		configPath := os.Getenv("CONFIG_FILE")
		if configPath != "" {
			if err = loadJSONConfig(config, configPath); err != nil {
				return
			}
		}

		err = validateConfig(config)
	})

	if err != nil {
		return nil, err
	}

	return config, nil
}

func loadDefaultConfig(cfg *Config) {
	cfg.Server.Port = "8080"
	cfg.Server.Host = "localhost"
	cfg.Server.LogLevel = "info"
	cfg.Store.Path = "shared_files.json"
	cfg.Events.Path = "share_events.db"
	cfg.Uploads.MaxShareSize = 200 * 1024 * 1024 // 200MB
	cfg.Logging.Directory = "logs"
	cfg.Logging.MaxSize = 10 * 1024 * 1024 // 10MB
	cfg.Logging.MaxBackups = 5
}

func loadEnvConfig(cfg *Config) error {
	if port := os.Getenv("PORT"); port != "" {
		cfg.Server.Port = port
	}
	if host := os.Getenv("HOST"); host != "" {
		cfg.Server.Host = host
	}
	if baseURL := os.Getenv("BASE_URL"); baseURL != "" {
		cfg.Server.BaseURL = baseURL
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Server.LogLevel = level
	}
	if path := os.Getenv("SHARE_STORE_PATH"); path != "" {
		cfg.Store.Path = path
	}
	if path := os.Getenv("EVENTS_DB_PATH"); path != "" {
		cfg.Events.Path = path
	}
	if size := os.Getenv("MAX_SHARE_SIZE"); size != "" {
		parsed, err := strconv.ParseInt(size, 10, 64)
		if err != nil {
			return fmt.Errorf("MAX_SHARE_SIZE must be a byte count: %w", err)
		}
		cfg.Uploads.MaxShareSize = parsed
	}
	if dir := os.Getenv("LOG_DIR"); dir != "" {
		cfg.Logging.Directory = dir
	}

	return nil
}

func loadJSONConfig(cfg *Config, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	if err := decoder.Decode(cfg); err != nil {
		return fmt.Errorf("failed to decode config file: %w", err)
	}

	return nil
}

func validateConfig(cfg *Config) error {
	if cfg.Store.Path == "" {
		return fmt.Errorf("share store path is required")
	}
	if cfg.Events.Path == "" {
		return fmt.Errorf("event database path is required")
	}
	if cfg.Uploads.MaxShareSize <= 0 {
		return fmt.Errorf("max share size must be positive")
	}
	if cfg.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	return nil
}

// GetConfig returns the current configuration
func GetConfig() *Config {
	if config == nil {
		panic("Configuration not loaded")
	}
	return config
}

// ResetConfigForTest clears the cached configuration so tests can reload it
// under a different environment.
func ResetConfigForTest() {
	config = nil
	configOnce = sync.Once{}
}
