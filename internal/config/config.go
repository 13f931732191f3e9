package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

// ErrNoConfig is returned by ResolveConfigPath when no file exists.
var ErrNoConfig = errors.New("no config file found")

type Config struct {
	Zenn       Zenn       `yaml:"zenn"`
	Selection  Selection  `yaml:"selection"`
	Generation Generation `yaml:"generation"`
	Server     Server     `yaml:"server"`
	Logging    Logging    `yaml:"logging"`
}

type Zenn struct {
	BaseURL       string        `yaml:"base_url"`
	Timeout       time.Duration `yaml:"timeout"`
	UserAgent     string        `yaml:"user_agent"`
	FetchExcerpts bool          `yaml:"fetch_excerpts"`
}

type Selection struct {
	Limit int `yaml:"limit"`
}

type Generation struct {
	Provider        string        `yaml:"provider"`
	Model           string        `yaml:"model"`
	OllamaURL       string        `yaml:"ollama_url"`
	OpenAIModel     string        `yaml:"openai_model"`
	OpenAIBaseURL   string        `yaml:"openai_base_url"`
	APIKeyEnv       string        `yaml:"api_key_env"`
	GeminiModel     string        `yaml:"gemini_model"`
	GeminiAPIKeyEnv string        `yaml:"gemini_api_key_env"`
	MaxTokens       int           `yaml:"max_tokens"`
	Temperature     float64       `yaml:"temperature"`
	Timeout         time.Duration `yaml:"timeout"`
	Language        string        `yaml:"language"`
	Template        string        `yaml:"template"`
}

type Server struct {
	Port int `yaml:"port"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// ConfigDir returns the XDG config directory for zennpost.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "zennpost")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/zennpost/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf("%w; searched:\n  %s\n  ./config.yaml", ErrNoConfig, xdgConfig)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// LoadOrDefault resolves and loads the config file, falling back to the
// embedded defaults when no file exists. It returns the path that was used,
// or "" for the defaults. An explicit path that does not exist is an error.
func LoadOrDefault(explicit string) (*Config, string, error) {
	path, err := ResolveConfigPath(explicit)
	if err != nil {
		if explicit == "" && errors.Is(err, ErrNoConfig) {
			cfg, err := parse(DefaultConfigYAML)
			return cfg, "", err
		}
		return nil, "", err
	}
	cfg, err := Load(path)
	return cfg, path, err
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Zenn: Zenn{
			BaseURL: "https://zenn.dev",
			Timeout: 15 * time.Second,
		},
		Selection: Selection{Limit: 5},
		Generation: Generation{
			Provider:        "openai",
			Model:           "qwen2.5:7b",
			OllamaURL:       "http://localhost:11434",
			OpenAIModel:     "chatgpt-4o-latest",
			APIKeyEnv:       "OPENAI_API_KEY",
			GeminiModel:     "gemini-2.0-flash",
			GeminiAPIKeyEnv: "GEMINI_API_KEY",
			MaxTokens:       500,
			Temperature:     0.7,
			Timeout:         60 * time.Second,
			Language:        "Japanese",
		},
		Server:  Server{Port: 8000},
		Logging: Logging{Level: "INFO"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Generation.Provider) {
	case "openai", "ollama", "gemini", "mock":
	default:
		return fmt.Errorf("invalid config: unknown generation.provider %q", c.Generation.Provider)
	}
	if c.Selection.Limit < 0 {
		return fmt.Errorf("invalid config: selection.limit must not be negative, got %d", c.Selection.Limit)
	}
	if c.Generation.MaxTokens <= 0 {
		return fmt.Errorf("invalid config: generation.max_tokens must be positive, got %d", c.Generation.MaxTokens)
	}
	if c.Generation.Temperature < 0 || c.Generation.Temperature > 2 {
		return fmt.Errorf("invalid config: generation.temperature must be within [0, 2], got %g", c.Generation.Temperature)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid config: server.port out of range: %d", c.Server.Port)
	}
	return nil
}

// LoadEnv loads a .env file from the working directory and the config
// directory. Variables already set in the environment win.
func LoadEnv() {
	for _, path := range []string{".env", filepath.Join(ConfigDir(), ".env")} {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
		}
	}
}

// OpenAIAPIKey returns the key from the configured environment variable.
func (c *Config) OpenAIAPIKey() string {
	return os.Getenv(c.Generation.APIKeyEnv)
}

// GeminiAPIKey returns the key from the configured environment variable.
func (c *Config) GeminiAPIKey() string {
	return os.Getenv(c.Generation.GeminiAPIKeyEnv)
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
