package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/lpernett/godotenv"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

var ErrMissingAPIKey = errors.New("OPENAI_API_KEY is not set")

type Config struct {
	OpenAI OpenAIConfig `yaml:"openai"`
	Media  MediaConfig  `yaml:"media"`
	Server ServerConfig `yaml:"server"`
	Redis  RedisConfig  `yaml:"redis"`
	Log    LogConfig    `yaml:"log"`
}

type OpenAIConfig struct {
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	Model          string `yaml:"model"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout is zero when requests may run as long as the server takes.
func (c OpenAIConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type MediaConfig struct {
	GalleryDir   string `yaml:"gallery_dir"`
	CaptureDir   string `yaml:"capture_dir"`
	CameraDevice int    `yaml:"camera_device"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
}

type RedisConfig struct {
	Host     string `yaml:"host"`
	Password string `yaml:"password"`
	Channel  string `yaml:"channel"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

func Default() Config {
	return Config{
		OpenAI: OpenAIConfig{
			BaseURL: "https://api.openai.com/v1",
			Model:   "gpt-5",
		},
		Media: MediaConfig{
			GalleryDir: defaultGalleryDir(),
			CaptureDir: filepath.Join(os.TempDir(), "perceptus-object-detector"),
		},
		Server: ServerConfig{Port: "8080"},
		Redis:  RedisConfig{Channel: "object-detector"},
		Log:    LogConfig{Level: "info"},
	}
}

// Load reads .env, then the optional YAML file at path, then the process
// environment, in increasing order of precedence.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil {
		zap.L().Debug("No .env file loaded", zap.Error(err))
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.OpenAI.APIKey = getEnv("OPENAI_API_KEY", getEnv("EXPO_PUBLIC_OPENAI_API_KEY", cfg.OpenAI.APIKey))
	cfg.OpenAI.BaseURL = getEnv("OPENAI_BASE_URL", cfg.OpenAI.BaseURL)
	cfg.OpenAI.Model = getEnv("OPENAI_MODEL", cfg.OpenAI.Model)
	cfg.OpenAI.TimeoutSeconds = getEnvAsInt("OPENAI_TIMEOUT", cfg.OpenAI.TimeoutSeconds)

	cfg.Media.GalleryDir = getEnv("GALLERY_DIR", cfg.Media.GalleryDir)
	cfg.Media.CaptureDir = getEnv("CAPTURE_DIR", cfg.Media.CaptureDir)
	cfg.Media.CameraDevice = getEnvAsInt("CAMERA_DEVICE", cfg.Media.CameraDevice)

	cfg.Server.Port = getEnv("PORT", cfg.Server.Port)

	cfg.Redis.Host = getEnv("REDIS_HOST", cfg.Redis.Host)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.Channel = getEnv("REDIS_CHANNEL", cfg.Redis.Channel)

	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.File = getEnv("LOG_FILE", cfg.Log.File)
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.OpenAI.APIKey) == "" {
		return ErrMissingAPIKey
	}
	if c.OpenAI.Model == "" {
		return errors.New("openai model must not be empty")
	}
	if c.Media.CaptureDir == "" {
		return errors.New("capture dir must not be empty")
	}
	if c.Media.CameraDevice < 0 {
		return fmt.Errorf("camera device must be >= 0, got %d", c.Media.CameraDevice)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		zap.L().Warn("Ignoring non-numeric environment value", zap.String("key", key), zap.String("value", value))
		return fallback
	}
	return parsed
}

func defaultGalleryDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, "Pictures")
}
