package config

import (
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Host string `env:"HOST" envDefault:"0.0.0.0"`
	Port int    `env:"PORT" envDefault:"3006"`

	UploadDir      string `env:"UPLOAD_DIR" envDefault:"uploads"`
	MaxUploadBytes int64  `env:"MAX_UPLOAD_BYTES" envDefault:"10485760"`

	ResNetModelPath   string `env:"RESNET_MODEL_PATH" envDefault:"tom_jerry_resnet_model.onnx"`
	DenseNetModelPath string `env:"DENSENET_MODEL_PATH" envDefault:"tom_jerry_densenet_model.onnx"`
	OnnxRuntimeLib    string `env:"ONNXRUNTIME_LIB_PATH"`

	ImageSize    int     `env:"IMAGE_SIZE" envDefault:"224"`
	TensorLayout string  `env:"TENSOR_LAYOUT" envDefault:"nhwc"`
	PixelScale   float32 `env:"PIXEL_SCALE" envDefault:"1"`

	LogLevel       string        `env:"LOG_LEVEL" envDefault:"info"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"60s"`
}

func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", c.Port)
	}
	if c.ImageSize <= 0 {
		return fmt.Errorf("IMAGE_SIZE must be positive, got %d", c.ImageSize)
	}
	if c.PixelScale <= 0 {
		return fmt.Errorf("PIXEL_SCALE must be positive, got %v", c.PixelScale)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", c.MaxUploadBytes)
	}
	switch strings.ToLower(c.TensorLayout) {
	case "nhwc", "nchw":
	default:
		return fmt.Errorf("TENSOR_LAYOUT must be nhwc or nchw, got %q", c.TensorLayout)
	}
	if c.UploadDir == "" {
		return fmt.Errorf("UPLOAD_DIR must not be empty")
	}
	return nil
}

func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Parse reads the config from the environment, then validates it.
func Parse() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadEnvFile loads variables from the file named by the -env flag, if any.
func LoadEnvFile() error {
	var configPath string

	flag.StringVar(&configPath, "env", "", "path to load env from")
	flag.Parse()

	if configPath == "" {
		slog.Info("no env file specified, using os.Environ only")
		return nil
	}

	if _, err := os.Stat(configPath); err != nil {
		return fmt.Errorf("error loading env file '%s': %w", configPath, err)
	}

	slog.Info("loading env from file", "path", configPath)
	if err := godotenv.Load(configPath); err != nil {
		return fmt.Errorf("error loading env file '%s': %w", configPath, err)
	}
	return nil
}
