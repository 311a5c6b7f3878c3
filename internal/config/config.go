package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the process configuration, loaded from the environment
type Config struct {
	ListenAddr    string `mapstructure:"LISTEN_ADDR"`
	DataDir       string `mapstructure:"DATA_DIR"`
	CatalogPath   string `mapstructure:"CATALOG_PATH"`
	QualityPath   string `mapstructure:"QUALITY_PATH"`
	BaseURL       string `mapstructure:"BASE_URL"`
	TranscoderBin string `mapstructure:"TRANSCODER_BIN"`
}

// LoadFromEnv loads the configuration from environment variables, reading a
// local .env file first when one exists
func LoadFromEnv() (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return nil, fmt.Errorf("failed to load .env: %w", err)
		}
	}

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("LISTEN_ADDR", ":8080")
	v.SetDefault("DATA_DIR", "./data")
	v.SetDefault("CATALOG_PATH", "./data/catalog.db")
	v.SetDefault("QUALITY_PATH", "./data/quality.db")
	v.SetDefault("BASE_URL", "http://localhost:8080")
	v.SetDefault("TRANSCODER_BIN", "ffmpeg")

	keys := []string{
		"LISTEN_ADDR", "DATA_DIR", "CATALOG_PATH", "QUALITY_PATH",
		"BASE_URL", "TRANSCODER_BIN",
	}
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &cfg, nil
}

// String implements the Stringer interface
func (c *Config) String() string {
	var sb strings.Builder
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("  ListenAddr: %s\n", c.ListenAddr))
	sb.WriteString(fmt.Sprintf("  DataDir: %s\n", c.DataDir))
	sb.WriteString(fmt.Sprintf("  CatalogPath: %s\n", c.CatalogPath))
	sb.WriteString(fmt.Sprintf("  QualityPath: %s\n", c.QualityPath))
	sb.WriteString(fmt.Sprintf("  BaseURL: %s\n", c.BaseURL))
	sb.WriteString(fmt.Sprintf("  TranscoderBin: %s\n", c.TranscoderBin))
	return sb.String()
}
