// Package config loads and persists application configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Audio   AudioConfig   `mapstructure:"audio"`
	CDN     CDNConfig     `mapstructure:"cdn"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Player  PlayerConfig  `mapstructure:"player"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// AudioConfig locates the per-chapter MP3 host
type AudioConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// CDNConfig locates the bible structure documents
type CDNConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// CacheConfig governs the offline audio cache
type CacheConfig struct {
	Dir        string `mapstructure:"dir"`          // empty = no persistence
	MinFreeMB  int64  `mapstructure:"min_free_mb"`  // eviction threshold
	EvictBatch int    `mapstructure:"evict_batch"`  // entries removed per eviction pass
}

// PlayerConfig holds playback preferences
type PlayerConfig struct {
	Volume      int  `mapstructure:"volume"`       // 0-100
	PreloadNext bool `mapstructure:"preload_next"` // buffer the next track ahead of time
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	File  string `mapstructure:"file"`
	Level string `mapstructure:"level"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Audio: AudioConfig{
			BaseURL: "https://nlabs.live:3003/assets/bible/audio",
		},
		CDN: CDNConfig{
			BaseURL: "https://pub-7db5ca77d7e14ca79a36013b9fc40870.r2.dev",
		},
		Cache: CacheConfig{
			Dir:        defaultCachePath(),
			MinFreeMB:  20,
			EvictBatch: 3,
		},
		Player: PlayerConfig{
			Volume:      100,
			PreloadNext: true,
		},
		Logging: LoggingConfig{
			File:  defaultLogPath(),
			Level: "INFO",
		},
	}
}

// defaultLogPath returns the default log file path for the current OS
func defaultLogPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "audiobible", "audiobible.log")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "audiobible", "audiobible.log")
	}
}

// defaultConfigPath returns the default config file path for the current OS
func defaultConfigPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "audiobible")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "audiobible")
	}
}

// defaultCachePath returns the default cache directory for the current OS
func defaultCachePath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("LOCALAPPDATA"), "audiobible", "cache")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "audiobible", "cache")
	}
}

// LoadConfig loads configuration from file and environment
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(defaultConfigPath())
	viper.AddConfigPath(".")

	// Environment variable overrides
	viper.SetEnvPrefix("AUDIOBIBLE")
	viper.AutomaticEnv()

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the current configuration to file
func SaveConfig(cfg *Config) error {
	configPath := defaultConfigPath()
	if err := os.MkdirAll(configPath, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	viper.Set("audio.base_url", cfg.Audio.BaseURL)
	viper.Set("cdn.base_url", cfg.CDN.BaseURL)
	viper.Set("cache.dir", cfg.Cache.Dir)
	viper.Set("cache.min_free_mb", cfg.Cache.MinFreeMB)
	viper.Set("cache.evict_batch", cfg.Cache.EvictBatch)
	viper.Set("player.volume", cfg.Player.Volume)
	viper.Set("player.preload_next", cfg.Player.PreloadNext)
	viper.Set("logging.file", cfg.Logging.File)
	viper.Set("logging.level", cfg.Logging.Level)

	configFile := filepath.Join(configPath, "config.yaml")
	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
