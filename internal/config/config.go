package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Store    StoreConfig    `yaml:"store"`
	Resolver ResolverConfig `yaml:"resolver"`
	Download DownloadConfig `yaml:"download"`
	WebDAV   WebDAVConfig   `yaml:"webdav"`
}

type ServerConfig struct {
	HTTPPort int `yaml:"http_port"`
}

type WebDAVConfig struct {
	Enabled bool             `yaml:"enabled"`
	Port    int              `yaml:"port"`
	Auth    WebDAVAuthConfig `yaml:"auth"`
}

type WebDAVAuthConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type ResolverConfig struct {
	PageTimeout   int `yaml:"page_timeout"`   // seconds, page/API fetches
	StreamTimeout int `yaml:"stream_timeout"` // seconds, manifest/media transfers
}

type DownloadConfig struct {
	Directory     string `yaml:"directory"`
	MaxConcurrent int    `yaml:"max_concurrent"`
	CheckInterval int    `yaml:"check_interval"` // hours, auto-download default
}

// DefaultConfig returns configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort: 4646,
		},
		Store: StoreConfig{
			Path: "./data/anibridge.db",
		},
		Resolver: ResolverConfig{
			PageTimeout:   15,
			StreamTimeout: 300,
		},
		Download: DownloadConfig{
			Directory:     "./data/downloads",
			MaxConcurrent: 3,
			CheckInterval: 6,
		},
		WebDAV: WebDAVConfig{
			Enabled: false,
			Port:    4647,
		},
	}
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Use defaults if no config file
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// EnsureDirectories creates required directories
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		filepath.Dir(c.Store.Path),
		c.Download.Directory,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	return nil
}
