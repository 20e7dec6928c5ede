package main

import (
	"fmt"
	"os"
	"time"

	offlinecache "github.com/always-cache/offline-cache"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const envPrefix = "OFFLINE_CACHE_"

type Config struct {
	Port           int           `yaml:"port" env:"PORT"`
	Scope          string        `yaml:"scope" env:"SCOPE"`
	Upstream       string        `yaml:"upstream" env:"UPSTREAM"`
	UpstreamHost   string        `yaml:"upstreamHost" env:"UPSTREAM_HOST"`
	Version        string        `yaml:"version" env:"VERSION"`
	OfflinePage    string        `yaml:"offlinePage" env:"OFFLINE_PAGE"`
	AppShell       []string      `yaml:"appShell" env:"APP_SHELL" envSeparator:","`
	NetworkTimeout time.Duration `yaml:"networkTimeout" env:"NETWORK_TIMEOUT"`
	WaitForSkip    bool          `yaml:"waitForSkip" env:"WAIT_FOR_SKIP"`
	Storage        StorageConfig `yaml:"storage" envPrefix:"STORAGE_"`
	Queue          QueueConfig   `yaml:"queue" envPrefix:"QUEUE_"`
}

type StorageConfig struct {
	// sqlite or memory
	Driver string `yaml:"driver" env:"DRIVER"`
	// SQLite file name, empty for an in-memory db
	Path string `yaml:"path" env:"PATH"`
}

type QueueConfig struct {
	// LevelDB directory of the offline action queue. Background sync is off if empty.
	Path string `yaml:"path" env:"PATH"`
}

func defaultConfig() Config {
	return Config{
		Port:           8080,
		Version:        offlinecache.DefaultVersion,
		OfflinePage:    offlinecache.DefaultOfflinePage,
		AppShell:       []string{"/", offlinecache.DefaultOfflinePage, "/manifest.json"},
		NetworkTimeout: offlinecache.DefaultNetworkTimeout,
		Storage: StorageConfig{
			Driver: "sqlite",
			Path:   "offline-cache.db",
		},
		Queue: QueueConfig{
			Path: "offline-queue",
		},
	}
}

// getConfig reads the YAML file, if any, over the defaults and then applies
// OFFLINE_CACHE_* environment variables.
func getConfig(filename string) (Config, error) {
	config := defaultConfig()
	if filename != "" {
		configBytes, err := os.ReadFile(filename)
		if err != nil {
			return config, err
		}
		if err := yaml.Unmarshal(configBytes, &config); err != nil {
			return config, fmt.Errorf("parse %s: %w", filename, err)
		}
	}
	if err := env.ParseWithOptions(&config, env.Options{Prefix: envPrefix}); err != nil {
		return config, fmt.Errorf("parse environment: %w", err)
	}
	return config, nil
}

func (c Config) validate() error {
	if c.Scope == "" {
		return fmt.Errorf("scope is required")
	}
	switch c.Storage.Driver {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("unsupported storage driver: %s", c.Storage.Driver)
	}
	return nil
}
