// Package config loads the server's configuration: a YAML file for
// defaults plus environment variable overrides, matching the
// teacher's loadConfig() shape (core/main.go) generalized from
// hardcoded values to file+env loading (spec 4.11).
package config

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	BindAddress          string `yaml:"bind_address"`
	Port                 int    `yaml:"port"`
	EnableIPv6           bool   `yaml:"enable_ipv6"`
	IPv6BindAddress      string `yaml:"ipv6_bind_address"`
	IPv6Port             int    `yaml:"ipv6_port"`
	MaxPlayers           int    `yaml:"max_players"`
	ServerName           string `yaml:"server_name"`
	MTU                  int    `yaml:"mtu"`
	SessionTimeoutSec    int    `yaml:"session_timeout_seconds"`
	CompressionThreshold int    `yaml:"compression_threshold"`
	CompressionAlgorithm string `yaml:"compression_algorithm"`
	MaxChunkRadius       int32  `yaml:"max_chunk_radius"`
	ReplicatorHost       string `yaml:"replicator_host"`
	ReplicatorPort       int    `yaml:"replicator_port"`
	LogLevel             string `yaml:"log_level"`
}

func Default() Config {
	return Config{
		BindAddress:          "0.0.0.0",
		Port:                 19132,
		EnableIPv6:           false,
		IPv6BindAddress:      "::",
		IPv6Port:             19133,
		MaxPlayers:           100,
		ServerName:           "bedrockd",
		MTU:                  1492,
		SessionTimeoutSec:    5,
		CompressionThreshold: 1,
		CompressionAlgorithm: "deflate",
		MaxChunkRadius:       16,
		ReplicatorHost:       "127.0.0.1",
		ReplicatorPort:       6379,
		LogLevel:             "info",
	}
}

// Load reads path (if non-empty and present) over the defaults, then
// applies REDIS_HOST/REDIS_PORT/LOG_LEVEL environment overrides, the
// order spec 4.11 specifies.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, err
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("REDIS_HOST"); v != "" {
		cfg.ReplicatorHost = v
	}
	if v := os.Getenv("REDIS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.ReplicatorPort = port
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}
