package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Transport selects how gateway events reach the pipeline.
const (
	// TransportSession is the full client: state tracking, hierarchy
	// lookups, restore snapshots.
	TransportSession = "session"
	// TransportRaw is the bare websocket reader: audit entries only.
	TransportRaw = "raw"
)

type Config struct {
	Bot      BotConfig     `json:"bot"`
	Database DatabaseConf  `json:"database"`
	Redis    RedisConfig   `json:"redis"`
	Kafka    KafkaConfig   `json:"kafka"`
	Probe    ProbeConfig   `json:"probe"`
	Notify   NotifyConfig  `json:"notify"`
	Network  NetworkConfig `json:"network"`
	Runtime  RuntimeConfig `json:"runtime"`
}

type BotConfig struct {
	Token       string   `json:"token"`
	SuperAdmins []uint64 `json:"super_admins"`
	Transport   string   `json:"transport"`
}

type DatabaseConf struct {
	Path string `json:"path"`
}

type RedisConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
	DB      int    `json:"db"`
}

type KafkaConfig struct {
	Enabled bool     `json:"enabled"`
	Brokers []string `json:"brokers"`
	Topic   string   `json:"topic"`
}

type ProbeConfig struct {
	Addr string `json:"addr"`
}

type NotifyConfig struct {
	// ChannelID receives an embed per settled outcome; 0 disables.
	ChannelID uint64 `json:"channel_id"`
}

type NetworkConfig struct {
	APIBaseURL   string `json:"api_base_url"`
	HTTPPoolSize int    `json:"http_pool_size"`
}

type RuntimeConfig struct {
	MemoryLock  bool `json:"memory_lock"`
	Concurrency int  `json:"concurrency"`
}

func Default() *Config {
	return &Config{
		Bot: BotConfig{Transport: TransportSession},
		Database: DatabaseConf{
			Path: "nukeguard.db",
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Kafka: KafkaConfig{
			Topic: "nukeguard.outcomes",
		},
		Probe: ProbeConfig{
			Addr: ":8090",
		},
		Network: NetworkConfig{
			HTTPPoolSize: 4,
		},
		Runtime: RuntimeConfig{
			Concurrency: 256,
		},
	}
}

// Load reads path, layers environment overrides on top, and
// validates. A missing file is not an error; env can carry a full
// minimal config on its own.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := json.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if cfg.Bot.Token == "" {
		return nil, fmt.Errorf("bot token not configured")
	}
	if cfg.Bot.Transport != TransportSession && cfg.Bot.Transport != TransportRaw {
		return nil, fmt.Errorf("unknown transport %q", cfg.Bot.Transport)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("NUKEGUARD_TOKEN"); v != "" {
		cfg.Bot.Token = v
	}
	if v := os.Getenv("NUKEGUARD_TRANSPORT"); v != "" {
		cfg.Bot.Transport = v
	}
	if v := os.Getenv("NUKEGUARD_SUPER_ADMINS"); v != "" {
		cfg.Bot.SuperAdmins = nil
		for _, part := range strings.Split(v, ",") {
			if id, err := strconv.ParseUint(strings.TrimSpace(part), 10, 64); err == nil {
				cfg.Bot.SuperAdmins = append(cfg.Bot.SuperAdmins, id)
			}
		}
	}
	if v := os.Getenv("NUKEGUARD_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("NUKEGUARD_REDIS_ADDR"); v != "" {
		cfg.Redis.Enabled = true
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("NUKEGUARD_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Enabled = true
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("NUKEGUARD_PROBE_ADDR"); v != "" {
		cfg.Probe.Addr = v
	}
	if v := os.Getenv("NUKEGUARD_NOTIFY_CHANNEL"); v != "" {
		if id, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Notify.ChannelID = id
		}
	}
}
