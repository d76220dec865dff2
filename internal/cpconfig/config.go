// Package cpconfig loads the control plane's YAML configuration file,
// expanding environment variables before parsing, and optionally
// watches it for changes.
package cpconfig

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the control plane's full configuration surface.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Workspace   WorkspaceConfig   `yaml:"workspace"`
	Container   ContainerConfig   `yaml:"container"`
	Cache       CacheConfig       `yaml:"cache"`
	Events      EventsConfig      `yaml:"events"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Auth        AuthConfig        `yaml:"auth"`
	DevMode     DevModeConfig     `yaml:"dev_mode"`
	Provisioner ProvisionerConfig `yaml:"provisioner"`
}

type ServerConfig struct {
	HTTPPort     int           `yaml:"http_port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	CORSOrigins  []string      `yaml:"cors_origins"`
}

type DatabaseConfig struct {
	DSN string `yaml:"dsn"` // empty selects the in-memory Project Store
}

type WorkspaceConfig struct {
	Root             string `yaml:"root"`              // WORKSPACE_ROOT
	CredentialsMount string `yaml:"credentials_mount"` // optional read-only host path
}

type ContainerConfig struct {
	Image        string  `yaml:"image"`
	Network      string  `yaml:"network"`
	CPULimit     float64 `yaml:"cpu_limit"`
	MemoryLimitM int64   `yaml:"memory_limit_mb"`
	AgentPort    int     `yaml:"agent_port"`
}

type CacheConfig struct {
	Backend  string `yaml:"backend"` // "memory" | "redis"
	RedisURL string `yaml:"redis_url"`
	Prefix   string `yaml:"prefix"`
}

type EventsConfig struct {
	NatsURL    string `yaml:"nats_url"` // empty disables the event bus (events are discarded)
	StreamName string `yaml:"stream_name"`
}

type TelemetryConfig struct {
	ServiceName    string `yaml:"service_name"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"` // empty disables tracing
	MetricsEnabled bool   `yaml:"metrics_enabled"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"` // empty generates a random, non-persistent secret
}

type DevModeConfig struct {
	Enabled    bool   `yaml:"enabled"`
	SourcePath string `yaml:"source_path"`
	MountDst   string `yaml:"mount_dst"`
}

type ProvisionerConfig struct {
	CloneDepth      int           `yaml:"clone_depth"`
	CloneTimeout    time.Duration `yaml:"clone_timeout"`
	HealthPollEvery time.Duration `yaml:"health_poll_every"`
	HealthPollFor   time.Duration `yaml:"health_poll_for"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:     8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		Workspace: WorkspaceConfig{Root: "/var/lib/refactorctl/workspaces"},
		Container: ContainerConfig{
			Image:        "refactorctl-agent:latest",
			Network:      "refactorctl-net",
			CPULimit:     2,
			MemoryLimitM: 2048,
			AgentPort:    8000,
		},
		Cache: CacheConfig{Backend: "memory", Prefix: "refactorctl:cache:"},
		Provisioner: ProvisionerConfig{
			CloneDepth:      1,
			CloneTimeout:    120 * time.Second,
			HealthPollEvery: 500 * time.Millisecond,
			HealthPollFor:   30 * time.Second,
		},
	}
}

// LoadFromFile reads path, expands ${VAR} environment references, and
// parses the result as YAML over Default().
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
