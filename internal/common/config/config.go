// Package config provides configuration management for sandbridge.
// It supports loading configuration from environment variables, config files, and defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration sections for sandbridge.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Surface    SurfaceConfig    `mapstructure:"surface"`
	NATS       NATSConfig       `mapstructure:"nats"`
	Docker     DockerConfig     `mapstructure:"docker"`
	Sandbox    SandboxConfig    `mapstructure:"sandbox"`
	Transport  TransportConfig  `mapstructure:"transport"`
	Popout     PopoutConfig     `mapstructure:"popout"`
	Transcript TranscriptConfig `mapstructure:"transcript"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"readTimeout"`  // in seconds
	WriteTimeout int    `mapstructure:"writeTimeout"` // in seconds
}

// SurfaceConfig describes the surface this process hosts.
// Address is the surface's own address; whether it carries the popout
// selector decides controller vs watcher mode once at startup.
type SurfaceConfig struct {
	Address string `mapstructure:"address"`
}

// NATSConfig holds NATS messaging configuration.
// An empty URL selects the in-memory event bus.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	ClientID      string `mapstructure:"clientId"`
	MaxReconnects int    `mapstructure:"maxReconnects"`
}

// DockerConfig holds Docker client configuration.
type DockerConfig struct {
	Host       string `mapstructure:"host"`
	APIVersion string `mapstructure:"apiVersion"`
}

// SandboxConfig holds the sandbox runtime container configuration.
type SandboxConfig struct {
	Image       string `mapstructure:"image"`
	WorkingDir  string `mapstructure:"workingDir"`
	NetworkMode string `mapstructure:"networkMode"`
	Memory      int64  `mapstructure:"memory"`      // bytes, 0 = unlimited
	CPUQuota    int64  `mapstructure:"cpuQuota"`    // 0 = unlimited
	StopTimeout int    `mapstructure:"stopTimeout"` // in seconds
}

// TransportConfig holds the upstream agent event feed configuration.
type TransportConfig struct {
	URL            string `mapstructure:"url"`
	ReconnectDelay int    `mapstructure:"reconnectDelay"` // in seconds
	MaxReconnects  int    `mapstructure:"maxReconnects"`  // 0 = unlimited
}

// PopoutConfig holds popout window configuration.
type PopoutConfig struct {
	BaseURL    string `mapstructure:"baseUrl"`
	TargetPath string `mapstructure:"targetPath"`
	WindowName string `mapstructure:"windowName"`
	Features   string `mapstructure:"features"`
	// OpenCommand is the viewer command spawned per popout window, with the
	// popout address as its argument.
	OpenCommand string `mapstructure:"openCommand"`
	// RemoteViewerURL is an optional backend-supplied display endpoint.
	// It is only exposed after passing the safe-endpoint check.
	RemoteViewerURL string `mapstructure:"remoteViewerUrl"`
}

// TranscriptConfig holds transcript store configuration.
type TranscriptConfig struct {
	Backend  string `mapstructure:"backend"` // memory, sqlite
	Path     string `mapstructure:"path"`    // sqlite database path
	MaxLines int    `mapstructure:"maxLines"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// ReadTimeoutDuration returns the read timeout as a time.Duration.
func (s *ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns the write timeout as a time.Duration.
func (s *ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// StopTimeoutDuration returns the container stop timeout as a time.Duration.
func (s *SandboxConfig) StopTimeoutDuration() time.Duration {
	return time.Duration(s.StopTimeout) * time.Second
}

// ReconnectDelayDuration returns the transport reconnect delay as a time.Duration.
func (t *TransportConfig) ReconnectDelayDuration() time.Duration {
	return time.Duration(t.ReconnectDelay) * time.Second
}

// detectDefaultLogFormat returns the appropriate log format based on environment.
// Returns "json" if running in Kubernetes or other production environments.
// Returns "text" for terminal/development use (human-readable console format).
func detectDefaultLogFormat() string {
	// Check if running in Kubernetes
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return "json"
	}

	// Check for explicit production environment
	if env := os.Getenv("SANDBRIDGE_ENV"); env == "production" || env == "prod" {
		return "json"
	}

	// Default to text format for terminal use (more readable than JSON)
	return "text"
}

// setDefaults configures default values for all configuration options.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8090)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 30)

	// Surface defaults - no popout selector means watcher mode
	v.SetDefault("surface.address", "http://localhost:8090/")

	// NATS defaults - empty URL means use in-memory event bus
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.clientId", "sandbridge-surface")
	v.SetDefault("nats.maxReconnects", 10)

	// Docker defaults
	v.SetDefault("docker.host", "unix:///var/run/docker.sock")
	v.SetDefault("docker.apiVersion", "1.41")

	// Sandbox runtime defaults
	v.SetDefault("sandbox.image", "sandbridge/sandbox:latest")
	v.SetDefault("sandbox.workingDir", "/workspace")
	v.SetDefault("sandbox.networkMode", "bridge")
	v.SetDefault("sandbox.memory", int64(0))
	v.SetDefault("sandbox.cpuQuota", int64(0))
	v.SetDefault("sandbox.stopTimeout", 10)

	// Transport defaults - empty URL disables the upstream feed
	v.SetDefault("transport.url", "")
	v.SetDefault("transport.reconnectDelay", 2)
	v.SetDefault("transport.maxReconnects", 0)

	// Popout defaults
	v.SetDefault("popout.baseUrl", "http://localhost:8090/")
	v.SetDefault("popout.targetPath", "/sandbox")
	v.SetDefault("popout.windowName", "sandbridge-sandbox")
	v.SetDefault("popout.features", "width=1200,height=800,menubar=no,toolbar=no,location=no,status=no")
	v.SetDefault("popout.remoteViewerUrl", "")
	v.SetDefault("popout.openCommand", "xdg-open")

	// Transcript defaults
	v.SetDefault("transcript.backend", "memory")
	v.SetDefault("transcript.path", "sandbridge.db")
	v.SetDefault("transcript.maxLines", 5000)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", detectDefaultLogFormat())
	v.SetDefault("logging.outputPath", "stdout")
}

// Load reads configuration from environment variables, config file, and defaults.
// Environment variables use the prefix SANDBRIDGE_ with snake_case naming.
// Config file should be named config.yaml and placed in the current directory or /etc/sandbridge/.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration from the specified path or default locations.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults first
	setDefaults(v)

	// Configure environment variables
	v.SetEnvPrefix("SANDBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicit bindings for snake_case env vars (camelCase config keys)
	// AutomaticEnv does not handle camelCase to SNAKE_CASE conversion,
	// so we explicitly bind keys where env var naming differs from config key naming.
	_ = v.BindEnv("transport.url", "SANDBRIDGE_TRANSPORT_URL")
	_ = v.BindEnv("popout.baseUrl", "SANDBRIDGE_POPOUT_BASE_URL")
	_ = v.BindEnv("popout.remoteViewerUrl", "SANDBRIDGE_POPOUT_REMOTE_VIEWER_URL")
	_ = v.BindEnv("surface.address", "SANDBRIDGE_SURFACE_ADDRESS")

	// Configure config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/sandbridge/")

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// validate checks that all required configuration fields are set.
func validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}

	if strings.TrimSpace(cfg.Surface.Address) == "" {
		errs = append(errs, "surface.address must be set")
	}

	if cfg.Sandbox.Image == "" {
		errs = append(errs, "sandbox.image must be set")
	}

	switch cfg.Transcript.Backend {
	case "memory", "sqlite":
	default:
		errs = append(errs, "transcript.backend must be one of: memory, sqlite")
	}
	if cfg.Transcript.MaxLines <= 0 {
		errs = append(errs, "transcript.maxLines must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}
