package configs

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/i2y/protoswag/internal/adapter/outbound/github"
	"github.com/i2y/protoswag/internal/domain"
	"github.com/i2y/protoswag/internal/methodconfig"
)

// Defaults for settings left unset by both the file and the environment.
const (
	DefaultListenAddr          = ":8080"
	DefaultMCPListenAddr       = ":8081"
	DefaultMaxRequestBodyBytes = 4 << 20
	DefaultHTTPClientTimeout   = 30 * time.Second
	DefaultShutdownTimeout     = 5 * time.Second
	DefaultServerReadTimeout   = 5 * time.Second
	DefaultServerWriteTimeout  = 10 * time.Second
	DefaultServerIdleTimeout   = 120 * time.Second
	DefaultLogLevel            = "info"
	DefaultMCPTransport        = "none"
)

// Config holds the final application configuration, merged from file and environment variables.
// Fields are loaded from environment variables with the prefix "PROTOSWAG_", overriding file settings.
//
// No field carries an envconfig default: the second environment pass would
// otherwise overwrite values read from the file. Defaults are applied by
// setDefaults once both sources are merged.
type Config struct {
	// Config File Path (env only). A github:// URL is fetched through the gh CLI.
	ConfigFilePath string `envconfig:"CONFIG_FILE" yaml:"-"`

	// Schema
	Service       string            `envconfig:"SERVICE" yaml:"service"`
	ProtoFiles    []string          `envconfig:"PROTO_FILES" yaml:"proto_files" validate:"required_without=Upstream,dive,required"`
	ImportPaths   []string          `envconfig:"IMPORT_PATHS" yaml:"import_paths"`
	SchemaHeaders map[string]string `envconfig:"SCHEMA_HEADERS" yaml:"schema_headers"`

	// Upstream is the server receiving methods without a local handler:
	// grpc://host:port (or host:port) for gRPC, http(s):// for Connect.
	Upstream string `envconfig:"UPSTREAM" yaml:"upstream"`

	// Method configuration
	Tags         []string `ignored:"true" yaml:"tags"`
	MethodTags   string   `envconfig:"METHOD_TAGS" yaml:"-"`
	BaseDocument string   `envconfig:"BASE_DOCUMENT" yaml:"base_document"`
	// Document boots the server from a previously generated OpenAPI document
	// instead of resolving tags.
	Document string `envconfig:"DOCUMENT" yaml:"document"`

	// HTTP surface
	ListenAddr          string   `envconfig:"LISTEN_ADDR" yaml:"listen_addr" validate:"required"`
	ForwardHeaders      []string `envconfig:"FORWARD_HEADERS" yaml:"forward_headers"`
	MaxRequestBodyBytes int64    `envconfig:"MAX_REQUEST_BODY_BYTES" yaml:"max_request_body_bytes" validate:"gt=0"`

	// MCP surface
	MCPTransport  string `envconfig:"MCP_TRANSPORT" yaml:"mcp_transport" validate:"oneof=none sse stdio"`
	MCPListenAddr string `envconfig:"MCP_LISTEN_ADDR" yaml:"mcp_listen_addr" validate:"required_if=MCPTransport sse"`

	HTTPClientTimeout        time.Duration `envconfig:"HTTP_CLIENT_TIMEOUT" yaml:"http_client_timeout" validate:"gt=0"`
	ShutdownTimeout          time.Duration `envconfig:"SHUTDOWN_TIMEOUT" yaml:"shutdown_timeout" validate:"gt=0"`
	ServerReadTimeout        time.Duration `envconfig:"SERVER_READ_TIMEOUT" yaml:"server_read_timeout" validate:"gt=0"`
	ServerWriteTimeout       time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" yaml:"server_write_timeout" validate:"gt=0"`
	ServerIdleTimeout        time.Duration `envconfig:"SERVER_IDLE_TIMEOUT" yaml:"server_idle_timeout" validate:"gt=0"`
	OtelExporterOtlpEndpoint string        `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT" yaml:"otel_exporter_otlp_endpoint"`
	OtelExporterOtlpInsecure *bool         `envconfig:"OTEL_EXPORTER_OTLP_INSECURE" yaml:"otel_exporter_otlp_insecure"`
	// OtelExporterStdout writes spans and metrics to stderr.
	OtelExporterStdout bool   `envconfig:"OTEL_EXPORTER_STDOUT" yaml:"otel_exporter_stdout"`
	LogLevel           string `envconfig:"LOG_LEVEL" yaml:"log_level" validate:"oneof=debug info warn warning error"`
}

// ParsedLogLevel returns the slog.Level based on the configured LogLevel string.
func (c *Config) ParsedLogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "info":
		fallthrough
	default:
		return slog.LevelInfo
	}
}

// OtlpInsecure reports whether the OTLP exporter skips TLS. Unset means true.
func (c *Config) OtlpInsecure() bool {
	return c.OtelExporterOtlpInsecure == nil || *c.OtelExporterOtlpInsecure
}

// MethodEntries returns the tag expressions of the file followed by those of
// PROTOSWAG_METHOD_TAGS, which separates expressions with ';'.
func (c *Config) MethodEntries() []domain.ConfigEntry {
	var entries []domain.ConfigEntry
	exprs := append([]string{}, c.Tags...)
	exprs = append(exprs, strings.Split(c.MethodTags, ";")...)
	for _, expr := range exprs {
		if expr = strings.TrimSpace(expr); expr != "" {
			entries = append(entries, methodconfig.ParseExpression(expr))
		}
	}
	return entries
}

func (c *Config) setDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.MaxRequestBodyBytes == 0 {
		c.MaxRequestBodyBytes = DefaultMaxRequestBodyBytes
	}
	if c.MCPTransport == "" {
		c.MCPTransport = DefaultMCPTransport
	}
	if c.MCPListenAddr == "" {
		c.MCPListenAddr = DefaultMCPListenAddr
	}
	if c.HTTPClientTimeout == 0 {
		c.HTTPClientTimeout = DefaultHTTPClientTimeout
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.ServerReadTimeout == 0 {
		c.ServerReadTimeout = DefaultServerReadTimeout
	}
	if c.ServerWriteTimeout == 0 {
		c.ServerWriteTimeout = DefaultServerWriteTimeout
	}
	if c.ServerIdleTimeout == 0 {
		c.ServerIdleTimeout = DefaultServerIdleTimeout
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	c.LogLevel = strings.ToLower(c.LogLevel)
	c.MCPTransport = strings.ToLower(c.MCPTransport)
}

// Load loads configuration first from environment variables (to get file path),
// then from the YAML file, and finally merges/overrides with environment variables again.
// A non-empty configPath takes precedence over PROTOSWAG_CONFIG_FILE.
func Load(configPath string) (*Config, error) {
	// 1. Load initial config from Env (primarily to get ConfigFilePath)
	var cfg Config
	if err := envconfig.Process("protoswag", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process initial environment variables: %w", err)
	}
	if configPath != "" {
		cfg.ConfigFilePath = configPath
	}

	// 2. Load config from YAML file if path is specified
	if cfg.ConfigFilePath != "" {
		data, err := github.ReadFile(context.Background(), cfg.ConfigFilePath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file '%s': %w", cfg.ConfigFilePath, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config file '%s': %w", cfg.ConfigFilePath, err)
		}
		slog.Info("Loaded configuration from file.", "path", cfg.ConfigFilePath)
	} else {
		slog.Info("No config file path specified (PROTOSWAG_CONFIG_FILE), using defaults/env vars only.")
	}

	// 3. Process environment variables AGAIN to allow overrides over file settings.
	filePath := cfg.ConfigFilePath
	if err := envconfig.Process("protoswag", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process overriding environment variables: %w", err)
	}
	cfg.ConfigFilePath = filePath

	cfg.setDefaults()
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}
