package config

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const envPrefix = "SHUTTERBUG"

// ServerConfig holds the local HTTP surface settings.
// Note: Fields should be exported (start with uppercase) to be unmarshalled by Viper.
type ServerConfig struct {
	HTTPPort            int `mapstructure:"http_port"`
	ReadTimeoutSeconds  int `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds int `mapstructure:"write_timeout_seconds"`
	IdleTimeoutSeconds  int `mapstructure:"idle_timeout_seconds"`
}

// APIConfig points at the remote REST API.
type APIConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// NATSConfig holds the invalidation event bus settings.
type NATSConfig struct {
	Enabled             bool   `mapstructure:"enabled"`
	URL                 string `mapstructure:"url"`
	InvalidationSubject string `mapstructure:"invalidation_subject"`
	MaxReconnects       int    `mapstructure:"max_reconnects"`
	ReconnectWaitSec    int    `mapstructure:"reconnect_wait_seconds"`
}

// LogConfig holds logging-related configurations.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// AuthConfig holds the admin endpoint credentials.
type AuthConfig struct {
	AdminAPIKey string `mapstructure:"admin_api_key"` // Should come from ENV
}

// CacheConfig holds the expiration windows of the interaction cache, per namespace.
type CacheConfig struct {
	DefaultTTLSeconds    int `mapstructure:"default_ttl_seconds"`
	ProfileTTLSeconds    int `mapstructure:"profile_ttl_seconds"`
	FeedTTLSeconds       int `mapstructure:"feed_ttl_seconds"`
	FollowingTTLSeconds  int `mapstructure:"following_ttl_seconds"`
	CollectionTTLSeconds int `mapstructure:"collection_ttl_seconds"` // cameras and discussions lists
	CommentsTTLSeconds   int `mapstructure:"comments_ttl_seconds"`
}

// CommentsConfig holds the comment forest policy.
type CommentsConfig struct {
	MaxDepth                 int    `mapstructure:"max_depth"`
	DepthPolicy              string `mapstructure:"depth_policy"` // flatten | reject | unbounded
	IdleThreadTimeoutSeconds int    `mapstructure:"idle_thread_timeout_seconds"`
	ReaperIntervalSeconds    int    `mapstructure:"reaper_interval_seconds"`
}

// AppConfig holds application-specific configurations.
type AppConfig struct {
	ServiceName            string `mapstructure:"service_name"`
	Version                string `mapstructure:"version"`
	ShutdownTimeoutSeconds int    `mapstructure:"shutdown_timeout_seconds"`
}

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	API      APIConfig      `mapstructure:"api"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Log      LogConfig      `mapstructure:"log"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Comments CommentsConfig `mapstructure:"comments"`
	App      AppConfig      `mapstructure:"app"`
}

// TTL converts a seconds setting into a duration, falling back when unset.
func TTL(seconds int, fallback time.Duration) time.Duration {
	if seconds <= 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}

// Provider defines an interface for accessing application configuration.
// This allows for easy mocking in tests and decouples the app from Viper.
type Provider interface {
	Get() *Config
}

// setDefaults registers every default on v. Defaults() reads the same table.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.read_timeout_seconds", 10)
	v.SetDefault("server.write_timeout_seconds", 10)
	v.SetDefault("server.idle_timeout_seconds", 60)
	v.SetDefault("api.base_url", "http://localhost:3000/api")
	v.SetDefault("api.timeout_seconds", 10)
	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.invalidation_subject", "shutterbug.invalidate.>")
	v.SetDefault("nats.max_reconnects", 5)
	v.SetDefault("nats.reconnect_wait_seconds", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("cache.default_ttl_seconds", 300)
	v.SetDefault("cache.profile_ttl_seconds", 900)
	v.SetDefault("cache.feed_ttl_seconds", 150)
	v.SetDefault("cache.following_ttl_seconds", 300)
	v.SetDefault("cache.collection_ttl_seconds", 300)
	v.SetDefault("cache.comments_ttl_seconds", 300)
	v.SetDefault("comments.max_depth", 3)
	v.SetDefault("comments.depth_policy", "flatten")
	v.SetDefault("comments.idle_thread_timeout_seconds", 1800)
	v.SetDefault("comments.reaper_interval_seconds", 60)
	v.SetDefault("app.service_name", "shutterbug-core")
	v.SetDefault("app.version", "dev")
	v.SetDefault("app.shutdown_timeout_seconds", 15)
}

// Defaults returns the configuration used when no file or environment override is present.
func Defaults() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		// Only reachable if the defaults table and the struct tags disagree.
		panic(fmt.Sprintf("config defaults do not unmarshal: %v", err))
	}
	return cfg
}

// staticProvider serves a fixed configuration.
type staticProvider struct {
	config *Config
}

// NewStaticProvider wraps an already built Config, for tests and tools.
func NewStaticProvider(cfg *Config) Provider {
	return &staticProvider{config: cfg}
}

func (p *staticProvider) Get() *Config {
	return p.config
}

// viperProvider implements the Provider interface using Viper.
type viperProvider struct {
	config atomic.Pointer[Config]
	logger *zap.Logger // Using zap.Logger directly for config internal logging, not domain.Logger to avoid circular deps
}

// newViper builds the Viper instance shared by the provider and the bootstrap helper.
func newViper(configName, configPath string) *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName(configName)
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")

	// server.http_port becomes SHUTTERBUG_SERVER_HTTP_PORT
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

func load(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

// NewViperProvider creates and initializes a new configuration provider using Viper.
// It loads configuration from file and environment variables, and sets up hot-reloading
// on SIGHUP and on config file changes. appCtx bounds the reload goroutine.
func NewViperProvider(appCtx context.Context, logger *zap.Logger) (Provider, error) {
	v := newViper(getEnv("VIPER_CONFIG_NAME", "config"), os.Getenv("VIPER_CONFIG_PATH"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			logger.Warn("Config file not found; relying on defaults and environment variables", zap.Error(err))
		} else {
			logger.Error("Failed to read config file", zap.Error(err))
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg, err := load(v)
	if err != nil {
		logger.Error("Failed to unmarshal config", zap.Error(err))
		return nil, err
	}

	p := &viperProvider{logger: logger}
	p.config.Store(cfg)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGHUP)
	go func() {
		defer signal.Stop(sigChan)
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("Panic recovered in SIGHUP handler goroutine",
					zap.String("goroutine_name", "SIGHUPConfigReloader"),
					zap.Any("panic_info", r),
					zap.String("stacktrace", string(debug.Stack())),
				)
			}
		}()
		for {
			select {
			case sig := <-sigChan:
				p.logger.Info("SIGHUP received, reloading configuration", zap.String("signal", sig.String()))
				if err := v.ReadInConfig(); err != nil {
					p.logger.Error("Failed to re-read config file on SIGHUP", zap.Error(err))
					continue
				}
				p.reload(v, "sighup")
			case <-appCtx.Done():
				p.logger.Info("SIGHUPConfigReloader goroutine shutting down")
				return
			}
		}
	}()

	if v.ConfigFileUsed() != "" {
		v.OnConfigChange(func(e fsnotify.Event) {
			defer func() {
				if r := recover(); r != nil {
					p.logger.Error("Panic recovered in OnConfigChange callback",
						zap.String("event_name", e.Name),
						zap.Any("panic_info", r),
						zap.String("stacktrace", string(debug.Stack())),
					)
				}
			}()
			p.logger.Info("Config file changed", zap.String("name", e.Name), zap.String("op", e.Op.String()))
			p.reload(v, "file_change")
		})
		v.WatchConfig()
	}

	p.logger.Info("Configuration loaded successfully", zap.String("config_file_used", v.ConfigFileUsed()))
	return p, nil
}

func (p *viperProvider) reload(v *viper.Viper, trigger string) {
	cfg, err := load(v)
	if err != nil {
		p.logger.Error("Failed to reload configuration", zap.String("trigger", trigger), zap.Error(err))
		return
	}
	p.config.Store(cfg)
	p.logger.Info("Configuration reloaded", zap.String("trigger", trigger))
}

// Get returns the current configuration.
func (p *viperProvider) Get() *Config {
	return p.config.Load()
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
