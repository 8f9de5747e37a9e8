// Package config loads the proxy's runtime configuration. Environment
// variables are the primary source; an optional YAML file may set the
// same fields for keys the environment leaves unset, and the request
// filter denylist can be hot-reloaded from that file without a restart.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full set of runtime tunables the proxy accepts.
type Config struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	ThreadPoolSize    int           `yaml:"thread_pool_size"`
	RequestQueueSize  int           `yaml:"request_queue_size"`
	ConnectionTimeout time.Duration `yaml:"-"`

	RedisHost string `yaml:"redis_host"`
	RedisPort int    `yaml:"redis_port"`
	RedisDB   int    `yaml:"redis_db"`

	CacheExpiration time.Duration `yaml:"-"`
	BackendServers  []string      `yaml:"backend_servers"`

	EnableCompression bool `yaml:"enable_compression"`

	RateLimitRequests int           `yaml:"rate_limit_requests"`
	RateLimitWindow   time.Duration `yaml:"-"`

	RequestFilters []string `yaml:"request_filters"`

	// Seconds-valued fields, used only for YAML (de)serialization since
	// the public fields above are time.Duration for use at call sites.
	ConnectionTimeoutSeconds int `yaml:"connection_timeout_seconds"`
	CacheExpirationSeconds   int `yaml:"cache_expiration_seconds"`
	RateLimitWindowSeconds   int `yaml:"rate_limit_window_seconds"`
}

// defaults returns the proxy's built-in option defaults.
func defaults() Config {
	return Config{
		Host:                     "0.0.0.0",
		Port:                     8080,
		ThreadPoolSize:           50,
		RequestQueueSize:         100,
		ConnectionTimeout:        30 * time.Second,
		RedisHost:                "localhost",
		RedisPort:                6379,
		RedisDB:                  0,
		CacheExpiration:          300 * time.Second,
		BackendServers:           []string{"http://localhost:8000"},
		EnableCompression:        true,
		RateLimitRequests:        100,
		RateLimitWindow:          60 * time.Second,
		RequestFilters:           []string{"ads", "trackers", "malware"},
		ConnectionTimeoutSeconds: 30,
		CacheExpirationSeconds:   300,
		RateLimitWindowSeconds:   60,
	}
}

// Load builds a Config from defaults, a YAML file at yamlPath if it is
// non-empty and present, and environment variables, in that order of
// increasing precedence: environment variables win per key over the
// YAML file, which in turn overrides the built-in defaults. The YAML
// file is an optional source used for fields a deployment wants to
// manage as a checked-in file instead of process environment (notably
// REQUEST_FILTERS, which can then be hot reloaded — see FilterWatcher).
func Load(yamlPath string) (Config, error) {
	cfg := defaults()

	if yamlPath != "" {
		if _, err := os.Stat(yamlPath); err == nil {
			if err := overlayYAML(&cfg, yamlPath); err != nil {
				return Config{}, fmt.Errorf("config: loading %s: %w", yamlPath, err)
			}
		} else if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("config: stat %s: %w", yamlPath, err)
		}
	}

	applyEnv(&cfg)

	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v, ok := lookupEnv("HOST"); ok {
		cfg.Host = v
	}
	if v, ok := envInt("PORT"); ok {
		cfg.Port = v
	}
	if v, ok := envInt("THREAD_POOL_SIZE"); ok {
		cfg.ThreadPoolSize = v
	}
	if v, ok := envInt("REQUEST_QUEUE_SIZE"); ok {
		cfg.RequestQueueSize = v
	}
	if v, ok := envInt("CONNECTION_TIMEOUT"); ok {
		cfg.ConnectionTimeout = time.Duration(v) * time.Second
		cfg.ConnectionTimeoutSeconds = v
	}
	if v, ok := lookupEnv("REDIS_HOST"); ok {
		cfg.RedisHost = v
	}
	if v, ok := envInt("REDIS_PORT"); ok {
		cfg.RedisPort = v
	}
	if v, ok := envInt("REDIS_DB"); ok {
		cfg.RedisDB = v
	}
	if v, ok := envInt("CACHE_EXPIRATION"); ok {
		cfg.CacheExpiration = time.Duration(v) * time.Second
		cfg.CacheExpirationSeconds = v
	}
	if v, ok := lookupEnv("BACKEND_SERVERS"); ok {
		cfg.BackendServers = splitCSV(v)
	}
	if v, ok := envBool("ENABLE_COMPRESSION"); ok {
		cfg.EnableCompression = v
	}
	if v, ok := envInt("RATE_LIMIT_REQUESTS"); ok {
		cfg.RateLimitRequests = v
	}
	if v, ok := envInt("RATE_LIMIT_WINDOW"); ok {
		cfg.RateLimitWindow = time.Duration(v) * time.Second
		cfg.RateLimitWindowSeconds = v
	}
	if v, ok := lookupEnv("REQUEST_FILTERS"); ok {
		cfg.RequestFilters = splitCSV(v)
	}
}

func overlayYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return err
	}
	if cfg.ConnectionTimeoutSeconds > 0 {
		cfg.ConnectionTimeout = time.Duration(cfg.ConnectionTimeoutSeconds) * time.Second
	}
	if cfg.CacheExpirationSeconds > 0 {
		cfg.CacheExpiration = time.Duration(cfg.CacheExpirationSeconds) * time.Second
	}
	if cfg.RateLimitWindowSeconds > 0 {
		cfg.RateLimitWindow = time.Duration(cfg.RateLimitWindowSeconds) * time.Second
	}
	return nil
}

func lookupEnv(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func envInt(key string) (int, bool) {
	v, ok := lookupEnv(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envBool(key string) (bool, bool) {
	v, ok := lookupEnv(key)
	if !ok {
		return false, false
	}
	if strings.EqualFold(v, "true") || v == "1" {
		return true, true
	}
	if strings.EqualFold(v, "false") || v == "0" {
		return false, true
	}
	return false, false
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Addr returns the listen address in host:port form.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// RedisAddr returns the redis client address in host:port form.
func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}
