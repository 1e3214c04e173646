package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"github.com/sirupsen/logrus"
	yamlv3 "gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server  ServerConfig  `koanf:"server" yaml:"server"`
	Cache   CacheConfig   `koanf:"cache" yaml:"cache"`
	Storage StorageConfig `koanf:"storage" yaml:"storage"`
	Admin   AdminConfig   `koanf:"admin" yaml:"admin"`
	Rules   RulesConfig   `koanf:"rules" yaml:"rules"`
	Log     LogConfig     `koanf:"log" yaml:"log"`
}

// Server modes
const (
	ModeAPI   = "api"   // serve the storefront API with cached routes
	ModeProxy = "proxy" // caching forward proxy in front of an upstream storefront
)

// ServerConfig contains server-related configuration
type ServerConfig struct {
	Port  int         `koanf:"port" yaml:"port"`
	Mode  string      `koanf:"mode" yaml:"mode"`
	HTTPS HTTPSConfig `koanf:"https" yaml:"https"`
}

// HTTPSConfig configures TLS interception in proxy mode
type HTTPSConfig struct {
	Intercept       bool   `koanf:"intercept" yaml:"intercept"`
	CACertFile      string `koanf:"ca_cert_file" yaml:"ca_cert_file"`
	CAKeyFile       string `koanf:"ca_key_file" yaml:"ca_key_file"`
	TransparentPort int    `koanf:"transparent_port" yaml:"transparent_port"`
}

// CacheConfig contains cache-related configuration
type CacheConfig struct {
	Backend         string `koanf:"backend" yaml:"backend"` // "memory" or "lru"
	DefaultTTL      string `koanf:"default_ttl" yaml:"default_ttl"`
	CleanupInterval string `koanf:"cleanup_interval" yaml:"cleanup_interval"`
	MaxEntries      int    `koanf:"max_entries" yaml:"max_entries"`
}

// StorageConfig locates the storefront database
type StorageConfig struct {
	Path string `koanf:"path" yaml:"path"`
}

// AdminConfig protects the cache admin routes. An empty token disables them.
type AdminConfig struct {
	Token string `koanf:"token" yaml:"token"`
}

// RulesConfig contains proxy caching rules
type RulesConfig struct {
	Read       []ReadRule       `koanf:"read" yaml:"read"`
	Invalidate []InvalidateRule `koanf:"invalidate" yaml:"invalidate"`
}

// ReadRule makes GET requests under BaseURI cacheable
type ReadRule struct {
	BaseURI string   `koanf:"base_uri" yaml:"base_uri"`
	TTL     string   `koanf:"ttl" yaml:"ttl"`
	Tags    []string `koanf:"tags" yaml:"tags"`
}

// InvalidateRule drops cached entries when a matching mutation succeeds
type InvalidateRule struct {
	BaseURI  string   `koanf:"base_uri" yaml:"base_uri"`
	Methods  []string `koanf:"methods" yaml:"methods"`
	Tags     []string `koanf:"tags" yaml:"tags"`
	Patterns []string `koanf:"patterns" yaml:"patterns"`
}

// LogConfig configures logrus
type LogConfig struct {
	Level  string `koanf:"level" yaml:"level"`
	Format string `koanf:"format" yaml:"format"` // "text" or "json"
}

// Default returns the configuration used for every key the file leaves out
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080, Mode: ModeAPI},
		Cache: CacheConfig{
			Backend:         "memory",
			DefaultTTL:      "5m",
			CleanupInterval: "1m",
		},
		Storage: StorageConfig{Path: "./storefront.db"},
		Log:     LogConfig{Level: "info", Format: "text"},
	}
}

// Load loads configuration from a YAML file on top of the defaults
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading config defaults: %w", err)
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var config Config
	if err := k.UnmarshalWithConf("", &config, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	return &config, nil
}

// GetDefaultTTL parses and returns the default cache TTL
func (c *Config) GetDefaultTTL() (time.Duration, error) {
	return time.ParseDuration(c.Cache.DefaultTTL)
}

// GetCleanupInterval parses the janitor interval. Empty means none, which
// Validate only accepts for the lru backend.
func (c *Config) GetCleanupInterval() (time.Duration, error) {
	if c.Cache.CleanupInterval == "" {
		return 0, nil
	}
	return time.ParseDuration(c.Cache.CleanupInterval)
}

// usesMemoryBackend mirrors cache.New: an empty backend is lru only when bounded
func (c *Config) usesMemoryBackend() bool {
	return c.Cache.Backend == "memory" || (c.Cache.Backend == "" && c.Cache.MaxEntries == 0)
}

// GetTTL returns the rule's TTL, or zero when the rule uses the default
func (r ReadRule) GetTTL() (time.Duration, error) {
	if r.TTL == "" {
		return 0, nil
	}
	return time.ParseDuration(r.TTL)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}

	if c.Server.Mode != ModeAPI && c.Server.Mode != ModeProxy {
		return fmt.Errorf("server mode must be '%s' or '%s', got: %s", ModeAPI, ModeProxy, c.Server.Mode)
	}

	if p := c.Server.HTTPS.TransparentPort; p < 0 || p > 65535 {
		return fmt.Errorf("invalid transparent HTTPS port: %d", p)
	}

	if (c.Server.HTTPS.CACertFile == "") != (c.Server.HTTPS.CAKeyFile == "") {
		return fmt.Errorf("CA certificate and key must be configured together")
	}

	if c.Cache.DefaultTTL == "" {
		return fmt.Errorf("cache default TTL is required")
	}

	if ttl, err := c.GetDefaultTTL(); err != nil {
		return fmt.Errorf("invalid cache TTL format: %w", err)
	} else if ttl <= 0 {
		return fmt.Errorf("cache default TTL must be positive, got: %s", c.Cache.DefaultTTL)
	}

	cleanup, err := c.GetCleanupInterval()
	if err != nil {
		return fmt.Errorf("invalid cache cleanup interval: %w", err)
	}

	switch c.Cache.Backend {
	case "", "memory":
		// the tag index is only pruned when the janitor sweeps expired entries
		if c.usesMemoryBackend() && cleanup <= 0 {
			return fmt.Errorf("memory cache backend requires a positive cleanup_interval, got: %q", c.Cache.CleanupInterval)
		}
	case "lru":
		if c.Cache.MaxEntries <= 0 {
			return fmt.Errorf("lru cache backend requires max_entries > 0")
		}
	default:
		return fmt.Errorf("cache backend must be 'memory' or 'lru', got: %s", c.Cache.Backend)
	}

	if c.Cache.MaxEntries < 0 {
		return fmt.Errorf("invalid cache max_entries: %d", c.Cache.MaxEntries)
	}

	if c.Server.Mode == ModeAPI && c.Storage.Path == "" {
		return fmt.Errorf("storage path is required in %s mode", ModeAPI)
	}

	for i, rule := range c.Rules.Read {
		if err := validateBaseURI(rule.BaseURI); err != nil {
			return fmt.Errorf("read rule %d: %w", i, err)
		}
		if _, err := rule.GetTTL(); err != nil {
			return fmt.Errorf("read rule %d: invalid TTL: %w", i, err)
		}
	}

	for i, rule := range c.Rules.Invalidate {
		if err := validateBaseURI(rule.BaseURI); err != nil {
			return fmt.Errorf("invalidate rule %d: %w", i, err)
		}
		if len(rule.Tags) == 0 && len(rule.Patterns) == 0 {
			return fmt.Errorf("invalidate rule %d: needs tags or patterns", i)
		}
	}

	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}

	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log format must be 'text' or 'json', got: %s", c.Log.Format)
	}

	return nil
}

func validateBaseURI(raw string) error {
	if raw == "" {
		return fmt.Errorf("base_uri is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid base_uri %q: %w", raw, err)
	}
	if !strings.HasPrefix(u.Scheme, "http") || u.Host == "" {
		return fmt.Errorf("base_uri must be an absolute http(s) URL, got: %s", raw)
	}
	return nil
}

// Dump renders the configuration as YAML, with the admin token masked
func (c *Config) Dump() (string, error) {
	masked := *c
	if masked.Admin.Token != "" {
		masked.Admin.Token = "********"
	}
	out, err := yamlv3.Marshal(&masked)
	if err != nil {
		return "", fmt.Errorf("rendering config: %w", err)
	}
	return string(out), nil
}
