// Package config loads depscan settings.
//
// Values come, in increasing precedence, from built-in defaults, an optional
// depscan.yaml (current directory, $HOME/.config/depscan, or --config),
// DEPSCAN_* environment variables (DEPSCAN_SCAN_TIMEOUT for scan.timeout)
// and command-line flags bound with BindFlag.
package config

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/matzehuels/depscan/pkg/cache"
	"github.com/matzehuels/depscan/pkg/errors"
	"github.com/matzehuels/depscan/pkg/integrations/pypi"
	"github.com/matzehuels/depscan/pkg/pep440"
)

// Cache backends.
const (
	BackendFile  = "file"
	BackendBolt  = "bolt"
	BackendRedis = "redis"
	BackendNone  = "none"
)

// Config is the full depscan configuration.
type Config struct {
	Mirror   MirrorConfig   `mapstructure:"mirror"`
	Index    IndexConfig    `mapstructure:"index"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Scan     ScanConfig     `mapstructure:"scan"`
	Target   TargetConfig   `mapstructure:"target"`
	Sink     SinkConfig     `mapstructure:"sink"`
	Analysis AnalysisConfig `mapstructure:"analysis"`
	Server   ServerConfig   `mapstructure:"server"`
}

// MirrorConfig locates the local index mirror.
type MirrorConfig struct {
	Root  string `mapstructure:"root"` // empty: network only
	Watch bool   `mapstructure:"watch"`
}

// IndexConfig points at the network index.
type IndexConfig struct {
	URL       string `mapstructure:"url"`
	SimpleURL string `mapstructure:"simple_url"`
}

// CacheConfig selects the response cache.
type CacheConfig struct {
	Dir           string        `mapstructure:"dir"`
	Backend       string        `mapstructure:"backend"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	TTL           time.Duration `mapstructure:"ttl"`
}

// ScanConfig bounds each scanned package.
type ScanConfig struct {
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxDepth    int           `mapstructure:"max_depth"`
	MaxPackages int           `mapstructure:"max_packages"`
}

// TargetConfig is the interpreter dependencies are resolved for.
type TargetConfig struct {
	Python string `mapstructure:"python"`
}

// SinkConfig enables the optional MongoDB artifact mirror.
type SinkConfig struct {
	MongoURI        string `mapstructure:"mongo_uri"`
	MongoDB         string `mapstructure:"mongo_db"`
	MongoCollection string `mapstructure:"mongo_collection"`
}

// AnalysisConfig tunes the analyzer pool.
type AnalysisConfig struct {
	Workers        int           `mapstructure:"workers"`
	FreezeInterval time.Duration `mapstructure:"freeze_interval"`
	Grace          time.Duration `mapstructure:"grace"`
}

// ServerConfig enables the status server.
type ServerConfig struct {
	Addr string `mapstructure:"addr"` // empty: disabled
}

// New returns a viper instance with defaults and environment binding set.
func New() *viper.Viper {
	v := viper.New()

	cacheDir := filepath.Join(os.TempDir(), "depscan-cache")
	if dir, err := os.UserCacheDir(); err == nil {
		cacheDir = filepath.Join(dir, "depscan")
	}

	v.SetDefault("mirror.root", "")
	v.SetDefault("mirror.watch", false)
	v.SetDefault("index.url", pypi.DefaultJSONURL)
	v.SetDefault("index.simple_url", pypi.DefaultSimpleURL)
	v.SetDefault("cache.dir", cacheDir)
	v.SetDefault("cache.backend", BackendFile)
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.ttl", cache.TTLIndex)
	v.SetDefault("scan.timeout", 15*time.Minute)
	v.SetDefault("scan.max_depth", 256)
	v.SetDefault("scan.max_packages", 5000)
	v.SetDefault("target.python", "3.8")
	v.SetDefault("sink.mongo_uri", "")
	v.SetDefault("sink.mongo_db", "depscan")
	v.SetDefault("sink.mongo_collection", "dep_info")
	v.SetDefault("analysis.workers", 16)
	v.SetDefault("analysis.freeze_interval", 15*time.Minute)
	v.SetDefault("analysis.grace", 10*time.Second)
	v.SetDefault("server.addr", "")

	v.SetEnvPrefix("DEPSCAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// BindFlag makes flag override key when it is set on the command line.
func BindFlag(v *viper.Viper, key string, flag *pflag.Flag) {
	if flag != nil {
		_ = v.BindPFlag(key, flag)
	}
}

// Load reads the config file and decodes v. An explicit path must exist;
// otherwise depscan.yaml is searched for and may be absent.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("depscan")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "depscan"))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !stderrors.As(err, &notFound) {
			return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "read config")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	switch c.Cache.Backend {
	case BackendFile, BackendBolt, BackendRedis, BackendNone:
	default:
		return errors.New(errors.ErrCodeInvalidInput, "cache.backend: unknown backend %q", c.Cache.Backend)
	}
	if _, err := pep440.Parse(c.Target.Python); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidVersion, err, "target.python")
	}
	if c.Scan.Timeout <= 0 {
		return errors.New(errors.ErrCodeInvalidInput, "scan.timeout must be positive")
	}
	if c.Scan.MaxDepth <= 0 {
		return errors.New(errors.ErrCodeInvalidInput, "scan.max_depth must be positive")
	}
	if c.Analysis.Workers <= 0 {
		return errors.New(errors.ErrCodeInvalidInput, "analysis.workers must be positive")
	}
	return nil
}

// Open returns the configured cache backend.
func (c CacheConfig) Open(ctx context.Context) (cache.Cache, error) {
	switch c.Backend {
	case BackendNone:
		return cache.NewNullCache(), nil
	case BackendBolt:
		if err := os.MkdirAll(c.Dir, 0o755); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidPath, err, "create %s", c.Dir)
		}
		return cache.NewBoltCache(filepath.Join(c.Dir, "cache.db"))
	case BackendRedis:
		return cache.NewRedisCache(ctx, cache.RedisConfig{Addr: c.RedisAddr, Password: c.RedisPassword, DB: c.RedisDB})
	default:
		return cache.NewFileCache(filepath.Join(c.Dir, "http"))
	}
}
