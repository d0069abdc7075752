package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/krisalay/dashcache/expiration"
	"github.com/krisalay/dashcache/loader"
	"github.com/spf13/viper"
)

var (
	ErrInvalidTTL   = errors.New("config: invalid ttl")
	ErrInvalidTiers = loader.ErrInvalidTiers
)

// Config holds the static tables the caches are built from.
type Config struct {
	Shards     int
	DefaultTTL time.Duration
	Namespaces map[string]time.Duration
	TierDelays map[string]time.Duration
}

// DefaultNamespaces is the TTL table for the dashboard datasets.
func DefaultNamespaces() map[string]time.Duration {
	return map[string]time.Duration{
		"stats":        5 * time.Minute,
		"members":      10 * time.Minute,
		"events":       5 * time.Minute,
		"birthdays":    time.Hour,
		"transactions": 2 * time.Minute,
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("shards", 4)
	v.SetDefault("default_ttl", expiration.DefaultTTL)
	for ns, ttl := range DefaultNamespaces() {
		v.SetDefault("namespaces."+ns, ttl)
	}
	for p, d := range loader.DefaultTiers() {
		v.SetDefault("tiers."+p.String(), d)
	}
}

/*
Load reads configuration from path (any format viper understands) on top
of the defaults. An empty path uses defaults plus environment only.

Environment variables use the DASHCACHE_ prefix, with '.' replaced by '_':
DASHCACHE_DEFAULT_TTL=30s, DASHCACHE_TIERS_LOW=5s.
*/
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("dashcache")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{
		Shards:     v.GetInt("shards"),
		DefaultTTL: v.GetDuration("default_ttl"),
		Namespaces: make(map[string]time.Duration),
		TierDelays: make(map[string]time.Duration),
	}

	// Namespaces come from defaults and the file; env only overrides known ones.
	for _, key := range v.AllKeys() {
		if ns, ok := strings.CutPrefix(key, "namespaces."); ok {
			cfg.Namespaces[ns] = v.GetDuration(key)
		}
	}
	for _, p := range loader.Priorities() {
		cfg.TierDelays[p.String()] = v.GetDuration("tiers." + p.String())
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects tables that would break the cache invariants.
func (c *Config) Validate() error {
	if c.Shards < 1 {
		return fmt.Errorf("config: shards must be at least 1, got %d", c.Shards)
	}
	if c.DefaultTTL <= 0 {
		return fmt.Errorf("%w: default_ttl must be positive, got %s", ErrInvalidTTL, c.DefaultTTL)
	}
	for ns, ttl := range c.Namespaces {
		if ttl <= 0 {
			return fmt.Errorf("%w: namespace %q must be positive, got %s", ErrInvalidTTL, ns, ttl)
		}
	}
	_, err := c.Tiers()
	return err
}

// NamespaceTTL builds the expiration strategy.
func (c *Config) NamespaceTTL() *expiration.NamespaceTTL {
	return expiration.NewNamespaceTTL(c.Namespaces, c.DefaultTTL)
}

// Tiers builds and validates the loader tier table.
func (c *Config) Tiers() (loader.Tiers, error) {
	t := make(loader.Tiers, len(c.TierDelays))
	for name, d := range c.TierDelays {
		p, err := loader.ParsePriority(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidTiers, err)
		}
		t[p] = d
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}
