// Package config handles optional file/env configuration loading for the
// discoveryctl CLI. Uses Viper for defaults, file, and env var merging; the
// in-process discovery.Config struct itself has no Viper dependency, only
// this loader does.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/skylineproto/discover/pkg/discovery"
)

// FileConfig is the on-disk/env shape this loader understands. It is
// translated into a discovery.Config by ToDiscoveryConfig.
type FileConfig struct {
	ServiceTypes     []string      `mapstructure:"service_types"`
	Timeout          time.Duration `mapstructure:"timeout"`
	VerifyServices   bool          `mapstructure:"verify_services"`
	Interfaces       []string      `mapstructure:"interfaces"`
	MaxServices      int           `mapstructure:"max_services"`
	MaxRetries       int           `mapstructure:"max_retries"`
	CacheDuration    time.Duration `mapstructure:"cache_duration"`
	RateLimit        time.Duration `mapstructure:"rate_limit"`
	MetricsEnabled   bool          `mapstructure:"metrics_enabled"`
	EnabledProtocols []string      `mapstructure:"enabled_protocols"`
	EnableIPv4       bool          `mapstructure:"enable_ipv4"`
	EnableIPv6       bool          `mapstructure:"enable_ipv6"`

	Log LogConfig `mapstructure:"log"`
}

// LogConfig controls zerolog's output.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from configPath (or the default search path if
// empty) merged with DISCOVERCTL-prefixed environment variables, and returns
// the parsed FileConfig; ToDiscoveryConfig translates it into a
// discovery.Config.
func Load(configPath string) (*FileConfig, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("discover")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/discover")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "discover"))
		}
	}

	v.SetEnvPrefix("DISCOVERCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return &fc, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service_types", []string{})
	v.SetDefault("timeout", "30s")
	v.SetDefault("verify_services", false)
	v.SetDefault("max_services", 1000)
	v.SetDefault("max_retries", 3)
	v.SetDefault("cache_duration", "300s")
	v.SetDefault("rate_limit", "1s")
	v.SetDefault("metrics_enabled", false)
	v.SetDefault("enabled_protocols", []string{"mdns"})
	v.SetDefault("enable_ipv4", true)
	v.SetDefault("enable_ipv6", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// ToDiscoveryConfig translates the file-level config into the in-process
// discovery.Config the façade accepts, parsing each configured service type
// string and protocol name.
func (fc *FileConfig) ToDiscoveryConfig() (discovery.Config, error) {
	cfg := discovery.DefaultConfig()
	cfg.Timeout = fc.Timeout
	cfg.VerifyServices = fc.VerifyServices
	cfg.Interfaces = fc.Interfaces
	cfg.MaxServices = fc.MaxServices
	cfg.MaxRetries = fc.MaxRetries
	cfg.CacheDuration = fc.CacheDuration
	cfg.RateLimit = fc.RateLimit
	cfg.MetricsEnabled = fc.MetricsEnabled
	cfg.EnableIPv4 = fc.EnableIPv4
	cfg.EnableIPv6 = fc.EnableIPv6

	if len(fc.EnabledProtocols) > 0 {
		enabled := make(map[discovery.ProtocolType]bool, len(fc.EnabledProtocols))
		for _, name := range fc.EnabledProtocols {
			p, err := parseProtocol(name)
			if err != nil {
				return discovery.Config{}, err
			}
			enabled[p] = true
		}
		cfg.EnabledProtocols = enabled
	}

	for _, s := range fc.ServiceTypes {
		st, err := discovery.New(s)
		if err != nil {
			return discovery.Config{}, fmt.Errorf("parsing configured service type %q: %w", s, err)
		}
		cfg.ServiceTypes = append(cfg.ServiceTypes, st)
	}

	return cfg, nil
}

func parseProtocol(name string) (discovery.ProtocolType, error) {
	switch strings.ToLower(name) {
	case "mdns":
		return discovery.Mdns, nil
	case "dns-sd", "dnssd":
		return discovery.DnsSd, nil
	case "upnp", "ssdp":
		return discovery.Upnp, nil
	default:
		return 0, fmt.Errorf("unknown protocol %q", name)
	}
}
