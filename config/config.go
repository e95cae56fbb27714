package config

import (
	"fmt"

	"github.com/hashicorp/go-secure-stdlib/parseutil"
	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/stephnangue/doorman/auth/session"
)

// Config is the configuration for the doorman server.
type Config struct {
	LogLevel           string `hcl:"log_level,optional"`
	LogFormat          string `hcl:"log_format,optional"`
	LogFile            string `hcl:"log_file,optional"`
	LogRotateMegabytes int    `hcl:"log_rotate_megabytes,optional"`
	LogRotateMaxFiles  int    `hcl:"log_rotate_max_files,optional"`

	// SessionSecret optionally supplies the per-installation secret used
	// at setup time, letting cooperating processes share one.
	SessionSecret string `hcl:"session_secret,optional"`

	Listeners []ListenerBlock `hcl:"listener,block"`
	Storage   *StorageBlock   `hcl:"storage,block"`
	Session   *SessionBlock   `hcl:"session,block"`
}

type StorageBlock struct {
	Type string `hcl:"type,label"` // "inmem" or "file"

	// File storage specific config
	Path string `hcl:"path,optional"` // Root directory for the file backend
}

// Config returns the storage configuration as a map
func (s *StorageBlock) Config() map[string]string {
	config := make(map[string]string)

	config["type"] = s.Type

	if s.Path != "" {
		config["path"] = s.Path
	}

	return config
}

type SessionBlock struct {
	// MaxSessions caps live sessions; older-by-use sessions are evicted
	MaxSessions int `hcl:"max_sessions,optional"`

	// TTL is the maximum session age, as a duration string ("720h")
	TTL string `hcl:"ttl,optional"`

	// FlushInterval throttles last-used persistence ("60s")
	FlushInterval string `hcl:"flush_interval,optional"`
}

// SessionConfig resolves the session block against the defaults
func (c *Config) SessionConfig() (*session.Config, error) {
	cfg := session.DefaultConfig()
	if c.Session == nil {
		return cfg, nil
	}

	if c.Session.MaxSessions < 0 {
		return nil, fmt.Errorf("max_sessions must be positive")
	}
	if c.Session.MaxSessions > 0 {
		cfg.MaxSessions = c.Session.MaxSessions
	}

	if c.Session.TTL != "" {
		ttl, err := parseutil.ParseDurationSecond(c.Session.TTL)
		if err != nil {
			return nil, fmt.Errorf("invalid session ttl: %w", err)
		}
		cfg.TTL = ttl
	}

	if c.Session.FlushInterval != "" {
		interval, err := parseutil.ParseDurationSecond(c.Session.FlushInterval)
		if err != nil {
			return nil, fmt.Errorf("invalid session flush_interval: %w", err)
		}
		cfg.FlushInterval = interval
	}

	return cfg, nil
}

type ListenerBlock struct {
	Name        string `hcl:"name,label"`
	Address     string `hcl:"address"`
	TLSCertFile string `hcl:"tls_cert_file,optional"`
	TLSKeyFile  string `hcl:"tls_key_file,optional"`
	TLSEnabled  bool   `hcl:"tls_enabled,optional"`
}

func LoadConfig(configFile string) (*Config, error) {
	var config Config

	err := hclsimple.DecodeFile(configFile, nil, &config)
	if err != nil {
		return nil, err
	}

	if config.Storage == nil {
		return nil, fmt.Errorf("a storage block is required")
	}
	if len(config.Listeners) == 0 {
		return nil, fmt.Errorf("at least one listener block is required")
	}

	return &config, nil
}
