package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shmstate-org/shmstate/util"
)

// Normalize replaces unusable values with safe defaults, warning where a
// value was present but nonsensical.
func (cfg *Config) Normalize() {
	if cfg.AppWorkers <= 0 {
		cfg.AppWorkers = 4
	}
	if cfg.ExporterPort <= 0 {
		cfg.ExporterPort = 9100
	}

	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "shmstate-data"
	}
	if strings.TrimSpace(cfg.SettingsPath) == "" {
		cfg.SettingsPath = "settings.yml"
	}

	if cfg.LogBufferSize <= 0 {
		util.Warn("Invalid log_buffer_size (%d), defaulting to 1000", cfg.LogBufferSize)
		cfg.LogBufferSize = 1000
	}
	if cfg.AuthBufferSize <= 0 {
		util.Warn("Invalid auth_buffer_size (%d), defaulting to 1000", cfg.AuthBufferSize)
		cfg.AuthBufferSize = 1000
	}
	if cfg.SettingsCapacity <= 0 {
		cfg.SettingsCapacity = 64 * 1024
	}

	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = 2 * time.Second
	}
	if cfg.BarrierTimeout <= 0 {
		cfg.BarrierTimeout = 10 * time.Second
	}

	if cfg.MaxLoginAttempts <= 0 {
		cfg.MaxLoginAttempts = 5
	}
	if cfg.AuthWindow <= 0 {
		cfg.AuthWindow = 10 * time.Minute
	}
	if cfg.AuthLockout <= 0 {
		cfg.AuthLockout = 10 * time.Minute
	}

	if cfg.RSAKeySize <= 0 {
		cfg.RSAKeySize = 2048
	}
	if cfg.KeyRotationPeriod <= 0 {
		cfg.KeyRotationPeriod = 5 * time.Minute
	}
}

// rule is one named validation over the normalized config.
type rule struct {
	field string
	ok    func(*Config) bool
	msg   string
}

var rules = []rule{
	{"app_workers", func(c *Config) bool { return c.AppWorkers <= 255 }, "must fit the 255-slot PID roster"},
	{"exporter_port", func(c *Config) bool { return c.ExporterPort < 65536 }, "must be a valid TCP port"},
	{"log_buffer_size", func(c *Config) bool { return c.LogBufferSize <= 100_000 }, "is unreasonably large for a shared ring"},
	{"auth_buffer_size", func(c *Config) bool { return c.AuthBufferSize <= 100_000 }, "is unreasonably large for a shared ring"},
	{"settings_capacity", func(c *Config) bool { return c.SettingsCapacity <= 16*1024*1024 }, "exceeds the 16MiB blob ceiling"},
	{"rsa_key_size", func(c *Config) bool { return c.RSAKeySize >= 2048 && c.RSAKeySize <= 8192 }, "must be between 2048 and 8192 bits"},
	{"max_login_attempts", func(c *Config) bool { return c.MaxLoginAttempts <= 1000 }, "must not exceed the attempt ring capacity"},
}

// Validate checks each field rule and reports the first violation.
func (cfg *Config) Validate() error {
	for _, r := range rules {
		if !r.ok(cfg) {
			return fmt.Errorf("config field %s %s", r.field, r.msg)
		}
	}
	return nil
}
