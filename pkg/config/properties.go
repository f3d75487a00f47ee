package config

import (
	"encoding/json"
	"flag"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shmstate-org/shmstate/util"
)

// Config holds every tunable of the shared-state layer. Fields load from an
// optional YAML/JSON file, then explicit flags override.
type Config struct {
	// Worker pool
	AppWorkers     int           `yaml:"app_workers" json:"app.workers"`
	BarrierTimeout time.Duration `yaml:"barrier_timeout" json:"barrier.timeout"`

	// Logging & metrics
	LogLevel       util.LogLevel `yaml:"log_level" json:"log_level"`
	EnableExporter bool          `yaml:"enable_exporter" json:"enable.exporter"`
	ExporterPort   int           `yaml:"exporter_port" json:"exporter.port"`

	// Shared regions
	LogBufferSize    int           `yaml:"log_buffer_size" json:"log.buffer.size"`
	AuthBufferSize   int           `yaml:"auth_buffer_size" json:"auth.buffer.size"`
	SettingsCapacity int           `yaml:"settings_capacity" json:"settings.capacity"`
	LockTimeout      time.Duration `yaml:"lock_timeout" json:"lock.timeout"`

	// Paths
	DataDir      string `yaml:"data_dir" json:"data.dir"`
	SettingsPath string `yaml:"settings_path" json:"settings.path"`

	// Brute-force policy
	MaxLoginAttempts int           `yaml:"max_login_attempts" json:"max.login.attempts"`
	AuthWindow       time.Duration `yaml:"auth_window" json:"auth.window"`
	AuthLockout      time.Duration `yaml:"auth_lockout" json:"auth.lockout"`

	// Key rotation
	RSAKeySize        int           `yaml:"rsa_key_size" json:"rsa.key.size"`
	KeyRotationPeriod time.Duration `yaml:"key_rotation_period" json:"key.rotation.period"`
	PersistKeys       bool          `yaml:"persist_keys" json:"persist.keys"`
}

// LoadConfig builds the configuration from flags plus an optional config
// file (-config flag or CONFIG_PATH env).
func LoadConfig() (*Config, error) {
	cfg := &Config{}

	configPath := flag.String("config", "", "Path to YAML/JSON config file")
	workersStr := flag.String("workers", "4", "Expected worker process count")
	logLevelStr := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	exporterStr := flag.String("exporter", "true", "Enable Prometheus exporter")
	exporterPortStr := flag.String("exporter-port", "9100", "Exporter port")
	dataDirStr := flag.String("data-dir", "shmstate-data", "Directory for key material")
	settingsStr := flag.String("settings", "settings.yml", "Path to the shared settings file")
	logBufferStr := flag.String("log-buffer", "1000", "Shared log ring capacity")
	authBufferStr := flag.String("auth-buffer", "1000", "Auth attempt ring capacity")
	settingsCapStr := flag.String("settings-capacity", "65536", "Settings blob capacity in bytes")
	lockTimeoutStr := flag.String("lock-timeout", "2s", "Region lock acquisition budget")
	barrierTimeoutStr := flag.String("barrier-timeout", "10s", "Startup registration barrier timeout")
	maxAttemptsStr := flag.String("max-login-attempts", "5", "Failed logins before a ban")
	authWindowStr := flag.String("auth-window", "10m", "Window for counting failed logins")
	authLockoutStr := flag.String("auth-lockout", "10m", "Ban duration")
	keySizeStr := flag.String("rsa-key-size", "2048", "RSA key size in bits")
	rotationStr := flag.String("key-rotation", "5m", "RSA key rotation period")
	persistKeysStr := flag.String("persist-keys", "true", "Persist the key pair to disk (encrypted)")

	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" && *configPath == "" {
		*configPath = envPath
	}

	flag.Parse()

	applyDefaults(cfg, workersStr, logLevelStr, exporterStr, exporterPortStr,
		dataDirStr, settingsStr, logBufferStr, authBufferStr, settingsCapStr,
		lockTimeoutStr, barrierTimeoutStr, maxAttemptsStr, authWindowStr,
		authLockoutStr, keySizeStr, rotationStr, persistKeysStr)

	if *configPath != "" {
		data, err := os.ReadFile(*configPath)
		if err != nil {
			return nil, err
		}
		if strings.HasSuffix(*configPath, ".json") {
			if err := json.Unmarshal(data, cfg); err != nil {
				return nil, err
			}
		} else {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, err
			}
		}
	}

	applyExplicitFlags(cfg, workersStr, logLevelStr, exporterStr, exporterPortStr,
		dataDirStr, settingsStr, logBufferStr, authBufferStr, settingsCapStr,
		lockTimeoutStr, barrierTimeoutStr, maxAttemptsStr, authWindowStr,
		authLockoutStr, keySizeStr, rotationStr, persistKeysStr)

	cfg.Normalize()
	util.SetLevel(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config, workersStr, logLevelStr, exporterStr, exporterPortStr,
	dataDirStr, settingsStr, logBufferStr, authBufferStr, settingsCapStr,
	lockTimeoutStr, barrierTimeoutStr, maxAttemptsStr, authWindowStr,
	authLockoutStr, keySizeStr, rotationStr, persistKeysStr *string) {

	cfg.AppWorkers = util.ParseInt(*workersStr, 4)
	cfg.LogLevel = util.ParseLevel(*logLevelStr)
	cfg.EnableExporter = util.ParseBool(*exporterStr, true)
	cfg.ExporterPort = util.ParseInt(*exporterPortStr, 9100)
	cfg.DataDir = *dataDirStr
	cfg.SettingsPath = *settingsStr
	cfg.LogBufferSize = util.ParseInt(*logBufferStr, 1000)
	cfg.AuthBufferSize = util.ParseInt(*authBufferStr, 1000)
	cfg.SettingsCapacity = util.ParseInt(*settingsCapStr, 64*1024)
	cfg.LockTimeout = util.ParseDuration(*lockTimeoutStr, 2*time.Second)
	cfg.BarrierTimeout = util.ParseDuration(*barrierTimeoutStr, 10*time.Second)
	cfg.MaxLoginAttempts = util.ParseInt(*maxAttemptsStr, 5)
	cfg.AuthWindow = util.ParseDuration(*authWindowStr, 10*time.Minute)
	cfg.AuthLockout = util.ParseDuration(*authLockoutStr, 10*time.Minute)
	cfg.RSAKeySize = util.ParseInt(*keySizeStr, 2048)
	cfg.KeyRotationPeriod = util.ParseDuration(*rotationStr, 5*time.Minute)
	cfg.PersistKeys = util.ParseBool(*persistKeysStr, true)
}

// applyExplicitFlags re-applies every flag that was set to a non-default
// value, so explicit flags win over the config file.
func applyExplicitFlags(cfg *Config, workersStr, logLevelStr, exporterStr, exporterPortStr,
	dataDirStr, settingsStr, logBufferStr, authBufferStr, settingsCapStr,
	lockTimeoutStr, barrierTimeoutStr, maxAttemptsStr, authWindowStr,
	authLockoutStr, keySizeStr, rotationStr, persistKeysStr *string) {

	if *workersStr != "4" {
		cfg.AppWorkers = util.ParseInt(*workersStr, cfg.AppWorkers)
	}
	if *logLevelStr != "info" {
		cfg.LogLevel = util.ParseLevel(*logLevelStr)
	}
	if *exporterStr != "true" {
		cfg.EnableExporter = util.ParseBool(*exporterStr, cfg.EnableExporter)
	}
	if *exporterPortStr != "9100" {
		cfg.ExporterPort = util.ParseInt(*exporterPortStr, cfg.ExporterPort)
	}
	if *dataDirStr != "shmstate-data" {
		cfg.DataDir = *dataDirStr
	}
	if *settingsStr != "settings.yml" {
		cfg.SettingsPath = *settingsStr
	}
	if *logBufferStr != "1000" {
		cfg.LogBufferSize = util.ParseInt(*logBufferStr, cfg.LogBufferSize)
	}
	if *authBufferStr != "1000" {
		cfg.AuthBufferSize = util.ParseInt(*authBufferStr, cfg.AuthBufferSize)
	}
	if *settingsCapStr != "65536" {
		cfg.SettingsCapacity = util.ParseInt(*settingsCapStr, cfg.SettingsCapacity)
	}
	if *lockTimeoutStr != "2s" {
		cfg.LockTimeout = util.ParseDuration(*lockTimeoutStr, cfg.LockTimeout)
	}
	if *barrierTimeoutStr != "10s" {
		cfg.BarrierTimeout = util.ParseDuration(*barrierTimeoutStr, cfg.BarrierTimeout)
	}
	if *maxAttemptsStr != "5" {
		cfg.MaxLoginAttempts = util.ParseInt(*maxAttemptsStr, cfg.MaxLoginAttempts)
	}
	if *authWindowStr != "10m" {
		cfg.AuthWindow = util.ParseDuration(*authWindowStr, cfg.AuthWindow)
	}
	if *authLockoutStr != "10m" {
		cfg.AuthLockout = util.ParseDuration(*authLockoutStr, cfg.AuthLockout)
	}
	if *keySizeStr != "2048" {
		cfg.RSAKeySize = util.ParseInt(*keySizeStr, cfg.RSAKeySize)
	}
	if *rotationStr != "5m" {
		cfg.KeyRotationPeriod = util.ParseDuration(*rotationStr, cfg.KeyRotationPeriod)
	}
	if *persistKeysStr != "true" {
		cfg.PersistKeys = util.ParseBool(*persistKeysStr, cfg.PersistKeys)
	}
}
