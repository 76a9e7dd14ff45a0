// Package config loads MonitorConfig from file and environment using the
// teacher's Viper-backed contrib/config.Driver, rather than hand-rolling
// flag/env parsing.
package config

import (
	"fmt"
	"time"

	contribconfig "github.com/flux-framework/flux-core/contrib/config"
)

// MonitorConfig mirrors SPEC_FULL.md's configuration inputs: the
// membership-monitor fields from spec.md §6 plus the ambient fields the
// daemon needs (bind address, log level, batch timeout, rate limit, cron
// schedule).
type MonitorConfig struct {
	// Size is the instance's rank count.
	Size uint `mapstructure:"size"`
	// ForceUp marks every rank online at startup instead of waiting for a
	// snapshot.
	ForceUp bool `mapstructure:"force_up"`
	// RecoveryMode makes the Monitor skip its liveness-group subscriptions;
	// membership state is not reconstructed from the event log.
	RecoveryMode bool `mapstructure:"recovery_mode"`
	// Hostlist is recorded on the restart event.
	Hostlist string `mapstructure:"hostlist"`
	// SystemdEnable selects which broker the Monitor watches for liveness:
	// false subscribes to "broker.online"/"broker.torpid" (the default,
	// in-broker liveness service), true subscribes to
	// "sdmon.online"/"sdmon.torpid" (the systemd-based sdmon liveness
	// service) per spec.md §4.D step 3 / §6.
	SystemdEnable bool `mapstructure:"systemd_enable"`

	// LogLevel is one of debug/info/warn/error.
	LogLevel string `mapstructure:"log_level"`
	// LogFormat is "console" or "json".
	LogFormat string `mapstructure:"log_format"`

	// HTTPAddr is the bind address for the RPC surface.
	HTTPAddr string `mapstructure:"http_addr"`

	// EventLogBatchTimeout bounds how long the Appender batches entries
	// before committing.
	EventLogBatchTimeout time.Duration `mapstructure:"eventlog_batch_timeout"`

	// RateLimitPerMinute bounds waitup/force-down requests per client.
	RateLimitPerMinute int `mapstructure:"rate_limit_per_minute"`

	// StatsCronSchedule is a robfig/cron schedule expression for the
	// periodic membership-stats logging job.
	StatsCronSchedule string `mapstructure:"stats_cron_schedule"`
}

// DefaultMonitorConfig mirrors the teacher's DefaultConfig idiom: a
// constructor returning a fully-populated, safe-to-run-with default.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Size:                 1,
		LogLevel:             "info",
		LogFormat:            "console",
		HTTPAddr:             ":8080",
		EventLogBatchTimeout: 50 * time.Millisecond,
		RateLimitPerMinute:   600,
		StatsCronSchedule:    "@every 1m",
	}
}

// Load reads configName(.configType) from configPath, overlaying
// environment variables prefixed FLUXRESOURCE_, onto DefaultMonitorConfig.
func Load(configName, configPath, configType string) (MonitorConfig, error) {
	def := DefaultMonitorConfig()

	driver, err := contribconfig.NewDriver(&contribconfig.Config{
		ConfigName:   configName,
		ConfigPath:   configPath,
		ConfigType:   configType,
		AutomaticEnv: true,
		EnvPrefix:    "FLUXRESOURCE",
		Defaults: map[string]interface{}{
			"size":                    def.Size,
			"force_up":                def.ForceUp,
			"recovery_mode":           def.RecoveryMode,
			"hostlist":                def.Hostlist,
			"systemd_enable":          def.SystemdEnable,
			"log_level":               def.LogLevel,
			"log_format":              def.LogFormat,
			"http_addr":               def.HTTPAddr,
			"eventlog_batch_timeout":  def.EventLogBatchTimeout,
			"rate_limit_per_minute":   def.RateLimitPerMinute,
			"stats_cron_schedule":     def.StatsCronSchedule,
		},
	})
	if err != nil {
		return MonitorConfig{}, fmt.Errorf("config: load: %w", err)
	}

	cfg := MonitorConfig{
		Size:                 uint(driver.GetInt("size")),
		ForceUp:              driver.GetBool("force_up"),
		RecoveryMode:         driver.GetBool("recovery_mode"),
		Hostlist:             driver.GetString("hostlist"),
		SystemdEnable:        driver.GetBool("systemd_enable"),
		LogLevel:             driver.GetString("log_level"),
		LogFormat:            driver.GetString("log_format"),
		HTTPAddr:             driver.GetString("http_addr"),
		EventLogBatchTimeout: driver.GetDuration("eventlog_batch_timeout"),
		RateLimitPerMinute:   driver.GetInt("rate_limit_per_minute"),
		StatsCronSchedule:    driver.GetString("stats_cron_schedule"),
	}
	if cfg.Size == 0 {
		return MonitorConfig{}, fmt.Errorf("config: size must be > 0")
	}
	return cfg, nil
}
