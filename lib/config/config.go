package config

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

func LoadConfig() {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("/etc/gridrank/")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()
	viper.BindEnv("scan.default_grid_size", "DEFAULT_GRID_SIZE")
	viper.BindEnv("logging.console.level", "LOG_LEVEL")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Warn().Msg("Config file not found, using defaults")
		} else {
			log.Panic().Err(err).Msg("Fatal error reading config file")
		}
	}
	SetDefaultConfig()
}

func SetDefaultConfig() {

	// Logging
	viper.SetDefault("logging.console.level", "info")
	viper.SetDefault("logging.file.enabled", true)
	viper.SetDefault("logging.file.path", "gridrank.log")

	// Database
	viper.SetDefault("db.max_idle_conns", 5)
	viper.SetDefault("db.max_open_conns", 50)
	viper.SetDefault("db.conn_max_lifetime", "1h")

	// Scans
	viper.SetDefault("scan.default_grid_size", 7)
	viper.SetDefault("scan.default_radius_miles", 5.0)
	viper.SetDefault("scan.monitor.poll_interval", "5s")
	viper.SetDefault("scan.monitor.batch_poll_interval", "15s")
	viper.SetDefault("scan.monitor.timeout", "30m")
	viper.SetDefault("scan.monitor.batch_timeout", "6h")

	// Queue
	viper.SetDefault("queue.retry_interval", "60s")
	viper.SetDefault("queue.google_daily_cap", 200)

	// Engines
	viper.SetDefault("engines.request_timeout", "15s")
	viper.SetDefault("engines.session_rotation_requests", 20)
	viper.SetDefault("engines.google.min_delay_ms", 8000)
	viper.SetDefault("engines.google.max_delay_ms", 20000)
	viper.SetDefault("engines.google.max_per_hour", 12)
	viper.SetDefault("engines.google.max_per_day", 120)
	viper.SetDefault("engines.google.jitter_ms", 3000)
	viper.SetDefault("engines.google.pause_on_captcha_hours", 24)
	viper.SetDefault("engines.bing.min_delay_ms", 4000)
	viper.SetDefault("engines.bing.max_delay_ms", 10000)
	viper.SetDefault("engines.bing.max_per_hour", 30)
	viper.SetDefault("engines.bing.max_per_day", 400)
	viper.SetDefault("engines.bing.jitter_ms", 2000)
	viper.SetDefault("engines.bing.pause_on_captcha_hours", 12)
	viper.SetDefault("engines.duckduckgo.min_delay_ms", 3000)
	viper.SetDefault("engines.duckduckgo.max_delay_ms", 8000)
	viper.SetDefault("engines.duckduckgo.max_per_hour", 40)
	viper.SetDefault("engines.duckduckgo.max_per_day", 500)
	viper.SetDefault("engines.duckduckgo.jitter_ms", 1500)
	viper.SetDefault("engines.duckduckgo.pause_on_captcha_hours", 6)

	// Proxies
	viper.SetDefault("proxy.failure_cooldown", "30m")
}
