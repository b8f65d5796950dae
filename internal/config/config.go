package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	ServerPort        string  `mapstructure:"SERVER_PORT"`
	ActivityAPIURL    string  `mapstructure:"ACTIVITY_API_URL"`
	RefreshURL        string  `mapstructure:"AUTH_REFRESH_URL"`
	UserID            string  `mapstructure:"USER_ID"`
	AccessToken       string  `mapstructure:"ACCESS_TOKEN"`
	RefreshToken      string  `mapstructure:"REFRESH_TOKEN"`
	RedisAddr         string  `mapstructure:"REDIS_ADDR"`
	RedisPassword     string  `mapstructure:"REDIS_PASSWORD"`
	CaloriesPerKm     float64 `mapstructure:"CALORIES_PER_KM"`
	StatsIntervalMs   int     `mapstructure:"STATS_INTERVAL_MS"`
	CaptureIntervalMs int     `mapstructure:"CAPTURE_INTERVAL_MS"`
	RequestTimeoutSec int     `mapstructure:"REQUEST_TIMEOUT_SEC"`
}

func Load() Config {
	viper.AutomaticEnv()
	viper.SetDefault("SERVER_PORT", ":8090")
	viper.SetDefault("ACTIVITY_API_URL", "http://localhost:8080/api/v1")
	viper.SetDefault("AUTH_REFRESH_URL", "http://localhost:8080/api/v1/auth/refresh")
	viper.SetDefault("USER_ID", "")
	viper.SetDefault("ACCESS_TOKEN", "")
	viper.SetDefault("REFRESH_TOKEN", "")
	viper.SetDefault("REDIS_ADDR", "")
	viper.SetDefault("REDIS_PASSWORD", "")
	viper.SetDefault("CALORIES_PER_KM", 62.0)
	viper.SetDefault("STATS_INTERVAL_MS", 1000)
	viper.SetDefault("CAPTURE_INTERVAL_MS", 2000)
	viper.SetDefault("REQUEST_TIMEOUT_SEC", 30)

	var cfg Config
	_ = viper.Unmarshal(&cfg)
	return cfg
}

func (c Config) StatsInterval() time.Duration {
	return time.Duration(c.StatsIntervalMs) * time.Millisecond
}

func (c Config) CaptureInterval() time.Duration {
	return time.Duration(c.CaptureIntervalMs) * time.Millisecond
}

func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSec) * time.Second
}
