package http

import "time"

type Config struct {
	Port        uint       `mapstructure:"port"`
	// AdminAPIKey may list several comma-separated keys.
	AdminAPIKey string     `mapstructure:"admin_api_key"`
	CORS        CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowOrigins []string      `mapstructure:"allow_origins"`
	MaxAge       time.Duration `mapstructure:"max_age"`
}
