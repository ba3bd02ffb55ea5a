package config

import "github.com/kelseyhightower/envconfig"

// Config holds application configuration loaded from environment variables.
type Config struct {
	APIBaseURL       string `envconfig:"API_BASE_URL" default:"http://127.0.0.1:8000/api/"`
	CredentialsPath  string `envconfig:"CREDENTIALS_PATH" default:""`
	DataPath         string `envconfig:"DATA_PATH" default:""`
	LogLevel         string `envconfig:"LOG_LEVEL" default:"info"`
	HTTPTimeout      int    `envconfig:"HTTP_TIMEOUT" default:"30"`
	AllowAdminBypass bool   `envconfig:"ALLOW_ADMIN_BYPASS" default:"true"`
}

// Load reads configuration from PROPLOC_-prefixed environment variables
// into a Config struct.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("PROPLOC", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
