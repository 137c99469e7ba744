package config

// Defaults returns a config with every optional setting filled in. The token
// and redirects have no defaults.
func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel:              "info",
			MaxConcurrentMessages: 5,
			MaxConcurrentSends:    4,
		},
		Health: HealthConfig{
			MetricsPath: "/metrics",
		},
	}
}
