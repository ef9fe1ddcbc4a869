package config

// ServerConfig configures the admin HTTP API.
type ServerConfig struct {
	Host string
	Port int
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host: getEnv("SERVER_HOST", "0.0.0.0"),
		Port: getEnvInt("SERVER_PORT", 8080),
	}
}
