package config

import (
	"github.com/rs/zerolog/log"
)

// Endpoint configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// DBHost, DBPort, DBUser, DBPassword, DBName and DBSSLMode locate the Postgres audit store.
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// WebPort is the port of the HTTP API.
	WebPort int
	// MetricsNamespace prefixes every Prometheus metric.
	MetricsNamespace string
)

// LoadEndpointConfig loads the endpoint configuration alone, for commands that only need the
// database or web settings. LoadConfig calls it as its last step.
func LoadEndpointConfig() error {
	log.Info().Msg("Loading endpoint configuration from environment variables...")

	DBHost = getEnvOr("DB_HOST", "localhost")
	DBUser = getEnvOr("DB_USER", "postgres")
	DBPassword = getEnvOr("DB_PASSWORD", "postgres")
	DBName = getEnvOr("DB_NAME", "yieldcore")
	DBSSLMode = getEnvOr("DB_SSLMODE", "disable")

	dbPort, err := getEnvAsUint64Or("DB_PORT", 5432)
	if err != nil {
		return err
	}
	DBPort = int(dbPort)

	webPort, err := getEnvAsUint64Or("WEB_PORT", 8080)
	if err != nil {
		return err
	}
	WebPort = int(webPort)

	MetricsNamespace = getEnvOr("METRICS_NAMESPACE", "yieldcore")

	log.Debug().
		Str("DBHost", DBHost).
		Int("DBPort", DBPort).
		Str("DBName", DBName).
		Int("WebPort", WebPort).
		Str("MetricsNamespace", MetricsNamespace).
		Msg("Endpoint configuration loaded successfully.")

	return nil
}
