// Package vgconfig loads the VitalGraph configuration surface described
// by the fuseki_postgresql hybrid backend: index connection/auth, primary
// connection/pool sizing, and the feature toggles that govern startup
// reconciliation and quad-logging diagnostics.
//
// Values come from environment variables via config.EnvConfig, optionally
// overlaid on top of a YAML/TOML file loaded with viper — the same
// file-then-env precedence used by the CLI root command this service
// replaces.
package vgconfig

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
	"vitalgraph.io/config"
)

// KeycloakConfig holds the resource-owner password-credentials grant
// settings for obtaining bearer tokens for the index.
type KeycloakConfig struct {
	URL          string
	Realm        string
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
}

// FusekiConfig configures the index (SPARQL-over-HTTP) connection.
type FusekiConfig struct {
	ServerURL            string
	Username             string
	Password             string
	EnableAuthentication bool
	Keycloak             KeycloakConfig
	ConnectionLimit      int
	AutoRegisterDatasets bool
}

// RedisConfig configures the shared bearer-token cache used when more
// than one VitalGraph instance fronts the same index and shouldn't each
// independently password-grant against Keycloak. Left with an empty
// Addr, the index client falls back to an in-process token cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggingConfig controls the root logger common.NewLogger builds at
// startup for every component's logrus.WithField("component", ...) entry.
type LoggingConfig struct {
	Level  string
	Format string
}

// PoolConfig sizes the primary connection pool.
type PoolConfig struct {
	Min int
	Max int
}

// DatabaseConfig configures the primary (relational) connection.
type DatabaseConfig struct {
	Host               string
	Port               int
	Database           string
	Username           string
	Password           string
	Pool               PoolConfig
	EnableQuadLogging  bool
}

// Config is the single configuration object for the fuseki_postgresql
// hybrid backend. Other backend.type values are out of scope for this
// core and are rejected by the validation Load runs.
type Config struct {
	BackendType string
	Logging     LoggingConfig
	Fuseki      FusekiConfig
	Redis       RedisConfig
	Database    DatabaseConfig
	// APIKey, when non-empty, is required on every restshell request via
	// the X-API-Key header. Left empty, restshell runs unauthenticated —
	// acceptable only behind a trusted network boundary.
	APIKey string
	// OIDC, when ProviderURL is non-empty, enables bearer-token
	// authentication on restshell as an alternative to APIKey: requests
	// carry "Authorization: Bearer <id_token>" instead of X-API-Key.
	OIDC OIDCConfig
}

// OIDCConfig configures restshell's inbound bearer-token verification,
// independent of FusekiConfig.Keycloak (which authenticates outbound
// calls to the index).
type OIDCConfig struct {
	ProviderURL string
	ClientID    string
}

// ConnectionString builds the primary's libpq connection string.
func (c DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Username, c.Password, c.Host, c.Port, c.Database)
}

// Load reads configuration from an optional file (if path is non-empty,
// via viper) and then overlays environment variables (via
// config.EnvConfig), the same precedence order main.go's former root
// command applied to flags versus environment.
func Load(prefix, filePath string) (*Config, error) {
	if filePath != "" {
		viper.SetConfigFile(filePath)
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("vgconfig: reading config file: %w", err)
		}
	}

	env := config.NewEnvConfig(prefix)
	viperOr := func(key, fallback string) string {
		if v := viper.GetString(key); v != "" {
			return v
		}
		return fallback
	}

	cfg := &Config{
		BackendType: env.GetString("BACKEND_TYPE", viperOr("backend.type", "fuseki_postgresql")),
		APIKey:      env.GetString("API_KEY", viperOr("api_key", "")),
		Logging: LoggingConfig{
			Level:  env.GetString("LOG_LEVEL", viperOr("log.level", "info")),
			Format: env.GetString("LOG_FORMAT", viperOr("log.format", "text")),
		},
		OIDC: OIDCConfig{
			ProviderURL: env.GetString("OIDC_PROVIDER_URL", viperOr("oidc.provider_url", "")),
			ClientID:    env.GetString("OIDC_CLIENT_ID", viperOr("oidc.client_id", "")),
		},
		Fuseki: FusekiConfig{
			ServerURL:            env.GetString("FUSEKI_SERVER_URL", viperOr("fuseki.server_url", "http://localhost:3030")),
			Username:             env.GetString("FUSEKI_USERNAME", viperOr("fuseki.username", "")),
			Password:             env.GetString("FUSEKI_PASSWORD", viperOr("fuseki.password", "")),
			EnableAuthentication: env.GetBool("FUSEKI_ENABLE_AUTHENTICATION", false),
			ConnectionLimit:      env.GetInt("FUSEKI_CONNECTION_LIMIT", 20),
			AutoRegisterDatasets: env.GetBool("FUSEKI_AUTO_REGISTER_DATASETS", true),
			Keycloak: KeycloakConfig{
				URL:          env.GetString("FUSEKI_KEYCLOAK_URL", ""),
				Realm:        env.GetString("FUSEKI_KEYCLOAK_REALM", ""),
				ClientID:     env.GetString("FUSEKI_KEYCLOAK_CLIENT_ID", ""),
				ClientSecret: env.GetString("FUSEKI_KEYCLOAK_CLIENT_SECRET", ""),
				Username:     env.GetString("FUSEKI_KEYCLOAK_USERNAME", ""),
				Password:     env.GetString("FUSEKI_KEYCLOAK_PASSWORD", ""),
			},
		},
		Redis: RedisConfig{
			Addr:     env.GetString("REDIS_ADDR", viperOr("redis.addr", "")),
			Password: env.GetString("REDIS_PASSWORD", viperOr("redis.password", "")),
			DB:       env.GetInt("REDIS_DB", 0),
		},
		Database: DatabaseConfig{
			Host:              env.GetString("DATABASE_HOST", "localhost"),
			Port:              env.GetInt("DATABASE_PORT", 5432),
			Database:          env.GetString("DATABASE_DATABASE", "vitalgraph"),
			Username:          env.GetString("DATABASE_USERNAME", "vitalgraph"),
			Password:          env.GetString("DATABASE_PASSWORD", ""),
			EnableQuadLogging: env.GetBool("DATABASE_ENABLE_QUAD_LOGGING", false),
			Pool: PoolConfig{
				Min: env.GetInt("DATABASE_POOL_MIN", 2),
				Max: env.GetInt("DATABASE_POOL_MAX", 20),
			},
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	v := config.NewValidator()
	v.RequireOneOf("backend.type", c.BackendType, []string{"fuseki_postgresql"})
	v.RequireURL("fuseki.server_url", c.Fuseki.ServerURL)
	v.RequireString("database.host", c.Database.Host)
	v.RequireString("database.database", c.Database.Database)
	if c.Fuseki.EnableAuthentication {
		v.RequireURL("fuseki.keycloak.url", c.Fuseki.Keycloak.URL)
		v.RequireString("fuseki.keycloak.realm", c.Fuseki.Keycloak.Realm)
	}
	return v.Validate()
}

// DefaultLockTimeout is the default entity-lock acquisition deadline.
const DefaultLockTimeout = 10 * time.Second

// DefaultKeepAlive is the index HTTP client's idle keepalive, kept
// strictly shorter than a typical load balancer's 60s idle timeout.
const DefaultKeepAlive = 15 * time.Second
