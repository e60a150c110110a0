// Command vitalgraphd starts the VitalGraph hybrid backend: it wires the
// primary store, the index client, the admin registry, the dual-write
// coordinator, and the restshell HTTP surface, then serves until an
// interrupt or termination signal arrives.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"vitalgraph.io/adminstore"
	"vitalgraph.io/common"
	"vitalgraph.io/coordinator"
	"vitalgraph.io/indexclient"
	"vitalgraph.io/lockmanager"
	"vitalgraph.io/primarystore"
	"vitalgraph.io/restshell"
	"vitalgraph.io/security"
	"vitalgraph.io/version"
	"vitalgraph.io/vgconfig"
)

var log = logrus.WithField("component", "vitalgraphd")

func main() {
	cfg, err := vgconfig.Load("VITALGRAPH", os.Getenv("VITALGRAPH_CONFIG_FILE"))
	if err != nil {
		log.WithError(err).Fatal("loading configuration")
	}

	configureLogging(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	primary, err := primarystore.New(ctx, cfg.Database.ConnectionString())
	if err != nil {
		log.WithError(err).Fatal("connecting to primary store")
	}
	defer primary.Close()

	index := indexclient.New(indexclient.Config{
		BaseURL:         cfg.Fuseki.ServerURL,
		Username:        cfg.Fuseki.Username,
		Password:        cfg.Fuseki.Password,
		BearerAuth:      bearerAuth(cfg),
		ConnectionLimit: cfg.Fuseki.ConnectionLimit,
		KeepAlive:       vgconfig.DefaultKeepAlive,
		MaxRetries:      5,
	})

	admin, err := adminstore.New(cfg.Database.ConnectionString())
	if err != nil {
		log.WithError(err).Fatal("connecting to admin store")
	}
	if err := admin.EnsureInstalled(ctx); err != nil {
		log.WithError(err).Fatal("installing admin schema")
	}

	locks := lockmanager.New(cfg.Database.ConnectionString())
	defer locks.Close(ctx)

	coord := coordinator.New(primary, index, admin, locks)

	if cfg.Fuseki.AutoRegisterDatasets {
		spaces, err := admin.ListSpaces(ctx)
		if err != nil {
			log.WithError(err).Fatal("listing spaces for dataset reconciliation")
		}
		spaceIDs := make([]string, len(spaces))
		for i, sp := range spaces {
			spaceIDs[i] = sp.ID
		}
		if err := index.EnsureDatasetsRegistered(ctx, spaceIDs); err != nil {
			log.WithError(err).Error("reconciling index datasets at startup")
		}
	}

	var oidcProvider *security.OIDCProvider
	if cfg.OIDC.ProviderURL != "" {
		oidcProvider, err = security.NewOIDCProvider(ctx, security.OIDCConfig{
			ProviderURL: cfg.OIDC.ProviderURL,
			ClientID:    cfg.OIDC.ClientID,
		})
		if err != nil {
			log.WithError(err).Fatal("discovering OIDC provider for restshell bearer auth")
		}
	}

	server := restshell.New(coord, admin, index, cfg.APIKey, oidcProvider)

	address := os.Getenv("VITALGRAPH_LISTEN_ADDRESS")
	if address == "" {
		address = ":8080"
	}

	go func() {
		if err := server.Start(address); err != nil {
			log.WithError(err).Info("restshell server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down vitalgraphd")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("restshell server forced to shutdown")
	}
}

// configureLogging builds the root logger with common.NewLogger and
// applies its level, formatter, output, and caller-reporting settings to
// the package-level logrus logger every component's `logrus.WithField`
// call draws from, so cfg.Logging actually governs the whole process and
// every log line is routed through common.OutputSplitter.
func configureLogging(cfg *vgconfig.Config) {
	root := common.NewLogger(common.LoggerConfig{
		Level:      common.LogLevel(cfg.Logging.Level),
		Format:     cfg.Logging.Format,
		Service:    "vitalgraphd",
		Version:    version.GetVitalGraphVersion(),
		TimeFormat: time.RFC3339,
	})
	logrus.SetFormatter(root.Formatter)
	logrus.SetLevel(root.GetLevel())
	logrus.SetOutput(root.Out)
	logrus.SetReportCaller(root.ReportCaller)

	log.WithFields(logrus.Fields{
		"database_password": common.MaskSecret(cfg.Database.Password),
		"fuseki_password":   common.MaskSecret(cfg.Fuseki.Password),
	}).Info("logging configured")
}

func bearerAuth(cfg *vgconfig.Config) *indexclient.TokenManager {
	if !cfg.Fuseki.EnableAuthentication {
		return nil
	}
	return indexclient.NewTokenManager(indexclient.KeycloakConfig{
		URL:          cfg.Fuseki.Keycloak.URL,
		Realm:        cfg.Fuseki.Keycloak.Realm,
		ClientID:     cfg.Fuseki.Keycloak.ClientID,
		ClientSecret: cfg.Fuseki.Keycloak.ClientSecret,
		Username:     cfg.Fuseki.Keycloak.Username,
		Password:     cfg.Fuseki.Keycloak.Password,
	}, tokenCache(cfg))
}

// tokenCache returns a Redis-backed TokenCache when cfg.Redis.Addr is
// configured, so multiple vitalgraphd instances fronting the same index
// share one bearer token instead of each independently password-granting
// against Keycloak. Falls back to TokenManager's own in-process default
// (passing nil) when no Redis address is configured.
func tokenCache(cfg *vgconfig.Config) indexclient.TokenCache {
	if cfg.Redis.Addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return indexclient.NewRedisTokenCache(client, "vitalgraph:fuseki:bearer_token")
}
