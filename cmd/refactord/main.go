// Command refactord is the control plane's HTTP server: it wires
// together the Project Store, Container Driver, Provisioner, Agent
// Relay, Log Streamer, Filesystem Browser, and Public HTTP Surface.
package main

import (
	"context"
	"crypto/rand"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/jordanhubbard/refactorctl/internal/agentrelay"
	"github.com/jordanhubbard/refactorctl/internal/authn"
	"github.com/jordanhubbard/refactorctl/internal/browser"
	"github.com/jordanhubbard/refactorctl/internal/controlapi"
	"github.com/jordanhubbard/refactorctl/internal/cpcache"
	"github.com/jordanhubbard/refactorctl/internal/cpconfig"
	"github.com/jordanhubbard/refactorctl/internal/cplog"
	"github.com/jordanhubbard/refactorctl/internal/cpmetrics"
	"github.com/jordanhubbard/refactorctl/internal/cptrace"
	"github.com/jordanhubbard/refactorctl/internal/dockercli"
	"github.com/jordanhubbard/refactorctl/internal/events"
	"github.com/jordanhubbard/refactorctl/internal/logstream"
	"github.com/jordanhubbard/refactorctl/internal/projectstore"
	"github.com/jordanhubbard/refactorctl/internal/provisioner"
	"github.com/jordanhubbard/refactorctl/internal/statemachine"
	"github.com/jordanhubbard/refactorctl/internal/workspace"
)

const version = "0.1.0"

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("refactord v%s\n", version)
		return
	}

	cfg := cpconfig.Default()
	if _, err := os.Stat(*configPath); err == nil {
		loaded, err := cpconfig.LoadFromFile(*configPath)
		if err != nil {
			log.Fatalf("failed to load config from %s: %v", *configPath, err)
		}
		cfg = loaded
	} else {
		log.Printf("no config file at %s, using defaults", *configPath)
	}

	store, err := openStore(cfg.Database.DSN)
	if err != nil {
		log.Fatalf("failed to open project store: %v", err)
	}

	publisher := openPublisher(cfg.Events.NatsURL, cfg.Events.StreamName)
	defer publisher.Close()

	cache := openCache(cfg)
	defer closeCacheIfCloser(cache)

	if cfg.Telemetry.OTLPEndpoint != "" {
		shutdown, err := cptrace.Init(context.Background(), cfg.Telemetry.ServiceName, cfg.Telemetry.OTLPEndpoint)
		if err != nil {
			log.Printf("telemetry init failed: %v", err)
		} else {
			defer shutdown(context.Background())
		}
	}
	var metrics *cpmetrics.Metrics
	if cfg.Telemetry.MetricsEnabled {
		metrics = cpmetrics.NewMetrics()
	}

	logs := cplog.NewManager(nil)
	logs.InstallInterceptor()

	driver := dockercli.New()
	ws := workspace.New(cfg.Workspace.Root, cfg.Workspace.CredentialsMount)
	machine := statemachine.New(store, publisher)

	prov := provisioner.New(store, machine, driver, ws, provisioner.Config{
		Image:           cfg.Container.Image,
		Network:         cfg.Container.Network,
		CPULimit:        cfg.Container.CPULimit,
		MemoryLimitM:    cfg.Container.MemoryLimitM,
		CloneDepth:      cfg.Provisioner.CloneDepth,
		CloneTimeout:    cfg.Provisioner.CloneTimeout,
		HealthPollEvery: cfg.Provisioner.HealthPollEvery,
		HealthPollFor:   cfg.Provisioner.HealthPollFor,
		AgentPort:       cfg.Container.AgentPort,

		DevModeSourcePath: cfg.DevMode.SourcePath,
		DevModeMountDst:   cfg.DevMode.MountDst,
	})
	relay := agentrelay.New(store, cfg.Container.AgentPort)
	relay.SetCache(cache)
	streamer := logstream.New(driver)
	fsBrowser := browser.New(driver, 0, 0)

	jwtSecret := cfg.Auth.JWTSecret
	if jwtSecret == "" {
		log.Println("warning: no auth.jwt_secret configured, generating an ephemeral one")
		jwtSecret = randomSecret()
	}
	authenticator := authn.NewJWTAuthenticator(jwtSecret)

	server := controlapi.New(controlapi.Deps{
		Store:       store,
		Machine:     machine,
		Provisioner: prov,
		Relay:       relay,
		Logs:        streamer,
		FS:          fsBrowser,
		Driver:      driver,
		Auth:        authenticator,
		Metrics:     metrics,
		CORSOrigins: cfg.Server.CORSOrigins,
	})

	var handler http.Handler = server.Handler()
	handler = otelhttp.NewHandler(handler, "refactord-http-server")

	httpSrv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Printf("refactord listening on %s", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
}

func openStore(dsn string) (projectstore.Store, error) {
	if dsn == "" {
		log.Println("no database.dsn configured, using the in-memory project store")
		return projectstore.NewMemoryStore(), nil
	}
	return projectstore.OpenPostgres(dsn)
}

func openPublisher(natsURL, streamName string) events.Publisher {
	if natsURL == "" {
		return events.NoopPublisher{}
	}
	pub, err := events.NewNatsPublisher(events.NatsConfig{
		URL:        natsURL,
		StreamName: streamName,
		Timeout:    5 * time.Second,
	})
	if err != nil {
		log.Printf("nats publisher init failed, falling back to noop: %v", err)
		return events.NoopPublisher{}
	}
	return pub
}

func openCache(cfg *cpconfig.Config) cpcache.Cache {
	if cfg.Cache.Backend == "redis" && cfg.Cache.RedisURL != "" {
		return cpcache.NewRedis(cfg.Cache.RedisURL, "", 0, cfg.Cache.Prefix)
	}
	return cpcache.NewMemory()
}

func closeCacheIfCloser(c cpcache.Cache) {
	if closer, ok := c.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
}

func randomSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "refactord-insecure-default-secret"
	}
	return fmt.Sprintf("%x", b)
}
