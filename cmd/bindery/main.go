// Package main provides the Bindery edge security service.
//
// Bindery sits in front of the book club platform and applies the request
// security pipeline: rate limiting, session resolution, HTTPS enforcement
// and security header merging.
package main

import (
	"flag"
	"log"
	"log/slog"
	"os"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/bindery-io/bindery/internal/audit"
	"github.com/bindery-io/bindery/internal/config"
	"github.com/bindery-io/bindery/internal/session"
	"github.com/bindery-io/bindery/internal/web"
	"github.com/bindery-io/bindery/internal/web/middleware"
)

// Version information.
const (
	version = "1.0.0-dev"
	name    = "bindery"
)

func main() {
	versionFlag := flag.Bool("version", false, "show version information")
	flag.Parse()

	if *versionFlag {
		log.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	serverConfig := web.LoadServerConfig()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: serverConfig.LogLevel,
	}))

	mode := config.LoadRuntimeMode()

	logger.Info("Starting Bindery service",
		slog.String("service", name),
		slog.String("version", version),
		slog.String("mode", mode.String()),
	)

	logger.Info("Loaded server configuration",
		slog.String("host", serverConfig.Host),
		slog.Int("port", serverConfig.Port),
		slog.Duration("read_timeout", serverConfig.ReadTimeout),
		slog.Duration("write_timeout", serverConfig.WriteTimeout),
		slog.Duration("shutdown_timeout", serverConfig.ShutdownTimeout),
		slog.String("log_level", serverConfig.LogLevel.String()),
	)

	// Rate limiting runs only in production; development traffic is never throttled.
	var limiter middleware.Limiter

	if mode.IsProduction() {
		middlewareConfig := middleware.LoadConfig()
		if err := middlewareConfig.Validate(); err != nil {
			logger.Error("Invalid rate limit configuration", slog.String("error", err.Error()))
			os.Exit(1)
		}

		limiter = middleware.NewFixedWindowLimiter(middlewareConfig)

		logger.Info("Rate limiter initialized",
			slog.Duration("window", middlewareConfig.Window),
			slog.Int("max_requests_per_window", middlewareConfig.MaxRequestsPerWindow),
			slog.Int("global_rps", middlewareConfig.GlobalRPS),
			slog.Int("global_burst", middlewareConfig.GlobalBurst),
		)
		logger.Warn("Rate limit counters are per-instance",
			slog.String("note", "Horizontally scaled deployments multiply the effective limit by the instance count"),
		)
	} else {
		logger.Warn("Rate limiting disabled outside production mode")
	}

	// Session store: PostgreSQL when DATABASE_URL is set, in-memory otherwise.
	var sessionStore session.Store

	sessionConfig := session.LoadConfig()
	if sessionConfig.Configured() {
		db, err := session.Open(sessionConfig)
		if err != nil {
			logger.Error("Failed to connect to session database", slog.String("error", err.Error()))
			os.Exit(1)
		}

		if err := session.Migrate(db); err != nil {
			logger.Error("Failed to run session migrations", slog.String("error", err.Error()))

			_ = db.Close()
			//nolint:gocritic // Explicit cleanup before os.Exit is intentional (defer won't run)
			os.Exit(1)
		}

		sessionStore = session.NewPersistentStore(db, logger)

		logger.Info("Persistent session store initialized",
			slog.String("database_url", sessionConfig.MaskDatabaseURL()),
			slog.Int("database_max_open_conns", sessionConfig.MaxOpenConns),
			slog.Int("database_max_idle_conns", sessionConfig.MaxIdleConns),
		)
	} else {
		sessionStore = session.NewMemoryStore()

		logger.Warn("DATABASE_URL not set, using in-memory session store",
			slog.String("note", "Sessions will not survive a restart"),
		)
	}

	// Audit recorder: optional, enabled by configuring Kafka brokers.
	var recorder audit.Recorder

	brokers := config.ParseCommaSeparatedList(config.GetEnvStr("BINDERY_KAFKA_BROKERS", ""))
	if len(brokers) > 0 {
		topic := config.GetEnvStr("BINDERY_KAFKA_TOPIC", "bindery.audit")
		recorder = audit.NewKafkaRecorder(brokers, topic, logger)

		logger.Info("Audit recorder initialized",
			slog.Any("brokers", brokers),
			slog.String("topic", topic),
		)
	} else {
		logger.Warn("BINDERY_KAFKA_BROKERS not set, audit events disabled")
	}

	server := web.NewServer(serverConfig, mode, limiter, sessionStore, recorder, nil)

	if err := server.Start(); err != nil {
		logger.Error("Server failed to start",
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	logger.Info("Bindery service stopped")
}
