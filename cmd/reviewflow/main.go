package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	zaplogfmt "github.com/sykesm/zap-logfmt"
	"github.com/thecodeteam/goodbye"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/simplesurance/reviewflow/internal/auditlog"
	"github.com/simplesurance/reviewflow/internal/cfg"
	"github.com/simplesurance/reviewflow/internal/githubclt"
	"github.com/simplesurance/reviewflow/internal/logfields"
	"github.com/simplesurance/reviewflow/internal/notification"
	"github.com/simplesurance/reviewflow/internal/provider/github"
	"github.com/simplesurance/reviewflow/internal/retryer"
	"github.com/simplesurance/reviewflow/internal/reviewflow"
)

const appName = "reviewflow"

var logger *zap.Logger

// Version is set via a ldflag on compilation
var Version = "unknown"

const (
	initialSyncTimeout = 30 * time.Minute
	dbConnectTimeout   = time.Minute
)

func exitOnErr(msg string, err error) {
	if err == nil {
		return
	}

	fmt.Fprintln(os.Stderr, "ERROR:", msg+", error:", err.Error())
	os.Exit(1)
}

func panicHandler() {
	if r := recover(); r != nil {
		logger.Info(
			"panic caught, terminating gracefully",
			zap.String("panic", fmt.Sprintf("%v", r)),
			zap.StackSkip("stacktrace", 1),
		)

		ctx, cancelFn := context.WithTimeout(context.Background(), time.Minute)
		defer cancelFn()

		goodbye.Exit(ctx, 1)
	}
}

func registerServerShutdown(name string, srv *http.Server) {
	goodbye.Register(func(context.Context, os.Signal) {
		const shutdownTimeout = 30 * time.Second
		ctx, cancelFn := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelFn()

		logger.Debug(
			"terminating "+name+" server",
			logfields.Event(name+"_server_terminating"),
			zap.Duration("shutdown_timeout", shutdownTimeout),
		)

		err := srv.Shutdown(ctx)
		if err != nil {
			logger.Warn(
				"shutting down "+name+" server failed",
				logfields.Event(name+"_server_termination_failed"),
				zap.Error(err),
			)
		}
	})
}

func startHTTPSServer(listenAddr, certFile, keyFile string, handler http.Handler) {
	httpsServer := http.Server{
		Addr:              listenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 30 * time.Second,
	}

	registerServerShutdown("https", &httpsServer)

	go func() {
		defer panicHandler()

		logger.Info(
			"https server started",
			logfields.Event("https_server_started"),
			zap.String("listenAddr", listenAddr),
		)

		err := httpsServer.ListenAndServeTLS(certFile, keyFile)
		if errors.Is(err, http.ErrServerClosed) {
			logger.Info("https server terminated", logfields.Event("https_server_terminated"))
			return
		}

		logger.Fatal(
			"https server terminated unexpectedly",
			logfields.Event("https_server_terminated_unexpectedly"),
			zap.Error(err),
		)
	}()
}

func startHTTPServer(listenAddr string, handler http.Handler) {
	httpServer := http.Server{
		Addr:              listenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 30 * time.Second,
	}

	registerServerShutdown("http", &httpServer)

	go func() {
		defer panicHandler()

		logger.Info(
			"http server started",
			logfields.Event("http_server_started"),
			zap.String("listenAddr", listenAddr),
		)

		err := httpServer.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			logger.Info("http server terminated", logfields.Event("http_server_terminated"))
			return
		}

		logger.Fatal(
			"http server terminated unexpectedly",
			logfields.Event("http_server_terminated_unexpectedly"),
			zap.Error(err),
		)
	}()
}

type arguments struct {
	Verbose     *bool
	DryRun      *bool
	ConfigFile  *string
	ShowVersion *bool
}

var args arguments

const defConfigFile = "/etc/reviewflow/config.toml"

func mustParseCommandlineParams() {
	args = arguments{
		Verbose: pflag.BoolP(
			"verbose",
			"v",
			false,
			"enable verbose logging",
		),
		DryRun: pflag.Bool(
			"dry-run",
			false,
			"log GitHub write operations instead of executing them, overrides dry_run of the config file",
		),
		ConfigFile: pflag.StringP(
			"cfg-file",
			"c",
			defConfigFile,
			"path to the reviewflow configuration file",
		),
		ShowVersion: pflag.Bool(
			"version",
			false,
			"print the version and exit",
		),
	}

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTION]\nApply the review workflow to GitHub pull requests and merge them automatically.\n", appName)
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		pflag.PrintDefaults()
	}

	pflag.Parse()
}

func mustParseCfg() *cfg.Config {
	// exitOnErr is used instead of logger.Fatal() because the logger is
	// not initialized yet

	file, err := os.Open(*args.ConfigFile)
	exitOnErr("could not open configuration file", err)
	defer file.Close()

	config, err := cfg.Load(file)
	if err != nil {
		exitOnErr(fmt.Sprintf("could not load configuration file: %s", *args.ConfigFile), err)
	}

	return config
}

func initLogFmtLogger(config *cfg.Config, logLevel zapcore.Level) *zap.Logger {
	cfg := zapEncoderConfig(config)

	return zap.New(zapcore.NewCore(
		zaplogfmt.NewEncoder(cfg),
		os.Stdout,
		logLevel),
	)
}

func zapEncoderConfig(config *cfg.Config) zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()

	cfg.LevelKey = "loglevel"
	cfg.TimeKey = config.LogTimeKey
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeDuration = zapcore.StringDurationEncoder

	return cfg
}

func mustInitZapFormatLogger(config *cfg.Config, logLevel zapcore.Level) *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.Sampling = nil
	cfg.EncoderConfig = zapEncoderConfig(config)
	cfg.OutputPaths = []string{"stdout"}
	cfg.Encoding = config.LogFormat
	cfg.Level = zap.NewAtomicLevelAt(logLevel)

	logger, err := cfg.Build()
	exitOnErr("could not initialize logger", err)

	return logger
}

func mustInitLogger(config *cfg.Config) {
	var logLevel zapcore.Level
	if *args.Verbose {
		logLevel = zapcore.DebugLevel
	} else if err := (&logLevel).Set(config.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "can not set log level to %q: %s\n", config.LogLevel, err)
		os.Exit(2)
	}

	switch config.LogFormat {
	case "logfmt":
		logger = initLogFmtLogger(config, logLevel)
	case "console", "json":
		logger = mustInitZapFormatLogger(config, logLevel)
	default:
		fmt.Fprintf(os.Stderr, "unsupported log-format argument: %q\n", config.LogFormat)
		os.Exit(2)
	}

	logger = logger.Named("main")
	zap.ReplaceGlobals(logger)

	goodbye.Register(func(context.Context, os.Signal) {
		if err := logger.Sync(); err != nil {
			fmt.Fprintf(os.Stderr, "flushing logs failed: %s\n", err)
		}
	})
}

func hide(in string) string {
	if in == "" {
		return in
	}

	return "**hidden**"
}

func mustInitAuditStore(config *cfg.Config) auditlog.Store {
	if config.PostgresDSN == "" {
		logger.Info(
			"postgres_dsn is unset, audit records are kept in memory",
			logfields.Event("audit_store_memory"),
			zap.Int("capacity", auditlog.DefMemoryCapacity),
		)

		return auditlog.NewMemoryStore(auditlog.DefMemoryCapacity)
	}

	ctx, cancelFn := context.WithTimeout(context.Background(), dbConnectTimeout)
	defer cancelFn()

	pool, err := auditlog.Connect(ctx, config.PostgresDSN)
	if err != nil {
		logger.Fatal(
			"connecting to audit log database failed",
			logfields.Event("audit_db_connect_failed"),
			zap.Error(err),
		)
	}

	goodbye.Register(func(context.Context, os.Signal) {
		pool.Close()
	})

	store := auditlog.NewPostgresStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		logger.Fatal(
			"creating audit log table failed",
			logfields.Event("audit_db_schema_failed"),
			zap.Error(err),
		)
	}

	logger.Info("audit records are stored in postgres", logfields.Event("audit_store_postgres"))

	return store
}

func mustInitNotificationSink(config *cfg.Config, r *retryer.Retryer) notification.Sink {
	if config.SlackBotToken == "" {
		return notification.NewLogSink()
	}

	opts := []notification.SlackOption{
		notification.WithSlackIDs(config.SlackIDs),
		notification.WithDefaultChannel(config.SlackChannel),
	}
	if config.SlackAPIURL != "" {
		opts = append(opts, notification.WithAPIURL(config.SlackAPIURL))
	}

	return notification.NewSlackSink(config.SlackBotToken, r, opts...)
}

func main() {
	defer panicHandler()

	defer goodbye.Exit(context.Background(), 1)
	goodbye.Notify(context.Background())

	mustParseCommandlineParams()

	if *args.ShowVersion {
		fmt.Printf("%s %s\n", appName, Version)
		os.Exit(0) // nolint:gocritic // defer functions won't run
	}

	config := mustParseCfg()
	if *args.DryRun {
		config.DryRun = true
	}

	mustInitLogger(config)

	logger.Info(
		"loaded cfg file",
		logfields.Event("cfg_loaded"),
		zap.String("cfg_file", *args.ConfigFile),
		zap.String("http_server_listen_addr", config.HTTPListenAddr),
		zap.String("https_server_listen_addr", config.HTTPSListenAddr),
		zap.String("github_webhook_endpoint", config.HTTPGithubWebhookEndpoint),
		zap.String("github_webhook_secret", hide(config.GithubWebHookSecret)),
		zap.String("github_api_token", hide(config.GithubAPIToken)),
		zap.String("postgres_dsn", hide(config.PostgresDSN)),
		zap.String("slack_bot_token", hide(config.SlackBotToken)),
		zap.String("slack_channel", config.SlackChannel),
		zap.String("metrics_endpoint", config.MetricsEndpoint),
		zap.String("status_endpoint", config.StatusEndpoint),
		zap.Int("event_workers", config.EventWorkers),
		zap.Bool("dry_run", config.DryRun),
		zap.String("log_format", config.LogFormat),
		zap.String("log_time_key", config.LogTimeKey),
		zap.String("log_level", config.LogLevel),
	)

	goodbye.Register(func(_ context.Context, sig os.Signal) {
		logger.Info(fmt.Sprintf("terminating, received signal %s", sig.String()))
	})

	var githubClient githubclt.API = githubclt.New(config.GithubAPIToken)
	if config.DryRun {
		githubClient = githubclt.NewDryClient(githubClient, logger)
		logger.Info("dry-run mode enabled, GitHub write operations are only logged", logfields.Event("dry_run_enabled"))
	}

	notifyRetryer := retryer.New()
	goodbye.Register(func(context.Context, os.Signal) {
		notifyRetryer.Stop()
	})

	registry, err := reviewflow.NewRegistry(
		config,
		githubClient,
		mustInitNotificationSink(config, notifyRetryer),
		mustInitAuditStore(config),
	)
	exitOnErr("initializing repositories failed", err)

	evLoop := reviewflow.NewEventLoop(registry, config.EventWorkers)

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)

	gh := github.New(
		evLoop.C(),
		github.WithPayloadSecret(config.GithubWebHookSecret),
	)

	router.Post(config.HTTPGithubWebhookEndpoint, gh.HTTPHandler)
	logger.Info(
		"registered github webhook event http endpoint",
		logfields.Event("github_http_handler_registered"),
		zap.String("endpoint", config.HTTPGithubWebhookEndpoint),
	)

	if config.MetricsEndpoint != "" {
		router.Handle(config.MetricsEndpoint, promhttp.Handler())
		logger.Info(
			"registered prometheus metrics http endpoint",
			logfields.Event("metrics_http_handler_registered"),
			zap.String("endpoint", config.MetricsEndpoint),
		)
	}

	if config.StatusEndpoint != "" {
		reviewflow.NewHTTPService(registry).RegisterHandlers(router, config.StatusEndpoint)
		logger.Info(
			"registered status http endpoint",
			logfields.Event("status_http_handler_registered"),
			zap.String("endpoint", config.StatusEndpoint),
		)
	}

	if config.HTTPListenAddr != "" {
		startHTTPServer(config.HTTPListenAddr, router)
	}

	if config.HTTPSListenAddr != "" {
		startHTTPSServer(
			config.HTTPSListenAddr,
			config.HTTPSCertFile,
			config.HTTPSKeyFile,
			router,
		)
	}

	goodbye.Register(func(context.Context, os.Signal) {
		logger.Debug("stopping event loop", logfields.Event("event_loop_stopping"))
		evLoop.Stop()

		logger.Debug("stopping merge queues", logfields.Event("registry_stopping"))
		registry.Stop()
	})

	// webhook events that arrive during the synchronization are buffered
	// in the event channel
	syncCtx, cancelFn := context.WithTimeout(context.Background(), initialSyncTimeout)
	err = registry.InitSync(syncCtx)
	cancelFn()
	if err != nil {
		logger.Error(
			"initial synchronization failed",
			logfields.Event("initial_sync_failed"),
			zap.Error(err),
		)
	}

	evLoop.Start()

	select {}
}
