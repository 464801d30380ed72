// Package bootstrap wires the Control Plane, Data Plane, and HTTP surfaces
// into a runnable App from a config.Config, following the teacher's
// App-struct-plus-Run/Shutdown shape.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/oagw/gateway/adapters/clock"
	"github.com/oagw/gateway/adapters/credential"
	apihttp "github.com/oagw/gateway/adapters/http"
	"github.com/oagw/gateway/adapters/idgen"
	"github.com/oagw/gateway/adapters/memory"
	"github.com/oagw/gateway/adapters/metrics"
	"github.com/oagw/gateway/adapters/sqlite"
	"github.com/oagw/gateway/app"
	"github.com/oagw/gateway/config"
	"github.com/oagw/gateway/domain/authplugin"
	"github.com/oagw/gateway/domain/ratelimit"
	"github.com/oagw/gateway/ports"
)

// App is the fully wired gateway process.
type App struct {
	Logger     zerolog.Logger
	Config     *config.Holder
	HTTPServer *http.Server
	HotReload  bool

	DB      *sqlite.DB
	repo    ports.Repository
	limiter *ratelimit.Bank
	Metrics *metrics.Collector

	ControlPlane *app.ControlPlane
	DataPlane    *app.DataPlane
}

// New loads configuration from configPath and wires every collaborator.
func New(configPath string) (*App, error) {
	initial, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := setupLogger(initial.Logging)

	holder, err := config.NewHolder(configPath, logger)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg := holder.Get()

	a := &App{Logger: logger, Config: holder, HotReload: true}

	if err := a.initRepository(cfg.Database); err != nil {
		return nil, fmt.Errorf("init repository: %w", err)
	}

	a.Metrics = metrics.New()
	a.limiter = ratelimit.NewBank(ratelimit.BankConfig{
		NumShards:       cfg.RateLimit.NumShards,
		CleanupInterval: cfg.RateLimit.CleanupInterval,
		MaxIdle:         cfg.RateLimit.MaxIdle,
	})

	authRegistry := authplugin.NewRegistry()
	credResolver := credential.NewEnvResolver()

	a.ControlPlane = app.NewControlPlane(a.repo, authRegistry, idgen.UUID{}, clock.Real{})

	transport := apihttp.NewUpstreamClient(cfg.Proxy.MaxIdleConns, cfg.Proxy.IdleConnTimeout)
	transform := app.NewTransformService()
	a.DataPlane = app.NewDataPlane(a.ControlPlane, a.limiter, authRegistry, credResolver, transport, transform, a.Metrics, app.DataPlaneConfig{
		MaxBodyBytes:   cfg.Proxy.MaxBodyBytes,
		ConnectTimeout: cfg.Proxy.ConnectTimeout,
		RequestTimeout: cfg.Proxy.RequestTimeout,
	})

	a.initHTTPServer(cfg)

	holder.OnChange(func(next *config.Config) {
		a.Logger.Info().Msg("config change observed; rate limit shard count and database settings require a restart to take effect")
	})

	return a, nil
}

func (a *App) initRepository(dbCfg config.DatabaseConfig) error {
	if dbCfg.Driver == "memory" {
		a.repo = memory.New()
		a.Logger.Info().Msg("using in-memory repository")
		return nil
	}

	db, err := sqlite.Open(dbCfg.DSN)
	if err != nil {
		return err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return fmt.Errorf("migrate: %w", err)
	}
	a.DB = db
	a.repo = sqlite.NewRepository(db)
	a.Logger.Info().Str("dsn", dbCfg.DSN).Msg("sqlite repository initialized")
	return nil
}

func (a *App) initHTTPServer(cfg *config.Config) {
	mgmt := apihttp.NewManagementHandler(a.ControlPlane, a.Logger)
	proxy := apihttp.NewProxyHandler(a.DataPlane, a.Logger)
	health := apihttp.NewHealthHandler(a.repo)

	router := apihttp.NewRouter(mgmt, proxy, health, a.Logger, apihttp.RouterConfig{
		Metrics:       a.Metrics,
		EnableOpenAPI: cfg.OpenAPI.Enabled,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	a.HTTPServer = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
}

// Run starts the HTTP server and blocks until SIGINT/SIGTERM, then shuts
// down gracefully.
func (a *App) Run() error {
	if a.HotReload {
		if err := a.Config.WatchFile(); err != nil {
			a.Logger.Warn().Err(err).Msg("config hot-reload disabled")
		}
	}
	a.Config.WatchSignals()

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().Str("addr", a.HTTPServer.Addr).Msg("starting http server")
		if err := a.HTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		a.Logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	return a.Shutdown()
}

// Shutdown stops the config watcher, HTTP server, rate limiter bank, and
// database connection, in that order.
func (a *App) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a.Config.Stop()

	if a.HTTPServer != nil {
		if err := a.HTTPServer.Shutdown(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("http server shutdown error")
		}
	}

	if a.limiter != nil {
		a.limiter.Close()
	}

	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("database close error")
		}
	}

	a.Logger.Info().Msg("shutdown complete")
	return nil
}

func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		return zerolog.New(output).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}
