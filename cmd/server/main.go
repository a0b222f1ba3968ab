// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/opentrusty/farmgate/internal/audit"
	"github.com/opentrusty/farmgate/internal/authz"
	"github.com/opentrusty/farmgate/internal/config"
	"github.com/opentrusty/farmgate/internal/grant"
	"github.com/opentrusty/farmgate/internal/identity"
	"github.com/opentrusty/farmgate/internal/observability/logger"
	"github.com/opentrusty/farmgate/internal/observability/metrics"
	"github.com/opentrusty/farmgate/internal/observability/tracing"
	"github.com/opentrusty/farmgate/internal/rbac"
	"github.com/opentrusty/farmgate/internal/store/postgres"
	"github.com/opentrusty/farmgate/internal/tenant"
	transportHTTP "github.com/opentrusty/farmgate/internal/transport/http"
)

const bootstrapTokenTTL = 24 * time.Hour

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger.InitLogger(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
		OTelBridge:  cfg.Observability.OTELEnabled,
	})

	// Phase: CLI Commands
	if len(os.Args) > 1 {
		if err := runCommand(cfg, os.Args[1], os.Args[2:]); err != nil {
			fmt.Printf("%s failed: %v\n", os.Args[1], err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	slog.Info("starting farmgate", logger.String("storage", cfg.Storage.Driver))

	ctx := context.Background()

	// Initialize tracer
	tracer, err := tracing.New(ctx, tracing.Config{
		Enabled:        cfg.Observability.OTELEnabled,
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		SampleRatio:    cfg.Observability.TraceSampleRatio,
	})
	if err != nil {
		slog.Error("failed to initialize tracer", logger.Error(err))
		os.Exit(1)
	}
	defer tracer.Shutdown(ctx)

	// Initialize meter
	meter, err := metrics.New(ctx, metrics.Config{
		Enabled:        cfg.Observability.OTELEnabled,
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
	})
	if err != nil {
		slog.Error("failed to initialize meter", logger.Error(err))
		os.Exit(1)
	}
	defer meter.Shutdown(ctx)

	// Initialize repositories
	repos, err := openRepositories(ctx, cfg)
	if err != nil {
		slog.Error("failed to open storage", logger.Error(err))
		os.Exit(1)
	}
	defer repos.close()

	app, err := newApp(ctx, cfg, repos, audit.NewSlogLogger(),
		authz.WithMeter(meter.GetMeter()),
		authz.WithTracer(tracer.GetTracer()),
	)
	if err != nil {
		slog.Error("failed to initialize services", logger.Error(err))
		os.Exit(1)
	}

	// The in-memory store starts empty on every boot, so it needs an operator.
	if cfg.Storage.Driver == config.DriverMemory {
		op, token, err := app.bootstrapOperator(ctx, "operator")
		if err != nil {
			slog.Error("bootstrap failed", logger.Error(err))
			os.Exit(1)
		}
		slog.Info("bootstrapped system operator", logger.PrincipalID(op.ID))
		fmt.Fprintf(os.Stderr, "operator token: %s\n", token)
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	// Rate Limiter
	rateLimiter := transportHTTP.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	go rateLimiter.Run(runCtx)

	// Start grant sweeper
	if cfg.Grants.SweepInterval > 0 {
		swept, err := meter.CreateCounter("farmgate.grants.swept", "Expired tenant grants deactivated by the sweeper")
		if err != nil {
			slog.Error("failed to create sweep counter", logger.Error(err))
			os.Exit(1)
		}
		go runSweeper(runCtx, app.grants, tracer, cfg.Grants.SweepInterval, swept)
	}

	router := transportHTTP.NewRouter(app.handler, rateLimiter, cfg.Server.RequestTimeout)

	// Create HTTP server
	addr := cfg.Server.Addr()
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server
	go func() {
		slog.Info("starting http server", logger.Component("server"), logger.Operation("listen"), logger.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", logger.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")
	stop()

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", logger.Error(err))
	}

	slog.Info("server stopped")
}

func runCommand(cfg *config.Config, name string, args []string) error {
	ctx := context.Background()
	switch name {
	case "migrate":
		return runMigrate(ctx, cfg)
	case "bootstrap":
		return runBootstrap(ctx, cfg, args)
	case "token":
		return runToken(cfg, args)
	default:
		return fmt.Errorf("unknown command %q (want migrate, bootstrap or token)", name)
	}
}

// runBootstrap creates a system operator with SUPER_ADMIN and prints a token for it
func runBootstrap(ctx context.Context, cfg *config.Config, args []string) error {
	username := "operator"
	if len(args) > 0 {
		username = args[0]
	}

	repos, err := openRepositories(ctx, cfg)
	if err != nil {
		return err
	}
	defer repos.close()

	app, err := newApp(ctx, cfg, repos, audit.NewSlogLogger())
	if err != nil {
		return err
	}
	op, token, err := app.bootstrapOperator(ctx, username)
	if err != nil {
		return err
	}
	fmt.Printf("operator id: %d\ntoken: %s\n", op.ID, token)
	return nil
}

// runToken issues a bearer token for an existing principal id
func runToken(cfg *config.Config, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: token <principal-id> [ttl]")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return fmt.Errorf("invalid principal id %q", args[0])
	}
	ttl := time.Hour
	if len(args) > 1 {
		if ttl, err = time.ParseDuration(args[1]); err != nil {
			return fmt.Errorf("invalid ttl: %w", err)
		}
	}

	token, err := transportHTTP.NewTokenAuthority(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer).Issue(id, ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func runMigrate(ctx context.Context, cfg *config.Config) error {
	if cfg.Storage.Driver != config.DriverPostgres {
		return fmt.Errorf("migrate requires STORAGE_DRIVER=%s", config.DriverPostgres)
	}
	db, err := postgres.New(ctx, postgresConfig(cfg))
	if err != nil {
		return err
	}
	defer db.Close()

	fmt.Println("Applying initial schema...")
	if err := db.Migrate(ctx, postgres.InitialSchema); err != nil {
		return err
	}
	fmt.Println("Migration successful.")
	return nil
}

// runSweeper deactivates lapsed grants every interval until ctx is done.
// Authorization never waits on it.
func runSweeper(ctx context.Context, grants *grant.Service, tracer *tracing.Tracer, interval time.Duration, swept metric.Int64Counter) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			err := tracer.Run(ctx, "grant.SweepExpired", func(ctx context.Context) error {
				n, err := grants.SweepExpired(ctx, now)
				if err != nil {
					return err
				}
				if n > 0 {
					swept.Add(ctx, n)
					slog.InfoContext(ctx, "deactivated expired grants", logger.RowsAffected(n))
				}
				return nil
			})
			if err != nil {
				slog.ErrorContext(ctx, "failed to sweep expired grants", logger.Error(err))
			}
		}
	}
}

// app is the assembled service graph behind the HTTP handler
type app struct {
	graph    *rbac.Graph
	identity *identity.Service
	grants   *grant.Service
	tokens   *transportHTTP.TokenAuthority
	handler  *transportHTTP.Handler
}

func newApp(ctx context.Context, cfg *config.Config, repos *repositories, auditLogger audit.Logger, opts ...authz.Option) (*app, error) {
	graph := rbac.NewGraph(repos.roles, repos.permissions, repos.principals, auditLogger)
	if err := graph.SeedSystemCatalog(ctx); err != nil {
		return nil, fmt.Errorf("failed to seed role catalog: %w", err)
	}

	identityService := identity.NewService(repos.principals, auditLogger)
	tenantService := tenant.NewService(repos.tenants, repos.principals, graph, auditLogger)
	grantService := grant.NewService(repos.grants, repos.tenants, repos.principals, auditLogger)

	engine, err := authz.NewEngine(grantService, graph, auditLogger, opts...)
	if err != nil {
		return nil, err
	}
	tokens := transportHTTP.NewTokenAuthority(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer)

	handler := transportHTTP.NewHandler(transportHTTP.Deps{
		Principals: repos.principals,
		Identity:   identityService,
		Tenants:    tenantService,
		Grants:     grantService,
		Graph:      graph,
		Engine:     engine,
		Tokens:     tokens,
	})

	return &app{
		graph:    graph,
		identity: identityService,
		grants:   grantService,
		tokens:   tokens,
		handler:  handler,
	}, nil
}

func (a *app) bootstrapOperator(ctx context.Context, username string) (*identity.Principal, string, error) {
	op, err := identity.NewPrincipal(0, identity.LevelSystemOperator, nil, identity.OperatorAttributes{Department: "platform"})
	if err != nil {
		return nil, "", err
	}
	now := time.Now()
	op.Username = username
	op.CreatedAt = now
	op.UpdatedAt = now

	if _, err := a.identity.Register(ctx, op, audit.ActorSystem); err != nil {
		return nil, "", err
	}
	if err := a.graph.AssignRole(ctx, audit.ActorSystem, op, rbac.RoleSuperAdmin); err != nil {
		return nil, "", fmt.Errorf("failed to assign operator role: %w", err)
	}

	token, err := a.tokens.Issue(op.ID, bootstrapTokenTTL)
	if err != nil {
		return nil, "", err
	}
	return op, token, nil
}
