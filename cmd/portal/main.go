package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"keystone/internal/audit"
	"keystone/internal/email"
	identityhandler "keystone/internal/identity/handler"
	identityservice "keystone/internal/identity/service"
	"keystone/internal/platform/config"
	"keystone/internal/platform/database"
	"keystone/internal/platform/health"
	"keystone/internal/platform/logger"
	"keystone/internal/platform/metrics"
	"keystone/internal/platform/redis"
	sessionhandler "keystone/internal/portalsession/handler"
	"keystone/internal/portalsession/middleware"
	sessionservice "keystone/internal/portalsession/service"
	"keystone/internal/seeder"
	ssohandler "keystone/internal/sso/handler"
	ssoservice "keystone/internal/sso/service"
	"keystone/internal/storage"
	"keystone/internal/tenancy/gate"
	tenancyhandler "keystone/internal/tenancy/handler"
	tenancyservice "keystone/internal/tenancy/service"
	httptransport "keystone/internal/transport/http"
	"keystone/migrations"
	"keystone/pkg/platform/circuit"
	"keystone/pkg/platform/middleware/request"
	"keystone/pkg/ssotoken"
)

const poolStatsInterval = 15 * time.Second

// main wires the portal's dependencies and owns the server lifecycle.
// Business logic lives in the internal service packages.
func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("portal stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	log.Info("initializing keystone portal",
		"addr", cfg.Addr,
		"env", cfg.Env,
		"database", cfg.Database.URL != "",
		"redis", cfg.Redis.URL != "",
		"smtp", cfg.SMTP.Enabled(),
	)

	pool, err := database.New(cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close() //nolint:errcheck // shutdown path
	if pool != nil {
		applied, err := database.NewMigrator(pool.DB(), migrations.FS, log).Up(ctx)
		if err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		log.Info("database ready", "migrations_applied", len(applied))
	} else {
		log.Warn("DATABASE_URL not set, using in-memory stores")
	}

	rc, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if rc != nil {
		defer rc.Close() //nolint:errcheck // shutdown path
	}

	repos := storage.Open(pool, rc)
	m := metrics.New()

	auditPublisher := audit.NewPublisher(repos.Audit,
		audit.WithAsyncBuffer(256),
		audit.WithPublisherLogger(log),
	)
	defer auditPublisher.Close()

	var mailer identityservice.Mailer
	if cfg.SMTP.Enabled() {
		mailer = email.NewGuardedSender(
			email.NewSMTPSender(cfg.SMTP, email.WithSMTPLogger(log)),
			circuit.New("smtp"),
			log,
		)
	} else {
		log.Warn("SMTP not configured, emails are logged instead of sent")
		mailer = email.NewLogSender(log, cfg.IsDev())
	}

	identities := identityservice.New(repos.Users, repos.Recovery,
		identityservice.WithLogger(log),
		identityservice.WithAuditPublisher(auditPublisher),
		identityservice.WithMetrics(m),
		identityservice.WithMailer(mailer),
		identityservice.WithRecoveryTTL(cfg.RecoveryTokenTTL),
		identityservice.WithPortalBaseURL(cfg.PortalBaseURL),
	)

	g := gate.New(repos.Apps, repos.Memberships, repos.Grants,
		gate.WithCacheTTL(cfg.AppCacheTTL),
		gate.WithMetrics(m),
		gate.WithLogger(log),
	)

	sessions := sessionservice.New(repos.Sessions, identities, repos.Memberships,
		sessionservice.WithLogger(log),
		sessionservice.WithAuditPublisher(auditPublisher),
		sessionservice.WithMetrics(m),
		sessionservice.WithSessionTTL(cfg.Session.TTL),
	)

	tenancy := tenancyservice.New(tenancyservice.Stores{
		Tenants:     repos.Tenants,
		Apps:        repos.Apps,
		Memberships: repos.Memberships,
		Grants:      repos.Grants,
	}, g, identities,
		tenancyservice.WithLogger(log),
		tenancyservice.WithAuditPublisher(auditPublisher),
		tenancyservice.WithMetrics(m),
		tenancyservice.WithMailer(mailer),
		tenancyservice.WithSessionRevoker(sessions),
		tenancyservice.WithPortalBaseURL(cfg.PortalBaseURL),
	)

	codec, err := ssotoken.New([]byte(cfg.SSO.SigningSecret),
		ssotoken.WithSSOTTL(cfg.SSO.TokenTTL),
		ssotoken.WithLeeway(cfg.SSO.ClockLeeway),
	)
	if err != nil {
		return fmt.Errorf("sso codec: %w", err)
	}
	issuer := ssoservice.NewIssuer(codec,
		ssoservice.WithIssuerLogger(log),
		ssoservice.WithIssuerAudit(auditPublisher),
		ssoservice.WithIssuerMetrics(m),
	)
	sso := ssoservice.New(g, issuer,
		ssoservice.WithLogger(log),
		ssoservice.WithAuditPublisher(auditPublisher),
		ssoservice.WithMetrics(m),
	)

	if cfg.SeedFile != "" {
		file, err := seeder.Load(cfg.SeedFile)
		if err != nil {
			return err
		}
		stats, err := seeder.New(identities, repos.Tenants, repos.Apps, repos.Memberships, repos.Grants, log).Seed(ctx, file)
		if err != nil {
			return fmt.Errorf("seed: %w", err)
		}
		log.Info("seed applied",
			"file", cfg.SeedFile,
			"tenants", stats.Tenants,
			"apps", stats.Apps,
			"users", stats.Users,
			"memberships", stats.Memberships,
			"grants", stats.Grants,
		)
	}

	healthHandler := health.New(cfg.Env)
	if pool != nil {
		healthHandler.RegisterCheck("database", pool.Health)
	}
	if rc != nil {
		healthHandler.RegisterCheck("redis", rc.Health)
	}

	cookie := middleware.Cookie{Name: cfg.Session.CookieName, Secure: cfg.Session.CookieSecure}
	router := httptransport.NewRouter(httptransport.Deps{
		Logger:   log,
		Resolver: sessions,
		Cookie:   cookie,
		Handlers: []httptransport.RouteRegistrar{
			sessionhandler.New(sessions, cookie, log),
			identityhandler.New(identities, log),
			tenancyhandler.New(tenancy, log),
			ssohandler.New(sso, log),
		},
		Health:         healthHandler,
		MetricsHandler: promhttp.Handler(),
		Latency:        request.NewMetrics(),
		LoginRateLimit: cfg.LoginRateLimit,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Info("starting http server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if rc != nil {
		group.Go(func() error {
			ticker := time.NewTicker(poolStatsInterval)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					rc.RecordPoolStats()
				}
			}
		})
	}
	group.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})
	return group.Wait()
}
