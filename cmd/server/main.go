// server runs the auth flow BFF over HTTP and the gRPC health endpoint.
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc/health"

	"accountability-assistant/backend/internal/audit"
	auditrepo "accountability-assistant/backend/internal/audit/repository"
	"accountability-assistant/backend/internal/authflow"
	"accountability-assistant/backend/internal/config"
	"accountability-assistant/backend/internal/db"
	"accountability-assistant/backend/internal/devotp"
	devotphandler "accountability-assistant/backend/internal/devotp/handler"
	healthhandler "accountability-assistant/backend/internal/health/handler"
	"accountability-assistant/backend/internal/identity/gotrue"
	"accountability-assistant/backend/internal/identity/local"
	"accountability-assistant/backend/internal/logger"
	"accountability-assistant/backend/internal/otp"
	otpdomain "accountability-assistant/backend/internal/otp/domain"
	"accountability-assistant/backend/internal/otp/email"
	otprepo "accountability-assistant/backend/internal/otp/repository"
	"accountability-assistant/backend/internal/otp/sms"
	"accountability-assistant/backend/internal/profiledir"
	"accountability-assistant/backend/internal/ratelimit"
	"accountability-assistant/backend/internal/server"
	"accountability-assistant/backend/internal/session"
	"accountability-assistant/backend/internal/telemetry"
	telemetryotel "accountability-assistant/backend/internal/telemetry/otel"
	userrepo "accountability-assistant/backend/internal/user/repository"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.L().Fatal("config", zap.Error(err))
	}
	logger.Init(logger.Config{Env: cfg.Env, Level: cfg.LogLevel, ServiceName: cfg.ServiceName})
	log := logger.L()
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := telemetryotel.NewProviders(ctx, telemetryotel.Config{
		Endpoint:    cfg.OTLPEndpoint,
		Insecure:    cfg.OTLPInsecure,
		ServiceName: cfg.ServiceName,
		Environment: cfg.Env,
		SampleRatio: cfg.OTLPSampleRatio,
	}, log.Named("telemetry"))
	if err != nil {
		return err
	}
	providers.SetGlobal()
	defer func() {
		// Let async emits drain before the exporters close.
		time.Sleep(telemetry.ShutdownDrainDuration)
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = providers.Shutdown(sctx)
	}()

	checks := healthhandler.NewServer(log.Named("health"))
	recorders := authflow.Recorders{
		telemetry.NewRecorder(telemetryotel.NewEventEmitter(providers.LoggerProvider), server.FlowID, log.Named("telemetry")),
	}

	var auditLog *audit.Logger
	if cfg.DatabaseURL != "" {
		database, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer database.Close()
		checks.Add("postgres", database)
		auditLog = audit.NewLogger(auditrepo.NewPostgresRepository(database), server.ClientIP, server.FlowID, log.Named("audit"))
		defer auditLog.Wait()
		recorders = append(recorders, auditLog)
	}

	limiter, closeLimiter, err := newLimiter(cfg, checks)
	if err != nil {
		return err
	}
	defer closeLimiter()

	var devStore *devotp.MemoryStore
	if cfg.OTPReturnToClient {
		devStore = devotp.NewMemoryStore()
		log.Warn("dev OTP mode enabled: codes are served from /dev/otp and never delivered")
	}

	factory, err := newProviderFactory(cfg, devStore, log)
	if err != nil {
		return err
	}
	dir := profiledir.NewClient(cfg.ProfileDirectoryURL, cfg.ProfileDirectoryAPIKey, cfg.DirectoryTimeout())
	flows := session.NewStore(factory, dir, cfg.FlowIdleTTL(),
		session.WithLogger(log.Named("session")),
		session.WithControllerOptions(
			authflow.WithLogger(log.Named("authflow")),
			authflow.WithRecorder(recorders),
		),
	)
	defer flows.Flush()

	deps := server.Deps{
		Flows:              flows,
		Health:             checks,
		Limiter:            limiter,
		AppBaseURL:         cfg.AppBaseURL,
		CallbackURL:        cfg.CallbackURL(),
		DefaultCountryCode: cfg.DefaultCountryCode,
		CookieSecure:       cfg.CookieSecure,
		FlowTTL:            cfg.FlowIdleTTL(),
		Log:                log.Named("http"),
	}
	if devStore != nil {
		deps.DevOTP = devotphandler.New(devStore)
	}
	if auditLog != nil {
		deps.Activity = auditLog
	}
	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info("shutting down HTTP server")
		return httpSrv.Shutdown(sctx)
	})

	if cfg.GRPCAddr != "" {
		hs := health.NewServer()
		grpcSrv := server.NewGRPCServer(hs, log.Named("grpc"), !cfg.IsProduction())
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return err
		}
		g.Go(func() error {
			checks.Watch(gctx, hs, server.HealthService, 15*time.Second)
			return nil
		})
		g.Go(func() error {
			log.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr))
			return grpcSrv.Serve(lis)
		})
		g.Go(func() error {
			<-gctx.Done()
			log.Info("shutting down gRPC server")
			grpcSrv.GracefulStop()
			return nil
		})
	}

	return g.Wait()
}

// newLimiter returns the OTP rate limiter: Redis when REDIS_URL is set, in-process otherwise,
// nil when limiting is disabled.
func newLimiter(cfg *config.Config, checks *healthhandler.Server) (ratelimit.Limiter, func(), error) {
	noop := func() {}
	if cfg.OTPRateLimit == 0 {
		return nil, noop, nil
	}
	if cfg.RedisURL == "" {
		return ratelimit.NewMemoryLimiter(cfg.OTPRateLimit, cfg.RateWindow()), noop, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, noop, err
	}
	client := redis.NewClient(opts)
	checks.Add("redis", healthhandler.PingFunc(func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}))
	return ratelimit.NewRedisLimiter(client, "aa:otp:", cfg.OTPRateLimit, cfg.RateWindow()), func() { _ = client.Close() }, nil
}

// newProviderFactory builds per-flow identity providers for the configured backend.
func newProviderFactory(cfg *config.Config, devStore *devotp.MemoryStore, log *zap.Logger) (session.ProviderFactory, error) {
	switch cfg.IdentityProvider {
	case config.IdentityGoTrue:
		gcfg := gotrue.Config{
			BaseURL:    cfg.GoTrueURL,
			AnonKey:    cfg.GoTrueAnonKey,
			JWTSecret:  cfg.GoTrueJWTSecret,
			HTTPClient: &http.Client{Timeout: 15 * time.Second},
			Logger:     log.Named("gotrue"),
		}
		return func() authflow.IdentityProvider { return gotrue.NewClient(gcfg) }, nil

	case config.IdentityLocal:
		opts := []otp.Option{otp.WithLogger(log.Named("otp"))}
		if devStore != nil {
			opts = append(opts, otp.WithDevStore(devStore))
		}
		if cfg.SMSLocalAPIKey != "" {
			opts = append(opts, otp.WithSender(otpdomain.ChannelSMS, sms.NewSMSLocalClient(cfg.SMSLocalAPIKey, cfg.SMSLocalBaseURL, cfg.SMSLocalSender)))
		}
		if cfg.SMTPHost != "" {
			opts = append(opts, otp.WithSender(otpdomain.ChannelEmail, email.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, cfg.SMTPUser, cfg.SMTPPassword)))
		}
		codes := otp.NewService(otprepo.NewMemoryRepository(), opts...)
		backend := local.NewBackend(userrepo.NewMemoryRepository(), codes, log.Named("identity"))
		return func() authflow.IdentityProvider { return backend.NewProvider() }, nil
	}
	return nil, errors.New("unknown identity provider " + cfg.IdentityProvider)
}
