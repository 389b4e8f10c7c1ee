package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/doctor-voice-api/api/swagger"
	"github.com/noah-isme/doctor-voice-api/internal/handler"
	"github.com/noah-isme/doctor-voice-api/internal/middleware"
	"github.com/noah-isme/doctor-voice-api/internal/repository"
	"github.com/noah-isme/doctor-voice-api/internal/service"
	"github.com/noah-isme/doctor-voice-api/pkg/cache"
	"github.com/noah-isme/doctor-voice-api/pkg/config"
	"github.com/noah-isme/doctor-voice-api/pkg/database"
	"github.com/noah-isme/doctor-voice-api/pkg/jobs"
	"github.com/noah-isme/doctor-voice-api/pkg/logger"
	"github.com/noah-isme/doctor-voice-api/pkg/messaging"
	corsmiddleware "github.com/noah-isme/doctor-voice-api/pkg/middleware/cors"
	"github.com/noah-isme/doctor-voice-api/pkg/middleware/ratelimit"
	reqidmiddleware "github.com/noah-isme/doctor-voice-api/pkg/middleware/requestid"
	"github.com/noah-isme/doctor-voice-api/pkg/scheduler"
	"github.com/noah-isme/doctor-voice-api/pkg/storage"
	"github.com/noah-isme/doctor-voice-api/pkg/voiceclone"
)

// @title Doctor Voice API
// @version 1.0.0
// @description Doctor submission pipeline: consent, voice cloning, per-language media and QC review.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

const (
	cachePrefix     = "dva"
	shutdownTimeout = 15 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	objects, err := storage.New(ctx, cfg.Storage, cfg.Storage.PublicBaseURL)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	metrics := service.NewMetricsService()
	cacheRepo := repository.NewCacheRepository(redisClient, cachePrefix, logr)
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Dashboard.CacheTTL, logr, cfg.Dashboard.Enabled && cacheRepo.Enabled())

	var sender messaging.Sender = messaging.Noop{}
	if cfg.Messaging.Enabled {
		sender = messaging.NewHTTPGateway(cfg.Messaging.GatewayURL, cfg.Messaging.Token, cfg.Messaging.Sender, cfg.Messaging.Timeout)
	}

	queue := jobs.NewQueue("side-effects", jobs.QueueConfig{
		Workers:    cfg.Jobs.Workers,
		BufferSize: cfg.Jobs.BufferSize,
		MaxRetries: cfg.Jobs.MaxRetries,
		RetryDelay: cfg.Jobs.RetryDelay,
		Logger:     logr,
	})
	sideEffects := service.NewSideEffects(queue, metrics, logr)

	submissionRepo := repository.NewSubmissionRepository(db)
	consentRepo := repository.NewConsentRepository(db)
	mediaRepo := repository.NewMediaRepository(db)
	qcRepo := repository.NewQCRepository(db)
	reportRepo := repository.NewReportRepository(db)
	userRepo := repository.NewUserRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	authSvc := service.NewAuthService(userRepo, auditRepo, validator.New(), logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "doctor-voice-api",
		Audience:           []string{"doctor-voice-clients"},
	})

	consentSvc := service.NewConsentService(consentRepo, submissionRepo, service.ConsentConfig{
		OTPLength:       cfg.Consent.OTPLength,
		TTL:             cfg.Consent.OTPTTL,
		MaxAttempts:     cfg.Consent.MaxAttempts,
		MessageTemplate: cfg.Consent.MessageTmpl,
	},
		service.WithConsentSideEffects(sideEffects),
		service.WithConsentAudit(auditRepo),
		service.WithConsentMetrics(metrics),
		service.WithConsentCache(cacheSvc),
		service.WithConsentLogger(logr),
	)

	submissionSvc := service.NewSubmissionService(submissionRepo, objects, service.SubmissionConfig{
		MaxLanguages:      cfg.Submissions.MaxLanguages,
		MaxAudioFiles:     cfg.Submissions.MaxAudioFiles,
		MaxUploadBytes:    cfg.Submissions.MaxUploadBytes,
		ImageMIMEs:        cfg.Submissions.AllowedImageMIMEs,
		AudioMIMEs:        cfg.Submissions.AllowedAudioMIMEs,
		SendConsentOnSave: cfg.Consent.SendOnIntake,
	},
		service.WithSubmissionConsent(consentSvc),
		service.WithSubmissionSideEffects(sideEffects),
		service.WithSubmissionAudit(auditRepo),
		service.WithSubmissionHistory(auditRepo),
		service.WithSubmissionValidations(mediaRepo),
		service.WithSubmissionMetrics(metrics),
		service.WithSubmissionCache(cacheSvc),
		service.WithSubmissionLogger(logr),
	)

	voiceClient := voiceclone.NewClient(cfg.VoiceClone.BaseURL, cfg.VoiceClone.APIKey, cfg.VoiceClone.ModelID, cfg.VoiceClone.Timeout)
	voiceSvc := service.NewVoiceService(submissionRepo, mediaRepo, voiceClient, objects, service.VoiceConfig{
		MasterAudioKey:   cfg.VoiceClone.MasterAudioKey,
		ReleaseCooldown:  cfg.VoiceClone.ReleaseCooldown,
		RemoveBackground: cfg.VoiceClone.RemoveBackground,
		SweepBatch:       cfg.Cleanup.BatchSize,
	},
		service.WithVoiceSideEffects(sideEffects),
		service.WithVoiceAudit(auditRepo),
		service.WithVoiceMetrics(metrics),
		service.WithVoiceCache(cacheSvc),
		service.WithVoiceLogger(logr),
	)

	trackerSvc := service.NewTrackerService(submissionRepo, mediaRepo, objects,
		service.WithTrackerSideEffects(sideEffects),
		service.WithTrackerAudit(auditRepo),
		service.WithTrackerMetrics(metrics),
		service.WithTrackerCache(cacheSvc),
		service.WithTrackerLogger(logr),
	)

	qcSvc := service.NewQCService(qcRepo, submissionRepo, cfg.QC.ReviewLease,
		service.WithQCSideEffects(sideEffects),
		service.WithQCAudit(auditRepo),
		service.WithQCMetrics(metrics),
		service.WithQCCache(cacheSvc),
		service.WithQCLogger(logr),
	)

	lifecycleSvc := service.NewLifecycleService(submissionRepo, mediaRepo, objects,
		service.WithLifecycleSideEffects(sideEffects),
		service.WithLifecycleAudit(auditRepo),
		service.WithLifecycleCache(cacheSvc),
		service.WithLifecycleLogger(logr),
	)

	reportSvc := service.NewReportService(reportRepo, objects, cacheSvc, logr, service.ReportServiceConfig{
		SummaryTTL:  cfg.Dashboard.CacheTTL,
		SyncEnabled: cfg.Sync.Enabled,
		WorkbookKey: cfg.Sync.WorkbookKey,
	})

	queue.Register(service.JobNotify, service.NotifyHandler(sender, metrics))
	queue.Register(service.JobSheetSync, reportSvc.SyncHandler())
	queue.Start(ctx)
	defer queue.Stop()

	if cfg.Cleanup.VoiceReleaseEnabled {
		cron := scheduler.New(time.UTC, 10*time.Minute, logr)
		if _, err := cron.Add("voice-release", cfg.Cleanup.VoiceReleaseSpec, func(ctx context.Context) error {
			res, err := voiceSvc.SweepReleases(ctx)
			if err != nil {
				return err
			}
			logr.Info("voice release sweep", zap.Int("scanned", res.Scanned), zap.Int("released", len(res.Released)), zap.Int("failed", len(res.Failed)))
			return nil
		}); err != nil {
			return fmt.Errorf("schedule voice release: %w", err)
		}
		cron.Start()
		defer cron.Stop()
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(middleware.Metrics(metrics))
	r.Use(middleware.ResponseMeta())
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))

	routes := handler.Routes{
		Auth:         handler.NewAuthHandler(authSvc),
		Submissions:  handler.NewSubmissionHandler(submissionSvc, lifecycleSvc, cfg.Submissions.MaxUploadBytes),
		Consent:      handler.NewConsentHandler(consentSvc),
		Voice:        handler.NewVoiceHandler(voiceSvc),
		Media:        handler.NewMediaHandler(trackerSvc, objects, tokenResolver(objects)),
		QC:           handler.NewQCHandler(qcSvc),
		Reports:      handler.NewReportHandler(reportSvc),
		Users:        handler.NewUserHandler(service.NewUserService(userRepo, auditRepo, validator.New(), logr)),
		Authenticate: middleware.JWT(authSvc),
	}
	if cfg.RateLimit.Enabled {
		if err := attachLimits(&routes, redisClient, cfg.RateLimit); err != nil {
			return err
		}
	}

	api := r.Group(cfg.APIPrefix)
	routes.Register(api)

	deps := map[string]handler.Pinger{"postgres": db}
	if redisClient != nil {
		deps["redis"] = redisPinger{redisClient}
	}
	ops := handler.NewMetricsHandler(metrics, deps)
	r.GET("/metrics", ops.Prometheus)
	r.GET("/health", ops.Health)
	r.GET("/ready", ops.Ready)
	r.GET("/media/download", routes.Media.Download)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// tokenResolver exposes signed downloads only for the local driver; remote
// stores hand out their own URLs.
func tokenResolver(objects storage.ObjectStore) handler.TokenResolver {
	if local, ok := objects.(*storage.LocalStorage); ok {
		return local
	}
	return nil
}

func attachLimits(routes *handler.Routes, client *redis.Client, cfg config.RateLimitConfig) error {
	store, err := ratelimit.NewStore(client, cachePrefix+":limit")
	if err != nil {
		return fmt.Errorf("rate limit store: %w", err)
	}
	if routes.ConsentLimit, err = ratelimit.Middleware(store, cfg.ConsentOTP); err != nil {
		return fmt.Errorf("consent rate limit: %w", err)
	}
	if routes.LoginLimit, err = ratelimit.Middleware(store, cfg.Default); err != nil {
		return fmt.Errorf("login rate limit: %w", err)
	}
	return nil
}

type redisPinger struct{ client *redis.Client }

func (p redisPinger) PingContext(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}
