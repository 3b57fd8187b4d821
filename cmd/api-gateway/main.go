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
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/vikar-api/api/swagger"
	"github.com/noah-isme/vikar-api/internal/handler"
	"github.com/noah-isme/vikar-api/internal/middleware"
	"github.com/noah-isme/vikar-api/internal/repository"
	"github.com/noah-isme/vikar-api/internal/service"
	"github.com/noah-isme/vikar-api/pkg/cache"
	"github.com/noah-isme/vikar-api/pkg/config"
	"github.com/noah-isme/vikar-api/pkg/database"
	"github.com/noah-isme/vikar-api/pkg/jobs"
	"github.com/noah-isme/vikar-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/vikar-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/vikar-api/pkg/middleware/requestid"
	"github.com/noah-isme/vikar-api/pkg/storage"
)

// @title Vikar Marketplace API
// @version 1.0.0
// @description Shift staffing marketplace: shifts, applications, timesheets, reviews and payroll exports.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

const shutdownTimeout = 15 * time.Second

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

	if err := run(cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logr *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, job board cache disabled", zap.Error(err))
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	metrics := service.NewMetricsService()
	validate := validator.New()
	policy := service.NewCancellationPolicy(cfg.Marketplace)

	users := repository.NewUserRepository(db)
	shifts := repository.NewShiftRepository(db)
	applications := repository.NewApplicationRepository(db)
	timesheets := repository.NewTimesheetRepository(db)
	reviews := repository.NewReviewRepository(db)
	relations := repository.NewWorkerRelationRepository(db)
	penalties := repository.NewPenaltyRepository(db)
	exportJobs := repository.NewExportRepository(db)

	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.JobBoard.CacheTTL, logr, cfg.JobBoard.CacheEnabled && cacheRepo.Enabled())
	views := service.NewViewInvalidator(cacheSvc, metrics, logr)

	authSvc := service.NewAuthService(users, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})
	shiftSvc := service.NewShiftService(service.ShiftServiceDeps{
		Shifts:       shifts,
		Applications: applications,
		Penalties:    penalties,
		Audit:        users,
		Tx:           db,
		Policy:       policy,
		Cache:        cacheSvc,
		Views:        views,
		Metrics:      metrics,
		Validator:    validate,
		Logger:       logr,
		Config: service.ShiftServiceConfig{
			DefaultCurrency: cfg.Marketplace.DefaultShiftCurrency,
			MaxOccurrences:  cfg.Marketplace.MaxShiftOccurrences,
			JobBoardTTL:     cfg.JobBoard.CacheTTL,
		},
	})
	applicationSvc := service.NewApplicationService(service.ApplicationServiceDeps{
		Applications: applications,
		Shifts:       shifts,
		Users:        users,
		Relations:    relations,
		Penalties:    penalties,
		Audit:        users,
		Tx:           db,
		Policy:       policy,
		Metrics:      metrics,
		Views:        views,
		Logger:       logr,
	})
	timesheetSvc := service.NewTimesheetService(timesheets, shifts, applications, users, validate, logr, cfg.Marketplace.ClockInGrace)
	reviewSvc := service.NewReviewService(reviews, shifts, applications, users, validate, logr)
	relationSvc := service.NewRelationService(relations, users, views, validate, logr)
	penaltySvc := service.NewPenaltyService(penalties, policy)

	handlers := handler.Handlers{
		Auth:         handler.NewAuthHandler(authSvc),
		Shifts:       handler.NewShiftHandler(shiftSvc),
		Applications: handler.NewApplicationHandler(applicationSvc),
		Timesheets:   handler.NewTimesheetHandler(timesheetSvc),
		Reviews:      handler.NewReviewHandler(reviewSvc),
		Relations:    handler.NewRelationHandler(relationSvc),
		Penalties:    handler.NewPenaltyHandler(penaltySvc),
		Metrics:      handler.NewMetricsHandler(metrics, db),
	}

	if cfg.Exports.Enabled {
		exportSvc, queue, err := startExports(ctx, cfg, logr, exportJobs, timesheets, metrics, validate)
		if err != nil {
			return err
		}
		defer queue.Stop()
		handlers.Exports = handler.NewExportHandler(exportSvc)
		go every(ctx, cfg.Exports.CleanupInterval, logr, "export cleanup", exportSvc.Cleanup)
	}
	go every(ctx, cfg.Marketplace.ShiftCompletionInterval, logr, "shift completion", shiftSvc.CompletePast)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr, accountFields))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	handler.RegisterRoutes(r, cfg.APIPrefix, handlers, handler.RouterDeps{
		Tokens: authSvc,
		Audit:  users,
		Logger: logr,
	})
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func startExports(
	ctx context.Context,
	cfg *config.Config,
	logr *zap.Logger,
	exportJobs *repository.ExportRepository,
	timesheets *repository.TimesheetRepository,
	metrics *service.MetricsService,
	validate *validator.Validate,
) (*service.ExportService, *jobs.Queue, error) {
	store, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		return nil, nil, fmt.Errorf("init export storage: %w", err)
	}
	queue := jobs.New("exports", jobs.Options{
		Workers:    cfg.Exports.WorkerConcurrency,
		MaxRetries: cfg.Exports.WorkerRetries,
		Logger:     logr,
	})
	exportSvc := service.NewExportService(service.ExportServiceDeps{
		Jobs:         exportJobs,
		Timesheets:   timesheets,
		Queue:        queue,
		Storage:      store,
		Signer:       storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL),
		Metrics:      metrics,
		Validator:    validate,
		Logger:       logr,
		DownloadPath: cfg.APIPrefix + "/downloads",
		Retention:    cfg.Exports.SignedURLTTL,
	})
	queue.Register(service.PayrollJobKind, exportSvc.HandlePayrollJob)
	queue.Start(ctx)

	if n, err := exportSvc.ResumeQueued(ctx); err != nil {
		logr.Warn("failed to resume queued exports", zap.Error(err))
	} else if n > 0 {
		logr.Info("resumed queued exports", zap.Int("count", n))
	}
	return exportSvc, queue, nil
}

// every runs task on each tick until ctx is cancelled.
func every(ctx context.Context, interval time.Duration, logr *zap.Logger, name string, task func(context.Context) (int, error)) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := task(ctx)
			if err != nil {
				logr.Warn(name+" failed", zap.Error(err))
				continue
			}
			if n > 0 {
				logr.Info(name, zap.Int("affected", n))
			}
		}
	}
}

// accountFields tags access log lines with the authenticated account.
func accountFields(c *gin.Context) []zap.Field {
	claims, ok := middleware.Claims(c)
	if !ok {
		return nil
	}
	return []zap.Field{zap.String("user_id", claims.UserID), zap.String("role", string(claims.Role))}
}
