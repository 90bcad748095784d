package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/achievement-api/api/swagger"
	"github.com/noah-isme/achievement-api/internal/handler"
	"github.com/noah-isme/achievement-api/internal/middleware"
	"github.com/noah-isme/achievement-api/internal/models"
	"github.com/noah-isme/achievement-api/internal/repository"
	"github.com/noah-isme/achievement-api/internal/service"
	"github.com/noah-isme/achievement-api/pkg/cache"
	"github.com/noah-isme/achievement-api/pkg/classifier"
	"github.com/noah-isme/achievement-api/pkg/config"
	"github.com/noah-isme/achievement-api/pkg/database"
	"github.com/noah-isme/achievement-api/pkg/jobs"
	"github.com/noah-isme/achievement-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/achievement-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/achievement-api/pkg/middleware/requestid"
	"github.com/noah-isme/achievement-api/pkg/notify"
	"github.com/noah-isme/achievement-api/pkg/signing"
	"github.com/noah-isme/achievement-api/pkg/storage"
)

// @title Achievement Verification API
// @version 1.0.0
// @description Submission scoring, faculty approval and the signed decision ledger
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, running without fingerprint corpus and decision lock", zap.Error(err))
	} else {
		defer redisClient.Close()
	}

	metrics := service.NewMetricsService()
	validate := validator.New()

	submissionRepo := repository.NewSubmissionRepository(db)
	verificationRepo := repository.NewVerificationRepository(db)
	decisionRepo := repository.NewDecisionRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)
	trailRepo := repository.NewTrailRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	ledgerSvc, err := buildLedger(cfg.Ledger, metrics, logr)
	if err != nil {
		logr.Fatal("failed to init ledger", zap.Error(err))
	}

	evidenceStore, err := storage.NewLocalStorage(cfg.Evidence.StorageDir, cfg.Scorer.MaxEvidenceBytes)
	if err != nil {
		logr.Fatal("failed to init evidence storage", zap.Error(err))
	}

	contentClassifier, err := buildClassifier(cfg.Classifier, logr)
	if err != nil {
		logr.Fatal("failed to init classifier", zap.Error(err))
	}

	var corpus service.FingerprintCorpus
	if redisClient != nil {
		corpus = repository.NewFingerprintRepository(redisClient, cfg.Redis.KeyPrefix)
	}
	scoringSvc := service.NewScoringService(evidenceStore, corpus, contentClassifier, cfg.Scorer,
		logger.Component(logr, "scorer"), service.WithScoringMetrics(metrics))

	notifier, natsConn := buildNotifier(cfg.Notifications, logr)
	if natsConn != nil {
		defer natsConn.Drain() //nolint:errcheck
	}
	notificationSvc := service.NewNotificationService(notifier, metrics, logger.Component(logr, "notifications"))
	notificationQueue := jobs.NewQueue("decision-notifications", notificationSvc.Handle, jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		MaxRetries: cfg.Notifications.MaxRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
		Logger:     logger.Component(logr, "notifications"),
	})
	notificationSvc.AttachQueue(notificationQueue)
	notificationQueue.Start(context.Background())

	workflowOpts := []service.WorkflowOption{
		service.WithWorkflowAudit(auditRepo),
		service.WithWorkflowNotifications(notificationSvc),
		service.WithWorkflowMetrics(metrics),
	}
	if redisClient != nil {
		locks := repository.NewLockRepository(redisClient, cfg.Redis.KeyPrefix)
		workflowOpts = append(workflowOpts, service.WithDecisionLock(locks, cfg.Workflow.DecisionLockTTL))
	}
	workflowSvc := service.NewWorkflowService(
		submissionRepo,
		verificationRepo,
		decisionRepo,
		scoringSvc,
		ledgerSvc,
		service.NewApprovalStateMachine(service.PolicyFromConfig(cfg.Policy)),
		validate,
		logger.Component(logr, "workflow"),
		workflowOpts...,
	)

	auditTrailSvc := service.NewAuditTrailService(trailRepo, ledgerRepo, ledgerSvc, logger.Component(logr, "audit"),
		service.WithTrailPageSize(cfg.Audit.PageSize),
		service.WithIntegrityReporter(service.NewIntegrityReporter(auditRepo, metrics, logger.Component(logr, "integrity"))),
	)
	evidenceSvc := service.NewEvidenceService(evidenceStore, cfg.Scorer, logger.Component(logr, "evidence"))
	authSvc := service.NewAuthService(cfg.JWT)

	submissionHandler := handler.NewSubmissionHandler(workflowSvc, evidenceSvc)
	reviewHandler := handler.NewReviewHandler(workflowSvc)
	auditHandler := handler.NewAuditHandler(auditTrailSvc)
	metricsHandler := handler.NewMetricsHandler(metrics, readinessChecks(db, redisClient, natsConn))

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS))
	r.Use(middleware.Metrics(metrics, "/health", "/ready", "/metrics"))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	auditLog := logger.Component(logr, "access-audit")
	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(authSvc))
	{
		student := middleware.RequireRoles(models.RoleStudent)
		reviewer := middleware.RequireRoles(models.RoleFaculty, models.RoleAdmin)
		admin := middleware.RequireRoles(models.RoleAdmin)

		api.POST("/evidence", student, submissionHandler.UploadEvidence)
		api.POST("/submissions", student, submissionHandler.Submit)
		api.GET("/submissions/:id", submissionHandler.Get)
		api.DELETE("/submissions/:id", student, submissionHandler.Withdraw)

		api.GET("/review-queue", reviewer, reviewHandler.Queue)
		api.POST("/submissions/:id/review", reviewer, reviewHandler.OpenReview)
		api.POST("/submissions/:id/decision", reviewer, reviewHandler.Decide)
		api.POST("/submissions/:id/rescore", reviewer, reviewHandler.Rescore)

		api.GET("/audit-trail",
			middleware.Audit(auditRepo, auditLog, models.AuditActionTrailRead, "audit_trail"),
			auditHandler.Trail)
		api.GET("/audit-trail/export",
			middleware.Audit(auditRepo, auditLog, models.AuditActionTrailExport, "audit_trail"),
			auditHandler.Export)
		api.GET("/ledger/verify", admin,
			middleware.Audit(auditRepo, auditLog, models.AuditActionLedgerVerify, "ledger"),
			auditHandler.VerifyLedger)
		api.GET("/metrics/workflow", admin, metricsHandler.Snapshot)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("http shutdown", zap.Error(err))
	}
	notificationQueue.Stop(shutdownCtx)
}

func buildLedger(cfg config.LedgerConfig, metrics *service.MetricsService, logr *zap.Logger) (*service.LedgerService, error) {
	hasher, err := signing.NewHasher(cfg.HashAlgorithm)
	if err != nil {
		return nil, err
	}
	signer, err := signing.NewSigner(cfg.Signer, cfg.KeyID, cfg.SigningSeed, cfg.HMACSecret)
	if err != nil {
		return nil, err
	}
	return service.NewLedgerService(hasher, signer, logger.Component(logr, "ledger"),
		service.WithLedgerMaxRetries(cfg.MaxAppendRetries),
		service.WithLedgerMetrics(metrics),
	), nil
}

func buildClassifier(cfg config.ClassifierConfig, logr *zap.Logger) (classifier.ContentClassifier, error) {
	switch cfg.Provider {
	case "openai":
		return classifier.NewOpenAIClassifier(classifier.OpenAIConfig{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
			Logger:  logger.Component(logr, "classifier"),
		})
	case "", "heuristic":
		return classifier.NewHeuristic(), nil
	default:
		return nil, fmt.Errorf("unknown classifier provider %q", cfg.Provider)
	}
}

func buildNotifier(cfg config.NotificationConfig, logr *zap.Logger) (notify.Notifier, *nats.Conn) {
	if cfg.NATSURL == "" {
		return notify.NewLogNotifier(logger.Component(logr, "notifier")), nil
	}
	conn, err := notify.Connect(cfg.NATSURL, logr)
	if err != nil {
		logr.Warn("nats unavailable, logging notifications instead", zap.Error(err))
		return notify.NewLogNotifier(logger.Component(logr, "notifier")), nil
	}
	return notify.NewNATSNotifier(conn, cfg.Subject), conn
}

func readinessChecks(db *sqlx.DB, redisClient *redis.Client, natsConn *nats.Conn) map[string]handler.ReadinessCheck {
	checks := map[string]handler.ReadinessCheck{
		"postgres": db.PingContext,
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return cache.Ping(ctx, redisClient) }
	}
	if natsConn != nil {
		checks["nats"] = func(context.Context) error {
			if !natsConn.IsConnected() {
				return errors.New("nats disconnected")
			}
			return nil
		}
	}
	return checks
}
