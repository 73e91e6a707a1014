package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	"disc-report/internal/attempts"
	"disc-report/internal/delivery"
	"disc-report/internal/generation"
	"disc-report/internal/queue"
	"disc-report/internal/render"
	"disc-report/internal/report"
	"disc-report/internal/scoring"
	"disc-report/internal/services/health"
	"disc-report/internal/shared/config"
	"disc-report/internal/shared/server"
	"disc-report/internal/shared/storage/db"
	"disc-report/internal/shared/storage/object"
	gcsstore "disc-report/internal/shared/storage/object/gcs"
	localstore "disc-report/internal/shared/storage/object/local"
	s3store "disc-report/internal/shared/storage/object/s3"
	"disc-report/internal/shared/telemetry"
)

// App holds shared dependencies.
type App struct {
	Config            config.Config
	Router            *gin.Engine
	DB                *sql.DB
	Store             object.ObjectStore
	Queue             queue.Client
	AttemptsRepo      attempts.Repo
	DeliveryConfigs   delivery.ConfigRepo
	Renderer          render.Renderer
	Generation        *generation.Service
	GenerationHandler *generation.Handler
	Health            *health.Service

	closers []func() error
}

// Build prepares every dependency and the router.
func Build(cfg config.Config) (*App, error) {
	return BuildContext(context.Background(), cfg)
}

// BuildContext is Build with a caller-supplied context for network setup.
func BuildContext(ctx context.Context, cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	app := &App{Config: cfg, DB: sqlDB}
	if sqlDB != nil && !db.IsLambdaRuntime() {
		app.closers = append(app.closers, sqlDB.Close)
	}

	store, err := app.buildStore(ctx)
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	app.Store = store

	queueClient, err := buildQueue(ctx, cfg)
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	app.Queue = queueClient

	if err := app.buildServices(); err != nil {
		_ = app.Close()
		return nil, err
	}

	app.Router = server.NewRouter(server.RouterDeps{
		Config:            cfg,
		Health:            app.Health,
		GenerationHandler: app.GenerationHandler,
	})
	return app, nil
}

// Close releases the browser and storage clients.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.memory_repositories", map[string]any{"reason": "DATABASE_URL empty"})
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	sqlDB, err := db.Open(ctx, cfg.DatabaseURL, PoolOptions(cfg))
	if err != nil {
		if isDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.memory_repositories", map[string]any{"reason": "database connect failed", "error": err})
			return nil, nil
		}
		return nil, err
	}

	if isDevLike(cfg.Env) {
		if err := db.RunMigrations(ctx, sqlDB); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}
	if err := db.RequireTables(ctx, sqlDB, "attempts", "delivery_configs"); err != nil {
		return nil, err
	}
	return sqlDB, nil
}

// PoolOptions maps the DB_* overrides onto pool options.
func PoolOptions(cfg config.Config) db.Options {
	return db.Options{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
		PingTimeout:     cfg.DBPingTimeout,
	}
}

func (a *App) buildStore(ctx context.Context) (object.ObjectStore, error) {
	cfg := a.Config
	switch cfg.ObjectStoreType {
	case "s3":
		if strings.TrimSpace(cfg.S3Bucket) == "" {
			return nil, fmt.Errorf("OBJECT_STORE=s3 requires S3_BUCKET")
		}
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
	case "gcs":
		if strings.TrimSpace(cfg.GCSBucket) == "" {
			return nil, fmt.Errorf("OBJECT_STORE=gcs requires GCS_BUCKET")
		}
		store, err := gcsstore.New(ctx, cfg.GCSBucket, cfg.GCSPrefix, cfg.GCSCredentialsFile)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func buildQueue(ctx context.Context, cfg config.Config) (queue.Client, error) {
	if strings.TrimSpace(cfg.QueueURL) == "" {
		if cfg.GenerationMode == generation.ModeQueue {
			return nil, fmt.Errorf("GENERATION_MODE=queue requires REPORT_SQS_QUEUE_URL")
		}
		return nil, nil
	}
	return queue.NewSQSClient(ctx, cfg.QueueURL, cfg.AWSRegion)
}

// BuildRenderer selects the page renderer named by cfg.Renderer.
func BuildRenderer(cfg config.Config, store object.ObjectStore) (render.Renderer, func() error, error) {
	if cfg.Renderer == "remote" {
		var remoteStore render.RemoteStore
		if rs, ok := store.(render.RemoteStore); ok {
			remoteStore = rs
		}
		r, err := render.NewRemote(render.RemoteConfig{
			BaseURL:          cfg.RenderAPIURL,
			APIKey:           cfg.RenderAPIKey,
			MaxAttempts:      cfg.RenderMaxAttempts,
			BackoffBase:      cfg.RenderBackoffBase,
			BackoffMax:       cfg.RenderBackoffMax,
			HTTPTimeout:      cfg.RenderHTTPTimeout,
			InlineLimitBytes: cfg.RenderInlineLimit,
		}, remoteStore)
		if err != nil {
			return nil, nil, err
		}
		return r, func() error { return nil }, nil
	}
	local := render.NewLocal(render.LocalConfig{
		Bin:         cfg.ChromeBin,
		PageTimeout: cfg.RenderPageTimeout,
		NoSandbox:   db.IsLambdaRuntime(),
	})
	return local, local.Close, nil
}

// BuildAssembler opens the template tree named by the config.
func BuildAssembler(cfg config.Config) *report.Assembler {
	return report.NewAssembler(report.DirTemplates(cfg.TemplatesDir, cfg.AssetsDir), cfg.AllowScripts)
}

// BuildMailer returns an SMTP mailer, or a logging mailer when SMTP_HOST is
// unset outside production.
func BuildMailer(cfg config.Config) (delivery.Mailer, error) {
	if strings.TrimSpace(cfg.SMTPHost) == "" {
		if cfg.Env == "production" {
			return nil, fmt.Errorf("SMTP_HOST is required in production")
		}
		return delivery.LogMailer{}, nil
	}
	return delivery.NewSMTPMailer(delivery.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUser,
		Password: cfg.SMTPPass,
		From:     cfg.MailFrom,
	})
}

func (a *App) buildServices() error {
	cfg := a.Config

	var (
		attemptRepo attempts.Repo
		configRepo  delivery.ConfigRepo
	)
	if a.DB != nil {
		attemptRepo = &attempts.PGRepo{DB: a.DB}
		configRepo = &delivery.PGConfigRepo{DB: a.DB}
	} else {
		attemptRepo = attempts.NewMemoryRepo()
		configRepo = delivery.NewMemoryConfigRepo()
	}

	scorer, err := scoring.Default()
	if err != nil {
		return fmt.Errorf("load scoring weights: %w", err)
	}

	renderer, closeRenderer, err := BuildRenderer(cfg, a.Store)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, closeRenderer)

	mailer, err := BuildMailer(cfg)
	if err != nil {
		return err
	}

	var signer object.Signer
	if s, ok := a.Store.(object.Signer); ok {
		signer = s
	}

	svc := &generation.Service{
		Repo:      attemptRepo,
		Lock:      attempts.NewLock(attemptRepo, cfg.LockTTL),
		Scorer:    scorer,
		Assembler: BuildAssembler(cfg),
		Renderer:  renderer,
		Delivery:  delivery.NewManager(a.Store, mailer, cfg.CompanyName),
		Configs:   configRepo,
		Store:     a.Store,
		Signer:    signer,
		Queue:     a.Queue,
		Cfg: generation.Config{
			TemplateVersion: cfg.TemplateVersion,
			Concurrency:     cfg.RenderConcurrency,
			Timeout:         cfg.GenerationTimeout,
			Retention:       cfg.DocumentRetention,
			SignedURLTTL:    cfg.SignedURLTTL,
			VerifyPDFText:   cfg.VerifyPDFText,
			Mode:            cfg.GenerationMode,
		},
	}
	if svc.Cfg.Timeout >= cfg.LockTTL && cfg.LockTTL > 0 {
		return fmt.Errorf("GENERATION_TIMEOUT (%s) must be shorter than LOCK_TTL (%s)", cfg.GenerationTimeout, cfg.LockTTL)
	}

	a.AttemptsRepo = attemptRepo
	a.DeliveryConfigs = configRepo
	a.Renderer = renderer
	a.Generation = svc
	a.GenerationHandler = generation.NewHandler(svc)
	a.Health = health.NewService(a.DB, renderer.Name(), cfg.ObjectStoreType)
	return nil
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}
