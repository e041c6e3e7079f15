package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"narrate-backend/internal/conversions"
	"narrate-backend/internal/documents"
	"narrate-backend/internal/queue"
	"narrate-backend/internal/services/health"
	"narrate-backend/internal/shared/auth"
	"narrate-backend/internal/shared/config"
	"narrate-backend/internal/shared/server"
	"narrate-backend/internal/shared/server/middleware"
	"narrate-backend/internal/shared/storage/cache"
	"narrate-backend/internal/shared/storage/db"
	"narrate-backend/internal/shared/storage/object"
	localstore "narrate-backend/internal/shared/storage/object/local"
	s3store "narrate-backend/internal/shared/storage/object/s3"
	"narrate-backend/internal/subscriptions"
	"narrate-backend/internal/tokens"
	"narrate-backend/internal/voice"
)

// App holds shared dependencies and the HTTP router.
type App struct {
	Config              config.Config
	Router              *gin.Engine
	DB                  *sql.DB
	Redis               *redis.Client
	Store               object.ObjectStore
	Queue               queue.Client
	Signer              *auth.Signer
	Ledger              *tokens.Ledger
	SubscriptionsRepo   subscriptions.Repo
	Subscriptions       *subscriptions.Service
	Voice               *voice.Client
	Conversions         *conversions.Service
	ConversionProcessor ConversionProcessor
	Health              *health.Service
	ConversionHandler   *conversions.Handler
	TokenHandler        *tokens.Handler
	SubscriptionHandler *subscriptions.Handler
}

// ConversionProcessor allows callers to override job processing for tests.
type ConversionProcessor interface {
	Process(ctx context.Context, msg queue.Message) error
}

// Build prepares shared dependencies and wires routes.
func Build(cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}
	ctx := context.Background()

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	queueClient, err := buildQueue(ctx, cfg)
	if err != nil {
		return nil, err
	}

	redisClient, err := buildRedis(ctx, cfg)
	if err != nil {
		return nil, err
	}

	signer, err := auth.NewSigner(cfg.JWTSecret, cfg.Env)
	if err != nil {
		return nil, fmt.Errorf("JWT_SECRET: %w", err)
	}

	app := &App{
		Config: cfg,
		DB:     sqlDB,
		Redis:  redisClient,
		Store:  store,
		Queue:  queueClient,
		Signer: signer,
	}

	if err := buildServices(app); err != nil {
		return nil, err
	}

	app.Router = server.NewRouter(server.RouterDeps{
		Config:              app.Config,
		Health:              app.Health,
		ConversionHandler:   app.ConversionHandler,
		TokenHandler:        app.TokenHandler,
		SubscriptionHandler: app.SubscriptionHandler,
		RateLimiter:         middleware.NewRateLimiter(nil),
		Verifier:            app.Signer,
	})

	return app, nil
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: DATABASE_URL empty; using in-memory repositories")
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	var (
		sqlDB *sql.DB
		err   error
	)
	if db.IsLambdaRuntime() {
		opts := db.OptionsFromEnv(db.DefaultLambdaOptions())
		sqlDB, err = db.GetSingleton(ctx, cfg.DatabaseURL, opts)
	} else {
		opts := db.OptionsFromEnv(db.DefaultServerOptions())
		sqlDB, err = db.Connect(ctx, cfg.DatabaseURL, opts)
	}
	if err != nil {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: database connect failed; using in-memory repositories: %v", err)
			return nil, nil
		}
		return nil, err
	}

	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		if strings.TrimSpace(cfg.S3Bucket) == "" {
			return nil, fmt.Errorf("OBJECT_STORE=s3 requires S3_BUCKET")
		}
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func buildQueue(ctx context.Context, cfg config.Config) (queue.Client, error) {
	if strings.TrimSpace(cfg.QueueURL) == "" {
		return nil, nil
	}
	return queue.NewSQSClient(ctx, cfg.QueueURL, cfg.AWSRegion)
}

func buildRedis(ctx context.Context, cfg config.Config) (*redis.Client, error) {
	if strings.TrimSpace(cfg.RedisURL) == "" {
		if cfg.QueueURL != "" {
			log.Printf("bootstrap: REDIS_URL empty with a queue configured; job status will not be shared with workers")
		}
		return nil, nil
	}
	client, err := cache.Connect(ctx, cfg.RedisURL)
	if err != nil {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: redis connect failed; using in-memory job status: %v", err)
			return nil, nil
		}
		return nil, err
	}
	return client, nil
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}

func buildServices(app *App) error {
	var tokenStore tokens.Store
	var subsRepo subscriptions.Repo
	if app.DB != nil {
		tokenStore = tokens.NewPGStore(app.DB)
		subsRepo = &subscriptions.PGRepo{DB: app.DB}
	} else {
		tokenStore = tokens.NewMemoryStore()
		subsRepo = subscriptions.NewMemoryRepo()
	}
	ledger := tokens.NewLedger(tokenStore)

	subsSvc := subscriptions.NewService(subsRepo, ledger)
	subsSvc.DefaultPlanID = app.Config.DefaultPlanID

	var jobs conversions.StatusStore
	if app.Redis != nil {
		jobs = conversions.NewRedisStatusStore(app.Redis, app.Config.JobStatusTTL)
	} else {
		jobs = conversions.NewMemoryStatusStore(app.Config.JobStatusTTL)
	}

	var generator conversions.AudioGenerator = unconfiguredVoice{}
	var catalogue conversions.Catalogue
	voiceClient, err := voice.NewClient(voice.Config{
		BaseURL:      app.Config.VoiceBaseURL,
		Host:         app.Config.VoiceHost,
		TransportKey: app.Config.RapidAPIKey,
		ProviderKey:  app.Config.ElevenLabsAPIKey,
		HTTPClient:   &http.Client{Timeout: app.Config.VoiceTimeout},
	})
	switch {
	case err == nil:
		generator = voiceClient
		catalogue = voiceClient
		app.Voice = voiceClient
	case isDevLike(app.Config.Env):
		log.Printf("bootstrap: voice provider not configured; conversions will fail at generation: %v", err)
	default:
		return err
	}

	convSvc := &conversions.Service{
		Store:      app.Store,
		Jobs:       jobs,
		Queue:      app.Queue,
		Processor:  documents.NewProcessor(),
		Ledger:     ledger,
		Generator:  generator,
		StaleAfter: app.Config.JobStaleAfter,
	}

	probes := map[string]health.Probe{}
	if app.DB != nil {
		probes["database"] = app.DB.PingContext
	}
	if app.Redis != nil {
		probes["redis"] = func(ctx context.Context) error { return app.Redis.Ping(ctx).Err() }
	}

	app.Ledger = ledger
	app.SubscriptionsRepo = subsRepo
	app.Subscriptions = subsSvc
	app.Conversions = convSvc
	app.ConversionProcessor = convSvc
	app.Health = health.NewService(probes)
	app.ConversionHandler = conversions.NewHandler(convSvc, catalogue, app.Config.MaxUploadBytes)
	app.TokenHandler = tokens.NewHandler(ledger)
	app.SubscriptionHandler = subscriptions.NewHandler(subsSvc)
	return nil
}

// unconfiguredVoice fails every generation so dev servers start without keys.
type unconfiguredVoice struct{}

func (unconfiguredVoice) Generate(ctx context.Context, text string, ct voice.ContentType, onProgress func(float64)) (voice.Audio, error) {
	return voice.Audio{}, voice.ErrMissingCredentials
}
