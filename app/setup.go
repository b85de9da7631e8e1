package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/NicoHurtado/cursia-sub002/api"
	"github.com/NicoHurtado/cursia-sub002/config"
	"github.com/NicoHurtado/cursia-sub002/database"
	"github.com/NicoHurtado/cursia-sub002/handlers"
	"github.com/NicoHurtado/cursia-sub002/router"
	"github.com/NicoHurtado/cursia-sub002/services"
	"github.com/NicoHurtado/cursia-sub002/services/contentstore"
	"github.com/NicoHurtado/cursia-sub002/services/cron"
	"github.com/NicoHurtado/cursia-sub002/services/generation"
	"github.com/NicoHurtado/cursia-sub002/services/wompi"
	"github.com/NicoHurtado/cursia-sub002/services/youtube"
	"github.com/NicoHurtado/cursia-sub002/utils/auth"
	"github.com/NicoHurtado/cursia-sub002/utils/cache"
	"github.com/NicoHurtado/cursia-sub002/utils/logger"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

// Container owns every long lived dependency of a process. It is built once
// at boot and closed on exit.
type Container struct {
	Env   *config.EnvironmentVariable
	Log   *logger.Logger
	Store *database.GORMStore
	Redis *cache.RedisCache

	Queue     *services.QueueService
	Content   contentstore.Store
	JWT       *auth.JWTManager
	Blacklist *auth.BlacklistService

	Pipeline      *services.GenerationPipeline
	Courses       *services.CourseService
	Status        *services.CourseStatusService
	Progress      *services.ProgressService
	Community     *services.CommunityService
	Certificates  *services.CertificateService
	Reconciler    *services.SubscriptionReconciler
	Subscriptions *services.SubscriptionService
}

// LoadEnvironment reads .env (outside production) and the process environment.
func LoadEnvironment() (*config.EnvironmentVariable, *logger.Logger, error) {
	if err := config.LoadENV(); err != nil {
		return nil, nil, err
	}
	env, err := config.Get()
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.New(env.GO_ENV)
	if err != nil {
		return nil, nil, fmt.Errorf("build logger: %w", err)
	}
	return env, log, nil
}

// OpenDatabase connects to PostgreSQL and runs AutoMigrate.
func OpenDatabase(env *config.EnvironmentVariable, log *logger.Logger) (*database.GORMStore, error) {
	if err := env.Validate(); err != nil {
		return nil, err
	}
	store, err := database.StartGORM(env, log)
	if err != nil {
		log.Error("check whether PostgreSQL is running and DATABASE_URL is correct")
		return nil, err
	}
	if err := store.Init(); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

// NewContainer connects to PostgreSQL and Redis and wires the services.
func NewContainer() (*Container, error) {
	env, log, err := LoadEnvironment()
	if err != nil {
		return nil, err
	}

	store, err := OpenDatabase(env, log)
	if err != nil {
		return nil, err
	}

	redisCache, err := cache.NewRedisCache(env.RedisAddr(), env.REDIS_PASSWORD)
	if err != nil {
		_ = store.Close()
		log.Error("unable to connect to Redis", "addr", env.RedisAddr(), "error", err)
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	content, err := newContentStore(env)
	if err != nil {
		_ = store.Close()
		_ = redisCache.Close()
		return nil, err
	}

	c := &Container{
		Env:     env,
		Log:     log,
		Store:   store,
		Redis:   redisCache,
		Content: content,
	}
	c.wire()
	return c, nil
}

func newContentStore(env *config.EnvironmentVariable) (contentstore.Store, error) {
	switch env.CONTENT_STORE {
	case "memory":
		return contentstore.NewMemoryStore(), nil
	case "spaces":
		return contentstore.NewSpacesStore(contentstore.SpacesConfig{
			AccessKey: env.DO_SPACES_ACCESS_KEY,
			SecretKey: env.DO_SPACES_SECRET_KEY,
			Bucket:    env.DO_SPACES_BUCKET,
			Region:    env.DO_SPACES_REGION,
			Endpoint:  env.DO_SPACES_ENDPOINT,
		})
	default:
		return nil, fmt.Errorf("unknown CONTENT_STORE %q", env.CONTENT_STORE)
	}
}

func (c *Container) wire() {
	db := c.Store.GetDB()
	env := c.Env

	c.JWT = auth.NewJWTManager(auth.JWTConfig{
		Secret: env.NEXTAUTH_SECRET,
		Issuer: env.NEXTAUTH_URL,
	})
	c.Blacklist = auth.NewBlacklistService(db)

	c.Queue = services.NewQueueService(c.Redis, c.Log)
	c.Queue.OnTerminalFailure(services.MarkCourseFailed(db, c.Log))

	if env.ANTHROPIC_API_KEY == "" {
		c.Log.Warn("ANTHROPIC_API_KEY is not set, generation jobs will fail")
	}
	generator := generation.NewAnthropicGenerator(generation.AnthropicConfig{
		APIKey:  env.ANTHROPIC_API_KEY,
		BaseURL: env.ANTHROPIC_BASE_URL,
		Model:   env.ANTHROPIC_MODEL,
	}, generation.NewRateLimiter(generation.DefaultRateLimiterConfig()), c.Log)

	var videos services.VideoFinder
	if env.YOUTUBE_DATA_API_KEY != "" {
		videos = youtube.NewClient(env.YOUTUBE_DATA_API_KEY, "")
	}

	c.Pipeline = services.NewGenerationPipeline(db, c.Queue, generator, videos, c.Content, c.Log)
	c.Courses = services.NewCourseService(db, c.Queue, c.Content, c.Log)
	c.Status = services.NewCourseStatusService(db, c.Queue)
	c.Progress = services.NewProgressService(db)
	c.Community = services.NewCommunityService(db, c.Log)
	c.Certificates = services.NewCertificateService(db)

	c.Reconciler = services.NewSubscriptionReconciler(db, env.WOMPI_EVENTS_SECRET, c.Log)
	gateway := wompi.NewClient(env.WOMPI_BASE_URL, env.WOMPI_PRIVATE_KEY)
	c.Subscriptions = services.NewSubscriptionService(db, gateway, c.Reconciler,
		env.NEXTAUTH_URL+"/dashboard/subscription", c.Log)
}

// Close releases Redis and the database pool.
func (c *Container) Close() {
	if err := c.Redis.Close(); err != nil {
		c.Log.Warn("failed to close redis", "error", err)
	}
	if err := c.Store.Close(); err != nil {
		c.Log.Warn("failed to close database", "error", err)
	}
	c.Log.Sync()
}

// Integrations reports which external services are configured.
func (c *Container) Integrations() handlers.Integrations {
	return handlers.Integrations{
		Wompi:        c.Env.WOMPI_PRIVATE_KEY != "" && c.Env.WOMPI_EVENTS_SECRET != "",
		Redis:        c.Redis != nil,
		Anthropic:    c.Env.ANTHROPIC_API_KEY != "",
		YouTube:      c.Env.YOUTUBE_DATA_API_KEY != "",
		Cron:         c.Env.CRON_ENABLED,
		ContentStore: c.Content.Backend(),
	}
}

// Worker builds the generation worker over the shared queue.
func (c *Container) Worker() *services.Worker {
	return services.NewWorker(c.Queue, c.Pipeline, c.Log, c.Env.WORKER_CONCURRENCY)
}

// CronManager builds the scheduler with the standard jobs registered.
func (c *Container) CronManager() *cron.CronManager {
	m := cron.NewCronManager(c.Store.GetDB(), c.Redis, c.Log)
	m.Register(cron.StandardJobs(c.Store.GetDB(), c.Subscriptions, c.Blacklist)...)
	return m
}

// RouteDeps collects what the HTTP routes need.
func (c *Container) RouteDeps() *router.Deps {
	return &router.Deps{
		Store:             c.Store,
		Log:               c.Log,
		JWT:               c.JWT,
		Redis:             c.Redis,
		Integrations:      c.Integrations(),
		AllowedOrigins:    c.Env.ALLOWED_ORIGINS,
		RateLimitRequests: 100,
		CronSecret:        c.Env.CRON_SECRET,
		Courses:           c.Courses,
		Status:            c.Status,
		Progress:          c.Progress,
		Community:         c.Community,
		Certificates:      c.Certificates,
		Subscriptions:     c.Subscriptions,
		Reconciler:        c.Reconciler,
	}
}

// SetupAndRunServer serves the API until SIGINT or SIGTERM. The generation
// worker runs in process when withWorker is set, and the scheduler when
// CRON_ENABLED is not false.
func SetupAndRunServer(withWorker bool) error {
	c, err := NewContainer()
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if c.Env.CRON_ENABLED {
		cronManager := c.CronManager()
		if err := cronManager.Start(); err != nil {
			// The API still serves without the scheduler.
			c.Log.Warn("failed to start cron jobs", "error", err)
		} else {
			defer cronManager.Stop()
		}
	}

	server := api.NewAPIServer(fmt.Sprintf(":%d", c.Env.PORT), c.Log)
	router.SetupRoutes(server.GetEngine(), c.RouteDeps())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run()
	})
	if withWorker {
		g.Go(func() error {
			return c.Worker().Run(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		c.Log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// RunWorker consumes generation jobs until SIGINT or SIGTERM.
func RunWorker() error {
	c, err := NewContainer()
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := c.Worker().Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
