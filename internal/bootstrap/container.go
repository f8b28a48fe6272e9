package bootstrap

import (
	"context"
	"time"

	"ai-consultation-be/internal/config"
	"ai-consultation-be/internal/controller"
	"ai-consultation-be/internal/pkg/logger"
	"ai-consultation-be/internal/pkg/serverutils"
	"ai-consultation-be/internal/repository/unitofwork"
	"ai-consultation-be/internal/service"
	"ai-consultation-be/pkg/database"
	"ai-consultation-be/pkg/identity"
	"ai-consultation-be/pkg/llm"
	"ai-consultation-be/pkg/llm/factory"
	pktNats "ai-consultation-be/pkg/nats"
	"ai-consultation-be/pkg/summary"
	"ai-consultation-be/pkg/upload"

	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

type Container struct {
	// Controllers
	ConsultationController controller.IConsultationController
	HistoryController      controller.IHistoryController
	HealthController       controller.IHealthController

	JwtMiddleware fiber.Handler
	Logger        logger.ILogger

	// Background Services (Exposed for main.go to run)
	ConsumerService service.IConsumerService

	closers []func() error
}

type options struct {
	logger     logger.ILogger
	provider   llm.LLMProvider
	verifier   identity.TokenVerifier
	uowFactory unitofwork.RepositoryFactory
}

type Option func(*options)

func WithLogger(l logger.ILogger) Option {
	return func(o *options) { o.logger = l }
}

func WithLLMProvider(p llm.LLMProvider) Option {
	return func(o *options) { o.provider = p }
}

func WithVerifier(v identity.TokenVerifier) Option {
	return func(o *options) { o.verifier = v }
}

func WithRepositoryFactory(f unitofwork.RepositoryFactory) Option {
	return func(o *options) { o.uowFactory = f }
}

// NewContainer wires every dependency. Nothing here fails hard: a missing
// store, bus or completion key degrades the matching endpoints instead.
func NewContainer(cfg *config.Config, opts ...Option) *Container {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	c := &Container{}

	// 1. Core Facades
	sysLogger := o.logger
	if sysLogger == nil {
		sysLogger = logger.NewZapLogger(cfg.App.LogFilePath, cfg.IsProduction())
	}
	c.Logger = sysLogger

	// 2. Event Bus
	watermillLogger := logger.NewWatermillAdapter(sysLogger)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 64},
		watermillLogger,
	)
	c.closers = append(c.closers, pubSub.Close)

	var forwarder service.EventForwarder
	if cfg.App.NatsURL != "" {
		natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL)
		if err != nil {
			sysLogger.Warn("BOOTSTRAP", "Failed to connect to NATS, events stay in process", map[string]interface{}{"error": err.Error()})
		} else {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := natsPub.EnsureStream(ctx, cfg.App.NatsStream); err != nil {
				sysLogger.Warn("BOOTSTRAP", "NATS stream not ensured", map[string]interface{}{"error": err.Error()})
			}
			cancel()
			forwarder = natsPub
			c.closers = append(c.closers, func() error { natsPub.Close(); return nil })
		}
	}

	// 3. Identity
	verifier := o.verifier
	if verifier == nil {
		verifier = newVerifier(cfg, sysLogger, c)
	}
	c.JwtMiddleware = serverutils.NewJwtMiddleware(verifier)

	// 4. History store
	uowFactory := o.uowFactory
	historyConfigured := true
	if uowFactory == nil {
		switch cfg.Database.Store {
		case "memory":
			sysLogger.Warn("BOOTSTRAP", "History kept in memory only", nil)
			uowFactory = unitofwork.NewMemoryFactory(nil)
		default:
			connector := database.NewConnector(cfg.Database.Connection)
			historyConfigured = connector.Configured()
			if !historyConfigured {
				sysLogger.Warn("BOOTSTRAP", "No database configured, history endpoints will answer 503", nil)
			}
			uowFactory = unitofwork.NewRepositoryFactory(connector)
			c.closers = append(c.closers, connector.Close)
		}
	}

	// 5. Completion provider
	provider := o.provider
	if provider == nil {
		p, err := factory.NewLLMProvider(factory.Options{
			Provider:      cfg.Ai.LLMProvider,
			DefaultModel:  cfg.Ai.BaselineModel,
			OpenAIKey:     cfg.Ai.OpenAIKey,
			OpenAIBaseURL: cfg.Ai.OpenAIBaseURL,
			OllamaBaseURL: cfg.Ai.OllamaBaseURL,
		})
		if err != nil {
			sysLogger.Error("BOOTSTRAP", "LLM provider unavailable", map[string]interface{}{"error": err.Error()})
			p = llm.Unavailable(err)
		} else {
			sysLogger.Info("BOOTSTRAP", "Using LLM provider", map[string]interface{}{
				"provider": cfg.Ai.LLMProvider,
				"baseline": cfg.Ai.BaselineModel,
				"premium":  cfg.Ai.PremiumModel,
			})
		}
		provider = p
	}

	// 6. Services
	publisherService := service.NewPublisherService(cfg.App.EventTopic, pubSub)
	c.ConsumerService = service.NewConsumerService(pubSub, cfg.App.EventTopic, forwarder, sysLogger)

	consultationService := service.NewConsultationService(
		provider,
		upload.NewNormalizer(cfg.Upload.MaxBytes),
		publisherService,
		sysLogger,
		service.ConsultationOptions{
			Tiers: summary.TierSelector{
				Baseline: cfg.Ai.BaselineModel,
				Premium:  cfg.Ai.PremiumModel,
			},
			Precedence:  summary.ParsePrecedence(cfg.Upload.FilePrecedence),
			ImageMode:   summary.ParseImageMode(cfg.Upload.ImageMode),
			IdleTimeout: cfg.Ai.ChunkIdleTimeout,
			KeepAlive:   cfg.Ai.StreamKeepAlive,
			MaxTokens:   cfg.Ai.MaxTokens,
		},
	)
	historyService := service.NewHistoryService(uowFactory, publisherService, sysLogger)

	// 7. Controllers
	c.ConsultationController = controller.NewConsultationController(consultationService)
	c.HistoryController = controller.NewHistoryController(historyService)
	c.HealthController = controller.NewHealthController(historyConfigured)

	return c
}

func newVerifier(cfg *config.Config, sysLogger logger.ILogger, c *Container) identity.TokenVerifier {
	if cfg.Auth.JwksURL == "" {
		sysLogger.Warn("BOOTSTRAP", "CLERK_JWKS_URL is not set, every token will be rejected", nil)
	}

	var rdb *redis.Client
	if cfg.App.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.App.RedisURL)
		if err != nil {
			sysLogger.Warn("BOOTSTRAP", "Failed to parse Redis URL, using direct Addr", map[string]interface{}{"error": err.Error()})
			opt = &redis.Options{Addr: cfg.App.RedisURL}
		}
		rdb = redis.NewClient(opt)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := rdb.Ping(ctx).Err(); err != nil {
			sysLogger.Warn("BOOTSTRAP", "Failed to connect to Redis, key set cached in process only", map[string]interface{}{"error": err.Error()})
		}
		cancel()
		c.closers = append(c.closers, rdb.Close)
	}

	keys := identity.NewKeySet(identity.KeySetOptions{
		URL:                cfg.Auth.JwksURL,
		TTL:                cfg.Auth.JwksCacheTTL,
		MinRefreshInterval: cfg.Auth.JwksMinRefresh,
		Redis:              rdb,
		Logger:             sysLogger,
	})
	return identity.NewVerifier(keys, identity.VerifierOptions{
		Issuer:            cfg.Auth.Issuer,
		AuthorizedParty:   cfg.Auth.AuthorizedParty,
		PremiumPlanMarker: cfg.Auth.PremiumPlanMarker,
		Leeway:            cfg.Auth.ClockSkewTolerance,
	})
}

// Close releases the bus, the store and the logger, in reverse order of creation.
func (c *Container) Close() error {
	var firstErr error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	_ = c.Logger.Sync()
	return firstErr
}
