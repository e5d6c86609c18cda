package app

import (
	"context"
	"net/http"
	"time"

	"supa-artistry/internal/auth/credentials"
	"supa-artistry/internal/auth/handler"
	"supa-artistry/internal/auth/otp"
	"supa-artistry/internal/auth/provider"
	"supa-artistry/internal/auth/provider/google"
	"supa-artistry/internal/auth/provider/keycloak"
	"supa-artistry/internal/auth/resolver"
	"supa-artistry/internal/auth/users"
	"supa-artistry/internal/config"
	"supa-artistry/internal/genai"
	genaihandler "supa-artistry/internal/genai/handler"
	"supa-artistry/internal/logger"
	"supa-artistry/internal/middleware"
	"supa-artistry/internal/session"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
)

func setupHTTP(ctx context.Context, cfg config.Config) (*gin.Engine, func() error, error) {

	infra, err := setupInfra(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	registry, err := setupProviders(ctx, cfg)
	if err != nil {
		_ = infra.Close()
		return nil, nil, err
	}

	router := newRouter(routerDeps{
		cfg:          cfg,
		registry:     registry,
		sessionStore: session.NewRedisStore(infra.Redis.Client),
		bus:          session.NewBus(infra.Redis.Client),
		resolver:     resolver.NewDBResolver(infra.DB),
		credentials:  credentials.NewService(infra.DB),
		otp:          otp.NewService(infra.Redis.Client, otp.LogSender{}, cfg.OTPTTL, cfg.DefaultRegion),
		users:        users.NewRepository(infra.DB),
	})

	return router, infra.Close, nil
}

// setupProviders registers only the OIDC providers that are configured.
func setupProviders(ctx context.Context, cfg config.Config) (*provider.Registry, error) {
	var list []provider.OAuthProvider

	if cfg.GoogleEnabled() {
		p, err := google.New(ctx, cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL)
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}

	if cfg.KeycloakEnabled() {
		p, err := keycloak.New(ctx, cfg.KeycloakIssuer, cfg.KeycloakClientID, cfg.KeycloakRedirectURL, cfg.KeycloakPublicBaseURL)
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}

	registry := provider.NewRegistry(list...)
	logger.Info("oauth providers registered", map[string]any{
		"providers": registry.Names(),
	})

	return registry, nil
}

type routerDeps struct {
	cfg          config.Config
	registry     *provider.Registry
	sessionStore session.Store
	bus          *session.Bus
	resolver     resolver.Resolver
	credentials  handler.CredentialService
	otp          handler.OTPService
	users        handler.UserReader
}

func newRouter(d routerDeps) *gin.Engine {
	authHandler := handler.NewHandler(handler.Deps{
		Providers:    d.registry,
		SessionStore: d.sessionStore,
		Bus:          d.bus,
		Resolver:     d.resolver,
		Credentials:  d.credentials,
		OTP:          d.otp,
		Users:        d.users,
		Policy: handler.SessionPolicy{
			TTL:          d.cfg.SessionTTL,
			Idle:         d.cfg.SessionIdle,
			CookieSecure: d.cfg.CookieSecure,
		},
	})

	demoHandler := genaihandler.NewHandler(genai.NewSimulator(genai.Delays{
		Text:  d.cfg.GenAITextDelay,
		Image: d.cfg.GenAIImageDelay,
		Video: d.cfg.GenAIVideoDelay,
	}))

	authMiddleware := middleware.NewAuthMiddleware(d.sessionStore)

	// ----------------------------
	// Router
	// ----------------------------

	router := gin.New()
	router.MaxMultipartMemory = 16 << 20
	router.Use(ginzap.Ginzap(logger.L(), time.RFC3339, true))
	router.Use(ginzap.RecoveryWithZap(logger.L(), true))

	// ----------------------------
	// Public Routes
	// ----------------------------

	authHandler.RegisterRoutes(router)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// ----------------------------
	// Protected API Routes
	// ----------------------------

	api := router.Group("/api")

	api.GET("/me", middleware.GinRequireAuth(authMiddleware), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user_id": c.GetString(middleware.UserIDKey),
		})
	})

	// demos accept guests as well as signed-in users
	demos := api.Group("", middleware.GinRequireIdentity(authMiddleware))
	demoHandler.RegisterRoutes(demos)

	return router
}
