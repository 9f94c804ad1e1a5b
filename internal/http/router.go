// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, idempotency, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tutorlane/support-chat-backend/internal/catalog"
	"github.com/tutorlane/support-chat-backend/internal/config"
	"github.com/tutorlane/support-chat-backend/internal/domain"
	"github.com/tutorlane/support-chat-backend/internal/guest"
	"github.com/tutorlane/support-chat-backend/internal/http/handlers"
	"github.com/tutorlane/support-chat-backend/internal/http/middleware"
	"github.com/tutorlane/support-chat-backend/internal/repo"
	"github.com/tutorlane/support-chat-backend/internal/services"
	"github.com/tutorlane/support-chat-backend/internal/stream"
	"github.com/tutorlane/support-chat-backend/internal/support"
)

// conversationRepoShim adapts the repository free functions to the
// services.ConversationRepo interface expected by the ConversationService.
// This keeps services decoupled from the concrete repo package while reusing
// existing functions.
type conversationRepoShim struct{}

// CreateConversation proxies repo.CreateConversation.
func (conversationRepoShim) CreateConversation(ctx context.Context, db *gorm.DB, guestID, guestName string, guestEmail *string) (*domain.Conversation, error) {
	return repo.CreateConversation(ctx, db, guestID, guestName, guestEmail)
}

// GetConversation proxies repo.GetConversation.
func (conversationRepoShim) GetConversation(ctx context.Context, db *gorm.DB, id string) (*domain.Conversation, error) {
	return repo.GetConversation(ctx, db, id)
}

// TransitionStatus proxies repo.TransitionStatus.
func (conversationRepoShim) TransitionStatus(ctx context.Context, db *gorm.DB, id, to string) (int64, error) {
	return repo.TransitionStatus(ctx, db, id, to)
}

// CountConversations proxies repo.CountConversations (pagination support).
func (conversationRepoShim) CountConversations(ctx context.Context, db *gorm.DB, status string) (int64, error) {
	return repo.CountConversations(ctx, db, status)
}

// ListConversationsPage proxies repo.ListConversationsPage.
func (conversationRepoShim) ListConversationsPage(ctx context.Context, db *gorm.DB, status string, offset, limit int) ([]domain.Conversation, error) {
	return repo.ListConversationsPage(ctx, db, status, offset, limit)
}

// ListConversationsByGuest proxies repo.ListConversationsByGuest.
func (conversationRepoShim) ListConversationsByGuest(ctx context.Context, db *gorm.DB, guestID string) ([]domain.Conversation, error) {
	return repo.ListConversationsByGuest(ctx, db, guestID)
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), guest identity,
// idempotency and rate limiting, CORS and security headers, health and
// metrics endpoints, and then mounts the versioned public API.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Guest identity (cookie/header resolution before keyed middleware)
//  8. Idempotency validator (before rate limiter to allow bypass on replay)
//  9. Rate limiter (per guest/IP, bypass on replay)
//  10. CORS and Security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, broker *stream.Broker, topics *catalog.Catalog, provider support.Provider, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{
			guest.HeaderGuestID,
		},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Guest identity before anything keyed by it
	r.Use(guest.Identify())

	// 8) Idempotency validation (before rate limiting). Replay lookups are
	// scoped to the sender: the admin header when present, else the guest id.
	identity := func(c *gin.Context) string {
		if aid := strings.TrimSpace(c.GetHeader(handlers.HeaderAdminID)); aid != "" {
			return aid
		}
		return guest.FromContext(c)
	}
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{
			MaxLen: 200,
		},
		identity,
		func(ctx context.Context, senderID, conversationID, key string, now time.Time) (bool, error) {
			rec, err := repo.GetIdempotency(ctx, db, senderID, conversationID, key, now)
			if err != nil || rec == nil {
				return false, nil
			}
			return true, nil
		},
	))

	// 9) Token-bucket rate limiter per guest/IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByGuestOrIP())
	r.Use(rl.Handler())

	// 10) CORS posture (safe defaults: allow all if none configured)
	allowHeaders := []string{
		"Origin", "Content-Type", "Accept",
		guest.HeaderGuestID, handlers.HeaderAdminID, middleware.HeaderIdempotencyKey,
	}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "ETag"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// The widget is embedded cross-origin and needs the identity cookie,
		// so an explicit allowlist enables credentials.
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "ETag"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Swagger UI (off by default)
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Dependency injection: services ← repo/db/broker
	convSvc := services.NewConversationService(db, conversationRepoShim{})
	convSvc.MaxNameRunes = cfg.MaxNameRunes
	msgSvc := &services.MessageService{
		DB:              db,
		Broker:          broker,
		MaxContentRunes: cfg.MaxMessageRunes,
		SubscribeBuffer: cfg.StreamBuffer,
	}
	fbSvc := &services.FeedbackService{DB: db}

	h := handlers.New(convSvc, msgSvc, fbSvc, topics, provider)
	h.DB = db
	h.SupportEmail = cfg.SupportEmail
	h.IdempotencyTTL = cfg.IdempotencyTTL

	// Transcript and menu reads compress well; SSE streams must stay raw.
	zip := gzip.Gzip(gzip.DefaultCompression)

	// Public API
	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		// Guest identity and provider strategy
		api.POST("/guest/session", h.GuestSession)
		api.GET("/support/provider", h.SupportProvider)

		// Help topics
		api.GET("/topics", zip, h.ListTopics)
		api.GET("/topics/search", zip, h.SearchTopics)
		api.GET("/topics/:slug", zip, h.GetTopic)

		// Conversations (guest surface)
		api.POST("/conversations", h.CreateConversation)
		api.GET("/conversations", h.ListMyConversations)
		api.GET("/conversations/:id", h.GetConversation)
		api.POST("/conversations/:id/messages", h.SendMessage)
		api.GET("/conversations/:id/messages", zip, h.ListConversationMessages)
		api.GET("/conversations/:id/stream", h.StreamMessages)
		api.POST("/conversations/:id/feedback", h.LeaveFeedback)

		// Admin console surface
		admin := api.Group("/admin", handlers.RequireAdmin())
		admin.GET("/conversations", zip, h.AdminInbox)
		admin.GET("/conversations/:id", h.AdminGetConversation)
		admin.GET("/conversations/:id/messages", zip, h.AdminListMessages)
		admin.GET("/conversations/:id/stream", h.AdminStreamMessages)
		admin.POST("/conversations/:id/messages", h.AdminReply)
		admin.POST("/conversations/:id/read", h.AdminMarkRead)
		admin.GET("/conversations/:id/unread", h.AdminUnread)
		admin.POST("/conversations/:id/close", h.AdminClose)
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
