// Package server assembles the HTTP surface of the verigate demo host:
// a handful of routes protected by the verification middleware, plus the
// operational endpoints every deployment carries.
package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/verigate/verigate/internal/guard"
	"github.com/verigate/verigate/internal/identity"
	"go.uber.org/zap"
)

// sessionIDKey is where the cookie middleware parks the session id for
// the rest of the request chain.
const sessionIDKey = "verigate.session_id"

// sessionCookieName is the browser cookie carrying the session id.
const sessionCookieName = "verigate_session"

// Config carries the router-level knobs.
type Config struct {
	CORSOrigins  []string
	RateLimitRPS int
	Threshold    float64
	Action       string
}

// Server wires the guarded demo routes to their collaborators.
type Server struct {
	guard  *guard.Guard
	tokens *identity.TokenIssuer
	logger *zap.Logger
	cfg    Config
}

func New(g *guard.Guard, tokens *identity.TokenIssuer, logger *zap.Logger, cfg Config) *Server {
	return &Server{guard: g, tokens: tokens, logger: logger, cfg: cfg}
}

// SessionKey derives the remember-marker scope from the session cookie
// established by the cookie middleware. Requests without one get no
// remembering.
func SessionKey(c *gin.Context) string {
	return c.GetString(sessionIDKey)
}

// Router builds the full middleware chain and route table.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.Config{
		AllowOrigins:     s.cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: !containsWildcard(s.cfg.CORSOrigins),
		MaxAge:           12 * time.Hour,
	}
	router.Use(cors.New(corsConfig))

	// Security headers
	router.Use(func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	})

	// Request body size limit (1 MB)
	router.Use(func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 1<<20)
		c.Next()
	})

	if s.cfg.RateLimitRPS > 0 {
		router.Use(RateLimiter(s.cfg.RateLimitRPS, s.cfg.RateLimitRPS*2))
	}

	router.Use(requestLogger(s.logger))
	router.Use(sessionCookie())

	// Operational endpoints (public)
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.POST("/login",
		s.guard.Score(guard.Score().Action(s.cfg.Action).Threshold(s.cfg.Threshold)),
		s.handleLogin,
	)
	v1.POST("/comments",
		s.guard.Challenge(guard.Checkbox().Except("web")),
		s.handleComment,
	)
	v1.POST("/contact",
		s.guard.Challenge(guard.Invisible().DontRemember()),
		s.handleContact,
	)
	v1.POST("/android/attest",
		s.guard.Challenge(guard.Android()),
		s.handleAttest,
	)

	return router
}

// sessionCookie gives every client a stable session id. New visitors get
// a fresh one that is usable on this same request, so a verification that
// remembers can store its marker immediately.
func sessionCookie() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := c.Cookie(sessionCookieName)
		if err != nil || id == "" {
			id = uuid.NewString()
			c.SetCookie(sessionCookieName, id, int((30 * 24 * time.Hour).Seconds()), "/", "", false, true)
		}
		c.Set(sessionIDKey, id)
		c.Next()
	}
}

// containsWildcard returns true if origins includes "*".
func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if strings.TrimSpace(o) == "*" {
			return true
		}
	}
	return false
}

// requestLogger returns a Gin middleware that logs each request with zap.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
