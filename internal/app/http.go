package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"codecollab/api/internal/auth"
	"codecollab/api/internal/rbac"
	"codecollab/api/internal/store"
)

type tokenVerifier interface {
	Verify(token string) (auth.Caller, error)
}

type HTTPOptions struct {
	CORSOrigin     string
	RateLimitRPS   float64
	RateLimitBurst int
	// TrustedProxies lists the proxy addresses or CIDRs whose forwarding
	// headers are believed. Empty means the peer address is the client.
	TrustedProxies []string
}

type HTTPServer struct {
	service  *Service
	verifier tokenVerifier
	opts     HTTPOptions
	limiter  *ipRateLimiter
}

func NewHTTPServer(service *Service, verifier tokenVerifier, opts HTTPOptions) *HTTPServer {
	if opts.CORSOrigin == "" {
		opts.CORSOrigin = "*"
	}
	if opts.RateLimitRPS <= 0 {
		opts.RateLimitRPS = 5
	}
	if opts.RateLimitBurst <= 0 {
		opts.RateLimitBurst = 10
	}
	return &HTTPServer{
		service:  service,
		verifier: verifier,
		opts:     opts,
		limiter:  newIPRateLimiter(rate.Limit(opts.RateLimitRPS), opts.RateLimitBurst),
	}
}

func (s *HTTPServer) Handler() http.Handler {
	router := gin.New()
	if err := router.SetTrustedProxies(s.opts.TrustedProxies); err != nil {
		log.Printf("http: invalid trusted proxies %v, trusting none: %v", s.opts.TrustedProxies, err)
		_ = router.SetTrustedProxies(nil)
	}
	router.Use(requestLogger())
	router.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		log.Printf("http: panic serving %s %s: %v", c.Request.Method, c.Request.URL.Path, recovered)
		writeError(c, http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil)
	}))
	router.Use(cors.New(s.corsConfig()))
	router.NoRoute(func(c *gin.Context) {
		writeError(c, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	})

	router.GET("/api/health", s.handleHealth)
	router.HEAD("/api/health", s.handleHealth)
	router.GET("/api/ready", s.handleReady)
	router.HEAD("/api/ready", s.handleReady)

	v1 := router.Group("/api/v1", s.requireCaller, s.rateLimitWrites)
	{
		v1.GET("/submissions", s.handleListSubmissions)
		v1.POST("/submissions", s.handleCreateSubmission)
		v1.GET("/submissions/search", s.handleSearchSubmissions)
		v1.GET("/submissions/:id", s.handleGetSubmission)
		v1.PATCH("/submissions/:id/code", s.handleUpdateCode)
		v1.PATCH("/submissions/:id/description", s.handleUpdateDescription)
		v1.PATCH("/submissions/:id/status", s.handleTransitionStatus)
		v1.POST("/submissions/:id/decision", s.handleDecide)
		v1.DELETE("/submissions/:id", s.handleDeleteSubmission)
		v1.GET("/submissions/:id/revisions", s.handleListRevisions)

		v1.GET("/submissions/:id/comments", s.handleListComments)
		v1.POST("/submissions/:id/comments", s.handleAddComment)
		v1.GET("/submissions/:id/comment-votes", s.handleTallyBatch)
		v1.PATCH("/comments/:id", s.handleEditComment)
		v1.DELETE("/comments/:id", s.handleDeleteComment)

		v1.GET("/comments/:id/votes", s.handleTally)
		v1.POST("/comments/:id/vote", s.handleUpsertVote)
		v1.DELETE("/comments/:id/vote", s.handleRemoveVote)

		v1.POST("/comments/:id/reactions", s.handleToggleReaction)
		v1.GET("/comments/:id/reactions", s.handleListReactions)

		v1.GET("/submissions/:id/attachments", s.handleListAttachments)
		v1.POST("/submissions/:id/attachments", s.handleUploadAttachment)
		v1.DELETE("/attachments/:id", s.handleDeleteAttachment)

		v1.GET("/leaderboard", s.handleLeaderboard)
		v1.GET("/leaderboard/me", s.handleMyStats)

		v1.GET("/notifications", s.handleListNotifications)
		v1.PATCH("/notifications/read", s.handleMarkNotificationsRead)

		v1.POST("/ai/review", s.handleReview)
		v1.POST("/ai/summarize", s.handleSummarize)
		v1.POST("/ai/generate-meta", s.handleGenerateMeta)
	}
	return router
}

func (s *HTTPServer) corsConfig() cors.Config {
	config := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders: []string{"X-Request-ID"},
		MaxAge:        12 * time.Hour,
	}
	if s.opts.CORSOrigin == "*" {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = []string{s.opts.CORSOrigin}
	}
	return config
}

func (s *HTTPServer) handleHealth(c *gin.Context) {
	writeJSON(c, http.StatusOK, gin.H{"ok": true})
}

func (s *HTTPServer) handleReady(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := gin.H{
		"database": gin.H{"status": "ok"},
	}
	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = gin.H{
			"status": "error",
			"error":  err.Error(),
		}
	}
	writeJSON(c, statusCode, gin.H{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

const callerKey = "caller"

func (s *HTTPServer) requireCaller(c *gin.Context) {
	token := bearerToken(c.Request)
	if token == "" {
		writeError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return
	}
	verified, err := s.verifier.Verify(token)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(c, status, code, message, details)
		return
	}
	c.Set(callerKey, Caller{
		UserID: verified.UserID,
		Email:  verified.Email,
		Role:   rbac.Normalize(verified.Role),
	})
	c.Next()
}

func (s *HTTPServer) rateLimitWrites(c *gin.Context) {
	switch c.Request.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		c.Next()
		return
	}
	if !s.limiter.allow(c.ClientIP()) {
		writeError(c, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests", nil)
		return
	}
	c.Next()
}

func callerFrom(c *gin.Context) Caller {
	value, _ := c.Get(callerKey)
	caller, _ := value.(Caller)
	return caller
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)
		c.Header("Cache-Control", "no-store")

		started := time.Now()
		c.Next()

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			c.Request.Method,
			c.Request.URL.Path,
			c.Writer.Status(),
			time.Since(started).Milliseconds(),
		)
	}
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func writeJSON(c *gin.Context, status int, payload any) {
	c.JSON(status, payload)
}

func writeError(c *gin.Context, status int, code, message string, details any) {
	response := gin.H{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	c.AbortWithStatusJSON(status, response)
}

// respondError maps err onto the error envelope. Unexpected errors are
// logged with the request id because their message is not returned.
func respondError(c *gin.Context, err error) {
	status, code, message, details := mapError(err)
	if status == http.StatusInternalServerError {
		log.Printf("http: %s %s request_id=%s: %v", c.Request.Method, c.Request.URL.Path, c.GetString("request_id"), err)
	}
	writeError(c, status, code, message, details)
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if len(header) < 7 || !strings.EqualFold(header[:7], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, store.ErrConflict) {
		return http.StatusConflict, "CONFLICT", "Conflict", nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
