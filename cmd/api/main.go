package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"codecollab/api/internal/app"
	"codecollab/api/internal/auth"
	"codecollab/api/internal/blob"
	"codecollab/api/internal/cache"
	"codecollab/api/internal/config"
	"codecollab/api/internal/email"
	"codecollab/api/internal/hook"
	"codecollab/api/internal/identity"
	"codecollab/api/internal/llm"
	"codecollab/api/internal/revisions"
	"codecollab/api/internal/search"
	"codecollab/api/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()
	gin.SetMode(gin.ReleaseMode)

	if strings.TrimSpace(cfg.JWTSecret) == "" {
		log.Printf("WARNING: SUPABASE_JWT_SECRET is empty; every authenticated request will be rejected")
	}

	var dataStore app.DataStore
	deps := app.Dependencies{
		LeaderboardTTL: cfg.LeaderboardCacheTTL,
		Policy: app.Policy{
			DecideRequiresReviewer: cfg.DecideRequiresReviewer,
			AllowRedecide:          cfg.AllowRedecide,
		},
	}

	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		db, err := store.Open(ctx, cfg.DatabaseURL, store.PoolConfig{})
		if err != nil {
			log.Fatalf("database connection failed: %v", err)
		}
		defer db.Close()

		applied, err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir)
		if err != nil {
			log.Fatalf("migrations failed: %v", err)
		}
		if len(applied) > 0 {
			log.Printf("applied migrations: %s", strings.Join(applied, ", "))
		}
		dataStore = store.NewPostgresStore(db)
	} else {
		log.Printf("WARNING: DATABASE_URL is empty; using the in-memory store, data is lost on restart")
		dataStore = store.NewMemoryStore()
	}

	resolver, err := identity.NewResolver(dataStore, cfg.IdentityCacheSize, cfg.IdentityCacheTTL)
	if err != nil {
		log.Fatalf("identity resolver: %v", err)
	}
	deps.Identity = resolver

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, dataStore)
	deps.Search = searchService

	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisCache, err := cache.NewRedisCache(cfg.RedisURL, "codecollab:")
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer redisCache.Close()
		log.Printf("Using Redis for the leaderboard cache")
		deps.Cache = redisCache
	}

	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		minioStore, err := blob.NewMinio(ctx, blob.Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			log.Fatalf("object storage setup failed: %v", err)
		}
		deps.Blob = minioStore
	} else {
		log.Printf("MINIO_ENDPOINT is empty; attachment uploads are disabled")
	}

	if strings.TrimSpace(cfg.RevisionsDir) != "" {
		if err := os.MkdirAll(cfg.RevisionsDir, 0o755); err != nil {
			log.Fatalf("failed to create revisions dir: %v", err)
		}
		deps.Revisions = revisions.New(cfg.RevisionsDir)
	}

	if client := llm.New(llm.Config{
		BaseURL: cfg.LLMBaseURL,
		Token:   cfg.LLMToken,
		Model:   cfg.LLMModel,
		Timeout: cfg.LLMTimeout,
	}); client.Configured() {
		deps.LLM = client
	} else {
		log.Printf("LLM_BASE_URL or LLM_MODEL is empty; AI assist routes will answer 503")
	}

	mailer := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})
	if mailer.IsConfigured() {
		deps.Mailer = mailer
	}

	hooks := hook.NewRunner(cfg.MentionWorkers, cfg.MentionQueueSize, hook.LogSink{})
	defer hooks.Close()
	deps.Hooks = hooks

	service := app.New(dataStore, deps)
	searchService.ReindexAll(ctx)

	httpServer := app.NewHTTPServer(service, auth.NewVerifier(cfg.JWTSecret, cfg.JWTAudience), app.HTTPOptions{
		CORSOrigin:     cfg.CORSOrigin,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		TrustedProxies: cfg.TrustedProxies,
	})
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("CodeCollab API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
