package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/bidforge/backend/internal/api/handlers"
	redisCache "github.com/bidforge/backend/internal/cache/redis"
	"github.com/bidforge/backend/internal/chat"
	"github.com/bidforge/backend/internal/embedding"
	"github.com/bidforge/backend/internal/knowledge"
	"github.com/bidforge/backend/internal/llm"
	"github.com/bidforge/backend/internal/metrics"
	"github.com/bidforge/backend/internal/project"
	"github.com/bidforge/backend/internal/ratelimit"
	"github.com/bidforge/backend/internal/storage/blob"
	"github.com/bidforge/backend/internal/storage/sqlite"
	"github.com/bidforge/backend/internal/vector/milvus"
	"github.com/bidforge/backend/pkg/config"
	appLogger "github.com/bidforge/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting BidForge API Server")

	metrics.Init()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	err = sqliteClient.InitSchema()
	if err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	milvusClient, err := milvus.NewClient(
		cfg.Milvus.Endpoint,
		cfg.Milvus.CollectionName,
		cfg.Milvus.VectorDim,
	)
	if err != nil {
		appLogger.Fatal("Failed to create Milvus client", zap.Error(err))
	}
	defer milvusClient.Close()

	err = milvusClient.CreateCollection(context.Background())
	if err != nil {
		appLogger.Fatal("Failed to create collection", zap.Error(err))
	}

	var embeddingCache embedding.Cache
	if cfg.Redis.Enabled {
		redisClient, err := redisCache.NewClient(
			cfg.Redis.Host,
			cfg.Redis.Port,
			cfg.Redis.Password,
			cfg.Redis.DB,
		)
		if err != nil {
			appLogger.Warn("Redis unavailable, embeddings will not be cached", zap.Error(err))
		} else {
			defer redisClient.Close()
			embeddingCache = redisClient
		}
	}

	blobStore, err := blob.NewLocalStore(cfg.Blob.Root)
	if err != nil {
		appLogger.Fatal("Failed to create blob store", zap.Error(err))
	}

	limiter := ratelimit.New(ratelimit.Config{
		RequestsPerMinute: cfg.Limits.RequestsPerMinute,
		TokensPerMinute:   cfg.Limits.TokensPerMinute,
		MaxQueueSize:      cfg.Limits.MaxQueueSize,
		QueueTimeout:      time.Duration(cfg.Limits.QueueTimeoutSeconds) * time.Second,
	})

	llmClient := llm.NewClient(cfg.LLM, limiter)

	var provider embedding.Provider
	if cfg.LLM.APIKey != "" {
		provider = llmClient
	} else {
		appLogger.Warn("No LLM API key configured, embeddings use the deterministic fallback")
	}
	embedder := embedding.New(provider, embeddingCache)

	knowledgeService := knowledge.NewService(sqliteClient, milvusClient, blobStore, embedder)
	projectService := project.NewService(sqliteClient, knowledgeService, llmClient)
	chatService := chat.NewService(sqliteClient, knowledgeService, llmClient)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		metrics.RequestDuration.WithLabelValues(c.Route().Path).Observe(time.Since(start).Seconds())
		return err
	})
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Org-ID, X-User-ID",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))

	knowledgeHandler := handlers.NewKnowledgeHandler(knowledgeService)
	projectHandler := handlers.NewProjectHandler(projectService)
	chatHandler := handlers.NewChatHandler(chatService)
	limitsHandler := handlers.NewLimitsHandler(limiter)

	api := app.Group("/api/v1", handlers.RequireOrg())

	api.Post("/knowledge/documents", knowledgeHandler.UploadDocument)
	api.Get("/knowledge/documents", knowledgeHandler.ListDocuments)
	api.Get("/knowledge/documents/:id", knowledgeHandler.GetDocument)
	api.Post("/knowledge/documents/:id/reindex", knowledgeHandler.ReindexDocument)
	api.Delete("/knowledge/documents/:id", knowledgeHandler.DeleteDocument)
	api.Post("/knowledge/search", knowledgeHandler.Search)

	api.Post("/projects", projectHandler.CreateProject)
	api.Post("/projects/upload", projectHandler.CreateProjectFromFile)
	api.Get("/projects", projectHandler.ListProjects)
	api.Get("/projects/:id", projectHandler.GetProject)
	api.Post("/projects/:id/reanalyze", projectHandler.ReanalyzeProject)
	api.Get("/projects/:id/drafts", projectHandler.GetDrafts)
	api.Get("/projects/:id/gaps", projectHandler.GetGapReport)

	api.Post("/projects/:id/conversations", chatHandler.CreateConversation)
	api.Get("/projects/:id/conversations", chatHandler.ListConversations)
	api.Get("/projects/:id/conversations/:convID/messages", chatHandler.ListMessages)
	api.Post("/projects/:id/conversations/:convID/messages", chatHandler.SendMessage)

	api.Get("/limits", limitsHandler.GetStats)

	app.Get("/metrics", metrics.Handler())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	app.Shutdown()
	appLogger.Info("Server stopped")
}
