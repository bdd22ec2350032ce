// Package main 是应用程序的入口点。
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ride-chat-go/internal/config"
	"ride-chat-go/internal/generation"
	"ride-chat-go/internal/handler"
	"ride-chat-go/internal/middleware"
	"ride-chat-go/internal/model"
	"ride-chat-go/internal/pipeline"
	"ride-chat-go/internal/repository"
	"ride-chat-go/internal/service"
	"ride-chat-go/internal/tools"
	"ride-chat-go/pkg/apperr"
	"ride-chat-go/pkg/database"
	"ride-chat-go/pkg/es"
	"ride-chat-go/pkg/kafka"
	"ride-chat-go/pkg/llm"
	"ride-chat-go/pkg/log"
	"ride-chat-go/pkg/notify"
	"ride-chat-go/pkg/storage"
	"ride-chat-go/pkg/stream"
	"ride-chat-go/pkg/token"

	"github.com/gin-gonic/gin"
)

func main() {
	configPath := flag.String("config", "./configs/config.yaml", "配置文件路径")
	flag.Parse()

	// 1. 初始化配置
	config.Init(*configPath)
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	rootCtx, stop := context.WithCancel(context.Background())
	defer stop()

	// 3. 初始化数据库和 Redis
	database.InitMySQL(cfg.Database.MySQL.DSN)
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)

	store, err := storage.NewStore(rootCtx, cfg.MinIO)
	if err != nil {
		log.Fatal("MinIO 初始化失败", err)
	}

	// 检索是可选能力，ES 不可用时只关闭搜索接口。
	searchEnabled := true
	if err := es.InitES(cfg.Elasticsearch); err != nil {
		log.Errorf("es 初始化失败，搜索功能不可用: %v", err)
		searchEnabled = false
	}

	// 4. 初始化 Repository
	userRepo := repository.NewUserRepository(database.DB)
	conversationRepo := repository.NewConversationRepository(database.DB)
	documentRepo := repository.NewDocumentRepository(database.DB)
	quotaRepo := repository.NewQuotaRepository(database.RDB)

	// 5. 模型、工具与生成循环
	llmClient, err := llm.NewClient(rootCtx, cfg.LLM, cfg.Chat.DefaultModel)
	if err != nil {
		log.Fatal("LLM 客户端初始化失败", err)
	}
	writer := tools.NewDocumentWriter(llmClient, cfg.Chat.DefaultModel, documentRepo)
	registry := tools.NewRegistry(cfg.Chat.ReasoningModel,
		tools.NewWeatherTool(cfg.Weather),
		tools.NewCreateDocumentTool(writer),
		tools.NewUpdateDocumentTool(writer),
		tools.NewSuggestionsTool(llmClient, cfg.Chat.DefaultModel, documentRepo),
	)
	loop := generation.NewLoop(llmClient, registry)

	// 6. 流中继与回合通知
	transport := stream.NewTransport(rootCtx, database.RDB, cfg.Stream)
	notifier, err := notify.New(cfg)
	if err != nil {
		log.Fatal("通知投递初始化失败", err)
	}
	defer notifier.Close()

	// 7. 通知走 Kafka 时，由后台消费者把回合写入检索索引
	if cfg.Notify.Driver == "kafka" && searchEnabled {
		indexer := pipeline.NewTurnIndexer(func(ctx context.Context, doc model.TurnDocument) error {
			return es.IndexTurn(ctx, es.ESClient, cfg.Elasticsearch.IndexName, doc)
		})
		go kafka.StartConsumer(rootCtx, cfg.Kafka, database.RDB, indexer)
	}

	// 8. 初始化 Service (依赖注入)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours, cfg.JWT.RefreshTokenExpireDays)
	userService := service.NewUserService(userRepo, quotaRepo, jwtManager, cfg.Entitlements)
	conversationService := service.NewConversationService(conversationRepo)
	documentService := service.NewDocumentService(documentRepo)
	uploadService := service.NewUploadService(store)
	chatService := service.NewChatService(service.ChatDeps{
		Conversations: conversationRepo,
		Quota:         quotaRepo,
		Assembler:     service.NewConversationAssembler(conversationRepo),
		Loop:          loop,
		Tools:         registry,
		Transport:     transport,
		Notifier:      notifier,
		Chat:          cfg.Chat,
		Entitlements:  cfg.Entitlements,
		NotifyTimeout: cfg.Notify.Timeout,
	})

	// 9. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())

	userHandler := handler.NewUserHandler(userService)
	chatHandler := handler.NewChatHandler(chatService, cfg.Stream.Heartbeat)
	conversationHandler := handler.NewConversationHandler(conversationService)
	documentHandler := handler.NewDocumentHandler(documentService)
	uploadHandler := handler.NewUploadHandler(uploadService)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "relay": transport.RelayAvailable()})
	})

	api := r.Group("/api")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/guest", userHandler.Guest)
			auth.POST("/register", userHandler.Register)
			auth.POST("/login", userHandler.Login)
			auth.POST("/refreshToken", userHandler.RefreshToken)
		}

		users := api.Group("/users", middleware.RequireAuth(jwtManager, apperr.ScopeAuth))
		{
			users.GET("/me", userHandler.Profile)
			users.GET("/usage", userHandler.Usage)
		}

		// 是否必须登录以及错误码的 scope 由各个服务决定
		authed := api.Group("", middleware.OptionalAuth(jwtManager))
		{
			authed.POST("/chat", chatHandler.Submit)
			authed.DELETE("/chat/:id", conversationHandler.Delete)
			authed.GET("/chat/:id/stream", chatHandler.ResumeByChat)
			authed.GET("/chat/:id/messages", conversationHandler.Messages)
			authed.PATCH("/chat/:id/visibility", conversationHandler.UpdateVisibility)
			authed.GET("/chat/stream/:streamId", chatHandler.ResumeByStream)
			authed.GET("/history", conversationHandler.History)
			authed.GET("/document/:id", documentHandler.Versions)
			authed.GET("/suggestions", documentHandler.Suggestions)
			authed.POST("/files/upload", uploadHandler.Upload)
			if searchEnabled {
				searchHandler := handler.NewSearchHandler(service.NewSearchService(es.ESClient, cfg.Elasticsearch.IndexName))
				authed.GET("/search", searchHandler.Search)
			}
		}
	}
	// WebSocket 无法携带自定义请求头，token 通过查询参数传递
	r.GET("/chat/socket/:streamId", middleware.OptionalAuth(jwtManager), chatHandler.Socket)

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	// 流式响应可能持续到单回合的最长时长，停机等待时间与之对齐
	shutdownTimeout := cfg.Chat.MaxDuration + 5*time.Second
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}

	// 停止 Kafka 消费者与流中继，生产者随通知投递一起关闭
	stop()
	log.Info("服务已优雅关闭")
}
