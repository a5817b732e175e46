// Package main 是应用程序的入口点。
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"docweave-go/internal/config"
	"docweave-go/internal/handler"
	"docweave-go/internal/middleware"
	"docweave-go/internal/model"
	"docweave-go/internal/notify"
	"docweave-go/internal/pipeline"
	"docweave-go/internal/repository"
	"docweave-go/internal/service"
	"docweave-go/pkg/database"
	"docweave-go/pkg/embedding"
	"docweave-go/pkg/es"
	"docweave-go/pkg/kafka"
	"docweave-go/pkg/llm"
	"docweave-go/pkg/log"
	"docweave-go/pkg/queue"
	"docweave-go/pkg/storage"
	"docweave-go/pkg/tika"
	"docweave-go/pkg/token"

	"github.com/gin-gonic/gin"
)

func main() {
	configPath := flag.String("config", "./configs/config.yaml", "配置文件路径")
	flag.Parse()

	// 1. 初始化配置
	config.Init(*configPath)
	cfg := config.Conf

	// 2. 初始化日志记录器
	if err := log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath); err != nil {
		panic(err)
	}
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化 MySQL、Redis、Elasticsearch、MinIO 与 Kafka
	database.InitMySQL(cfg.Database.MySQL.DSN,
		&model.ChatRoom{}, &model.Document{}, &model.ParentChunk{}, &model.ChatMessage{})
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	if err := es.InitES(cfg.Elasticsearch); err != nil {
		log.Errorf("es 初始化失败 %s", err)
		return
	}
	archive := storage.NoopArchive()
	if cfg.MinIO.Enabled {
		storage.InitMinIO(cfg.MinIO)
		archive = storage.NewArchive(storage.MinioClient, cfg.MinIO.BucketName)
	}
	statusEvents := kafka.NewPublisher(cfg.Kafka)
	defer statusEvents.Close()

	taskQueue, err := queue.NewRedisQueue(database.RDB, queue.Options{
		Key:         cfg.Queue.Key,
		Reliable:    cfg.Queue.Reliable,
		MaxAttempts: cfg.Queue.MaxAttempts,
	})
	if err != nil {
		log.Fatal("初始化任务队列失败", err)
	}

	// 4. 初始化外部模型客户端
	embeddingClient := embedding.NewClient(cfg.Embedding)
	llmClient := llm.NewClient(cfg.LLM)
	tikaClient := tika.NewClient(cfg.Tika)

	// 5. 初始化 Repository
	roomRepo := repository.NewRoomRepository(database.DB)
	docRepo := repository.NewDocumentRepository(database.DB)
	parentRepo := repository.NewParentChunkRepository(database.DB)
	msgRepo := repository.NewMessageRepository(database.DB, repository.NewHistoryCache(database.RDB))
	vectorRepo := repository.NewVectorRepository(es.ESClient, embeddingClient, cfg.Elasticsearch)
	notifier := notify.NewRedisNotifier(database.RDB, statusEvents)

	// 6. 初始化 Service (依赖注入)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours)
	guardrail := service.NewGuardrail(embeddingClient, cfg.Guardrail)
	answerService, err := service.NewAnswerService(llmClient, embeddingClient, guardrail, cfg.AI.PromptTemplate, cfg.AI.Timeout)
	if err != nil {
		log.Fatal("初始化问答服务失败", err)
	}
	retrievalService := service.NewRetrievalService(vectorRepo, parentRepo, cfg.Retrieval.UserIsolation)
	roomService := service.NewRoomService(roomRepo, docRepo, msgRepo, vectorRepo, taskQueue, archive, notifier, cfg.Upload)
	chatService := service.NewChatService(roomRepo, msgRepo, retrievalService, answerService, notifier, service.ChatOptions{
		TopK:        cfg.Retrieval.TopK,
		HistorySize: cfg.Retrieval.HistorySize,
	})

	// 7. 初始化摄取流水线并启动后台 worker
	processor := pipeline.NewProcessor(
		tikaClient,
		pipeline.NewChunker(cfg.Chunking),
		roomRepo,
		docRepo,
		parentRepo,
		vectorRepo,
		msgRepo,
		notifier,
	)
	processor.SetResumable(taskQueue.Reliable())
	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()
	if taskQueue.Reliable() {
		requeued, dead, err := taskQueue.Recover(workerCtx)
		if err != nil {
			log.Errorf("恢复未确认任务失败: %v", err)
		} else if requeued+dead > 0 {
			log.Infof("已恢复未确认任务: 重新入队 %d, 进入死信 %d", requeued, dead)
		}
	}
	worker := pipeline.NewWorker(taskQueue, processor, pipeline.WorkerOptions{
		PollInterval: cfg.Worker.PollInterval,
		PopTimeout:   cfg.Worker.PopTimeout,
		Concurrency:  cfg.Worker.Concurrency,
	})
	var workerWG sync.WaitGroup
	workerWG.Add(1)
	go func() {
		defer workerWG.Done()
		worker.Run(workerCtx)
	}()

	// 8. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(middleware.RequestLogger(), gin.Recovery())
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "ok", "data": nil})
	})

	// 9. 注册路由
	apiV1 := r.Group("/api/v1")
	apiV1.Use(middleware.AuthMiddleware(jwtManager))
	handler.RegisterRoomRoutes(apiV1, handler.NewRoomHandler(roomService), handler.NewChatHandler(chatService))
	// WebSocket 令牌从查询参数读取，不经过认证中间件
	r.GET("/ws/rooms/:roomId", handler.NewEventHandler(roomService, notifier, jwtManager).Handle)

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

	// 设置一个5秒的超时上下文
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}

	// 停止轮询；被中断的任务不确认，下次启动时由 Recover 重投
	stopWorker()
	workerWG.Wait()
	log.Info("服务已优雅关闭")
}
