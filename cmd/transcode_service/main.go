package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"video_transcode_service/internal/transcode/api/handlers"
	"video_transcode_service/internal/transcode/api/router"
	"video_transcode_service/internal/transcode/app"
	"video_transcode_service/internal/transcode/domain"
	"video_transcode_service/internal/transcode/repository"
	"video_transcode_service/pkg/config"
	"video_transcode_service/pkg/database"
	"video_transcode_service/pkg/logger"
	"video_transcode_service/pkg/testtool"

	"github.com/gofiber/fiber/v2"
	fiber_log "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

func main() {
	logger.Log = logger.Initialize(config.EnvConfig.TranscodeService, config.EnvConfig.TranscodeServiceLogPath)

	cfg := config.LoadConfig[config.Transcode](config.EnvConfig.TranscodeService, config.EnvConfig.TranscodeServiceYAMLPath)

	go testtool.StartPprof()

	// 1. 連線 PostgreSQL，來源檔目錄
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		cfg.PostgreSQL.Host, cfg.PostgreSQL.User, cfg.PostgreSQL.Password, cfg.PostgreSQL.Database, cfg.PostgreSQL.Port)
	db, err := database.NewPGConnection(database.Connection{
		ConnectStr: dsn,

		RetryCount:    cfg.PostgreSQL.RetryCount,
		RetryInterval: time.Duration(cfg.PostgreSQL.RetryInterval),
	})
	if err != nil {
		logger.Log.Fatal(
			"Unable to connect to postgreSQL database after retries",
			zap.String("address", fmt.Sprintf("[%s]", dsn)),
			zap.Error(err),
		)
	}

	// 自動遷移來源檔資料表
	fileRepo := repository.NewFileRepo(db)
	if err := fileRepo.AutoMigrate(); err != nil {
		log.Fatalf("資料表遷移失敗: %v", err)
	}

	// 2. 初始化 MinIO 客戶端
	minioClient, err := database.NewMinIOConnection(database.MinIOConnection{
		Endpoint:   fmt.Sprintf("%s:%d", cfg.MinIO.Host, cfg.MinIO.Port),
		User:       cfg.MinIO.User,
		Password:   cfg.MinIO.Password,
		BucketName: cfg.MinIO.BucketName,
		UseSSL:     cfg.MinIO.UseSSL,

		RetryCount:    cfg.MinIO.RetryCount,
		RetryInterval: cfg.MinIO.RetryInterval,
	})
	if err != nil {
		logger.Log.Fatal(
			"Unable to connect to minio after retries",
			zap.Error(err),
		)
	}

	// 3. 連線 Redis，任務狀態存放處
	redisClient, err := database.NewRedisClientWithRetry(database.RedisConnection{
		Addr: cfg.Redis.Addr,
		DB:   cfg.Redis.RedisDB,

		RetryCount:    cfg.Redis.RetryCount,
		RetryInterval: time.Duration(cfg.Redis.RetryInterval),
	})
	if err != nil {
		logger.Log.Fatal("Unable to connect to redis after retries", zap.Error(err))
	}
	taskRepo := repository.NewTaskRepo(redisClient)

	// 4. 連線 RabbitMQ
	// 連不上不擋服務啟動：提交改走 inline fallback，queue 之後再回來
	var rabbit database.RabbitRepo
	rabbitURL := fmt.Sprintf("amqp://%s:%s@%s:%s/", cfg.RabbitMQ.User, cfg.RabbitMQ.Password, cfg.RabbitMQ.IP, cfg.RabbitMQ.Port)
	conn, err := database.ConnectRabbitMQWithRetry(database.Connection{
		ConnectStr:    rabbitURL,
		RetryCount:    cfg.RabbitMQ.RetryCount,
		RetryInterval: cfg.RabbitMQ.RetryInterval,
	})
	if err != nil {
		logger.Log.Warn(fmt.Sprintf("RabbitMQ 連線失敗，僅以 inline fallback 模式啟動: %v", err))
	} else {
		defer conn.Close()

		rabbitChannel, err := database.GetRabbitMQChannelWithRetry(conn, cfg.RabbitMQ.RetryCount, cfg.RabbitMQ.RetryInterval)
		if err != nil {
			log.Fatalf("取得 RabbitMQ Channel 失敗: %v", err)
		}
		defer rabbitChannel.Close()

		rabbit = database.NewRabbitRepository(conn, rabbitChannel)

		//先初始化一個queue name = transcode
		if err := rabbit.QueueDeclare(domain.QueueName); err != nil {
			log.Fatalf("Queue Declare failed: %v", err)
		}
	}

	// 5. 建立 Kafka Writer（brokers 留空表示不發佈任務事件）
	var kafkaWriter *kafka.Writer
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaWriter, err = database.NewKafkaWriterWithRetry(database.KafkaConnection{
			Brokers:       cfg.Kafka.Brokers,
			Topic:         cfg.Kafka.Topic,
			RetryCount:    cfg.Kafka.RetryCount,
			RetryInterval: cfg.Kafka.RetryInterval,
		})
		if err != nil {
			logger.Log.Warn(fmt.Sprintf("Kafka Writer 建立失敗，任務事件停用: %v", err))
		} else {
			defer kafkaWriter.Close()
		}
	}
	events := app.NewKafkaEventPublisher(kafkaWriter)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 6. 組裝轉碼管線與兩條投遞路徑
	tool := app.NewFFmpegTranscoder(cfg.Worker.SoftTimeout, cfg.Worker.HardTimeout)
	pipeline := app.NewPipeline(taskRepo, minioClient, tool, events, cfg.Worker.ScratchDir, cfg.Worker.MaxAttempts)

	queued := app.NewQueueExecutor(rabbit, domain.QueueName)
	inline := app.NewInlineExecutor(pipeline, cfg.Worker.InlineWorkers, cfg.Worker.InlineQueueSize)
	defer inline.Close()

	dispatcher := app.NewDispatcherUseCase(fileRepo, taskRepo, minioClient, queued, inline, events)
	status := app.NewStatusUseCase(taskRepo, minioClient)

	// 7. 啟動 Consumer 與擱淺任務巡檢
	if rabbit != nil {
		consumer := app.NewConsumer(rabbit, queued, pipeline, domain.QueueName, cfg.Worker.Count)
		go func() {
			if err := consumer.StartConsumer(ctx); err != nil {
				logger.Log.Errorf("Consumer 結束:", err)
			}
		}()
	}

	reconciler := app.NewReconciler(taskRepo, queued, inline, cfg.Worker.ReconcileInterval, cfg.Worker.HardTimeout, cfg.Worker.MaxAttempts)
	go reconciler.Start(ctx)

	// 8. 建立 Fiber 應用
	r := fiber.New(fiber.Config{BodyLimit: 500 * 1024 * 1024})

	// 添加日志中间件
	file, err := os.OpenFile(fmt.Sprintf("%s/access.log", config.EnvConfig.TranscodeServiceLogPath), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		log.Fatalf("Failed to open log file: %v", err)
	}
	defer file.Close()

	r.Use(fiber_log.New(fiber_log.Config{
		Output: file,
	}))

	// 9. 設定 API 路由
	h := &handlers.TranscodeHandler{
		Dispatcher: dispatcher,
		Status:     status,
		Blob:       minioClient,
		Files:      fileRepo,
	}
	router.RegisterRoutes(r, h)

	// 10. 啟動 API 服務並等待停止訊號
	go func() {
		logger.Log.Info(fmt.Sprintf("TranscodeService listening on : %s", cfg.Port))
		if err := r.Listen(cfg.IP + ":" + cfg.Port); err != nil {
			logger.Log.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("收到停止訊號，開始關閉服務")
	cancel()
	if err := r.Shutdown(); err != nil {
		logger.Log.Errorf("Fiber 關閉失敗:", err)
	}
	logger.Log.Sync()
}
