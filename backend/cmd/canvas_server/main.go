package main

import (
	"fmt"
	"log"
	"time"

	"context"
	"database/sql"

	"github.com/IBM/sarama"
	"github.com/gin-gonic/gin"
	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"

	"canvasServer/backend/internal/cache"
	"canvasServer/backend/internal/collab"
	"canvasServer/backend/internal/httpapi/handlers"
	"canvasServer/backend/internal/httpapi/middleware"
	"canvasServer/backend/internal/store"
	"canvasServer/backend/internal/ws"
)

type CanvasConfig struct {
	Running struct {
		Port int `mapstructure:"Port"`
	} `mapstructure:"Running"`
	Mysql struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"Mysql"`
	Redis struct {
		Addrs    []string `mapstructure:"addrs"`
		Password string   `mapstructure:"password"`
	} `mapstructure:"Redis"`
	Kafka struct {
		Brokers []string `mapstructure:"brokers"`
		Topic   string   `mapstructure:"topic"`
	} `mapstructure:"Kafka"`
	Auth struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"Auth"`
}

func initConfig() (*CanvasConfig, error) {
	cfg := &CanvasConfig{}
	v := viper.New()
	v.SetConfigName("canvasConfig")
	v.SetConfigType("yaml")
	// 兼容从项目根目录或 backend 目录启动
	v.AddConfigPath("./backend/config")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func main() {
	cfg, err := initConfig()
	if err != nil {
		log.Fatalf("init config failed: %v", err)
	}
	log.Printf("config: %+v", cfg)

	rdb := redis.NewClusterClient(&redis.ClusterOptions{
		Addrs:    cfg.Redis.Addrs,
		Password: cfg.Redis.Password,
	})
	if err = rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}
	defer rdb.Close()

	dsn := cfg.Mysql.DSN
	gormDB, err := store.InitMySQL(dsn)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := gormDB.AutoMigrate(&store.DocumentModel{}); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	// 快照存储走 database/sql 直连（退出路径，尽力而为）
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// === 初始化 Kafka Producer ===
	kafkaCfg := sarama.NewConfig()
	// SyncProducer 必须开启 Return.Successes
	kafkaCfg.Producer.Return.Successes = true
	kafkaCfg.Producer.RequiredAcks = sarama.WaitForLocal
	producer, err := sarama.NewSyncProducer(cfg.Kafka.Brokers, kafkaCfg)
	if err != nil {
		log.Fatalf("Failed to connect kafka: %v", err)
	}
	defer producer.Close()

	presenceCache := cache.NewRedisPresence(rdb)
	sessionStore := cache.NewRedisSessionStore(rdb)
	documentStore := store.NewDocumentStore(gormDB)
	snapshotStore := store.NewSnapshotStore(db)

	kafkaSem := collab.NewSemaphoreControl(collab.DefaultMaxSemaphore)
	wsSem := collab.NewSemaphoreControl(collab.DefaultMaxSemaphore)

	// Kafka 本地队列 + worker 重试发送
	kafkaDispatcher := collab.NewKafkaDispatcher(
		producer,
		cfg.Kafka.Topic,
		kafkaSem,
		collab.KafkaDispatcherOptions{
			QueueSize:   10_000,
			Workers:     4,
			MaxRetry:    3,
			BaseBackoff: 50 * time.Millisecond,
			MaxBackoff:  1 * time.Second,
		},
	)

	svc := collab.NewInMemoryService(documentStore, snapshotStore, sessionStore, kafkaDispatcher)
	hub := ws.NewHub(presenceCache)
	manager := ws.NewManager(hub, svc, wsSem)
	api := handlers.NewHandler(svc, sessionStore)

	r := gin.New()
	// 中间件
	r.Use(gin.Logger())
	r.Use(gin.Recovery())

	// 路由
	canvasGroup := r.Group("/canvas")
	// 挂鉴权中间件（会从 Authorization 或 ?token= 提取 token，调用 /v1/auth/verify，并写入 userId/username）
	canvasGroup.Use(middleware.AuthMiddleware(cfg.Auth.Path))
	canvasGroup.GET("/ws", manager.WebSocketConnect)
	canvasGroup.POST("/documents", api.CreateCanvas)
	canvasGroup.GET("/documents/:docID", api.GetCanvas)
	canvasGroup.POST("/documents/:docID/share", api.ShareCanvas)
	canvasGroup.POST("/documents/:docID/save", api.SaveCanvas)
	canvasGroup.POST("/forks/stash", api.StashFork)
	canvasGroup.POST("/documents/:docID/fork", api.ForkCanvas)
	canvasGroup.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"message": "ok",
		})
	})

	port := cfg.Running.Port
	_ = r.Run(fmt.Sprintf(":%d", port))
}
