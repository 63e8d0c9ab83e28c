// Package main 影片互動服務啟動入口
//
// 組裝順序：設定 → 日誌 → Redis → 文件資料庫（含遷移）→ 指標 →
// 快取暖機 / 最近影片索引 → 轉檔佇列 → 服務 → HTTP。
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/koopa0/video-engagement/internal/cache"
	"github.com/koopa0/video-engagement/internal/config"
	"github.com/koopa0/video-engagement/internal/docstore"
	"github.com/koopa0/video-engagement/internal/engagement"
	"github.com/koopa0/video-engagement/internal/handler"
	"github.com/koopa0/video-engagement/internal/kv"
	"github.com/koopa0/video-engagement/internal/metrics"
	"github.com/koopa0/video-engagement/internal/migrations"
	"github.com/koopa0/video-engagement/internal/queue"
	"github.com/koopa0/video-engagement/internal/recent"
	"github.com/koopa0/video-engagement/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

func main() {
	configPath := flag.String("config", "", "path to config file (optional, env overrides)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.Init(logger.Options{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		AddSource:  cfg.Log.AddSource,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx := context.Background()

	// 連接 Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		MaxRetries:   cfg.Redis.MaxRetries,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	kvs := kv.NewRedisStore(redisClient)

	// 文件資料庫
	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(context.Background()); err != nil {
			log.Error("close store failed", "error", err)
		}
	}()

	// 指標
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	warmer := cache.NewWarmer(kvs, store, m, log, cfg.Cache.ProfileTTL)
	index := recent.NewIndex(kvs, store, cfg.Cache.RecentLimit, m, log)

	checks := map[string]handler.Checker{
		"redis":    kvs.Ping,
		"docstore": store.Ping,
	}

	// 轉檔佇列
	var (
		publisher engagement.Publisher = disabledPublisher{}
		mq        *queue.MessageQueue
	)
	if cfg.NATS.Enabled {
		mq, err = queue.Connect(queue.Options{
			URL:      cfg.NATS.URL,
			Stream:   cfg.NATS.Stream,
			Durable:  cfg.NATS.Durable,
			AckWait:  cfg.NATS.AckWait,
			MaxRetry: cfg.NATS.MaxRetry,
		}, log)
		if err != nil {
			return err
		}
		defer mq.Close()
		publisher = mq
		checks["nats"] = func(context.Context) error { return mq.Ping() }
	} else {
		log.Warn("nats disabled, video creation will fail until the queue is configured")
	}

	svc := engagement.New(engagement.Deps{
		Store:     store,
		KV:        kvs,
		Warmer:    warmer,
		Recent:    index,
		Publisher: publisher,
		Metrics:   m,
		Logger:    log,
	}, engagement.OptionsFromConfig(cfg))

	var consumer *queue.DoneConsumer
	if mq != nil {
		consumer = queue.NewDoneConsumer(mq, svc, m, log)
		if err := consumer.Start(); err != nil {
			return err
		}
	}

	// 設定 HTTP 伺服器
	h := handler.New(svc, m, reg, checks, log)
	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      h.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("starting server", "addr", srv.Addr)
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil

	case sig := <-shutdown:
		log.Info("shutdown signal received", "signal", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// 先停止接收完成事件，處理中的訊息會完成
	if consumer != nil {
		if err := consumer.Stop(); err != nil {
			log.Error("stop consumer failed", "error", err)
		}
	}

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("failed to shutdown server", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Error("failed to force close server", "error", closeErr)
		}
	}
	return nil
}

// openStore 依設定選擇文件資料庫
func openStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (docstore.Store, error) {
	if cfg.Store.Driver == config.StoreDriverMemory {
		log.Warn("using in-memory document store, data is lost on restart")
		return docstore.NewMemoryStore(), nil
	}

	mc := cfg.Store.Mongo
	if mc.AutoMigrate {
		if err := runMigrations(mc.URI, mc.Database, log); err != nil {
			return nil, err
		}
	}

	if mc.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, mc.ConnectTimeout)
		defer cancel()
	}
	return docstore.ConnectMongo(ctx, docstore.MongoOptions{
		URI:            mc.URI,
		Database:       mc.Database,
		MaxPoolSize:    mc.MaxPoolSize,
		ConnectTimeout: mc.ConnectTimeout,
	}, log)
}

// runMigrations 建立索引（likes 唯一索引是按讚正確性的前提）
func runMigrations(uri, database string, log *slog.Logger) error {
	dbURL, err := migrations.DatabaseURL(uri, database)
	if err != nil {
		return err
	}
	m, err := migrations.New(dbURL, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := m.Close(); err != nil {
			log.Warn("close migrator failed", "error", err)
		}
	}()
	return m.Up()
}

// disabledPublisher 佇列關閉時使用
type disabledPublisher struct{}

func (disabledPublisher) PublishConversion(context.Context, queue.ConversionJob) error {
	return errors.New("conversion queue disabled")
}
