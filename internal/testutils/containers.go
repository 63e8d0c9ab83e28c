// Package testutils 提供測試用的共用工具
//
// 容器（testcontainers）只在整合測試使用，`go test -short` 時跳過；
// 單元測試使用 miniredis 與 docstore.MemoryStore。
package testutils

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/koopa0/video-engagement/internal/docstore"
	"github.com/koopa0/video-engagement/internal/migrations"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	tcmongodb "github.com/testcontainers/testcontainers-go/modules/mongodb"
	tcnats "github.com/testcontainers/testcontainers-go/modules/nats"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestLogger 測試時只輸出警告以上
func TestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
}

// SkipIfShort 整合測試在 -short 模式下跳過
func SkipIfShort(t testing.TB) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
}

// SetupRedis 啟動 Redis 容器並返回客戶端
func SetupRedis(t testing.TB) *redis.Client {
	t.Helper()
	SkipIfShort(t)
	ctx := context.Background()

	container, err := tcredis.Run(ctx,
		"redis:7-alpine",
		tc.WithWaitStrategy(
			wait.ForLog("Ready to accept connections").
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("failed to get redis endpoint: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr:         endpoint,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})
	t.Cleanup(func() { _ = client.Close() })

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		t.Fatalf("failed to ping redis: %v", err)
	}
	return client
}

// SetupMongo 啟動 MongoDB 容器、執行索引遷移並返回 MongoStore
func SetupMongo(t testing.TB) *docstore.MongoStore {
	t.Helper()
	SkipIfShort(t)
	ctx := context.Background()
	logger := TestLogger()

	container, err := tcmongodb.Run(ctx,
		"mongo:7",
		tc.WithWaitStrategy(
			wait.ForListeningPort("27017/tcp").
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start mongo container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	uri, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("failed to get mongo connection string: %v", err)
	}

	const database = "video_test"
	dbURL, err := migrations.DatabaseURL(uri, database)
	if err != nil {
		t.Fatalf("failed to build migration url: %v", err)
	}
	m, err := migrations.New(dbURL, logger)
	if err != nil {
		t.Fatalf("failed to create migrator: %v", err)
	}
	if err := m.Up(); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	_ = m.Close()

	store, err := docstore.ConnectMongo(ctx, docstore.MongoOptions{
		URI:            uri,
		Database:       database,
		ConnectTimeout: 10 * time.Second,
	}, logger)
	if err != nil {
		t.Fatalf("failed to connect mongo: %v", err)
	}
	t.Cleanup(func() { _ = store.Close(context.Background()) })
	return store
}

// SetupNATS 啟動開啟 JetStream 的 NATS 容器並返回連線
func SetupNATS(t testing.TB) *nats.Conn {
	t.Helper()
	SkipIfShort(t)
	ctx := context.Background()

	container, err := tcnats.Run(ctx, "nats:2.10-alpine")
	if err != nil {
		t.Fatalf("failed to start nats container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	url, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("failed to get nats url: %v", err)
	}

	nc, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("failed to connect nats: %v", err)
	}
	t.Cleanup(nc.Close)
	return nc
}
