package testutils

import (
	"context"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/koopa0/video-engagement/internal/docstore"
	"github.com/koopa0/video-engagement/internal/kv"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// NewMiniRedis 以 miniredis 建立 kv.RedisStore
func NewMiniRedis(t testing.TB) (*kv.RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return kv.NewRedisStore(client), mr
}

// CreateUser 建立測試使用者
func CreateUser(t testing.TB, store docstore.Store, first, last string) *docstore.User {
	t.Helper()
	id := primitive.NewObjectID()
	u := &docstore.User{
		ID:        id,
		Username:  "user-" + id.Hex(),
		Email:     fmt.Sprintf("%s@example.com", id.Hex()),
		Firstname: first,
		Lastname:  last,
	}
	if err := store.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

// CreateVideo 建立已可播放的公開影片
func CreateVideo(t testing.TB, store docstore.Store, owner primitive.ObjectID) *docstore.Video {
	t.Helper()
	v := &docstore.Video{
		Owner:     owner,
		Title:     "video",
		Tags:      []docstore.Tag{docstore.TagFun},
		Available: true,
		IsPublic:  true,
		Duration:  12.5,
	}
	if err := store.CreateVideo(context.Background(), v); err != nil {
		t.Fatalf("create video: %v", err)
	}
	return v
}
