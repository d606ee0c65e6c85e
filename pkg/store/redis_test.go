//go:build integration

package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestRedis(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := ConnectRedis(ctx, url, 3, 200*time.Millisecond)
	if err != nil {
		t.Fatalf("ConnectRedis failed: %v", err)
	}
	r := NewRedis(client, RedisConfig{Namespace: "test:" + uuid.NewString() + ":", TTL: time.Minute})
	defer r.Close()

	exerciseStore(t, r)
}
