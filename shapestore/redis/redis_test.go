package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ggoodman/optshape/shapestore"
	"github.com/ggoodman/optshape/shapestore/shapestoretest"
)

func TestRedisStore(t *testing.T) {
	// Quick availability check to allow graceful skip in environments without Redis
	s, err := NewFromEnv()
	if err != nil {
		t.Skipf("skipping redis store tests: %v", err)
		return
	}
	_ = s.Close()

	shapestoretest.RunStoreTests(t, func(t *testing.T) shapestore.Store {
		st, err := NewFromEnv()
		if err != nil {
			t.Fatalf("NewFromEnv: %v", err)
		}
		// Isolate each test under its own prefix.
		prefix := fmt.Sprintf("optshape-test:%d:", time.Now().UnixNano())
		t.Cleanup(func() { cleanup(st.client, prefix) })
		return NewWithClient(st.client, prefix)
	})
}

func cleanup(cl *redis.Client, prefix string) {
	ctx := context.Background()
	c := redis.NewClient(cl.Options())
	defer c.Close()
	iter := c.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		c.Del(ctx, iter.Val())
	}
}
