package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestFixedWindowLimiterRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	limiter, err := NewRedisFixedWindowLimiter(mr.Addr(), "", "test:ratelimit", 2, time.Minute)
	if err != nil {
		t.Fatalf("new redis limiter: %v", err)
	}
	ctx := context.Background()
	if !limiter.Check(ctx, "ip-1").Allowed {
		t.Fatalf("first request should pass")
	}
	if !limiter.Check(ctx, "ip-1").Allowed {
		t.Fatalf("second request should pass")
	}
	if limiter.Check(ctx, "ip-1").Allowed {
		t.Fatalf("third request should be blocked")
	}
	if !limiter.Check(ctx, "ip-2").Allowed {
		t.Fatalf("other keys keep their own quota")
	}
}

func TestFixedWindowLimiterCheckReportsQuota(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	limiter, err := NewFixedWindowLimiter(client, "", 1, time.Minute)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	first := limiter.Check(context.Background(), "user:7")
	if !first.Allowed || first.Remaining != 0 {
		t.Fatalf("unexpected first decision: %+v", first)
	}
	second := limiter.Check(context.Background(), "user:7")
	if second.Allowed {
		t.Fatalf("second request should be limited")
	}
	if second.RetryAfter <= 0 || second.RetryAfter > time.Minute {
		t.Fatalf("unexpected retry after: %v", second.RetryAfter)
	}
	if limiter.Limit() != 1 {
		t.Fatalf("unexpected limit: %d", limiter.Limit())
	}
}

func TestFixedWindowLimiterRedisFailClosed(t *testing.T) {
	mr := miniredis.RunT(t)
	limiter, err := NewRedisFixedWindowLimiter(mr.Addr(), "", "test:ratelimit", 1, time.Second)
	if err != nil {
		t.Fatalf("new redis limiter: %v", err)
	}
	mr.Close()
	if limiter.Check(context.Background(), "ip-1").Allowed {
		t.Fatalf("limiter should fail closed on redis errors")
	}
}

func TestFixedWindowLimiterValidatesArguments(t *testing.T) {
	if limiter, err := NewRedisFixedWindowLimiter("", "", "test:ratelimit", 1, time.Second); err == nil || limiter != nil {
		t.Fatalf("expected constructor error for empty redis addr")
	}
	if _, err := NewFixedWindowLimiter(nil, "", 1, time.Second); err == nil {
		t.Fatalf("expected error for nil client")
	}
	mr := miniredis.RunT(t)
	if _, err := NewRedisFixedWindowLimiter(mr.Addr(), "", "", 0, time.Second); err == nil {
		t.Fatalf("expected error for zero limit")
	}
}
