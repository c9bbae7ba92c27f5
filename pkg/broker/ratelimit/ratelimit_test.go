package ratelimit_test

import (
	"context"
	"testing"
	"time"

	"github.com/nova-labs/messagemesh/pkg/broker/ratelimit"
)

func TestTokenBucketAllowsUpToBurstThenRejects(t *testing.T) {
	l := ratelimit.New(ratelimit.Options{Strategy: ratelimit.StrategyTokenBucket, Limit: 10, Period: time.Second, Burst: 2})

	first, err := l.Allow(context.Background(), "k")
	if err != nil || !first.Allowed {
		t.Fatalf("expected first call allowed, got %+v err=%v", first, err)
	}
	second, err := l.Allow(context.Background(), "k")
	if err != nil || !second.Allowed {
		t.Fatalf("expected second call allowed, got %+v err=%v", second, err)
	}
	third, err := l.Allow(context.Background(), "k")
	if err != nil || third.Allowed {
		t.Fatalf("expected third call rejected once burst is exhausted, got %+v err=%v", third, err)
	}

	m := l.Metrics()
	if m.Total != 3 || m.Allowed != 2 || m.Rejected != 1 {
		t.Fatalf("expected total=3 allowed=2 rejected=1, got %+v", m)
	}
}

func TestFixedWindowTracksCounters(t *testing.T) {
	l := ratelimit.New(ratelimit.Options{Strategy: ratelimit.StrategyFixedWindow, Limit: 1, Period: time.Minute})

	l.Allow(context.Background(), "k")
	l.Allow(context.Background(), "k")

	m := l.Metrics()
	if m.Total != 2 || m.Allowed != 1 || m.Rejected != 1 {
		t.Fatalf("expected total=2 allowed=1 rejected=1, got %+v", m)
	}
}
