//go:build integration
// +build integration

package test

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/eduAuth"
	"github.com/MrEthical07/eduAuth/session"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// cmdCounter is a go-redis Hook that counts Redis round-trips (individual
// commands and pipeline calls).
type cmdCounter struct {
	commands  atomic.Int64
	pipelines atomic.Int64
}

func (h *cmdCounter) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

func (h *cmdCounter) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		h.commands.Add(1)
		return next(ctx, cmd)
	}
}

func (h *cmdCounter) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		// One pipeline is one network round-trip regardless of command count.
		h.pipelines.Add(1)
		return next(ctx, cmds)
	}
}

func (h *cmdCounter) Reset() {
	h.commands.Store(0)
	h.pipelines.Store(0)
}

func (h *cmdCounter) Commands() int64  { return h.commands.Load() }
func (h *cmdCounter) Pipelines() int64 { return h.pipelines.Load() }

// RoundTrips is commands plus pipelines.
func (h *cmdCounter) RoundTrips() int64 { return h.Commands() + h.Pipelines() }

func newCountedClient(t *testing.T) (*redis.Client, *cmdCounter) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	counter := &cmdCounter{}
	rdb.AddHook(counter)

	// Warm the connection so handshake commands are not counted.
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("warmup ping: %v", err)
	}
	counter.Reset()

	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return rdb, counter
}

// TestConsumeRefreshRedisBudget verifies that consuming a refresh token is a
// single Lua call (EVALSHA, plus EVAL on the first script-cache miss).
func TestConsumeRefreshRedisBudget(t *testing.T) {
	rdb, counter := newCountedClient(t)
	store := session.NewStore(rdb)
	ctx := context.Background()

	if err := store.SaveRefresh(ctx, 42, "tok-budget", time.Hour); err != nil {
		t.Fatalf("SaveRefresh: %v", err)
	}
	if got := counter.Pipelines(); got != 1 {
		t.Errorf("SaveRefresh used %d pipelines; budget is 1", got)
	}
	counter.Reset()

	owner, err := store.ConsumeRefresh(ctx, "tok-budget")
	if err != nil {
		t.Fatalf("ConsumeRefresh: %v", err)
	}
	if owner != 42 {
		t.Fatalf("expected owner 42, got %d", owner)
	}
	if cmds := counter.Commands(); cmds > 2 {
		t.Errorf("ConsumeRefresh used %d Redis commands; budget is <= 2", cmds)
	}

	// Script is cached now: exactly one EVALSHA.
	_ = store.SaveRefresh(ctx, 42, "tok-budget-2", time.Hour)
	counter.Reset()
	if _, err := store.ConsumeRefresh(ctx, "tok-budget-2"); err != nil {
		t.Fatalf("ConsumeRefresh: %v", err)
	}
	if cmds := counter.Commands(); cmds != 1 {
		t.Errorf("cached ConsumeRefresh used %d commands; want 1", cmds)
	}
}

// TestLimiterRedisBudget verifies INCR+EXPIRE on the first hit of a window
// and a bare INCR afterwards.
func TestLimiterRedisBudget(t *testing.T) {
	rdb, counter := newCountedClient(t)
	limiter := session.NewLimiter(rdb)
	ctx := context.Background()

	if err := limiter.Allow(ctx, "2fa", "7", 5, time.Minute); err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if cmds := counter.Commands(); cmds != 2 {
		t.Errorf("first Allow used %d commands; want 2", cmds)
	}
	counter.Reset()

	if err := limiter.Allow(ctx, "2fa", "7", 5, time.Minute); err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if cmds := counter.Commands(); cmds != 1 {
		t.Errorf("second Allow used %d commands; want 1", cmds)
	}
}

// TestEngineRefreshRedisBudget bounds the Redis round-trips of one
// RefreshToken call: consume plus the new token's pipeline.
func TestEngineRefreshRedisBudget(t *testing.T) {
	rdb, counter := newCountedClient(t)
	h := newHarness(t, rdb)
	_, pair := h.signIn(t, "budget@example.com")

	// Prime the script cache.
	pair2, err := h.engine.RefreshToken(context.Background(), pair.RefreshToken)
	if err != nil {
		t.Fatalf("RefreshToken: %v", err)
	}
	counter.Reset()

	if _, err := h.engine.RefreshToken(context.Background(), pair2.RefreshToken); err != nil {
		t.Fatalf("RefreshToken: %v", err)
	}
	if trips := counter.RoundTrips(); trips > 2 {
		t.Errorf("RefreshToken used %d round-trips (%d commands, %d pipelines); budget is 2",
			trips, counter.Commands(), counter.Pipelines())
	}
	t.Logf("RefreshToken: %d commands, %d pipelines", counter.Commands(), counter.Pipelines())
}

// TestEngineLogoutAllRedisBudget bounds LogoutAll to one Lua call regardless
// of how many refresh tokens the account holds.
func TestEngineLogoutAllRedisBudget(t *testing.T) {
	rdb, counter := newCountedClient(t)
	h := newHarness(t, rdb)
	id, _ := h.signIn(t, "many@example.com")

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		if _, err := h.engine.Login(ctx, eduAuth.LoginRequest{Email: "many@example.com", Password: integrationPassword}); err != nil {
			t.Fatalf("Login: %v", err)
		}
	}
	counter.Reset()

	if err := h.engine.LogoutAll(ctx, id); err != nil {
		t.Fatalf("LogoutAll: %v", err)
	}
	// DEL pending marker + revoke script (EVALSHA, maybe EVAL).
	if cmds := counter.Commands(); cmds > 3 {
		t.Errorf("LogoutAll used %d commands; budget is <= 3", cmds)
	}
}
