package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newSessionStoreTest(t *testing.T) (*Store, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return NewStore(rdb), mr, rdb
}

func TestPendingMarkerRoundTripAndExpiry(t *testing.T) {
	store, mr, rdb := newSessionStoreTest(t)
	ctx := context.Background()

	marker := &PendingTwoFactor{Email: "ada@example.com", Token: "corr-1", CreatedAt: 1700000000}
	if err := store.SavePending(ctx, 7, marker, 5*time.Minute); err != nil {
		t.Fatalf("save pending: %v", err)
	}

	raw, err := rdb.Get(ctx, "session:7").Result()
	if err != nil {
		t.Fatalf("expected session:7 key: %v", err)
	}
	if raw == "" {
		t.Fatal("expected marker payload")
	}

	got, err := store.GetPending(ctx, 7)
	if err != nil {
		t.Fatalf("get pending: %v", err)
	}
	if got.Email != "ada@example.com" || got.Token != "corr-1" || !got.RequiresTwoFactor {
		t.Fatalf("unexpected marker %+v", got)
	}

	mr.FastForward(5*time.Minute + time.Second)
	if _, err := store.GetPending(ctx, 7); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after TTL, got %v", err)
	}
}

func TestDeletePendingIdempotent(t *testing.T) {
	store, _, _ := newSessionStoreTest(t)
	ctx := context.Background()

	if err := store.SavePending(ctx, 3, &PendingTwoFactor{Token: "t"}, time.Minute); err != nil {
		t.Fatalf("save pending: %v", err)
	}
	if err := store.DeletePending(ctx, 3); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if err := store.DeletePending(ctx, 3); err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if _, err := store.GetPending(ctx, 3); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetPendingCorruptRecord(t *testing.T) {
	store, _, rdb := newSessionStoreTest(t)
	ctx := context.Background()

	if err := rdb.Set(ctx, "session:9", "not-json", time.Minute).Err(); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := store.GetPending(ctx, 9); !errors.Is(err, ErrCorruptRecord) {
		t.Fatalf("expected ErrCorruptRecord, got %v", err)
	}
}

func TestRefreshSaveConsume(t *testing.T) {
	store, mr, rdb := newSessionStoreTest(t)
	ctx := context.Background()

	if err := store.SaveRefresh(ctx, 11, "tok-a", 7*24*time.Hour); err != nil {
		t.Fatalf("save refresh: %v", err)
	}
	if got, _ := rdb.Get(ctx, "refresh_token:tok-a").Result(); got != "11" {
		t.Fatalf("expected refresh_token:tok-a=11, got %q", got)
	}
	if ttl := mr.TTL("refresh_token:tok-a"); ttl != 7*24*time.Hour {
		t.Fatalf("unexpected ttl %v", ttl)
	}

	owner, err := store.LookupRefresh(ctx, "tok-a")
	if err != nil || owner != 11 {
		t.Fatalf("lookup: owner=%d err=%v", owner, err)
	}

	owner, err = store.ConsumeRefresh(ctx, "tok-a")
	if err != nil || owner != 11 {
		t.Fatalf("consume: owner=%d err=%v", owner, err)
	}
	if _, err := store.ConsumeRefresh(ctx, "tok-a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected second consume to fail, got %v", err)
	}

	count, err := store.ActiveRefreshCount(ctx, 11)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected index to be empty, got %d", count)
	}
}

func TestConsumeRefreshSingleWinnerUnderConcurrency(t *testing.T) {
	store, _, _ := newSessionStoreTest(t)
	ctx := context.Background()

	if err := store.SaveRefresh(ctx, 5, "tok-race", time.Hour); err != nil {
		t.Fatalf("save refresh: %v", err)
	}

	var (
		wg      sync.WaitGroup
		winners int32
		start   = make(chan struct{})
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := store.ConsumeRefresh(ctx, "tok-race"); err == nil {
				atomic.AddInt32(&winners, 1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if winners != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners)
	}
}

func TestRefreshExpires(t *testing.T) {
	store, mr, _ := newSessionStoreTest(t)
	ctx := context.Background()

	if err := store.SaveRefresh(ctx, 2, "tok-exp", time.Minute); err != nil {
		t.Fatalf("save refresh: %v", err)
	}
	mr.FastForward(2 * time.Minute)
	if _, err := store.ConsumeRefresh(ctx, "tok-exp"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expired token to be gone, got %v", err)
	}
}

func TestDeleteRefreshChecksOwner(t *testing.T) {
	store, _, _ := newSessionStoreTest(t)
	ctx := context.Background()

	if err := store.SaveRefresh(ctx, 1, "tok-owned", time.Hour); err != nil {
		t.Fatalf("save refresh: %v", err)
	}

	removed, err := store.DeleteRefresh(ctx, 2, "tok-owned")
	if err != nil {
		t.Fatalf("delete as other owner: %v", err)
	}
	if removed {
		t.Fatal("expected foreign delete to be refused")
	}
	if _, err := store.LookupRefresh(ctx, "tok-owned"); err != nil {
		t.Fatalf("expected token to survive foreign delete: %v", err)
	}

	removed, err = store.DeleteRefresh(ctx, 1, "tok-owned")
	if err != nil || !removed {
		t.Fatalf("owner delete: removed=%v err=%v", removed, err)
	}
	removed, err = store.DeleteRefresh(ctx, 1, "tok-owned")
	if err != nil || removed {
		t.Fatalf("repeat delete: removed=%v err=%v", removed, err)
	}
}

func TestRevokeAccountRemovesEverything(t *testing.T) {
	store, _, rdb := newSessionStoreTest(t)
	ctx := context.Background()

	for _, tok := range []string{"r1", "r2", "r3"} {
		if err := store.SaveRefresh(ctx, 4, tok, time.Hour); err != nil {
			t.Fatalf("save refresh %s: %v", tok, err)
		}
	}
	if err := store.SaveRefresh(ctx, 8, "other", time.Hour); err != nil {
		t.Fatalf("save refresh other: %v", err)
	}
	if err := store.SavePending(ctx, 4, &PendingTwoFactor{Token: "p"}, time.Minute); err != nil {
		t.Fatalf("save pending: %v", err)
	}

	if err := store.RevokeAccount(ctx, 4); err != nil {
		t.Fatalf("revoke account: %v", err)
	}

	for _, key := range []string{"refresh_token:r1", "refresh_token:r2", "refresh_token:r3", "refresh_tokens:4", "session:4"} {
		if n, _ := rdb.Exists(ctx, key).Result(); n != 0 {
			t.Fatalf("expected %s to be deleted", key)
		}
	}
	if owner, err := store.LookupRefresh(ctx, "other"); err != nil || owner != 8 {
		t.Fatalf("expected unrelated account untouched: owner=%d err=%v", owner, err)
	}
}

func TestStoreRedisUnavailable(t *testing.T) {
	store, mr, _ := newSessionStoreTest(t)
	mr.Close()

	ctx := context.Background()
	if err := store.SaveRefresh(ctx, 1, "tok", time.Minute); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
	if _, err := store.ConsumeRefresh(ctx, "tok"); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}
