package password

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func fastConfig() Config {
	return Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func TestPoolHashAndVerify(t *testing.T) {
	hasher, err := NewArgon2(fastConfig())
	if err != nil {
		t.Fatalf("NewArgon2 error: %v", err)
	}
	pool := NewPool(hasher, 2)

	hash, err := pool.Hash(context.Background(), "pool-password")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	ok, err := pool.Verify(context.Background(), "pool-password", hash)
	if err != nil || !ok {
		t.Fatalf("Verify failed: ok=%v err=%v", ok, err)
	}

	ok, err = pool.Verify(context.Background(), "other-password", hash)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if ok {
		t.Fatal("expected wrong password to fail")
	}
}

func TestPoolCancelledContext(t *testing.T) {
	hasher, err := NewArgon2(fastConfig())
	if err != nil {
		t.Fatalf("NewArgon2 error: %v", err)
	}
	pool := NewPool(hasher, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := pool.Hash(ctx, "pool-password"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestPoolConcurrentCallers(t *testing.T) {
	hasher, err := NewArgon2(fastConfig())
	if err != nil {
		t.Fatalf("NewArgon2 error: %v", err)
	}
	pool := NewPool(hasher, 2)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := pool.Hash(context.Background(), "concurrent-password"); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Fatalf("Hash error: %v", err)
	}
}

func TestPoolPropagatesHasherError(t *testing.T) {
	hasher, err := NewArgon2(fastConfig())
	if err != nil {
		t.Fatalf("NewArgon2 error: %v", err)
	}
	pool := NewPool(hasher, 1)

	if _, err := pool.Hash(context.Background(), ""); !errors.Is(err, ErrEmptyPassword) {
		t.Fatalf("expected ErrEmptyPassword, got %v", err)
	}
	if _, err := pool.Verify(context.Background(), "pw", "garbage"); err == nil {
		t.Fatal("expected malformed hash to fail")
	}
}
