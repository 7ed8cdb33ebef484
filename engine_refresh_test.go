package eduAuth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestRefreshTokenRotates(t *testing.T) {
	env := newTestEnv(t, nil)
	env.registerVerified(t, "rot@example.com")
	ctx := context.Background()

	res, err := env.login("rot@example.com", testPassword)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	old := res.Tokens.RefreshToken

	pair, err := env.engine.RefreshToken(ctx, old)
	if err != nil {
		t.Fatalf("RefreshToken failed: %v", err)
	}
	if pair.RefreshToken == old || pair.AccessToken == "" {
		t.Fatalf("expected a fresh pair, got %+v", pair)
	}
	if _, err := env.engine.RefreshToken(ctx, old); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected ErrInvalidRefreshToken on replay, got %v", err)
	}
	if _, err := env.engine.RefreshToken(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("rotated token rejected: %v", err)
	}
	if !env.recorder.has(AuditTokenRefreshed) {
		t.Fatal("expected TOKEN_REFRESHED audit")
	}
}

func TestRefreshTokenConcurrentSingleWinner(t *testing.T) {
	env := newTestEnv(t, nil)
	env.registerVerified(t, "race@example.com")
	ctx := context.Background()

	res, err := env.login("race@example.com", testPassword)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	const workers = 16
	start := make(chan struct{})
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := env.engine.RefreshToken(ctx, res.Tokens.RefreshToken)
			results <- err
		}()
	}
	close(start)
	wg.Wait()
	close(results)

	success := 0
	for err := range results {
		switch {
		case err == nil:
			success++
		case errors.Is(err, ErrInvalidRefreshToken):
		default:
			t.Fatalf("unexpected refresh error: %v", err)
		}
	}
	if success != 1 {
		t.Fatalf("expected exactly one winner, got %d", success)
	}
}

func TestRefreshTokenRejectsDisabledMissingAndExpired(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.registerVerified(t, "dis@example.com")
	ctx := context.Background()

	res, err := env.login("dis@example.com", testPassword)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	env.repo.mutate(t, id, func(a *Account) { a.IsEnabled = false })
	if _, err := env.engine.RefreshToken(ctx, res.Tokens.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected ErrInvalidRefreshToken for disabled account, got %v", err)
	}

	for _, tok := range []string{"", "never-issued"} {
		if _, err := env.engine.RefreshToken(ctx, tok); !errors.Is(err, ErrInvalidRefreshToken) {
			t.Fatalf("token %q: expected ErrInvalidRefreshToken, got %v", tok, err)
		}
	}

	env.repo.mutate(t, id, func(a *Account) { a.IsEnabled = true })
	res, err = env.login("dis@example.com", testPassword)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	env.redis.FastForward(7*24*time.Hour + time.Second)
	if _, err := env.engine.RefreshToken(ctx, res.Tokens.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected ErrInvalidRefreshToken after ttl, got %v", err)
	}
}

func TestRefreshTokenOrphanedAccount(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	if err := env.engine.sessions.SaveRefresh(ctx, 4242, "orphan-token", time.Hour); err != nil {
		t.Fatalf("SaveRefresh: %v", err)
	}
	if _, err := env.engine.RefreshToken(ctx, "orphan-token"); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected ErrInvalidRefreshToken, got %v", err)
	}
}

func TestRefreshTokenRedisFailurePropagates(t *testing.T) {
	env := newTestEnv(t, nil)
	env.redis.Close()

	_, err := env.engine.RefreshToken(context.Background(), "some-token")
	if err == nil || errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected infrastructure error, got %v", err)
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.registerVerified(t, "out@example.com")
	ctx := context.Background()

	res, err := env.login("out@example.com", testPassword)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := env.engine.Logout(ctx, id, res.Tokens.RefreshToken); err != nil {
			t.Fatalf("Logout %d failed: %v", i+1, err)
		}
	}
	if _, err := env.engine.RefreshToken(ctx, res.Tokens.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected revoked refresh token, got %v", err)
	}
	if !env.recorder.has(AuditUserLogout) {
		t.Fatal("expected USER_LOGOUT audit")
	}
}

func TestLogoutIgnoresForeignRefreshToken(t *testing.T) {
	env := newTestEnv(t, nil)
	alice := env.registerVerified(t, "alice@example.com")
	env.registerVerified(t, "bob@example.com")
	ctx := context.Background()

	bob, err := env.login("bob@example.com", testPassword)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if err := env.engine.Logout(ctx, alice, bob.Tokens.RefreshToken); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if _, err := env.engine.RefreshToken(ctx, bob.Tokens.RefreshToken); err != nil {
		t.Fatalf("foreign token must survive, got %v", err)
	}
}

func TestLogoutClearsPendingChallenge(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.registerVerified(t, "p@example.com")
	secret := env.enrollTwoFactor(t, id)
	ctx := context.Background()

	if _, err := env.login("p@example.com", testPassword); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if err := env.engine.Logout(ctx, id, ""); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if _, err := env.engine.VerifyTwoFactor(ctx, id, env.code(t, secret)); !errors.Is(err, ErrInvalidTwoFactorCode) {
		t.Fatalf("expected ErrInvalidTwoFactorCode, got %v", err)
	}
}

func TestLogoutAllRevokesEveryToken(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.registerVerified(t, "all@example.com")
	ctx := context.Background()

	var tokens []string
	for i := 0; i < 3; i++ {
		res, err := env.login("all@example.com", testPassword)
		if err != nil {
			t.Fatalf("Login failed: %v", err)
		}
		tokens = append(tokens, res.Tokens.RefreshToken)
	}

	if err := env.engine.LogoutAll(ctx, id); err != nil {
		t.Fatalf("LogoutAll failed: %v", err)
	}
	for _, tok := range tokens {
		if _, err := env.engine.RefreshToken(ctx, tok); !errors.Is(err, ErrInvalidRefreshToken) {
			t.Fatalf("expected revoked token, got %v", err)
		}
	}
}
