//go:build integration
// +build integration

package test

import (
	"context"
	"sync"
	"testing"

	"github.com/MrEthical07/eduAuth"
	"github.com/MrEthical07/eduAuth/accountstore"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const integrationPassword = "integration-password"

// mailbox keeps the latest token sent per email and kind.
type mailbox struct {
	mu    sync.Mutex
	items map[string]string
}

func newMailbox() *mailbox {
	return &mailbox{items: make(map[string]string)}
}

func (m *mailbox) put(kind, email, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[kind+":"+email] = value
	return nil
}

func (m *mailbox) get(kind, email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[kind+":"+email]
}

func (m *mailbox) SendVerificationEmail(_ context.Context, email, token string) error {
	return m.put("verify", email, token)
}

func (m *mailbox) SendPasswordResetEmail(_ context.Context, email, token string) error {
	return m.put("reset", email, token)
}

func (m *mailbox) SendTwoFactorCode(_ context.Context, email, code string) error {
	return m.put("2fa", email, code)
}

func integrationConfig() eduAuth.Config {
	cfg := eduAuth.DefaultConfig()
	cfg.JWT.PrivateKey = []byte("integration-signing-key-0123456789")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Password.KeyLength = 16
	cfg.Audit.Async = false
	return cfg
}

type harness struct {
	engine *eduAuth.Engine
	repo   *accountstore.Memory
	mail   *mailbox
	redis  redis.UniversalClient
}

func newHarness(t *testing.T, client redis.UniversalClient) *harness {
	t.Helper()

	h := &harness{
		repo:  accountstore.NewMemory(),
		mail:  newMailbox(),
		redis: client,
	}
	engine, err := eduAuth.New().
		WithConfig(integrationConfig()).
		WithRedis(client).
		WithAccountRepository(h.repo).
		WithNotificationSender(h.mail).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	h.engine = engine
	return h
}

func newMiniredisHarness(t *testing.T) (*harness, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return newHarness(t, client), mr
}

// signIn registers and verifies email, then logs in.
func (h *harness) signIn(t *testing.T, email string) (int64, *eduAuth.TokenPair) {
	t.Helper()
	ctx := context.Background()

	res, err := h.engine.Register(ctx, eduAuth.RegisterRequest{
		FirstName: "Grace",
		LastName:  "Hopper",
		Email:     email,
		Password:  integrationPassword,
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := h.engine.VerifyEmail(ctx, h.mail.get("verify", email)); err != nil {
		t.Fatalf("VerifyEmail failed: %v", err)
	}

	login, err := h.engine.Login(ctx, eduAuth.LoginRequest{Email: email, Password: integrationPassword})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if login.Tokens == nil {
		t.Fatal("expected tokens")
	}
	return res.Account.ID, login.Tokens
}
