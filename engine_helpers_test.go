package eduAuth

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const testPassword = "correct-horse-battery"

type memRepo struct {
	mu       sync.Mutex
	nextID   int64
	accounts map[int64]Account
	updates  int
	failNext error
}

func newMemRepo() *memRepo {
	return &memRepo{accounts: make(map[int64]Account)}
}

func (r *memRepo) Create(_ context.Context, acc *Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.accounts {
		if existing.Email == acc.Email {
			return ErrDuplicateEmail
		}
	}
	r.nextID++
	acc.ID = r.nextID
	r.accounts[acc.ID] = *acc
	return nil
}

func (r *memRepo) FindByID(_ context.Context, id int64) (*Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	acc, ok := r.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return &acc, nil
}

func (r *memRepo) FindByEmail(_ context.Context, email string) (*Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, acc := range r.accounts {
		if acc.Email == email {
			out := acc
			return &out, nil
		}
	}
	return nil, ErrAccountNotFound
}

func (r *memRepo) FindByVerificationToken(_ context.Context, token string, now time.Time) (*Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, acc := range r.accounts {
		if acc.EmailVerificationToken != nil && *acc.EmailVerificationToken == token &&
			acc.EmailVerificationExpires != nil && acc.EmailVerificationExpires.After(now) {
			out := acc
			return &out, nil
		}
	}
	return nil, ErrAccountNotFound
}

func (r *memRepo) FindByPasswordResetToken(_ context.Context, token string, now time.Time) (*Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, acc := range r.accounts {
		if acc.PasswordResetToken != nil && *acc.PasswordResetToken == token &&
			acc.PasswordResetExpires != nil && acc.PasswordResetExpires.After(now) {
			out := acc
			return &out, nil
		}
	}
	return nil, ErrAccountNotFound
}

func (r *memRepo) Update(_ context.Context, acc *Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failNext != nil {
		err := r.failNext
		r.failNext = nil
		return err
	}
	if _, ok := r.accounts[acc.ID]; !ok {
		return ErrAccountNotFound
	}
	r.accounts[acc.ID] = *acc
	r.updates++
	return nil
}

func (r *memRepo) ConsumeToken(_ context.Context, acc *Account, kind TokenKind, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failNext != nil {
		err := r.failNext
		r.failNext = nil
		return err
	}
	stored, ok := r.accounts[acc.ID]
	if !ok {
		return ErrAccountNotFound
	}
	live := stored.EmailVerificationToken
	if kind == TokenPasswordReset {
		live = stored.PasswordResetToken
	}
	if live == nil || *live != token {
		return ErrTokenConsumed
	}
	r.accounts[acc.ID] = *acc
	r.updates++
	return nil
}

func (r *memRepo) get(t *testing.T, id int64) Account {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	acc, ok := r.accounts[id]
	if !ok {
		t.Fatalf("account %d not stored", id)
	}
	return acc
}

func (r *memRepo) mutate(t *testing.T, id int64, fn func(*Account)) {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	acc, ok := r.accounts[id]
	if !ok {
		t.Fatalf("account %d not stored", id)
	}
	fn(&acc)
	r.accounts[id] = acc
}

func (r *memRepo) updateCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updates
}

type sentMail struct {
	kind  string
	email string
	value string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (n *recordingNotifier) record(kind, email, value string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, sentMail{kind: kind, email: email, value: value})
	return nil
}

func (n *recordingNotifier) SendVerificationEmail(_ context.Context, email, token string) error {
	return n.record("verification", email, token)
}

func (n *recordingNotifier) SendPasswordResetEmail(_ context.Context, email, token string) error {
	return n.record("reset", email, token)
}

func (n *recordingNotifier) SendTwoFactorCode(_ context.Context, email, code string) error {
	return n.record("2fa", email, code)
}

func (n *recordingNotifier) last(kind string) (sentMail, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.sent) - 1; i >= 0; i-- {
		if n.sent[i].kind == kind {
			return n.sent[i], true
		}
	}
	return sentMail{}, false
}

func (n *recordingNotifier) count(kind string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, m := range n.sent {
		if m.kind == kind {
			c++
		}
	}
	return c
}

type sliceRecorder struct {
	mu      sync.Mutex
	entries []AuditEntry
	err     error
}

func (r *sliceRecorder) Log(_ context.Context, entry AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.entries = append(r.entries, entry)
	return nil
}

func (r *sliceRecorder) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Action)
	}
	return out
}

func (r *sliceRecorder) has(action string) bool {
	for _, a := range r.actions() {
		if a == action {
			return true
		}
	}
	return false
}

func (r *sliceRecorder) count(action string) int {
	n := 0
	for _, a := range r.actions() {
		if a == action {
			n++
		}
	}
	return n
}

func (r *sliceRecorder) find(action string) (AuditEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.Action == action {
			return e, true
		}
	}
	return AuditEntry{}, false
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	engine   *Engine
	repo     *memRepo
	notifier *recordingNotifier
	recorder *sliceRecorder
	redis    *miniredis.Miniredis
	client   *redis.Client
	clock    *testClock
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Password.KeyLength = 16
	cfg.Password.MaxConcurrent = 4
	cfg.Audit.Async = false
	return cfg
}

func newTestEnv(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	env := &testEnv{
		repo:     newMemRepo(),
		notifier: &recordingNotifier{},
		recorder: &sliceRecorder{},
		redis:    mr,
		client:   client,
		clock:    &testClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)},
	}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(client).
		WithAccountRepository(env.repo).
		WithNotificationSender(env.notifier).
		WithAuditRecorder(env.recorder).
		WithClock(env.clock.Now).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	env.engine = engine

	t.Cleanup(func() {
		engine.Close()
		_ = client.Close()
		mr.Close()
	})
	return env
}

// registerVerified registers email and consumes its verification token.
func (env *testEnv) registerVerified(t *testing.T, email string) int64 {
	t.Helper()
	id := env.registerUnverified(t, email)
	mail, ok := env.notifier.last("verification")
	if !ok {
		t.Fatal("expected verification email")
	}
	if err := env.engine.VerifyEmail(context.Background(), mail.value); err != nil {
		t.Fatalf("VerifyEmail failed: %v", err)
	}
	return id
}

func (env *testEnv) registerUnverified(t *testing.T, email string) int64 {
	t.Helper()
	res, err := env.engine.Register(context.Background(), RegisterRequest{
		FirstName: "Ada",
		LastName:  "Lovelace",
		Email:     email,
		Password:  testPassword,
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	return res.Account.ID
}

func (env *testEnv) login(email, password string) (*LoginResult, error) {
	return env.engine.Login(context.Background(), LoginRequest{
		Email:     email,
		Password:  password,
		IPAddress: "203.0.113.7",
		UserAgent: "test-agent",
	})
}

// enrollTwoFactor runs setup + enable and returns the secret.
func (env *testEnv) enrollTwoFactor(t *testing.T, id int64) string {
	t.Helper()
	ctx := context.Background()
	setup, err := env.engine.SetupTwoFactor(ctx, id)
	if err != nil {
		t.Fatalf("SetupTwoFactor failed: %v", err)
	}
	if err := env.engine.EnableTwoFactor(ctx, id, env.code(t, setup.Secret)); err != nil {
		t.Fatalf("EnableTwoFactor failed: %v", err)
	}
	return setup.Secret
}

func (env *testEnv) code(t *testing.T, secret string) string {
	t.Helper()
	code, err := env.engine.totp.Code(secret, env.clock.Now())
	if err != nil {
		t.Fatalf("totp code: %v", err)
	}
	return code
}

func wrongCode(code string) string {
	b := []byte(code)
	if b[0] == '9' {
		b[0] = '0'
	} else {
		b[0]++
	}
	return string(b)
}

func sortedKeys(mr *miniredis.Miniredis) []string {
	keys := mr.Keys()
	sort.Strings(keys)
	return keys
}

var errBoom = errors.New("boom")
