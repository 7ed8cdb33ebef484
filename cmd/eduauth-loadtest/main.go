package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/eduAuth"
	"github.com/MrEthical07/eduAuth/accountstore"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

const loadPassword = "load-test-password"

type accountState struct {
	email   string
	access  string
	refresh string
	mu      sync.Mutex
}

// tokenSink keeps the latest verification token per email.
type tokenSink struct {
	mu     sync.Mutex
	tokens map[string]string
}

func (s *tokenSink) SendVerificationEmail(_ context.Context, email, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[email] = token
	return nil
}

func (s *tokenSink) SendPasswordResetEmail(context.Context, string, string) error { return nil }

func (s *tokenSink) SendTwoFactorCode(context.Context, string, string) error { return nil }

func (s *tokenSink) take(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tokens[email]
	delete(s.tokens, email)
	return t
}

func main() {
	var (
		accounts    = flag.Int("accounts", 200, "number of accounts to register")
		concurrency = flag.Int("concurrency", 32, "number of concurrent workers")
		ops         = flag.Int("ops", 20000, "operations per phase (validate + refresh)")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		argonMemory = flag.Uint("argon-memory", 8*1024, "argon2id memory in KB")
	)
	flag.Parse()

	if *accounts <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "accounts, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var cleanup func()
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		cleanup = mr.Close
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		cleanup = func() {}
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{addr},
	})
	defer client.Close()

	cfg := eduAuth.DefaultConfig()
	cfg.JWT.PrivateKey = []byte("loadtest-signing-key-0123456789abcdef")
	cfg.Password.Memory = uint32(*argonMemory)
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1

	sink := &tokenSink{tokens: make(map[string]string)}
	engine, err := eduAuth.New().
		WithConfig(cfg).
		WithRedis(client).
		WithAccountRepository(accountstore.NewMemory()).
		WithNotificationSender(sink).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine build failed: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	states := make([]accountState, *accounts)
	fmt.Printf("registering %d accounts...\n", *accounts)
	startSeed := time.Now()
	for i := range states {
		email := fmt.Sprintf("load-%d@example.com", i)
		states[i].email = email
		if _, err := engine.Register(ctx, eduAuth.RegisterRequest{
			FirstName: "Load",
			LastName:  fmt.Sprintf("User%d", i),
			Email:     email,
			Password:  loadPassword,
		}); err != nil {
			fmt.Fprintf(os.Stderr, "register failed: %v\n", err)
			os.Exit(1)
		}
		if err := engine.VerifyEmail(ctx, sink.take(email)); err != nil {
			fmt.Fprintf(os.Stderr, "verify failed: %v\n", err)
			os.Exit(1)
		}
	}
	fmt.Printf("registered in %s\n", time.Since(startSeed).Round(time.Millisecond))

	loginStats, err := runLoginPhase(ctx, engine, states, *concurrency)
	if err != nil {
		fmt.Fprintf(os.Stderr, "login phase failed: %v\n", err)
		os.Exit(1)
	}
	validateStats := runValidatePhase(ctx, engine, states, *ops, *concurrency)
	refreshStats := runRefreshPhase(ctx, engine, states, *ops, *concurrency)
	raceStats := runReplayPhase(ctx, engine, states[0].refresh, *concurrency)

	fmt.Println("---- results ----")
	printStats("login", loginStats)
	printStats("validate", validateStats)
	printStats("refresh", refreshStats)
	printStats("replay", raceStats)
}

// runLoginPhase logs every account in once; it is bound by argon2id.
func runLoginPhase(ctx context.Context, engine *eduAuth.Engine, states []accountState, concurrency int) (phaseStats, error) {
	var (
		mu        sync.Mutex
		latencies = make([]time.Duration, 0, len(states))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	start := time.Now()
	for i := range states {
		state := &states[i]
		g.Go(func() error {
			t0 := time.Now()
			res, err := engine.Login(gctx, eduAuth.LoginRequest{
				Email:     state.email,
				Password:  loadPassword,
				IPAddress: "198.51.100.1",
			})
			d := time.Since(t0)
			if err != nil {
				return fmt.Errorf("login %s: %w", state.email, err)
			}
			state.access = res.Tokens.AccessToken
			state.refresh = res.Tokens.RefreshToken

			mu.Lock()
			latencies = append(latencies, d)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return phaseStats{}, err
	}
	return computeStats(time.Since(start), latencies, 0), nil
}

func runValidatePhase(ctx context.Context, engine *eduAuth.Engine, states []accountState, ops, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				state := &states[r.Intn(len(states))]
				state.mu.Lock()
				access := state.access
				state.mu.Unlock()

				t0 := time.Now()
				_, err := engine.ValidateAccess(ctx, access)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

func runRefreshPhase(ctx context.Context, engine *eduAuth.Engine, states []accountState, ops, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*6151))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				state := &states[r.Intn(len(states))]

				state.mu.Lock()
				t0 := time.Now()
				pair, err := engine.RefreshToken(ctx, state.refresh)
				d := time.Since(t0)
				if err == nil {
					state.access = pair.AccessToken
					state.refresh = pair.RefreshToken
				} else {
					atomic.AddInt64(&failures, 1)
				}
				state.mu.Unlock()

				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

// runReplayPhase presents one refresh token from every worker at once.
// Exactly one call may succeed; any other count is reported as a failure.
func runReplayPhase(ctx context.Context, engine *eduAuth.Engine, token string, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		wins      int64
		latencies = make([]time.Duration, concurrency)
		gate      = make(chan struct{})
	)

	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			<-gate
			t0 := time.Now()
			_, err := engine.RefreshToken(ctx, token)
			latencies[worker] = time.Since(t0)
			if err == nil {
				atomic.AddInt64(&wins, 1)
			} else if !errors.Is(err, eduAuth.ErrInvalidRefreshToken) {
				fmt.Fprintf(os.Stderr, "replay: unexpected error: %v\n", err)
			}
		}(w)
	}
	start := time.Now()
	close(gate)
	wg.Wait()

	var failures int64
	if wins != 1 {
		failures = 1
	}
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
