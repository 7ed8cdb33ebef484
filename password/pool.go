package password

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Pool bounds the number of concurrent argon2id computations. Each call runs
// on its own goroutine so a cancelled context releases the caller
// immediately; the computation itself finishes in the background and its
// result is discarded.
type Pool struct {
	hasher *Argon2
	sem    *semaphore.Weighted
}

type result struct {
	hash string
	ok   bool
	err  error
}

// NewPool wraps hasher so at most maxConcurrent hashes run at once.
func NewPool(hasher *Argon2, maxConcurrent int) *Pool {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Pool{
		hasher: hasher,
		sem:    semaphore.NewWeighted(int64(maxConcurrent)),
	}
}

// Hash is the context-aware form of [Argon2.Hash].
func (p *Pool) Hash(ctx context.Context, password string) (string, error) {
	res, err := p.run(ctx, func() result {
		h, err := p.hasher.Hash(password)
		return result{hash: h, err: err}
	})
	if err != nil {
		return "", err
	}
	return res.hash, res.err
}

// Verify is the context-aware form of [Argon2.Verify].
func (p *Pool) Verify(ctx context.Context, password, encodedHash string) (bool, error) {
	res, err := p.run(ctx, func() result {
		ok, err := p.hasher.Verify(password, encodedHash)
		return result{ok: ok, err: err}
	})
	if err != nil {
		return false, err
	}
	return res.ok, res.err
}

// NeedsUpgrade delegates to the wrapped hasher; it does no key derivation.
func (p *Pool) NeedsUpgrade(encodedHash string) (bool, error) {
	return p.hasher.NeedsUpgrade(encodedHash)
}

func (p *Pool) run(ctx context.Context, fn func() result) (result, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return result{}, err
	}

	done := make(chan result, 1)
	go func() {
		defer p.sem.Release(1)
		done <- fn()
	}()

	select {
	case res := <-done:
		return res, nil
	case <-ctx.Done():
		return result{}, ctx.Err()
	}
}
