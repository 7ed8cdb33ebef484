package accountstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MrEthical07/eduAuth"
)

// Memory is a process-local repository. Records are deep-copied in and out so
// callers never share state with the store.
type Memory struct {
	mu       sync.RWMutex
	nextID   int64
	accounts map[int64]eduAuth.Account
	byEmail  map[string]int64
}

func NewMemory() *Memory {
	return &Memory{
		accounts: make(map[int64]eduAuth.Account),
		byEmail:  make(map[string]int64),
	}
}

func (m *Memory) Create(_ context.Context, acc *eduAuth.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byEmail[acc.Email]; ok {
		return eduAuth.ErrDuplicateEmail
	}
	m.nextID++
	acc.ID = m.nextID
	m.accounts[acc.ID] = cloneAccount(acc)
	m.byEmail[acc.Email] = acc.ID
	return nil
}

func (m *Memory) FindByID(_ context.Context, id int64) (*eduAuth.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	acc, ok := m.accounts[id]
	if !ok {
		return nil, eduAuth.ErrAccountNotFound
	}
	out := cloneAccount(&acc)
	return &out, nil
}

func (m *Memory) FindByEmail(ctx context.Context, email string) (*eduAuth.Account, error) {
	m.mu.RLock()
	id, ok := m.byEmail[email]
	m.mu.RUnlock()
	if !ok {
		return nil, eduAuth.ErrAccountNotFound
	}
	return m.FindByID(ctx, id)
}

func (m *Memory) FindByVerificationToken(_ context.Context, token string, now time.Time) (*eduAuth.Account, error) {
	return m.findWhere(func(a *eduAuth.Account) bool {
		return matches(a.EmailVerificationToken, a.EmailVerificationExpires, token, now)
	})
}

func (m *Memory) FindByPasswordResetToken(_ context.Context, token string, now time.Time) (*eduAuth.Account, error) {
	return m.findWhere(func(a *eduAuth.Account) bool {
		return matches(a.PasswordResetToken, a.PasswordResetExpires, token, now)
	})
}

func (m *Memory) Update(_ context.Context, acc *eduAuth.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev, ok := m.accounts[acc.ID]
	if !ok {
		return eduAuth.ErrAccountNotFound
	}
	if prev.Email != acc.Email {
		if _, taken := m.byEmail[acc.Email]; taken {
			return eduAuth.ErrDuplicateEmail
		}
		delete(m.byEmail, prev.Email)
		m.byEmail[acc.Email] = acc.ID
	}
	m.accounts[acc.ID] = cloneAccount(acc)
	return nil
}

// ConsumeToken compares the live token of kind and writes acc under the same
// lock.
func (m *Memory) ConsumeToken(_ context.Context, acc *eduAuth.Account, kind eduAuth.TokenKind, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev, ok := m.accounts[acc.ID]
	if !ok {
		return eduAuth.ErrAccountNotFound
	}
	live, err := liveToken(&prev, kind)
	if err != nil {
		return err
	}
	if live == nil || *live != token {
		return eduAuth.ErrTokenConsumed
	}
	if prev.Email != acc.Email {
		if _, taken := m.byEmail[acc.Email]; taken {
			return eduAuth.ErrDuplicateEmail
		}
		delete(m.byEmail, prev.Email)
		m.byEmail[acc.Email] = acc.ID
	}
	m.accounts[acc.ID] = cloneAccount(acc)
	return nil
}

func liveToken(acc *eduAuth.Account, kind eduAuth.TokenKind) (*string, error) {
	switch kind {
	case eduAuth.TokenEmailVerification:
		return acc.EmailVerificationToken, nil
	case eduAuth.TokenPasswordReset:
		return acc.PasswordResetToken, nil
	default:
		return nil, fmt.Errorf("unknown token kind %d", kind)
	}
}

// Len returns the number of stored accounts.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.accounts)
}

func (m *Memory) findWhere(pred func(*eduAuth.Account) bool) (*eduAuth.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, acc := range m.accounts {
		if pred(&acc) {
			out := cloneAccount(&acc)
			return &out, nil
		}
	}
	return nil, eduAuth.ErrAccountNotFound
}

func matches(stored *string, expires *time.Time, token string, now time.Time) bool {
	return stored != nil && *stored == token && expires != nil && expires.After(now)
}

// cloneAccount copies acc including the values behind its pointer fields.
func cloneAccount(acc *eduAuth.Account) eduAuth.Account {
	out := *acc
	out.RoleID = clonePtr(acc.RoleID)
	out.EmailVerificationToken = clonePtr(acc.EmailVerificationToken)
	out.EmailVerificationExpires = clonePtr(acc.EmailVerificationExpires)
	out.LockedUntil = clonePtr(acc.LockedUntil)
	out.TwoFactorSecret = clonePtr(acc.TwoFactorSecret)
	out.PasswordResetToken = clonePtr(acc.PasswordResetToken)
	out.PasswordResetExpires = clonePtr(acc.PasswordResetExpires)
	out.LastLoginAt = clonePtr(acc.LastLoginAt)
	out.LastLoginIP = clonePtr(acc.LastLoginIP)
	return out
}

func clonePtr[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
