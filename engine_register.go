package eduAuth

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/eduAuth/internal"
)

// Register creates an unverified, enabled account and emails its
// verification token. The returned account carries no secrets.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (*RegisterResult, error) {
	res, err := e.register(ctx, req)
	e.metrics.observeOperation("register", err)
	return res, err
}

func (e *Engine) register(ctx context.Context, req RegisterRequest) (*RegisterResult, error) {
	req.Email = normalizeEmail(req.Email)
	if err := e.validateStruct(req); err != nil {
		return nil, err
	}

	_, err := e.accounts.FindByEmail(ctx, req.Email)
	switch {
	case err == nil:
		return nil, ErrAlreadyExists
	case !errors.Is(err, ErrAccountNotFound):
		return nil, fmt.Errorf("lookup account: %w", err)
	}

	hash, err := e.hashPassword(ctx, req.Password)
	if err != nil {
		return nil, err
	}

	token, err := internal.NewOpaqueToken(internal.OpaqueTokenSize)
	if err != nil {
		return nil, fmt.Errorf("generate verification token: %w", err)
	}

	now := e.now().UTC()
	acc := &Account{
		FirstName:                req.FirstName,
		LastName:                 req.LastName,
		Email:                    req.Email,
		RoleID:                   req.RoleID,
		PasswordHash:             hash,
		EmailVerificationToken:   stringPtr(token),
		EmailVerificationExpires: timePtr(now.Add(e.config.Verification.TokenTTL)),
		IsEnabled:                true,
		CreatedAt:                now,
		UpdatedAt:                now,
	}
	if err := e.accounts.Create(ctx, acc); err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("create account: %w", err)
	}

	e.notifyVerification(ctx, acc.ID, acc.Email, token)
	e.emitAudit(ctx, AuditUserRegistered, acc.ID, map[string]any{"email": acc.Email})

	return &RegisterResult{
		Account:           acc.Sanitized(),
		VerificationToken: token,
	}, nil
}
