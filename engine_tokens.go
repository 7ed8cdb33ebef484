package eduAuth

import (
	"context"
	"fmt"

	"github.com/MrEthical07/eduAuth/internal"
	"go.uber.org/zap"
)

// issueTokens signs an access token and stores a fresh refresh token for acc.
func (e *Engine) issueTokens(ctx context.Context, acc *Account) (*TokenPair, error) {
	access, accessExp, err := e.tokens.CreateAccess(acc.ID, acc.Email, acc.RoleID)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	refresh, err := internal.NewOpaqueToken(internal.OpaqueTokenSize)
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}
	ttl := e.config.Session.RefreshTTL
	if err := e.sessions.SaveRefresh(ctx, acc.ID, refresh, ttl); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: e.now().Add(ttl),
	}, nil
}

// completeLogin issues tokens, stamps the last-login fields and persists them.
// A refresh token stored before a failed persist is removed again.
func (e *Engine) completeLogin(ctx context.Context, acc *Account, ip string) (*LoginResult, error) {
	pair, err := e.issueTokens(ctx, acc)
	if err != nil {
		return nil, err
	}

	acc.LastLoginAt = timePtr(e.now().UTC())
	if ip != "" {
		acc.LastLoginIP = stringPtr(ip)
	}
	if err := e.saveAccount(ctx, acc); err != nil {
		if _, delErr := e.sessions.DeleteRefresh(ctx, acc.ID, pair.RefreshToken); delErr != nil {
			e.logger.Warn("orphaned refresh token cleanup failed", zap.Int64("account_id", acc.ID), zap.Error(delErr))
		}
		return nil, err
	}

	sanitized := acc.Sanitized()
	return &LoginResult{
		Account:   &sanitized,
		Tokens:    pair,
		AccountID: acc.ID,
	}, nil
}
