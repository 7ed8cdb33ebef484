package eduAuth

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/eduAuth/session"
)

// RefreshToken exchanges a refresh token for a new pair. The presented token
// is consumed before anything else, so a token can be redeemed at most once
// even under concurrent use.
func (e *Engine) RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	pair, err := e.refreshToken(ctx, refreshToken)
	e.metrics.observeOperation("refresh", err)
	return pair, err
}

func (e *Engine) refreshToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if !boundedToken(refreshToken) {
		return nil, ErrInvalidRefreshToken
	}

	accountID, err := e.sessions.ConsumeRefresh(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) || errors.Is(err, session.ErrCorruptRecord) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, fmt.Errorf("consume refresh token: %w", err)
	}

	acc, err := e.loadAccount(ctx, accountID, ErrInvalidRefreshToken)
	if err != nil {
		return nil, err
	}
	if !acc.IsEnabled {
		return nil, ErrInvalidRefreshToken
	}

	pair, err := e.issueTokens(ctx, acc)
	if err != nil {
		return nil, err
	}

	e.emitAudit(ctx, AuditTokenRefreshed, acc.ID, nil)
	return pair, nil
}
