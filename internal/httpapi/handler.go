// Package httpapi exposes the authentication engine over HTTP with gin.
package httpapi

import (
	"context"
	"net/http"

	"github.com/MrEthical07/eduAuth"
	"github.com/MrEthical07/eduAuth/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Service is the subset of *eduAuth.Engine the handlers call.
type Service interface {
	middleware.AccessValidator

	Register(ctx context.Context, req eduAuth.RegisterRequest) (*eduAuth.RegisterResult, error)
	VerifyEmail(ctx context.Context, token string) error
	ResendVerification(ctx context.Context, email string) error
	Login(ctx context.Context, req eduAuth.LoginRequest) (*eduAuth.LoginResult, error)
	VerifyTwoFactor(ctx context.Context, accountID int64, code string) (*eduAuth.LoginResult, error)
	VerifyTwoFactorChallenge(ctx context.Context, accountID int64, challenge, code string) (*eduAuth.LoginResult, error)
	RefreshToken(ctx context.Context, refreshToken string) (*eduAuth.TokenPair, error)
	Logout(ctx context.Context, accountID int64, refreshToken string) error
	LogoutAll(ctx context.Context, accountID int64) error
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
	ChangePassword(ctx context.Context, accountID int64, oldPassword, newPassword string) error
	SetupTwoFactor(ctx context.Context, accountID int64) (*eduAuth.TwoFactorSetup, error)
	EnableTwoFactor(ctx context.Context, accountID int64, code string) error
	DisableTwoFactor(ctx context.Context, accountID int64, code string) error
	GetAccount(ctx context.Context, accountID int64) (*eduAuth.Account, error)
}

// Handler serves the /auth routes.
type Handler struct {
	service Service
	logger  *zap.Logger
}

func NewHandler(service Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, logger: logger.Named("httpapi")}
}

type tokenRequest struct {
	Token string `json:"token"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type twoFactorVerifyRequest struct {
	AccountID      int64  `json:"accountId"`
	TwoFactorToken string `json:"twoFactorToken"`
	Code           string `json:"code"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

type codeRequest struct {
	Code string `json:"code"`
}

// Register handles POST /auth/register. The verification token is only
// delivered by email.
func (h *Handler) Register(c *gin.Context) {
	var req eduAuth.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c)
		return
	}

	res, err := h.service.Register(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message": "registration successful, check your email to verify the account",
		"account": res.Account,
	})
}

// VerifyEmail handles POST /auth/verify-email.
func (h *Handler) VerifyEmail(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c)
		return
	}
	if err := h.service.VerifyEmail(c.Request.Context(), req.Token); err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondMessage(c, http.StatusOK, "email verified")
}

// ResendVerification handles POST /auth/verify-email/resend. The response
// does not reveal whether the email is registered.
func (h *Handler) ResendVerification(c *gin.Context) {
	var req emailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c)
		return
	}
	if err := h.service.ResendVerification(c.Request.Context(), req.Email); err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondMessage(c, http.StatusAccepted, "if the account exists and is unverified, a new email has been sent")
}

// Login handles POST /auth/login. A second-factor challenge answers 202.
func (h *Handler) Login(c *gin.Context) {
	var req eduAuth.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c)
		return
	}
	req.IPAddress = c.ClientIP()
	req.UserAgent = c.Request.UserAgent()

	res, err := h.service.Login(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if res.RequiresTwoFactor {
		c.JSON(http.StatusAccepted, res)
		return
	}
	c.JSON(http.StatusOK, res)
}

// VerifyTwoFactor handles POST /auth/2fa/verify.
func (h *Handler) VerifyTwoFactor(c *gin.Context) {
	var req twoFactorVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c)
		return
	}

	var (
		res *eduAuth.LoginResult
		err error
	)
	if req.TwoFactorToken != "" {
		res, err = h.service.VerifyTwoFactorChallenge(c.Request.Context(), req.AccountID, req.TwoFactorToken, req.Code)
	} else {
		res, err = h.service.VerifyTwoFactor(c.Request.Context(), req.AccountID, req.Code)
	}
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Refresh handles POST /auth/refresh.
func (h *Handler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c)
		return
	}
	pair, err := h.service.RefreshToken(c.Request.Context(), req.RefreshToken)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, pair)
}

// ForgotPassword handles POST /auth/password/forgot. Always 202.
func (h *Handler) ForgotPassword(c *gin.Context) {
	var req emailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c)
		return
	}
	if err := h.service.RequestPasswordReset(c.Request.Context(), req.Email); err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondMessage(c, http.StatusAccepted, "if the account exists, a reset email has been sent")
}

// ResetPassword handles POST /auth/password/reset.
func (h *Handler) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c)
		return
	}
	if err := h.service.ResetPassword(c.Request.Context(), req.Token, req.NewPassword); err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondMessage(c, http.StatusOK, "password has been reset")
}

/*
====================================
AUTHENTICATED ROUTES
====================================
*/

func accountID(c *gin.Context) (int64, bool) {
	claims, ok := middleware.ClaimsFromContext(c.Request.Context())
	if !ok || claims == nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorBody{
			Code:  string(eduAuth.CodeUnauthorized),
			Error: eduAuth.ErrUnauthorized.Message,
		})
		return 0, false
	}
	return claims.AccountID, true
}

// Logout handles POST /auth/logout. The refresh token in the body is
// optional.
func (h *Handler) Logout(c *gin.Context) {
	id, ok := accountID(c)
	if !ok {
		return
	}
	var req refreshRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBadRequest(c)
			return
		}
	}
	if err := h.service.Logout(c.Request.Context(), id, req.RefreshToken); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// LogoutAll handles POST /auth/logout/all.
func (h *Handler) LogoutAll(c *gin.Context) {
	id, ok := accountID(c)
	if !ok {
		return
	}
	if err := h.service.LogoutAll(c.Request.Context(), id); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ChangePassword handles POST /auth/password/change.
func (h *Handler) ChangePassword(c *gin.Context) {
	id, ok := accountID(c)
	if !ok {
		return
	}
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c)
		return
	}
	if err := h.service.ChangePassword(c.Request.Context(), id, req.OldPassword, req.NewPassword); err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondMessage(c, http.StatusOK, "password changed")
}

// SetupTwoFactor handles POST /auth/2fa/setup.
func (h *Handler) SetupTwoFactor(c *gin.Context) {
	id, ok := accountID(c)
	if !ok {
		return
	}
	setup, err := h.service.SetupTwoFactor(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, setup)
}

// EnableTwoFactor handles POST /auth/2fa/enable.
func (h *Handler) EnableTwoFactor(c *gin.Context) {
	id, ok := accountID(c)
	if !ok {
		return
	}
	var req codeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c)
		return
	}
	if err := h.service.EnableTwoFactor(c.Request.Context(), id, req.Code); err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondMessage(c, http.StatusOK, "two-factor authentication enabled")
}

// DisableTwoFactor handles POST /auth/2fa/disable.
func (h *Handler) DisableTwoFactor(c *gin.Context) {
	id, ok := accountID(c)
	if !ok {
		return
	}
	var req codeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c)
		return
	}
	if err := h.service.DisableTwoFactor(c.Request.Context(), id, req.Code); err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondMessage(c, http.StatusOK, "two-factor authentication disabled")
}

// Me handles GET /auth/me.
func (h *Handler) Me(c *gin.Context) {
	id, ok := accountID(c)
	if !ok {
		return
	}
	acc, err := h.service.GetAccount(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, acc)
}
