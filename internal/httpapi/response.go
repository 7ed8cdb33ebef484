package httpapi

import (
	"errors"
	"net/http"

	"github.com/MrEthical07/eduAuth"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorBody is the JSON shape of every failed response.
type ErrorBody struct {
	Code   string   `json:"code"`
	Error  string   `json:"error"`
	Fields []string `json:"fields,omitempty"`
}

var statusByCode = map[eduAuth.Code]int{
	eduAuth.CodeInvalidInput:            http.StatusBadRequest,
	eduAuth.CodeInvalidCredentials:      http.StatusUnauthorized,
	eduAuth.CodeAccountLocked:           http.StatusLocked,
	eduAuth.CodeAccountDisabled:         http.StatusForbidden,
	eduAuth.CodeEmailNotVerified:        http.StatusForbidden,
	eduAuth.CodeInvalidOrExpiredToken:   http.StatusBadRequest,
	eduAuth.CodeInvalidRefreshToken:     http.StatusUnauthorized,
	eduAuth.CodeInvalidTwoFactorCode:    http.StatusUnauthorized,
	eduAuth.CodeTwoFactorNotEnabled:     http.StatusBadRequest,
	eduAuth.CodeTwoFactorAlreadyEnabled: http.StatusConflict,
	eduAuth.CodeAlreadyExists:           http.StatusConflict,
	eduAuth.CodeNotFound:                http.StatusNotFound,
	eduAuth.CodeUnauthorized:            http.StatusUnauthorized,
	eduAuth.CodeRateLimited:             http.StatusTooManyRequests,
}

// StatusFor returns the HTTP status for an engine error. Anything that is
// not a typed engine failure is a 500.
func StatusFor(err error) int {
	var verr *eduAuth.ValidationError
	if errors.As(err, &verr) {
		return http.StatusBadRequest
	}
	var aerr *eduAuth.Error
	if errors.As(err, &aerr) {
		if status, ok := statusByCode[aerr.Code]; ok {
			return status
		}
	}
	return http.StatusInternalServerError
}

func respondError(c *gin.Context, logger *zap.Logger, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		c.AbortWithStatusJSON(status, ErrorBody{Code: "INTERNAL_ERROR", Error: "internal server error"})
		return
	}

	body := ErrorBody{Error: err.Error()}
	var verr *eduAuth.ValidationError
	var aerr *eduAuth.Error
	switch {
	case errors.As(err, &verr):
		body.Code = string(eduAuth.CodeInvalidInput)
		body.Fields = verr.Fields
	case errors.As(err, &aerr):
		body.Code = string(aerr.Code)
		body.Error = aerr.Message
	}
	c.AbortWithStatusJSON(status, body)
}

func respondBadRequest(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorBody{
		Code:  string(eduAuth.CodeInvalidInput),
		Error: "malformed request body",
	})
}

func respondMessage(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"message": message})
}
