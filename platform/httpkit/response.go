// Package httpkit provides HTTP response utilities.
// This is part of the platform layer and contains no business logic.
package httpkit

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"processhub_backend/platform/apperr"
	"processhub_backend/platform/fieldcrypto"
	"processhub_backend/platform/metrics"
	"processhub_backend/platform/tenant"
)

const (
	msgIntegrityFailure = "data integrity failure"
	msgMissingTenant    = "no organization selected"
	msgInternal         = "internal server error"
)

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error   string      `json:"error"`
	Details interface{} `json:"details,omitempty"`
}

// JSON sends a JSON response with the given status code.
func JSON(c *gin.Context, status int, payload interface{}) {
	c.JSON(status, payload)
}

// Error sends an error response with the given status code and message.
func Error(c *gin.Context, status int, message string, details interface{}) {
	c.JSON(status, ErrorResponse{Error: message, Details: details})
}

// OK sends a 200 OK response with the given payload.
func OK(c *gin.Context, payload interface{}) {
	c.JSON(http.StatusOK, payload)
}

// HandleError maps domain errors to HTTP responses and records the error on
// the gin context for the request logger. Returns true if an error was handled.
//
// Decryption failures are integrity errors (500), never empty values.
// A missing tenant is an authorization failure (403).
func HandleError(c *gin.Context, err error) bool {
	if err == nil {
		return false
	}
	_ = c.Error(err)

	switch {
	case errors.Is(err, fieldcrypto.ErrDecryption), apperr.Is(err, apperr.KindIntegrity):
		metrics.ObserveDecryptionFailure()
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: msgIntegrityFailure})
		return true
	case errors.Is(err, tenant.ErrMissingTenantContext), errors.Is(err, tenant.ErrTenantAlreadyBound):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: msgMissingTenant})
		return true
	}

	var domainErr *apperr.Error
	if errors.As(err, &domainErr) {
		message := domainErr.Message
		if domainErr.Kind == apperr.KindInternal {
			message = msgInternal
		}
		c.JSON(domainErr.HTTPStatus(), ErrorResponse{
			Error:   message,
			Details: domainErr.Details,
		})
		return true
	}

	// Untyped errors are unexpected; their text stays in the logs.
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: msgInternal})
	return true
}
