package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	authdomain "github.com/smallbiznis/referly/internal/auth/domain"
	"github.com/smallbiznis/referly/internal/errs"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Code    string            `json:"code,omitempty"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errs.New(errs.KindNotFound, "not_found")
	ErrRateLimited  = errors.New("rate_limited")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    string(errs.KindUnknown),
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    string(errs.KindValidation),
			Code:    "invalid_request",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	switch {
	case isUnauthenticated(err):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Code:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Code:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    string(errs.KindNotFound),
			Code:    "not_found",
			Message: "not found",
		}
	}

	kind := errs.KindOf(err)
	code := errs.CodeOf(err)
	switch kind {
	case errs.KindValidation:
		return http.StatusBadRequest, errorPayload{
			Type:    string(kind),
			Code:    code,
			Message: "validation error",
			Errors: []ValidationError{
				{Field: validationErrorField(code), Code: code, Message: "invalid value"},
			},
		}
	case errs.KindAuthorization:
		return http.StatusForbidden, errorPayload{Type: string(kind), Code: code, Message: "forbidden"}
	case errs.KindNotFound:
		return http.StatusNotFound, errorPayload{Type: string(kind), Code: code, Message: "not found"}
	case errs.KindConflict:
		return http.StatusConflict, errorPayload{Type: string(kind), Code: code, Message: "conflict"}
	case errs.KindDependency:
		return http.StatusBadGateway, errorPayload{Type: string(kind), Code: code, Message: "upstream dependency failed"}
	case errs.KindUnavailable:
		return http.StatusServiceUnavailable, errorPayload{Type: string(kind), Code: code, Message: "service unavailable"}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    string(errs.KindUnknown),
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog feeds the request logger the same type/code pair the
// client receives.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	return payload.Type, payload.Code
}

func isUnauthenticated(err error) bool {
	return errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, authdomain.ErrInvalidCredentials) ||
		errors.Is(err, authdomain.ErrInvalidSession) ||
		errors.Is(err, authdomain.ErrSessionExpired) ||
		errors.Is(err, authdomain.ErrSessionRevoked)
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func validationErrorField(code string) string {
	switch code {
	case "invalid_referral_code":
		return "code"
	case "invalid_installation_date":
		return "installation_date"
	case "weak_password":
		return "password"
	case "empty_patch":
		return "request"
	}
	if field, ok := strings.CutPrefix(code, "invalid_"); ok {
		return field
	}
	return ""
}
