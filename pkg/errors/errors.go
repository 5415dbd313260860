package errors

import (
	"errors"
	"net/http"
)

var (
	ErrValidation      = errors.New("validation error")
	ErrNameTaken       = errors.New("username already taken")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrNotFound        = errors.New("not found")
	ErrBanned          = errors.New("banned")
	ErrSessionNotFound = errors.New("session not found")
	ErrInvalidToken    = errors.New("invalid token")
	ErrRateLimited     = errors.New("rate limit exceeded")
	ErrTransient       = errors.New("temporarily unavailable")
	ErrInternalServer  = errors.New("internal server error")
)

// Стабильные коды ошибок для клиентов
const (
	CodeValidation      = "validation"
	CodeNameTaken       = "name_taken"
	CodeUnauthorized    = "unauthorized"
	CodeNotFound        = "not_found"
	CodeBanned          = "banned"
	CodeSessionNotFound = "session_not_found"
	CodeInvalidToken    = "invalid_token"
	CodeRateLimited     = "rate_limited"
	CodeTransient       = "transient"
	CodeInternal        = "internal"
)

type APIError struct {
	Message string `json:"error"`
	Code    string `json:"code"`
}

func (e *APIError) Error() string {
	return e.Message
}

func NewAPIError(message string, code string) *APIError {
	return &APIError{
		Message: message,
		Code:    code,
	}
}

func HTTPStatusFromError(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNameTaken):
		return http.StatusConflict
	case errors.Is(err, ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, ErrBanned):
		return http.StatusGone
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrTransient):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func CodeFromError(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return CodeValidation
	case errors.Is(err, ErrNameTaken):
		return CodeNameTaken
	case errors.Is(err, ErrUnauthorized):
		return CodeUnauthorized
	case errors.Is(err, ErrBanned):
		return CodeBanned
	case errors.Is(err, ErrSessionNotFound):
		return CodeSessionNotFound
	case errors.Is(err, ErrInvalidToken):
		return CodeInvalidToken
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrRateLimited):
		return CodeRateLimited
	case errors.Is(err, ErrTransient):
		return CodeTransient
	default:
		return CodeInternal
	}
}

// ToAPIError готовит ошибку для ответа клиенту.
// Для unauthorized и внутренних ошибок детали не раскрываются.
func ToAPIError(err error) *APIError {
	code := CodeFromError(err)
	switch code {
	case CodeUnauthorized:
		return NewAPIError(ErrUnauthorized.Error(), code)
	case CodeInternal:
		return NewAPIError(ErrInternalServer.Error(), code)
	}
	return NewAPIError(err.Error(), code)
}

// IsTerminal - ошибка, после которой клиент не должен повторять запрос
func IsTerminal(err error) bool {
	return errors.Is(err, ErrBanned)
}

// IsRetryable - временная ошибка доставки
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient)
}
