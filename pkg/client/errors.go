package client

import (
	"errors"
	"fmt"

	chaterrors "github.com/xtrafr/chatvercel/pkg/errors"
)

// HTTPError - ответ сервера со статусом >= 400
type HTTPError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// Unwrap возвращает общую ошибку по коду из ответа
func (e *HTTPError) Unwrap() error {
	switch e.Code {
	case chaterrors.CodeValidation:
		return chaterrors.ErrValidation
	case chaterrors.CodeNameTaken:
		return chaterrors.ErrNameTaken
	case chaterrors.CodeUnauthorized:
		return chaterrors.ErrUnauthorized
	case chaterrors.CodeNotFound:
		return chaterrors.ErrNotFound
	case chaterrors.CodeBanned:
		return chaterrors.ErrBanned
	case chaterrors.CodeSessionNotFound:
		return chaterrors.ErrSessionNotFound
	case chaterrors.CodeInvalidToken:
		return chaterrors.ErrInvalidToken
	case chaterrors.CodeRateLimited:
		return chaterrors.ErrRateLimited
	case chaterrors.CodeTransient:
		return chaterrors.ErrTransient
	}
	return nil
}

// IsStatus проверяет статус HTTPError в цепочке ошибок
func IsStatus(err error, code int) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == code
	}
	return false
}

// IsTerminal - сессии больше нет, повтор бессмыслен, нужен новый вход
func IsTerminal(err error) bool {
	return errors.Is(err, chaterrors.ErrBanned) ||
		errors.Is(err, chaterrors.ErrSessionNotFound) ||
		errors.Is(err, chaterrors.ErrInvalidToken)
}
