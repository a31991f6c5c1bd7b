package broker

import (
	"errors"
	"fmt"
)

var (
	ErrNotConnected = errors.New("Нет соединения с брокером.")
	ErrClosed       = errors.New("Соединение с брокером закрыто.")
	ErrTimeout      = errors.New("Время ожидания ответа истекло.")
)

// APIError is a rejection of one request, it carries the broker's own message.
type APIError struct {
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("Ошибка API брокера: %s", e.Message)
	}
	return fmt.Sprintf("Ошибка API брокера: %s (code=%s)", e.Message, e.Code)
}

func IsAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}
