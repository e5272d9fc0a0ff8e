package errs

import (
	"errors"
	"net/http"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrUnauthorized = errors.New("unauthorized")

	// Категории ядра синхронизации. Ни одна не фатальна для процесса:
	// transport — сокет умер, чистим и идём дальше;
	// presence store — считаем состояние неизменным;
	// signaling — пакет молча выбрасывается.
	ErrConnClosed    = errors.New("connection closed")
	ErrPresenceStore = errors.New("presence store unavailable")
	ErrBadSignal     = errors.New("malformed signaling payload")
)

func ToHTTP(err error) int {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrPresenceStore):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
