package models

import "github.com/pkg/errors"

var (
	// ErrDataUnavailable: нет данных или мало истории, тик пропускаем.
	ErrDataUnavailable = errors.New("data unavailable")
	// ErrInvalidState: двойное открытие / закрытие без позиции.
	ErrInvalidState = errors.New("invalid position state")
	// ErrOrderRejected: биржа отклонила ордер, повтор на следующем тике.
	ErrOrderRejected = errors.New("order rejected")
	// ErrNetwork: временная ошибка сети, повтор с backoff.
	ErrNetwork = errors.New("network error")
	// ErrKillSwitchExhausted: принудительное закрытие не удалось за max_retries.
	ErrKillSwitchExhausted = errors.New("kill switch exhausted")
)
