// Package presence ведёт онлайн-набор пользователей на тенант.
// Хранилище разделяемое (несколько процессов держат каждый свою часть
// соединений), записи с TTL, чтобы упавший процесс не оставлял
// «вечно онлайн» пользователей.
package presence

import (
	"context"
	"time"
)

// Store — разделяемое KV-множество с TTL на запись.
// Ошибки стора трактуются вызывающим как «считаем неизменным»,
// никогда как фатальные.
type Store interface {
	// SetAdd добавляет/обновляет запись (идемпотентно): повторный
	// вход того же пользователя заменяет TTL, а не дублирует запись.
	SetAdd(ctx context.Context, tenantID, userID string, ttl time.Duration) error
	SetRemove(ctx context.Context, tenantID, userID string) error
	// SetMembers — живые (не истёкшие) участники множества.
	SetMembers(ctx context.Context, tenantID string) ([]string, error)
}
