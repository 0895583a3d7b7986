package tokens

import (
	"context"
	"sync"
	"time"
)

// ExchangeFunc выполняет client-credentials обмен и возвращает bearer-токен
// и его TTL. Реализации живут в пакетах перевозчиков.
type ExchangeFunc func(ctx context.Context) (token string, ttl time.Duration, err error)

// Cache держит один bearer-токен и момент его истечения. Пока токен жив,
// сетевых вызовов нет — в этом весь смысл: не упереться в лимиты
// auth-эндпоинта и не платить лишний round-trip на каждый запрос.
//
// Обмен выполняется вне блокировки: два конкурентных запроса с протухшим
// токеном могут обновить его дважды. Это безвредная лишняя работа (обмен
// идемпотентный), сериализовать её не стали.
type Cache struct {
	exchange ExchangeFunc
	now      func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// New создаёт кэш. now == nil -> time.Now (в тестах подставляется fake clock).
func New(exchange ExchangeFunc, now func() time.Time) *Cache {
	if now == nil {
		now = time.Now
	}
	return &Cache{exchange: exchange, now: now}
}

func (c *Cache) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.token != "" && c.now().Before(c.expiresAt) {
		t := c.token
		c.mu.Unlock()
		return t, nil
	}
	c.mu.Unlock()

	token, ttl, err := c.exchange(ctx)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.token = token
	c.expiresAt = c.now().Add(ttl)
	c.mu.Unlock()

	return token, nil
}
