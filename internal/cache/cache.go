package cache

import (
	"context"
	"time"
)

// BytesCache — best-effort кэш байтов. Промах и ошибка различаются, но
// вызывающий код обязан уметь жить вообще без кэша.
type BytesCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}
