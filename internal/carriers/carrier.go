package carriers

import (
	"context"
	"fmt"

	"github.com/BearBump/TrackGate/internal/models"
)

// Adapter — общий контракт адаптера перевозчика: по трек-номеру вернуть
// нормализованный результат.
type Adapter interface {
	Carrier() models.Carrier
	Track(ctx context.Context, trackNumber string) (models.TrackingResult, error)
}

// ReasonMalformedResponse marks responses where the expected envelope or
// scan events are structurally absent (as opposed to an HTTP failure).
const ReasonMalformedResponse = "malformed-response"

// AuthError — провалившийся client-credentials обмен. Несёт статус и тело
// ответа для диагностики; сами креды в ошибку не попадают.
type AuthError struct {
	Carrier    models.Carrier
	StatusCode int
	Body       string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s auth: http %d: %s", e.Carrier, e.StatusCode, e.Body)
}

// CarrierError — провалившийся запрос трекинга: либо не-2xx от API, либо
// структурно пустой/битый ответ (Reason = ReasonMalformedResponse).
type CarrierError struct {
	Carrier    models.Carrier
	StatusCode int
	Body       string
	Reason     string
}

func (e *CarrierError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s tracking: %s: %s", e.Carrier, e.Reason, e.Body)
	}
	return fmt.Sprintf("%s tracking: http %d: %s", e.Carrier, e.StatusCode, e.Body)
}
