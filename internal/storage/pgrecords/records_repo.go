package pgrecords

import (
	"context"
	"time"

	"github.com/BearBump/TrackGate/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// ErrRecordNotFound отличает промах (кода нет) от упавшего запроса:
// промах — это нормальный исход, а не ошибка хранилища.
var ErrRecordNotFound = errors.New("order record not found")

func (s *Storage) LookupRecord(ctx context.Context, code string) (models.OrderRecord, error) {
	var rec models.OrderRecord
	err := s.db.QueryRow(ctx, `
SELECT code, tracking_number, carrier
FROM order_records
WHERE UPPER(code) = UPPER($1)
`, code).Scan(&rec.Code, &rec.TrackingNumber, &rec.CarrierCode)
	if err == pgx.ErrNoRows {
		return models.OrderRecord{}, ErrRecordNotFound
	}
	if err != nil {
		return models.OrderRecord{}, errors.Wrap(err, "select order record")
	}
	return rec, nil
}

// UpsertRecord применяет апдейт из внешней системы заказов (Kafka-фид).
func (s *Storage) UpsertRecord(ctx context.Context, rec models.OrderRecord) error {
	now := time.Now().UTC()

	trackingNumber := rec.TrackingNumber
	if trackingNumber == "" {
		trackingNumber = models.NotShippedSentinel
	}
	carrier := rec.CarrierCode
	if carrier == "" {
		carrier = string(models.CarrierAuto)
	}

	_, err := s.db.Exec(ctx, `
INSERT INTO order_records (code, tracking_number, carrier, created_at, updated_at)
VALUES ($1,$2,$3,$4,$4)
ON CONFLICT ((UPPER(code)))
DO UPDATE SET
  tracking_number = EXCLUDED.tracking_number,
  carrier = EXCLUDED.carrier,
  updated_at = EXCLUDED.updated_at
`, rec.Code, trackingNumber, carrier, now)
	return errors.Wrap(err, "upsert order record")
}
