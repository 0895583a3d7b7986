package pgrecords

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS order_records (
  id BIGSERIAL PRIMARY KEY,
  code TEXT NOT NULL,
  tracking_number TEXT NOT NULL DEFAULT 'NA',
  carrier TEXT NOT NULL DEFAULT 'AUTO',
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`,
		// Поиск по коду регистронезависимый, поэтому уникальность тоже.
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_order_records_code ON order_records(UPPER(code))`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
