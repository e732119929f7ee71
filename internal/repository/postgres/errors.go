package postgres

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lalith-99/threadline/internal/repository"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// wrapErr tags constraint violations with the repository sentinels so
// handlers can map them without knowing about Postgres.
func wrapErr(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%s: %w: %w", op, repository.ErrConflict, err)
		case pgForeignKeyViolation:
			return fmt.Errorf("%s: %w: %w", op, repository.ErrReferenceMissing, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// jsonbParam marshals v for a jsonb parameter. A nil slice or pointer is
// sent as SQL NULL rather than JSON null.
func jsonbParam(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(raw) == "null" {
		return nil, nil
	}
	return raw, nil
}

// decodeJSONB decodes a scanned jsonb column. SQL NULL leaves dst untouched.
func decodeJSONB(raw []byte, dst any) error {
	if raw == nil {
		return nil
	}
	return json.Unmarshal(raw, dst)
}
