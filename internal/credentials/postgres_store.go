package credentials

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type postgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore persists records in the credentials table.
func NewPostgresStore(db *pgxpool.Pool) Store {
	return &postgresStore{db: db}
}

// EnsureSchema creates the credentials table if it does not exist. The bot
// owns this single table, so it provisions it at startup instead of shipping
// a migration tool.
func EnsureSchema(ctx context.Context, db *pgxpool.Pool) error {
	_, err := db.Exec(ctx,
		`CREATE TABLE IF NOT EXISTS credentials (
			user_id    TEXT PRIMARY KEY,
			endpoint   TEXT NOT NULL,
			identifier TEXT NOT NULL,
			secret     TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("ensure credentials schema: %w", err)
	}
	return nil
}

func (s *postgresStore) Get(ctx context.Context, userID string) (Credentials, error) {
	row := s.db.QueryRow(ctx,
		`SELECT endpoint, identifier, secret FROM credentials WHERE user_id = $1`, userID)
	var creds Credentials
	if err := row.Scan(&creds.Endpoint, &creds.Identifier, &creds.Secret); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Credentials{}, ErrNotFound
		}
		return Credentials{}, fmt.Errorf("query credentials: %w", err)
	}
	return creds, nil
}

func (s *postgresStore) Upsert(ctx context.Context, userID string, creds Credentials) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO credentials (user_id, endpoint, identifier, secret, updated_at)
		 VALUES ($1, $2, $3, $4, now())
		 ON CONFLICT (user_id) DO UPDATE
		 SET endpoint = EXCLUDED.endpoint,
		     identifier = EXCLUDED.identifier,
		     secret = EXCLUDED.secret,
		     updated_at = now()`,
		userID, creds.Endpoint, creds.Identifier, creds.Secret)
	if err != nil {
		return fmt.Errorf("upsert credentials: %w", err)
	}
	return nil
}
