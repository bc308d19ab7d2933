package identitystore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	_ "github.com/lib/pq"

	"custos/pkg/domain"
	"custos/pkg/platform/sentinel"
)

// Postgres persists holder records in PostgreSQL for deployments where the
// identity registry must survive restarts.
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed identity storage.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// EnsureSchema creates the backing table if it does not exist.
func (s *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS stored_identities (
			holder   BYTEA PRIMARY KEY,
			identity BYTEA NOT NULL,
			country  INTEGER NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("ensure stored_identities schema: %w", err)
	}
	return nil
}

func (s *Postgres) Add(ctx context.Context, holder domain.Address, rec Record) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO stored_identities (holder, identity, country)
		VALUES ($1, $2, $3)
		ON CONFLICT (holder) DO NOTHING
	`, holder.Bytes(), rec.Identity.Bytes(), int32(rec.Country))
	if err != nil {
		return fmt.Errorf("add holder: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("add holder: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("holder %s: %w", holder.Hex(), sentinel.ErrExists)
	}
	return nil
}

func (s *Postgres) Remove(ctx context.Context, holder domain.Address) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM stored_identities WHERE holder = $1`, holder.Bytes())
	if err != nil {
		return fmt.Errorf("remove holder: %w", err)
	}
	return requireAffected(res, holder)
}

func (s *Postgres) UpdateIdentity(ctx context.Context, holder, identity domain.Address) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE stored_identities SET identity = $2 WHERE holder = $1`,
		holder.Bytes(), identity.Bytes())
	if err != nil {
		return fmt.Errorf("update identity: %w", err)
	}
	return requireAffected(res, holder)
}

func (s *Postgres) UpdateCountry(ctx context.Context, holder domain.Address, country domain.CountryCode) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE stored_identities SET country = $2 WHERE holder = $1`,
		holder.Bytes(), int32(country))
	if err != nil {
		return fmt.Errorf("update country: %w", err)
	}
	return requireAffected(res, holder)
}

func (s *Postgres) Contains(ctx context.Context, holder domain.Address) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM stored_identities WHERE holder = $1)`,
		holder.Bytes()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("contains holder: %w", err)
	}
	return exists, nil
}

func (s *Postgres) Get(ctx context.Context, holder domain.Address) (Record, error) {
	var identity []byte
	var country int32
	err := s.db.QueryRowContext(ctx,
		`SELECT identity, country FROM stored_identities WHERE holder = $1`,
		holder.Bytes()).Scan(&identity, &country)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("holder %s: %w", holder.Hex(), sentinel.ErrNotFound)
	}
	if err != nil {
		return Record{}, fmt.Errorf("get holder: %w", err)
	}
	return Record{
		Identity: common.BytesToAddress(identity),
		Country:  domain.CountryCode(country),
	}, nil
}

func (s *Postgres) Holders(ctx context.Context) ([]domain.Address, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT holder FROM stored_identities`)
	if err != nil {
		return nil, fmt.Errorf("list holders: %w", err)
	}
	defer rows.Close()

	var holders []domain.Address
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan holder: %w", err)
		}
		holders = append(holders, common.BytesToAddress(raw))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list holders: %w", err)
	}
	return holders, nil
}

func requireAffected(res sql.Result, holder domain.Address) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("holder %s: %w", holder.Hex(), sentinel.ErrNotFound)
	}
	return nil
}
