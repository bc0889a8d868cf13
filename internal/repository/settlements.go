// Package repository persists settlement records in Postgres. The unique
// constraint on payment_reference is the durable source of truth for the
// single-payout guarantee.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/maltlabs/malt-bridge/internal/domain"
)

// ErrNotFound reports that no settlement exists for the reference.
var ErrNotFound = errors.New("settlement not found")

const schema = `
CREATE TABLE IF NOT EXISTS settlements (
	payment_reference TEXT PRIMARY KEY,
	asset             TEXT NOT NULL,
	payer             TEXT NOT NULL DEFAULT '',
	gross             NUMERIC,
	rate              NUMERIC,
	rate_source       TEXT NOT NULL DEFAULT '',
	output            NUMERIC,
	outbound          TEXT NOT NULL DEFAULT '',
	status            TEXT NOT NULL,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS settlements_status_idx ON settlements (status);
`

// Settlements is the settlement store over a pgx connection pool.
type Settlements struct {
	db *pgxpool.Pool
}

func NewSettlements(db *pgxpool.Pool) *Settlements {
	return &Settlements{db: db}
}

// EnsureSchema creates the settlements table if it does not exist.
func (r *Settlements) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure settlements schema: %w", err)
	}
	return nil
}

// Reserve inserts a RESERVED row for the reference. It returns false without
// error when a row for the reference already exists in any status.
func (r *Settlements) Reserve(ctx context.Context, ref domain.PaymentReference, asset string) (bool, error) {
	query := `
		INSERT INTO settlements (payment_reference, asset, status)
		VALUES ($1, $2, $3)
		ON CONFLICT (payment_reference) DO NOTHING
	`
	tag, err := r.db.Exec(ctx, query, ref.String(), asset, domain.SettlementReserved)
	if err != nil {
		return false, fmt.Errorf("reserve settlement: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Finalize records the outcome of a pipeline run on the reserved row.
func (r *Settlements) Finalize(ctx context.Context, rec domain.Settlement) error {
	query := `
		UPDATE settlements
		SET asset = $2, payer = $3, gross = $4, rate = $5, rate_source = $6,
		    output = $7, outbound = $8, status = $9, updated_at = NOW()
		WHERE payment_reference = $1
	`
	tag, err := r.db.Exec(ctx, query,
		rec.Reference.String(), rec.Asset, rec.Payer,
		rec.Gross.String(), rec.Rate.String(), string(rec.RateSource),
		rec.Output.String(), rec.Outbound, rec.Status)
	if err != nil {
		return fmt.Errorf("finalize settlement: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return ErrNotFound
	}
	return nil
}

// Release removes a reservation that never produced an outbound transfer.
// Rows in any other status are left untouched.
func (r *Settlements) Release(ctx context.Context, ref domain.PaymentReference) error {
	query := `DELETE FROM settlements WHERE payment_reference = $1 AND status = $2`
	if _, err := r.db.Exec(ctx, query, ref.String(), domain.SettlementReserved); err != nil {
		return fmt.Errorf("release settlement: %w", err)
	}
	return nil
}

// Resolve moves an UNCERTAIN row to its reconciled terminal status.
func (r *Settlements) Resolve(ctx context.Context, ref domain.PaymentReference, status string) error {
	query := `
		UPDATE settlements SET status = $2, updated_at = NOW()
		WHERE payment_reference = $1 AND status = $3
	`
	tag, err := r.db.Exec(ctx, query, ref.String(), status, domain.SettlementUncertain)
	if err != nil {
		return fmt.Errorf("resolve settlement: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return ErrNotFound
	}
	return nil
}

const settlementColumns = `
	payment_reference, asset, payer,
	COALESCE(gross::text, '0'), COALESCE(rate::text, '0'), rate_source,
	COALESCE(output::text, '0'), outbound, status, created_at, updated_at
`

// Get fetches one settlement by reference.
func (r *Settlements) Get(ctx context.Context, ref domain.PaymentReference) (*domain.Settlement, error) {
	query := `SELECT ` + settlementColumns + ` FROM settlements WHERE payment_reference = $1`
	rec, err := scanSettlement(r.db.QueryRow(ctx, query, ref.String()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get settlement: %w", err)
	}
	return rec, nil
}

// ListByStatus returns settlements in the given status, oldest first.
func (r *Settlements) ListByStatus(ctx context.Context, status string, limit int) ([]domain.Settlement, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT ` + settlementColumns + `
		FROM settlements
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, status, limit)
	if err != nil {
		return nil, fmt.Errorf("list settlements: %w", err)
	}
	defer rows.Close()

	var out []domain.Settlement
	for rows.Next() {
		rec, err := scanSettlement(rows)
		if err != nil {
			return nil, fmt.Errorf("scan settlement: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// CountByStatus reports how many settlements sit in the given status.
func (r *Settlements) CountByStatus(ctx context.Context, status string) (int64, error) {
	var n int64
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM settlements WHERE status = $1`, status).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count settlements: %w", err)
	}
	return n, nil
}

func scanSettlement(row pgx.Row) (*domain.Settlement, error) {
	var (
		rec                       domain.Settlement
		ref, source               string
		grossStr, rateStr, outStr string
	)
	if err := row.Scan(&ref, &rec.Asset, &rec.Payer, &grossStr, &rateStr, &source,
		&outStr, &rec.Outbound, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	rec.Reference = domain.PaymentReference(ref)
	rec.RateSource = domain.RateSource(source)

	var err error
	if rec.Gross, err = decimal.NewFromString(grossStr); err != nil {
		return nil, fmt.Errorf("parse gross %q: %w", grossStr, err)
	}
	if rec.Rate, err = decimal.NewFromString(rateStr); err != nil {
		return nil, fmt.Errorf("parse rate %q: %w", rateStr, err)
	}
	if rec.Output, err = decimal.NewFromString(outStr); err != nil {
		return nil, fmt.Errorf("parse output %q: %w", outStr, err)
	}
	return &rec, nil
}
