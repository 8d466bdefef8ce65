package subscription

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/subsync/pkg/pg"
)

// postgresDriver stores records in the subscription_records table created by
// the migrations in svc/subscription/migrations. The version check rides on
// the UPDATE's WHERE clause.
type postgresDriver struct {
	pool *pgxpool.Pool
}

// NewPostgresDriver returns a Driver backed by the given connection pool.
func NewPostgresDriver(pool *pgxpool.Pool) Driver {
	return &postgresDriver{pool: pool}
}

const recordColumns = `subject_id, status, tier, period_start, period_end,
	cancel_at_period_end, cancellation_reason, billing_amount, billing_currency,
	provider_sub_id, provider_customer_id, version, created_at, updated_at, last_event_at`

func (d *postgresDriver) Get(ctx context.Context, subjectID string) (*Record, error) {
	row := d.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM subscription_records WHERE subject_id = $1`,
		subjectID)

	var rec Record
	err := row.Scan(
		&rec.SubjectID, &rec.Status, &rec.Tier, &rec.PeriodStart, &rec.PeriodEnd,
		&rec.CancelAtPeriodEnd, &rec.CancellationReason, &rec.Billing.Amount, &rec.Billing.Currency,
		&rec.ProviderSubID, &rec.ProviderCustomerID, &rec.Version, &rec.CreatedAt, &rec.UpdatedAt, &rec.LastEventAt,
	)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrRecordNotFound
		}
		return nil, errors.Join(ErrStoreUnavailable, err)
	}
	return &rec, nil
}

func (d *postgresDriver) Insert(ctx context.Context, rec *Record) error {
	_, err := d.pool.Exec(ctx,
		`INSERT INTO subscription_records (`+recordColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		rec.SubjectID, rec.Status, rec.Tier, rec.PeriodStart, rec.PeriodEnd,
		rec.CancelAtPeriodEnd, rec.CancellationReason, rec.Billing.Amount, rec.Billing.Currency,
		rec.ProviderSubID, rec.ProviderCustomerID, rec.Version, rec.CreatedAt, rec.UpdatedAt, rec.LastEventAt,
	)
	if err != nil {
		if pg.IsDuplicateKeyError(err) {
			return ErrRecordExists
		}
		return errors.Join(ErrStoreUnavailable, err)
	}
	return nil
}

func (d *postgresDriver) Update(ctx context.Context, rec *Record, expectedVersion int64) error {
	tag, err := d.pool.Exec(ctx,
		`UPDATE subscription_records SET
			status = $2, tier = $3, period_start = $4, period_end = $5,
			cancel_at_period_end = $6, cancellation_reason = $7,
			billing_amount = $8, billing_currency = $9,
			provider_sub_id = $10, provider_customer_id = $11,
			version = $12, updated_at = $13, last_event_at = $14
		 WHERE subject_id = $1 AND version = $15`,
		rec.SubjectID, rec.Status, rec.Tier, rec.PeriodStart, rec.PeriodEnd,
		rec.CancelAtPeriodEnd, rec.CancellationReason,
		rec.Billing.Amount, rec.Billing.Currency,
		rec.ProviderSubID, rec.ProviderCustomerID,
		rec.Version, rec.UpdatedAt, rec.LastEventAt,
		expectedVersion,
	)
	if err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := d.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM subscription_records WHERE subject_id = $1)`,
			rec.SubjectID).Scan(&exists); err != nil {
			return errors.Join(ErrStoreUnavailable, err)
		}
		if !exists {
			return ErrRecordNotFound
		}
		return ErrStaleVersion
	}
	return nil
}

func (d *postgresDriver) ListByTier(ctx context.Context, tier Tier) ([]Record, error) {
	rows, err := d.pool.Query(ctx,
		`SELECT `+recordColumns+` FROM subscription_records WHERE tier = $1`, tier)
	if err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(
			&rec.SubjectID, &rec.Status, &rec.Tier, &rec.PeriodStart, &rec.PeriodEnd,
			&rec.CancelAtPeriodEnd, &rec.CancellationReason, &rec.Billing.Amount, &rec.Billing.Currency,
			&rec.ProviderSubID, &rec.ProviderCustomerID, &rec.Version, &rec.CreatedAt, &rec.UpdatedAt, &rec.LastEventAt,
		); err != nil {
			return nil, errors.Join(ErrStoreUnavailable, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}
	return out, nil
}
