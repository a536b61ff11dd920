package subscription

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresConfig holds connection settings for the Postgres-backed stores.
type PostgresConfig struct {
	ConnectionString  string        `env:"PG_CONN_URL,required"`
	MaxOpenConns      int32         `env:"PG_MAX_OPEN_CONNS" envDefault:"10"`
	MaxIdleConns      int32         `env:"PG_MAX_IDLE_CONNS" envDefault:"5"`
	HealthCheckPeriod time.Duration `env:"PG_HEALTHCHECK_PERIOD" envDefault:"1m"`
	RetryAttempts     int           `env:"PG_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval     time.Duration `env:"PG_RETRY_INTERVAL" envDefault:"5s"`
}

// Connect establishes a pgx connection pool with linear backoff between
// attempts, verifying each candidate pool with a ping.
func Connect(ctx context.Context, cfg PostgresConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.ConnectionString)
	if err != nil {
		return nil, err
	}
	poolCfg.MaxConns = cfg.MaxOpenConns
	poolCfg.MinConns = cfg.MaxIdleConns
	poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod

	var lastErr error
	for i := range cfg.RetryAttempts {
		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				return pool, nil
			}
			pool.Close()
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(i+1) * cfg.RetryInterval):
		}
	}
	return nil, lastErr
}

// Schema is the DDL the Postgres stores expect. Applying it is left to the
// host application's migration tooling.
const Schema = `
CREATE TABLE IF NOT EXISTS plan_subscriptions (
	id                uuid PRIMARY KEY,
	subject_id        uuid NOT NULL,
	plan_id           uuid NOT NULL,
	tag               text NOT NULL,
	starts_on         timestamptz NOT NULL,
	expires_on        timestamptz NOT NULL,
	grace_until       timestamptz NOT NULL,
	cancelled_on      timestamptz,
	payment_method    text NOT NULL DEFAULT '',
	is_paid           boolean NOT NULL DEFAULT false,
	is_recurring      boolean NOT NULL DEFAULT false,
	recurring_days    integer NOT NULL DEFAULT 0,
	charging_price    bigint NOT NULL DEFAULT 0,
	charging_currency text NOT NULL DEFAULT '',
	proforma_id       uuid,
	invoice_id        uuid,
	created_at        timestamptz NOT NULL,
	updated_at        timestamptz NOT NULL
);
CREATE INDEX IF NOT EXISTS plan_subscriptions_subject_tag_idx
	ON plan_subscriptions (subject_id, tag, starts_on DESC);
CREATE INDEX IF NOT EXISTS plan_subscriptions_proforma_idx
	ON plan_subscriptions (proforma_id) WHERE proforma_id IS NOT NULL;

CREATE TABLE IF NOT EXISTS plan_subscription_usages (
	subscription_id uuid NOT NULL REFERENCES plan_subscriptions (id) ON DELETE CASCADE,
	feature_code    text NOT NULL,
	used            double precision NOT NULL DEFAULT 0,
	PRIMARY KEY (subscription_id, feature_code)
);
`

const subscriptionColumns = `id, subject_id, plan_id, tag, starts_on, expires_on, grace_until,
	cancelled_on, payment_method, is_paid, is_recurring, recurring_days,
	charging_price, charging_currency, proforma_id, invoice_id, created_at, updated_at`

// pgStore implements Store over a pgx connection pool.
type pgStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore returns a Store backed by the plan_subscriptions table.
func NewPostgresStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

func (s *pgStore) Create(ctx context.Context, sub *Subscription) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO plan_subscriptions (`+subscriptionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		sub.ID, sub.SubjectID, sub.PlanID, sub.Tag, sub.StartsOn, sub.ExpiresOn, sub.GraceUntil,
		sub.CancelledOn, sub.PaymentMethod, sub.IsPaid, sub.IsRecurring, sub.RecurringDays,
		sub.ChargingPrice, sub.ChargingCurrency, sub.ProformaID, sub.InvoiceID, sub.CreatedAt, sub.UpdatedAt,
	)
	return err
}

func (s *pgStore) Update(ctx context.Context, sub *Subscription) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE plan_subscriptions SET
			plan_id = $2, starts_on = $3, expires_on = $4, grace_until = $5,
			cancelled_on = $6, payment_method = $7, is_paid = $8, is_recurring = $9,
			recurring_days = $10, proforma_id = $11, invoice_id = $12, updated_at = $13
		WHERE id = $1`,
		sub.ID, sub.PlanID, sub.StartsOn, sub.ExpiresOn, sub.GraceUntil,
		sub.CancelledOn, sub.PaymentMethod, sub.IsPaid, sub.IsRecurring,
		sub.RecurringDays, sub.ProformaID, sub.InvoiceID, sub.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}

func (s *pgStore) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM plan_subscriptions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}

func (s *pgStore) Get(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+subscriptionColumns+`
		FROM plan_subscriptions WHERE id = $1`, id)
	return scanSubscription(row)
}

func (s *pgStore) ActiveForTag(ctx context.Context, subjectID uuid.UUID, tag string, now time.Time) (*Subscription, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+subscriptionColumns+`
		FROM plan_subscriptions
		WHERE subject_id = $1 AND tag = $2
			AND starts_on <= $3 AND expires_on >= $3
			AND is_paid AND cancelled_on IS NULL
		ORDER BY starts_on DESC
		LIMIT 1`, subjectID, tag, now)
	return scanSubscription(row)
}

func (s *pgStore) LastForTag(ctx context.Context, subjectID uuid.UUID, tag string) (*Subscription, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+subscriptionColumns+`
		FROM plan_subscriptions
		WHERE subject_id = $1 AND tag = $2
		ORDER BY starts_on DESC
		LIMIT 1`, subjectID, tag)
	return scanSubscription(row)
}

func (s *pgStore) DueForTag(ctx context.Context, subjectID uuid.UUID, tag string) (*Subscription, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+subscriptionColumns+`
		FROM plan_subscriptions
		WHERE subject_id = $1 AND tag = $2
			AND NOT is_paid AND cancelled_on IS NULL
		ORDER BY starts_on DESC
		LIMIT 1`, subjectID, tag)
	return scanSubscription(row)
}

func (s *pgStore) ByProformaID(ctx context.Context, proformaID uuid.UUID) (*Subscription, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+subscriptionColumns+`
		FROM plan_subscriptions WHERE proforma_id = $1`, proformaID)
	return scanSubscription(row)
}

func (s *pgStore) ListForTag(ctx context.Context, subjectID uuid.UUID, tag string) ([]*Subscription, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+subscriptionColumns+`
		FROM plan_subscriptions
		WHERE subject_id = $1 AND tag = $2
		ORDER BY starts_on DESC`, subjectID, tag)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (s *pgStore) CountForSubject(ctx context.Context, subjectID uuid.UUID) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM plan_subscriptions WHERE subject_id = $1`, subjectID,
	).Scan(&n)
	return n, err
}

func scanSubscription(row pgx.Row) (*Subscription, error) {
	var sub Subscription
	err := row.Scan(
		&sub.ID, &sub.SubjectID, &sub.PlanID, &sub.Tag, &sub.StartsOn, &sub.ExpiresOn, &sub.GraceUntil,
		&sub.CancelledOn, &sub.PaymentMethod, &sub.IsPaid, &sub.IsRecurring, &sub.RecurringDays,
		&sub.ChargingPrice, &sub.ChargingCurrency, &sub.ProformaID, &sub.InvoiceID, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}
	return &sub, nil
}

// pgUsageStore implements UsageStore over the same pool.
type pgUsageStore struct {
	pool *pgxpool.Pool
}

// NewPostgresUsageStore returns a UsageStore backed by the
// plan_subscription_usages table.
func NewPostgresUsageStore(pool *pgxpool.Pool) UsageStore {
	return &pgUsageStore{pool: pool}
}

func (s *pgUsageStore) Get(ctx context.Context, subscriptionID uuid.UUID, featureCode string) (*Usage, error) {
	usage := Usage{SubscriptionID: subscriptionID, FeatureCode: featureCode}
	err := s.pool.QueryRow(ctx, `
		SELECT used FROM plan_subscription_usages
		WHERE subscription_id = $1 AND feature_code = $2`,
		subscriptionID, featureCode,
	).Scan(&usage.Used)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUsageNotFound
		}
		return nil, err
	}
	return &usage, nil
}

func (s *pgUsageStore) Save(ctx context.Context, usage *Usage) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO plan_subscription_usages (subscription_id, feature_code, used)
		VALUES ($1, $2, $3)
		ON CONFLICT (subscription_id, feature_code) DO UPDATE SET used = EXCLUDED.used`,
		usage.SubscriptionID, usage.FeatureCode, usage.Used,
	)
	return err
}

func (s *pgUsageStore) DeleteForSubscription(ctx context.Context, subscriptionID uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM plan_subscription_usages WHERE subscription_id = $1`, subscriptionID)
	return err
}
