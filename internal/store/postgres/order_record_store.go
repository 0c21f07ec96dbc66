package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

// OrderRecordStore implements domain.OrderRecordStore on the order_records
// table. Decimals travel as text and are cast to NUMERIC in SQL.
type OrderRecordStore struct {
	pool *pgxpool.Pool
}

// NewOrderRecordStore creates an OrderRecordStore.
func NewOrderRecordStore(pool *pgxpool.Pool) *OrderRecordStore {
	return &OrderRecordStore{pool: pool}
}

const recordColumns = `order_id, handler, platform, market, event_id, event, line_id,
	price::text, reference_price::text, max_stake::text, stake::text,
	retry_count, remaining_sec, ticket_id, status, command, created_at, updated_at`

// Upsert inserts rec or updates the stored row. A row that already reached a
// terminal status is left untouched.
func (s *OrderRecordStore) Upsert(ctx context.Context, rec domain.OrderRecord) error {
	market, err := json.Marshal(rec.Market)
	if err != nil {
		return fmt.Errorf("postgres: encode market %s: %w", rec.OrderID, err)
	}
	event, err := json.Marshal(rec.Event)
	if err != nil {
		return fmt.Errorf("postgres: encode event %s: %w", rec.OrderID, err)
	}
	var command []byte
	if len(rec.Command) > 0 {
		command = rec.Command
	}
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}

	const stmt = `
		INSERT INTO order_records (
			order_id, handler, platform, market, market_label, event_id, line_id,
			price, reference_price, max_stake, stake,
			retry_count, remaining_sec, ticket_id, status, command, created_at, updated_at, event
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8::numeric, $9::numeric, $10::numeric, $11::numeric,
			$12, $13, $14, $15, $16, $17, NOW(), $18
		)
		ON CONFLICT (order_id) DO UPDATE SET
			platform        = EXCLUDED.platform,
			market          = EXCLUDED.market,
			market_label    = EXCLUDED.market_label,
			event_id        = EXCLUDED.event_id,
			event           = EXCLUDED.event,
			line_id         = EXCLUDED.line_id,
			price           = EXCLUDED.price,
			reference_price = EXCLUDED.reference_price,
			max_stake       = EXCLUDED.max_stake,
			stake           = EXCLUDED.stake,
			retry_count     = EXCLUDED.retry_count,
			remaining_sec   = EXCLUDED.remaining_sec,
			ticket_id       = EXCLUDED.ticket_id,
			status          = EXCLUDED.status,
			command         = COALESCE(EXCLUDED.command, order_records.command),
			updated_at      = NOW()
		WHERE order_records.status = 'open'`

	_, err = s.pool.Exec(ctx, stmt,
		rec.OrderID, rec.Handler, rec.Platform, market, rec.Market.String(), rec.EventID, rec.LineID,
		rec.Price.String(), rec.ReferencePrice.String(), rec.MaxStake.String(), rec.Stake.String(),
		rec.RetryCount, rec.RemainingSec, rec.TicketID, string(rec.Status), command, created, event,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert order record %s: %w", rec.OrderID, err)
	}
	return nil
}

// GetByID returns the record or domain.ErrRecordNotFound.
func (s *OrderRecordStore) GetByID(ctx context.Context, orderID string) (domain.OrderRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+recordColumns+` FROM order_records WHERE order_id = $1`, orderID)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.OrderRecord{}, fmt.Errorf("postgres: order record %s: %w", orderID, domain.ErrRecordNotFound)
	}
	if err != nil {
		return domain.OrderRecord{}, fmt.Errorf("postgres: get order record %s: %w", orderID, err)
	}
	return rec, nil
}

// ListByHandler returns a handler's records, newest first.
func (s *OrderRecordStore) ListByHandler(ctx context.Context, handler string, opts domain.ListOpts) ([]domain.OrderRecord, error) {
	q := newQuery(`SELECT `+recordColumns+` FROM order_records WHERE handler = $1`, handler)
	if opts.Since != nil {
		q.where("created_at >= ", *opts.Since)
	}
	if opts.Until != nil {
		q.where("created_at <= ", *opts.Until)
	}
	q.order("created_at DESC")
	q.page(opts)

	rows, err := s.pool.Query(ctx, q.sql, q.args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list records %s: %w", handler, err)
	}
	return collectRecords(rows)
}

// ListFinalBefore returns up to limit terminal records last updated before
// the cutoff, oldest first.
func (s *OrderRecordStore) ListFinalBefore(ctx context.Context, before time.Time, limit int) ([]domain.OrderRecord, error) {
	q := newQuery(`SELECT `+recordColumns+` FROM order_records WHERE status <> 'open'`)
	q.where("updated_at < ", before)
	q.order("updated_at")
	q.page(domain.ListOpts{Limit: limit})

	rows, err := s.pool.Query(ctx, q.sql, q.args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list final records: %w", err)
	}
	return collectRecords(rows)
}

// DeleteFinal removes the listed terminal records.
func (s *OrderRecordStore) DeleteFinal(ctx context.Context, orderIDs []string) (int64, error) {
	if len(orderIDs) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM order_records WHERE order_id = ANY($1) AND status <> 'open'`, orderIDs)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete final records: %w", err)
	}
	return tag.RowsAffected(), nil
}

func collectRecords(rows pgx.Rows) ([]domain.OrderRecord, error) {
	defer rows.Close()
	var out []domain.OrderRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan order record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: order record rows: %w", err)
	}
	return out, nil
}

func scanRecord(row pgx.Row) (domain.OrderRecord, error) {
	var (
		rec                         domain.OrderRecord
		market, event, command      []byte
		price, ref, maxStake, stake string
		status                      string
	)
	err := row.Scan(
		&rec.OrderID, &rec.Handler, &rec.Platform, &market, &rec.EventID, &event, &rec.LineID,
		&price, &ref, &maxStake, &stake,
		&rec.RetryCount, &rec.RemainingSec, &rec.TicketID, &status, &command,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return domain.OrderRecord{}, err
	}
	if err := json.Unmarshal(market, &rec.Market); err != nil {
		return domain.OrderRecord{}, fmt.Errorf("decode market %s: %w", rec.OrderID, err)
	}
	if len(event) > 0 {
		if err := json.Unmarshal(event, &rec.Event); err != nil {
			return domain.OrderRecord{}, fmt.Errorf("decode event %s: %w", rec.OrderID, err)
		}
	}
	for _, f := range []struct {
		dst *decimal.Decimal
		src string
	}{{&rec.Price, price}, {&rec.ReferencePrice, ref}, {&rec.MaxStake, maxStake}, {&rec.Stake, stake}} {
		if *f.dst, err = decimal.NewFromString(f.src); err != nil {
			return domain.OrderRecord{}, fmt.Errorf("decode decimal %q: %w", f.src, err)
		}
	}
	rec.Status = domain.RecordStatus(status)
	if len(command) > 0 {
		rec.Command = json.RawMessage(command)
	}
	return rec, nil
}

var _ domain.OrderRecordStore = (*OrderRecordStore)(nil)
