// Package storage is the persisted order store. It is the single source
// of truth for order status and claimants; every claim is decided here
// by a conditional update, never by in-memory state.
package storage

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"venue-system/internal/config"
	"venue-system/internal/domain"
)

//go:embed schema.sql
var schema string

const orderCols = `id, customer_id, customer_name, table_number, total_amount, status,
	kitchen_claimant, floor_claimant,
	created_at, kitchen_claimed_at, ready_at, floor_claimed_at, delivered_at`

// Connect opens a pgx pool, retrying while the database comes up.
func Connect(ctx context.Context, cfg config.Database) (*pgxpool.Pool, error) {
	const (
		maxRetries = 10
		retryDelay = 2 * time.Second
		pingTTL    = 5 * time.Second
	)

	var lastErr error
	for i := 1; i <= maxRetries; i++ {
		pool, err := pgxpool.New(ctx, cfg.URL())
		if err == nil {
			pctx, cancel := context.WithTimeout(ctx, pingTTL)
			err = pool.Ping(pctx)
			cancel()
			if err == nil {
				return pool, nil
			}
			pool.Close()
		}
		lastErr = err

		select {
		case <-time.After(retryDelay):
		case <-ctx.Done():
			return nil, fmt.Errorf("db connect canceled: %w", ctx.Err())
		}
	}
	return nil, fmt.Errorf("database unreachable after %d attempts: %w", maxRetries, lastErr)
}

type Store struct {
	pool *pgxpool.Pool
	lg   *zap.Logger
}

func New(pool *pgxpool.Pool, lg *zap.Logger) *Store {
	return &Store{pool: pool, lg: lg}
}

// Ensure applies the schema. All statements are idempotent.
func (s *Store) Ensure(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) Create(ctx context.Context, o *domain.Order) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO orders (id, customer_id, customer_name, table_number, total_amount, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		o.ID, o.CustomerID, o.CustomerName, o.TableNumber, o.TotalAmount, o.Status,
	).Scan(&o.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for i := range o.Items {
		it := &o.Items[i]
		it.OrderID = o.ID
		err = tx.QueryRow(ctx, `
			INSERT INTO order_items (order_id, name, role, quantity, price)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id`,
			o.ID, it.Name, it.Role, it.Quantity, it.Price,
		).Scan(&it.ID)
		if err != nil {
			return fmt.Errorf("insert item: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func (s *Store) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE id = $1`, id)
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	if err := s.loadItems(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Store) ListByStatus(ctx context.Context, status domain.Status) ([]*domain.Order, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+orderCols+` FROM orders WHERE status = $1 ORDER BY created_at`, status)
	if err != nil {
		return nil, fmt.Errorf("list by status: %w", err)
	}
	defer rows.Close()

	var out []*domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list by status: %w", err)
	}
	for _, o := range out {
		if err := s.loadItems(ctx, o); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Transition moves the order to a new status, stamping the matching
// timestamp column, but only when the current status is one of the
// allowed predecessors.
func (s *Store) Transition(ctx context.Context, id string, to domain.Status, from ...domain.Status) (*domain.Order, error) {
	tsCol := ""
	switch to {
	case domain.StatusReady:
		tsCol = ", ready_at = now()"
	case domain.StatusDelivered:
		tsCol = ", delivered_at = now()"
	}

	row := s.pool.QueryRow(ctx, `
		UPDATE orders SET status = $2`+tsCol+`
		WHERE id = $1 AND status = ANY($3)
		RETURNING `+orderCols,
		id, to, statusList(from))
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, s.explainMiss(ctx, id, domain.ErrTransition)
		}
		return nil, fmt.Errorf("transition: %w", err)
	}
	if err := s.loadItems(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// ClaimKitchen atomically takes the kitchen claim and moves the order to
// PREPARING. The WHERE clause is the authoritative race arbiter: a lost
// race matches zero rows and surfaces as ErrAlreadyClaimed.
func (s *Store) ClaimKitchen(ctx context.Context, id, staffID string) (*domain.Order, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE orders
		SET kitchen_claimant = $2, kitchen_claimed_at = now(), status = $3
		WHERE id = $1 AND status = $4
		  AND (kitchen_claimant IS NULL OR kitchen_claimant = $2)
		RETURNING `+orderCols,
		id, staffID, domain.StatusPreparing, domain.StatusPending)
	return s.claimResult(ctx, row, id, staffID, kitchenClaimant, domain.ErrTransition)
}

// AcknowledgeFloor records an advisory floor claimant while the order is
// still in the kitchen flow. No status change, no timestamps.
func (s *Store) AcknowledgeFloor(ctx context.Context, id, staffID string) (*domain.Order, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE orders
		SET floor_claimant = $2
		WHERE id = $1 AND status = ANY($3)
		  AND (floor_claimant IS NULL OR floor_claimant = $2)
		RETURNING `+orderCols,
		id, staffID, statusList([]domain.Status{domain.StatusPending, domain.StatusPreparing}))
	return s.claimResult(ctx, row, id, staffID, floorClaimant, domain.ErrNotAssignable)
}

// ClaimFloor atomically takes the floor claim and moves the order to
// ASSIGNED.
func (s *Store) ClaimFloor(ctx context.Context, id, staffID string) (*domain.Order, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE orders
		SET floor_claimant = $2, floor_claimed_at = now(), status = $3
		WHERE id = $1 AND status = $4
		  AND (floor_claimant IS NULL OR floor_claimant = $2)
		RETURNING `+orderCols,
		id, staffID, domain.StatusAssigned, domain.StatusReady)
	return s.claimResult(ctx, row, id, staffID, floorClaimant, domain.ErrNotAssignable)
}

type claimantCol int

const (
	kitchenClaimant claimantCol = iota
	floorClaimant
)

// claimResult distinguishes the three reasons a conditional claim can
// match zero rows: missing order, claimant held by someone else, or a
// status outside the claimable window.
func (s *Store) claimResult(ctx context.Context, row pgx.Row, id, staffID string, col claimantCol, statusErr error) (*domain.Order, error) {
	o, err := scanOrder(row)
	if err == nil {
		if err := s.loadItems(ctx, o); err != nil {
			return nil, err
		}
		return o, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("claim: %w", err)
	}

	cur, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	claimant := cur.KitchenClaimant
	if col == floorClaimant {
		claimant = cur.FloorClaimant
	}
	if claimant != nil && *claimant != staffID {
		return nil, domain.ErrAlreadyClaimed
	}
	return nil, statusErr
}

func (s *Store) explainMiss(ctx context.Context, id string, statusErr error) error {
	if _, err := s.GetByID(ctx, id); err != nil {
		return err
	}
	return statusErr
}

func (s *Store) loadItems(ctx context.Context, o *domain.Order) error {
	rows, err := s.pool.Query(ctx, `
		SELECT id, order_id, name, role, quantity, price
		FROM order_items WHERE order_id = $1 ORDER BY id`, o.ID)
	if err != nil {
		return fmt.Errorf("load items: %w", err)
	}
	defer rows.Close()

	o.Items = o.Items[:0]
	for rows.Next() {
		var it domain.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.Name, &it.Role, &it.Quantity, &it.Price); err != nil {
			return fmt.Errorf("scan item: %w", err)
		}
		o.Items = append(o.Items, it)
	}
	return rows.Err()
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var o domain.Order
	err := row.Scan(
		&o.ID, &o.CustomerID, &o.CustomerName, &o.TableNumber, &o.TotalAmount, &o.Status,
		&o.KitchenClaimant, &o.FloorClaimant,
		&o.CreatedAt, &o.KitchenClaimedAt, &o.ReadyAt, &o.FloorClaimedAt, &o.DeliveredAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func statusList(ss []domain.Status) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = string(s)
	}
	return out
}
