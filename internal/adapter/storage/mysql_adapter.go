package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tantovale/marketplace/internal/core/domain"
	"github.com/tantovale/marketplace/internal/port"
)

const orderColumns = `id, item_id, buyer_id, seller_id, amount_cents, currency, phase, created_at, phase_changed_at, updated_at`

const proposalColumns = `id, item_id, proposer_id, seller_id, price_cents, currency, message, status, created_at, decided_at`

type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertOrder(ctx context.Context, e execer, order domain.Order) error {
	_, err := e.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID, order.ItemID, order.BuyerID, order.SellerID, order.AmountCents, order.Currency,
		string(order.Phase), order.CreatedAt, order.PhaseChangedAt, order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) CreateOrder(ctx context.Context, order domain.Order) error {
	return insertOrder(ctx, m.db, order)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var o domain.Order
	var phase string
	err := row.Scan(&o.ID, &o.ItemID, &o.BuyerID, &o.SellerID, &o.AmountCents, &o.Currency,
		&phase, &o.CreatedAt, &o.PhaseChangedAt, &o.UpdatedAt)
	if err != nil {
		return o, err
	}
	// rows are written through the tracker, so an unknown value is corruption
	p, err := domain.ParsePhase(phase)
	if err != nil {
		return o, fmt.Errorf("%w: order %s: phase %q", port.ErrCorruptRow, o.ID, phase)
	}
	o.Phase = p
	return o, nil
}

func (m *MySQLAdapter) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	o, err := scanOrder(m.db.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders WHERE id = ?`, orderID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, port.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}
	return &o, nil
}

func (m *MySQLAdapter) ListOrdersByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders WHERE buyer_id = ? OR seller_id = ?
		ORDER BY created_at DESC`, userID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	return orders, nil
}

// UpdateOrderPhase is the compare-and-swap the tracker relies on: the row is
// only touched while its phase is still from.
func (m *MySQLAdapter) UpdateOrderPhase(ctx context.Context, orderID string, from, to domain.Phase, at time.Time) error {
	result, err := m.db.ExecContext(ctx, `
		UPDATE orders
		SET phase = ?, phase_changed_at = ?, updated_at = ?
		WHERE id = ? AND phase = ?`,
		string(to), at, at, orderID, string(from),
	)
	if err != nil {
		return fmt.Errorf("update order phase: %w", err)
	}
	return m.checkSwapped(ctx, result, "orders", orderID)
}

func (m *MySQLAdapter) UpdateOrderAmount(ctx context.Context, orderID string, phase domain.Phase, amountCents int64, at time.Time) error {
	result, err := m.db.ExecContext(ctx, `
		UPDATE orders
		SET amount_cents = ?, updated_at = ?
		WHERE id = ? AND phase = ?`,
		amountCents, at, orderID, string(phase),
	)
	if err != nil {
		return fmt.Errorf("update order amount: %w", err)
	}
	return m.checkSwapped(ctx, result, "orders", orderID)
}

// checkSwapped tells a missing row apart from a stale read when an UPDATE
// matched nothing.
func (m *MySQLAdapter) checkSwapped(ctx context.Context, result sql.Result, table, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows > 0 {
		return nil
	}

	var exists int
	err = m.db.QueryRowContext(ctx, `SELECT 1 FROM `+table+` WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return port.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("check %s: %w", table, err)
	}
	return port.ErrPhaseConflict
}

func (m *MySQLAdapter) CreateProposal(ctx context.Context, p domain.Proposal) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO order_proposals (`+proposalColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.ItemID, p.ProposerID, p.SellerID, p.PriceCents, p.Currency, p.Message,
		string(p.Status), p.CreatedAt, p.DecidedAt,
	)
	if err != nil {
		return fmt.Errorf("insert proposal: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) GetProposal(ctx context.Context, proposalID string) (*domain.Proposal, error) {
	var p domain.Proposal
	var status string
	var decidedAt sql.NullTime

	err := m.db.QueryRowContext(ctx, `
		SELECT `+proposalColumns+`
		FROM order_proposals WHERE id = ?`, proposalID,
	).Scan(&p.ID, &p.ItemID, &p.ProposerID, &p.SellerID, &p.PriceCents, &p.Currency, &p.Message,
		&status, &p.CreatedAt, &decidedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, port.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query proposal: %w", err)
	}

	p.Status, err = domain.ParseProposalStatus(status)
	if err != nil {
		return nil, fmt.Errorf("%w: proposal %s: status %q", port.ErrCorruptRow, p.ID, status)
	}
	if decidedAt.Valid {
		t := decidedAt.Time
		p.DecidedAt = &t
	}
	return &p, nil
}

func decideProposal(ctx context.Context, e execer, proposalID string, to domain.ProposalStatus, at time.Time) (sql.Result, error) {
	result, err := e.ExecContext(ctx, `
		UPDATE order_proposals
		SET status = ?, decided_at = ?
		WHERE id = ? AND status = ?`,
		string(to), at, proposalID, string(domain.ProposalPending),
	)
	if err != nil {
		return nil, fmt.Errorf("update proposal: %w", err)
	}
	return result, nil
}

func (m *MySQLAdapter) DecideProposal(ctx context.Context, proposalID string, to domain.ProposalStatus, at time.Time) error {
	result, err := decideProposal(ctx, m.db, proposalID, to, at)
	if err != nil {
		return err
	}
	return m.checkSwapped(ctx, result, "order_proposals", proposalID)
}

func (m *MySQLAdapter) AcceptProposal(ctx context.Context, proposalID string, at time.Time, order domain.Order) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := decideProposal(ctx, tx, proposalID, domain.ProposalAccepted, at)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		tx.Rollback()
		return m.checkSwapped(ctx, result, "order_proposals", proposalID)
	}

	if err := insertOrder(ctx, tx, order); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
