package store

import (
	"database/sql"
	"fmt"

	"github.com/HaloHealthAfrica/optionstratv2-sub001/types"
)

// OrderStore persists broker orders. Status transitions are guarded with
// a current-status precondition so a terminal order can never be mutated,
// even by racing workers.
type OrderStore struct {
	db *sql.DB
}

func (s *OrderStore) initTables() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS orders (
			id TEXT PRIMARY KEY,
			signal_id TEXT DEFAULT '',
			broker_order_id TEXT DEFAULT '',
			mode TEXT NOT NULL,
			underlying TEXT NOT NULL DEFAULT '',
			symbol TEXT NOT NULL,
			strike REAL DEFAULT 0,
			expiration TEXT DEFAULT '',
			option_type TEXT DEFAULT '',
			side TEXT NOT NULL,
			quantity INTEGER NOT NULL,
			order_type TEXT NOT NULL,
			tif TEXT NOT NULL DEFAULT 'DAY',
			limit_price REAL DEFAULT 0,
			stop_price REAL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'PENDING',
			filled_quantity INTEGER DEFAULT 0,
			avg_fill_price REAL DEFAULT 0,
			rejection_reason TEXT DEFAULT '',
			submitted_at DATETIME,
			filled_at DATETIME,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("store: create orders table: %w", err)
	}

	_, _ = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status)`)
	_, _ = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_orders_signal ON orders(signal_id)`)
	return nil
}

// Insert persists a new order.
func (s *OrderStore) Insert(o *types.Order) error {
	decoded, err := types.DecodeOCC(o.Symbol)
	underlying, strike, expiration, optType := "", 0.0, "", ""
	if err == nil {
		underlying = decoded.Underlying
		strike = decoded.Strike
		expiration = decoded.Expiration.Format("2006-01-02")
		optType = string(decoded.OptionType)
	}

	_, err = s.db.Exec(`
		INSERT INTO orders (id, signal_id, broker_order_id, mode, underlying, symbol, strike,
			expiration, option_type, side, quantity, order_type, tif, limit_price, stop_price,
			status, filled_quantity, avg_fill_price, rejection_reason, submitted_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	`, o.ID, o.SignalID, o.BrokerOrderID, o.Mode, underlying, o.Symbol, strike, expiration, optType,
		o.Side, o.Quantity, o.OrderType, o.TIF, o.LimitPrice, o.StopPrice, o.Status,
		o.FilledQuantity, o.AvgFillPrice, o.RejectionReason, o.SubmittedAt)
	if err != nil {
		return fmt.Errorf("store: insert order %s: %w", o.ID, err)
	}
	return nil
}

// TransitionStatus moves an order from expected to next; the conditional
// WHERE keeps the transition monotone under concurrency. Returns false if
// the precondition no longer held.
func (s *OrderStore) TransitionStatus(id string, expected, next types.OrderStatus) (bool, error) {
	if expected.IsTerminal() {
		return false, fmt.Errorf("store: order %s already terminal at %s", id, expected)
	}
	res, err := s.db.Exec(`
		UPDATE orders SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND status = ?
	`, next, id, expected)
	if err != nil {
		return false, fmt.Errorf("store: transition order %s to %s: %w", id, next, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// MarkFilled records a fill outcome. Guarded against terminal states.
func (s *OrderStore) MarkFilled(id string, status types.OrderStatus, filledQty int, avgPrice float64) error {
	res, err := s.db.Exec(`
		UPDATE orders
		SET status = ?, filled_quantity = ?, avg_fill_price = ?, filled_at = CURRENT_TIMESTAMP,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status NOT IN ('FILLED', 'REJECTED', 'CANCELLED', 'EXPIRED')
	`, status, filledQty, avgPrice, id)
	if err != nil {
		return fmt.Errorf("store: mark order %s filled: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store: order %s is terminal, fill not applied", id)
	}
	return nil
}

// SetBrokerOrderID records the broker's id after submission.
func (s *OrderStore) SetBrokerOrderID(id, brokerOrderID string) error {
	_, err := s.db.Exec(`
		UPDATE orders SET broker_order_id = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, brokerOrderID, id)
	if err != nil {
		return fmt.Errorf("store: set broker order id for %s: %w", id, err)
	}
	return nil
}

// Outstanding returns orders awaiting fills at a live broker.
func (s *OrderStore) Outstanding() ([]*types.Order, error) {
	rows, err := s.db.Query(`
		SELECT id, signal_id, broker_order_id, mode, symbol, side, quantity, order_type, tif,
			limit_price, stop_price, status, filled_quantity, avg_fill_price, rejection_reason
		FROM orders
		WHERE status IN ('SUBMITTED', 'ACCEPTED', 'PARTIAL_FILL') AND broker_order_id != ''
	`)
	if err != nil {
		return nil, fmt.Errorf("store: query outstanding orders: %w", err)
	}
	defer rows.Close()

	return scanOrders(rows)
}

// Get fetches one order.
func (s *OrderStore) Get(id string) (*types.Order, error) {
	row := s.db.QueryRow(`
		SELECT id, signal_id, broker_order_id, mode, symbol, side, quantity, order_type, tif,
			limit_price, stop_price, status, filled_quantity, avg_fill_price, rejection_reason
		FROM orders WHERE id = ?
	`, id)

	o := &types.Order{}
	err := row.Scan(&o.ID, &o.SignalID, &o.BrokerOrderID, &o.Mode, &o.Symbol, &o.Side, &o.Quantity,
		&o.OrderType, &o.TIF, &o.LimitPrice, &o.StopPrice, &o.Status, &o.FilledQuantity,
		&o.AvgFillPrice, &o.RejectionReason)
	if err != nil {
		return nil, fmt.Errorf("store: get order %s: %w", id, err)
	}
	return o, nil
}

// List returns the newest orders up to limit.
func (s *OrderStore) List(limit int) ([]*types.Order, error) {
	rows, err := s.db.Query(`
		SELECT id, signal_id, broker_order_id, mode, symbol, side, quantity, order_type, tif,
			limit_price, stop_price, status, filled_quantity, avg_fill_price, rejection_reason
		FROM orders ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list orders: %w", err)
	}
	defer rows.Close()

	return scanOrders(rows)
}

func scanOrders(rows *sql.Rows) ([]*types.Order, error) {
	var out []*types.Order
	for rows.Next() {
		o := &types.Order{}
		if err := rows.Scan(&o.ID, &o.SignalID, &o.BrokerOrderID, &o.Mode, &o.Symbol, &o.Side,
			&o.Quantity, &o.OrderType, &o.TIF, &o.LimitPrice, &o.StopPrice, &o.Status,
			&o.FilledQuantity, &o.AvgFillPrice, &o.RejectionReason); err != nil {
			return nil, fmt.Errorf("store: scan order row: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
