package store

import (
	"database/sql"
	"fmt"

	"github.com/HaloHealthAfrica/optionstratv2-sub001/types"
)

// TradeStore persists fill records.
type TradeStore struct {
	db *sql.DB
}

func (s *TradeStore) initTables() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS trades (
			id TEXT PRIMARY KEY,
			order_id TEXT NOT NULL,
			broker_trade_id TEXT DEFAULT '',
			execution_price REAL NOT NULL,
			quantity INTEGER NOT NULL,
			commission REAL DEFAULT 0,
			fees REAL DEFAULT 0,
			total_cost REAL DEFAULT 0,
			executed_at DATETIME NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("store: create trades table: %w", err)
	}

	_, _ = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_trades_order ON trades(order_id)`)
	return nil
}

// Insert persists a fill.
func (s *TradeStore) Insert(t *types.Trade) error {
	_, err := s.db.Exec(`
		INSERT INTO trades (id, order_id, broker_trade_id, execution_price, quantity, commission,
			fees, total_cost, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.OrderID, t.BrokerTradeID, t.ExecutionPrice, t.Quantity, t.Commission, t.Fees,
		t.TotalCost, t.ExecutedAt)
	if err != nil {
		return fmt.Errorf("store: insert trade %s: %w", t.ID, err)
	}
	return nil
}

// ExistsForBrokerTrade reports whether a broker trade id was already
// recorded, so fill polling stays idempotent.
func (s *TradeStore) ExistsForBrokerTrade(orderID, brokerTradeID string) (bool, error) {
	var n int
	err := s.db.QueryRow(`
		SELECT COUNT(1) FROM trades WHERE order_id = ? AND broker_trade_id = ?
	`, orderID, brokerTradeID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("store: check trade existence: %w", err)
	}
	return n > 0, nil
}

// ListByOrder returns all fills for one order.
func (s *TradeStore) ListByOrder(orderID string) ([]*types.Trade, error) {
	rows, err := s.db.Query(`
		SELECT id, order_id, broker_trade_id, execution_price, quantity, commission, fees,
			total_cost, executed_at
		FROM trades WHERE order_id = ? ORDER BY executed_at
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("store: list trades for order %s: %w", orderID, err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

// List returns the newest trades up to limit.
func (s *TradeStore) List(limit int) ([]*types.Trade, error) {
	rows, err := s.db.Query(`
		SELECT id, order_id, broker_trade_id, execution_price, quantity, commission, fees,
			total_cost, executed_at
		FROM trades ORDER BY executed_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list trades: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

func scanTrades(rows *sql.Rows) ([]*types.Trade, error) {
	var out []*types.Trade
	for rows.Next() {
		t := &types.Trade{}
		if err := rows.Scan(&t.ID, &t.OrderID, &t.BrokerTradeID, &t.ExecutionPrice, &t.Quantity,
			&t.Commission, &t.Fees, &t.TotalCost, &t.ExecutedAt); err != nil {
			return nil, fmt.Errorf("store: scan trade row: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
