package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/HaloHealthAfrica/optionstratv2-sub001/types"
)

// PositionStore persists option positions across refresh cycles and exits.
type PositionStore struct {
	db *sql.DB
}

func (s *PositionStore) initTables() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS positions (
			id TEXT PRIMARY KEY,
			symbol TEXT NOT NULL,
			underlying TEXT NOT NULL,
			strike REAL NOT NULL,
			expiration TEXT NOT NULL,
			option_type TEXT NOT NULL,
			quantity INTEGER NOT NULL,
			avg_open_price REAL NOT NULL,
			total_cost REAL DEFAULT 0,
			current_price REAL DEFAULT 0,
			market_value REAL DEFAULT 0,
			unrealized_pnl REAL DEFAULT 0,
			unrealized_pnl_percent REAL DEFAULT 0,
			realized_pnl REAL DEFAULT 0,
			delta REAL DEFAULT 0,
			gamma REAL DEFAULT 0,
			theta REAL DEFAULT 0,
			vega REAL DEFAULT 0,
			iv REAL DEFAULT 0,
			high_water_mark REAL DEFAULT 0,
			partial_exits_taken INTEGER DEFAULT 0,
			entry_market_regime TEXT DEFAULT '',
			is_closed BOOLEAN DEFAULT 0,
			opened_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			closed_at DATETIME,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("store: create positions table: %w", err)
	}

	_, _ = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_positions_open ON positions(is_closed)`)
	_, _ = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_positions_underlying ON positions(underlying)`)
	return nil
}

// Insert persists a newly opened position.
func (s *PositionStore) Insert(p *types.Position) error {
	_, err := s.db.Exec(`
		INSERT INTO positions (id, symbol, underlying, strike, expiration, option_type, quantity,
			avg_open_price, total_cost, current_price, unrealized_pnl, realized_pnl,
			high_water_mark, partial_exits_taken, entry_market_regime, is_closed, opened_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, CURRENT_TIMESTAMP)
	`, p.ID, p.Symbol, p.Underlying, p.Strike, p.Expiration, p.OptionType, p.Quantity,
		p.AvgOpenPrice, p.TotalCost, p.CurrentPrice, p.UnrealizedPnl, p.RealizedPnl,
		p.HighWaterMark, p.PartialExitsTaken, p.EntryMarketRegime, p.OpenedAt)
	if err != nil {
		return fmt.Errorf("store: insert position %s: %w", p.ID, err)
	}
	return nil
}

// Open returns every open position.
func (s *PositionStore) Open() ([]*types.Position, error) {
	rows, err := s.db.Query(positionSelect + ` WHERE is_closed = 0 ORDER BY opened_at`)
	if err != nil {
		return nil, fmt.Errorf("store: query open positions: %w", err)
	}
	defer rows.Close()
	return scanPositions(rows)
}

// List returns the newest positions up to limit, open and closed.
func (s *PositionStore) List(limit int) ([]*types.Position, error) {
	rows, err := s.db.Query(positionSelect+` ORDER BY opened_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list positions: %w", err)
	}
	defer rows.Close()
	return scanPositions(rows)
}

// Get fetches one position.
func (s *PositionStore) Get(id string) (*types.Position, error) {
	rows, err := s.db.Query(positionSelect+` WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("store: get position %s: %w", id, err)
	}
	defer rows.Close()

	positions, err := scanPositions(rows)
	if err != nil {
		return nil, err
	}
	if len(positions) == 0 {
		return nil, fmt.Errorf("store: position %s not found", id)
	}
	return positions[0], nil
}

// UpdateRefresh writes one refresh cycle's market snapshot. The
// high-water mark only moves up: the MAX in SQL keeps it monotone even
// if two refreshes race.
func (s *PositionStore) UpdateRefresh(p *types.Position) error {
	_, err := s.db.Exec(`
		UPDATE positions
		SET current_price = ?, market_value = ?, unrealized_pnl = ?, unrealized_pnl_percent = ?,
			delta = ?, gamma = ?, theta = ?, vega = ?, iv = ?,
			high_water_mark = MAX(high_water_mark, ?),
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND is_closed = 0
	`, p.CurrentPrice, p.MarketValue, p.UnrealizedPnl, p.UnrealizedPnlPercent,
		p.Greeks.Delta, p.Greeks.Gamma, p.Greeks.Theta, p.Greeks.Vega, p.Greeks.IV,
		p.UnrealizedPnl, p.ID)
	if err != nil {
		return fmt.Errorf("store: refresh position %s: %w", p.ID, err)
	}
	return nil
}

// ApplyPartialExit reduces quantity and accumulates realized P&L after a
// partial closing fill.
func (s *PositionStore) ApplyPartialExit(id string, closedQty int, realizedDelta float64) error {
	res, err := s.db.Exec(`
		UPDATE positions
		SET quantity = quantity - ?, realized_pnl = realized_pnl + ?,
			partial_exits_taken = partial_exits_taken + 1,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND is_closed = 0 AND ABS(quantity) > ?
	`, closedQty, realizedDelta, id, closedQty)
	if err != nil {
		return fmt.Errorf("store: partial exit on position %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Closing the full remaining quantity is a full close, not a partial.
		return s.Close(id, realizedDelta, time.Now())
	}
	return nil
}

// Close marks a position fully closed with its final realized P&L delta.
func (s *PositionStore) Close(id string, realizedDelta float64, closedAt time.Time) error {
	_, err := s.db.Exec(`
		UPDATE positions
		SET quantity = 0, realized_pnl = realized_pnl + ?, is_closed = 1, closed_at = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND is_closed = 0
	`, realizedDelta, closedAt, id)
	if err != nil {
		return fmt.Errorf("store: close position %s: %w", id, err)
	}
	return nil
}

const positionSelect = `
	SELECT id, symbol, underlying, strike, expiration, option_type, quantity, avg_open_price,
		total_cost, current_price, market_value, unrealized_pnl, unrealized_pnl_percent,
		realized_pnl, delta, gamma, theta, vega, iv, high_water_mark, partial_exits_taken,
		entry_market_regime, is_closed, opened_at, updated_at
	FROM positions`

func scanPositions(rows *sql.Rows) ([]*types.Position, error) {
	var out []*types.Position
	for rows.Next() {
		p := &types.Position{}
		if err := rows.Scan(&p.ID, &p.Symbol, &p.Underlying, &p.Strike, &p.Expiration,
			&p.OptionType, &p.Quantity, &p.AvgOpenPrice, &p.TotalCost, &p.CurrentPrice,
			&p.MarketValue, &p.UnrealizedPnl, &p.UnrealizedPnlPercent, &p.RealizedPnl,
			&p.Greeks.Delta, &p.Greeks.Gamma, &p.Greeks.Theta, &p.Greeks.Vega, &p.Greeks.IV,
			&p.HighWaterMark, &p.PartialExitsTaken, &p.EntryMarketRegime, &p.IsClosed,
			&p.OpenedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("store: scan position row: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
