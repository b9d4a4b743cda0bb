package store

import "fmt"

// Stats is the aggregate snapshot behind the stats endpoint.
type Stats struct {
	TotalSignals     int     `json:"total_signals"`
	CompletedSignals int     `json:"completed_signals"`
	RejectedSignals  int     `json:"rejected_signals"`
	TotalOrders      int     `json:"total_orders"`
	FilledOrders     int     `json:"filled_orders"`
	TotalTrades      int     `json:"total_trades"`
	OpenPositions    int     `json:"open_positions"`
	ClosedPositions  int     `json:"closed_positions"`
	RealizedPnl      float64 `json:"realized_pnl"`
	WinningTrades    int     `json:"winning_trades"`
	LosingTrades     int     `json:"losing_trades"`
	WinRate          float64 `json:"win_rate"`
}

// Stats aggregates counters across the persisted tables.
func (s *Store) Stats() (*Stats, error) {
	st := &Stats{}

	rows := []struct {
		query string
		dest  *int
	}{
		{`SELECT COUNT(1) FROM signals`, &st.TotalSignals},
		{`SELECT COUNT(1) FROM signals WHERE status = 'COMPLETED'`, &st.CompletedSignals},
		{`SELECT COUNT(1) FROM signals WHERE status = 'REJECTED'`, &st.RejectedSignals},
		{`SELECT COUNT(1) FROM orders`, &st.TotalOrders},
		{`SELECT COUNT(1) FROM orders WHERE status = 'FILLED'`, &st.FilledOrders},
		{`SELECT COUNT(1) FROM trades`, &st.TotalTrades},
		{`SELECT COUNT(1) FROM positions WHERE is_closed = 0`, &st.OpenPositions},
		{`SELECT COUNT(1) FROM positions WHERE is_closed = 1`, &st.ClosedPositions},
		{`SELECT COUNT(1) FROM positions WHERE is_closed = 1 AND realized_pnl > 0`, &st.WinningTrades},
		{`SELECT COUNT(1) FROM positions WHERE is_closed = 1 AND realized_pnl < 0`, &st.LosingTrades},
	}
	for _, r := range rows {
		if err := s.db.QueryRow(r.query).Scan(r.dest); err != nil {
			return nil, fmt.Errorf("store: stats query: %w", err)
		}
	}

	if err := s.db.QueryRow(`
		SELECT COALESCE(SUM(realized_pnl), 0) FROM positions WHERE is_closed = 1
	`).Scan(&st.RealizedPnl); err != nil {
		return nil, fmt.Errorf("store: stats realized pnl: %w", err)
	}

	if st.ClosedPositions > 0 {
		st.WinRate = float64(st.WinningTrades) / float64(st.ClosedPositions)
	}
	return st, nil
}
