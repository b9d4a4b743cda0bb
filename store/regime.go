package store

import (
	"database/sql"
	"fmt"

	"github.com/HaloHealthAfrica/optionstratv2-sub001/types"
)

// RegimeStore persists regime observations (append-only) and the
// regime-performance table that feeds Kelly sizing.
type RegimeStore struct {
	db *sql.DB
}

func (s *RegimeStore) initTables() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS regime_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ticker TEXT NOT NULL,
			regime TEXT NOT NULL,
			regime_confidence REAL DEFAULT 0,
			consecutive_same_regime INTEGER DEFAULT 0,
			time_in_regime_seconds INTEGER DEFAULT 0,
			last_flip_timestamp DATETIME,
			stability_score REAL DEFAULT 0,
			is_stable BOOLEAN DEFAULT 0,
			checked_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("store: create regime_history table: %w", err)
	}

	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS regime_performance (
			regime TEXT NOT NULL,
			dealer_position TEXT NOT NULL,
			total_trades INTEGER DEFAULT 0,
			winning_trades INTEGER DEFAULT 0,
			losing_trades INTEGER DEFAULT 0,
			average_win REAL DEFAULT 0,
			average_loss REAL DEFAULT 0,
			kelly_fraction REAL DEFAULT 0,
			half_kelly REAL DEFAULT 0,
			PRIMARY KEY (regime, dealer_position)
		)
	`)
	if err != nil {
		return fmt.Errorf("store: create regime_performance table: %w", err)
	}

	_, _ = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_regime_history_ticker ON regime_history(ticker, checked_at)`)
	return nil
}

// AppendRegimeObservation writes one observation; the history is
// append-only so concurrent trackers never contend on updates.
func (s *RegimeStore) AppendRegimeObservation(obs *types.RegimeObservation) error {
	_, err := s.db.Exec(`
		INSERT INTO regime_history (ticker, regime, regime_confidence, consecutive_same_regime,
			time_in_regime_seconds, last_flip_timestamp, stability_score, is_stable, checked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, obs.Ticker, obs.Regime, obs.RegimeConfidence, obs.ConsecutiveSameRegime,
		obs.TimeInRegimeSeconds, obs.LastFlipTimestamp, obs.StabilityScore, obs.IsStable, obs.CheckedAt)
	if err != nil {
		return fmt.Errorf("store: append regime observation for %s: %w", obs.Ticker, err)
	}
	return nil
}

// RecentHistory returns the newest observations for the read-only API.
func (s *RegimeStore) RecentHistory(limit int) ([]*types.RegimeObservation, error) {
	rows, err := s.db.Query(`
		SELECT ticker, regime, regime_confidence, consecutive_same_regime, time_in_regime_seconds,
			last_flip_timestamp, stability_score, is_stable, checked_at
		FROM regime_history ORDER BY checked_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list regime history: %w", err)
	}
	defer rows.Close()

	var out []*types.RegimeObservation
	for rows.Next() {
		obs := &types.RegimeObservation{}
		var lastFlip sql.NullTime
		if err := rows.Scan(&obs.Ticker, &obs.Regime, &obs.RegimeConfidence,
			&obs.ConsecutiveSameRegime, &obs.TimeInRegimeSeconds, &lastFlip,
			&obs.StabilityScore, &obs.IsStable, &obs.CheckedAt); err != nil {
			return nil, fmt.Errorf("store: scan regime history row: %w", err)
		}
		if lastFlip.Valid {
			obs.LastFlipTimestamp = lastFlip.Time
		}
		out = append(out, obs)
	}
	return out, rows.Err()
}

// HalfKelly returns the stored half-Kelly fraction for a regime+dealer
// bucket; ok=false when no performance history exists yet.
func (s *RegimeStore) HalfKelly(regime types.MarketRegime, dealerPosition string) (float64, bool) {
	var halfKelly float64
	err := s.db.QueryRow(`
		SELECT half_kelly FROM regime_performance
		WHERE regime = ? AND dealer_position = ? AND total_trades > 0
	`, regime, dealerPosition).Scan(&halfKelly)
	if err != nil {
		return 0, false
	}
	return halfKelly, true
}

// RecordTradeOutcome folds one closed trade into the performance bucket
// and recomputes the Kelly fraction: W - (1-W)/R with R the win/loss
// ratio, stored alongside its half.
func (s *RegimeStore) RecordTradeOutcome(regime types.MarketRegime, dealerPosition string, pnl float64) error {
	win, loss := 0, 0
	winAmt, lossAmt := 0.0, 0.0
	if pnl >= 0 {
		win = 1
		winAmt = pnl
	} else {
		loss = 1
		lossAmt = -pnl
	}

	_, err := s.db.Exec(`
		INSERT INTO regime_performance (regime, dealer_position, total_trades, winning_trades,
			losing_trades, average_win, average_loss)
		VALUES (?, ?, 1, ?, ?, ?, ?)
		ON CONFLICT (regime, dealer_position) DO UPDATE SET
			total_trades = total_trades + 1,
			winning_trades = winning_trades + excluded.winning_trades,
			losing_trades = losing_trades + excluded.losing_trades,
			average_win = CASE WHEN winning_trades + excluded.winning_trades > 0
				THEN (average_win * winning_trades + excluded.average_win) / (winning_trades + excluded.winning_trades)
				ELSE average_win END,
			average_loss = CASE WHEN losing_trades + excluded.losing_trades > 0
				THEN (average_loss * losing_trades + excluded.average_loss) / (losing_trades + excluded.losing_trades)
				ELSE average_loss END
	`, regime, dealerPosition, win, loss, winAmt, lossAmt)
	if err != nil {
		return fmt.Errorf("store: record trade outcome: %w", err)
	}

	_, err = s.db.Exec(`
		UPDATE regime_performance
		SET kelly_fraction = CASE
				WHEN average_loss > 0 AND total_trades > 0 THEN
					(CAST(winning_trades AS REAL) / total_trades)
					- (1.0 - CAST(winning_trades AS REAL) / total_trades) / (average_win / average_loss)
				ELSE 0 END,
			half_kelly = CASE
				WHEN average_loss > 0 AND total_trades > 0 THEN
					((CAST(winning_trades AS REAL) / total_trades)
					- (1.0 - CAST(winning_trades AS REAL) / total_trades) / (average_win / average_loss)) / 2
				ELSE 0 END
		WHERE regime = ? AND dealer_position = ? AND average_win > 0
	`, regime, dealerPosition)
	if err != nil {
		return fmt.Errorf("store: update kelly fraction: %w", err)
	}
	return nil
}
