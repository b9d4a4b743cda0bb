package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/HaloHealthAfrica/optionstratv2-sub001/types"
)

// SignalStore persists signals and serves the confluence engine's recent
// history lookups.
type SignalStore struct {
	db *sql.DB
}

func (s *SignalStore) initTables() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS signals (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			signal_hash TEXT NOT NULL,
			raw_payload TEXT NOT NULL DEFAULT '{}',
			action TEXT NOT NULL,
			direction TEXT NOT NULL DEFAULT 'NEUTRAL',
			underlying TEXT NOT NULL,
			strike REAL NOT NULL,
			expiration TEXT NOT NULL,
			option_type TEXT NOT NULL,
			quantity INTEGER NOT NULL,
			strategy_type TEXT DEFAULT '',
			status TEXT NOT NULL DEFAULT 'PENDING',
			validation_result TEXT DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("store: create signals table: %w", err)
	}

	_, _ = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_signals_underlying ON signals(underlying, created_at)`)
	_, _ = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_signals_hash ON signals(signal_hash)`)
	return nil
}

// Insert persists a freshly normalized signal.
func (s *SignalStore) Insert(sig *types.Signal) error {
	payload, err := json.Marshal(sig.RawPayload)
	if err != nil {
		payload = []byte("{}")
	}

	_, err = s.db.Exec(`
		INSERT INTO signals (id, source, signal_hash, raw_payload, action, direction, underlying,
			strike, expiration, option_type, quantity, strategy_type, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, sig.ID, sig.Source, sig.Fingerprint, string(payload), sig.Action, sig.Direction, sig.Symbol,
		sig.Strike, sig.Expiration, sig.OptionType, sig.Quantity, sig.Strategy, sig.Status,
		sig.CreatedAt, sig.UpdatedAt)
	if err != nil {
		return fmt.Errorf("store: insert signal %s: %w", sig.ID, err)
	}
	return nil
}

// UpdateStatus sets a signal's lifecycle status and validation note.
func (s *SignalStore) UpdateStatus(id string, status types.SignalStatus, validationResult string) error {
	_, err := s.db.Exec(`
		UPDATE signals SET status = ?, validation_result = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, status, validationResult, id)
	if err != nil {
		return fmt.Errorf("store: update signal %s status: %w", id, err)
	}
	return nil
}

// RecentCompletedSignals returns COMPLETED signals for symbol newer than
// lookback, most recent first.
func (s *SignalStore) RecentCompletedSignals(symbol string, lookback time.Duration) ([]*types.Signal, error) {
	cutoff := time.Now().Add(-lookback)
	rows, err := s.db.Query(`
		SELECT id, source, signal_hash, action, direction, underlying, strike, expiration,
			option_type, quantity, status, created_at
		FROM signals
		WHERE underlying = ? AND status = ? AND created_at >= ?
		ORDER BY created_at DESC
	`, symbol, types.SignalCompleted, cutoff)
	if err != nil {
		return nil, fmt.Errorf("store: query recent signals for %s: %w", symbol, err)
	}
	defer rows.Close()

	return scanSignals(rows)
}

// List returns the newest signals up to limit, for the read-only API.
func (s *SignalStore) List(limit int) ([]*types.Signal, error) {
	rows, err := s.db.Query(`
		SELECT id, source, signal_hash, action, direction, underlying, strike, expiration,
			option_type, quantity, status, created_at
		FROM signals ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list signals: %w", err)
	}
	defer rows.Close()

	return scanSignals(rows)
}

func scanSignals(rows *sql.Rows) ([]*types.Signal, error) {
	var out []*types.Signal
	for rows.Next() {
		sig := &types.Signal{}
		if err := rows.Scan(&sig.ID, &sig.Source, &sig.Fingerprint, &sig.Action, &sig.Direction,
			&sig.Symbol, &sig.Strike, &sig.Expiration, &sig.OptionType, &sig.Quantity,
			&sig.Status, &sig.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan signal row: %w", err)
		}
		out = append(out, sig)
	}
	return out, rows.Err()
}
