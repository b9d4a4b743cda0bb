package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/HaloHealthAfrica/optionstratv2-sub001/decision"
)

// DecisionStore keeps an audit trail of orchestrator decisions.
type DecisionStore struct {
	db *sql.DB
}

func (s *DecisionStore) initTables() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS decisions (
			id TEXT PRIMARY KEY,
			symbol TEXT NOT NULL,
			action TEXT NOT NULL,
			reject_reason TEXT DEFAULT '',
			quantity INTEGER DEFAULT 0,
			confidence REAL DEFAULT 0,
			breakdown TEXT DEFAULT '{}',
			rules_triggered TEXT DEFAULT '[]',
			decided_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("store: create decisions table: %w", err)
	}
	return nil
}

// RecordDecision persists one orchestrator verdict.
func (s *DecisionStore) RecordDecision(d *decision.IntegratedDecision) error {
	breakdown, err := json.Marshal(d.Breakdown)
	if err != nil {
		breakdown = []byte("{}")
	}
	rules, err := json.Marshal(d.RulesTriggered)
	if err != nil {
		rules = []byte("[]")
	}

	_, err = s.db.Exec(`
		INSERT INTO decisions (id, symbol, action, reject_reason, quantity, confidence,
			breakdown, rules_triggered, decided_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, d.DecisionID, d.Symbol, d.Action, d.RejectReason, d.Quantity, d.Confidence,
		string(breakdown), string(rules), d.DecidedAt)
	if err != nil {
		return fmt.Errorf("store: record decision %s: %w", d.DecisionID, err)
	}
	return nil
}

// DecisionSummary is the read-model row for the analytics endpoint.
type DecisionSummary struct {
	ID           string    `json:"id"`
	Symbol       string    `json:"symbol"`
	Action       string    `json:"action"`
	RejectReason string    `json:"reject_reason,omitempty"`
	Quantity     int       `json:"quantity"`
	Confidence   float64   `json:"confidence"`
	DecidedAt    time.Time `json:"decided_at"`
}

// List returns the newest decisions up to limit.
func (s *DecisionStore) List(limit int) ([]DecisionSummary, error) {
	rows, err := s.db.Query(`
		SELECT id, symbol, action, reject_reason, quantity, confidence, decided_at
		FROM decisions ORDER BY decided_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list decisions: %w", err)
	}
	defer rows.Close()

	var out []DecisionSummary
	for rows.Next() {
		var d DecisionSummary
		if err := rows.Scan(&d.ID, &d.Symbol, &d.Action, &d.RejectReason, &d.Quantity,
			&d.Confidence, &d.DecidedAt); err != nil {
			return nil, fmt.Errorf("store: scan decision row: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
