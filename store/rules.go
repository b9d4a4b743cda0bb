package store

import (
	"database/sql"
	"fmt"
	"time"
)

// VIXSizingRule is one bucket of the VIX sizing table.
type VIXSizingRule struct {
	VIXMin         float64 `json:"vix_min"`
	VIXMax         float64 `json:"vix_max"`
	SizeMultiplier float64 `json:"size_multiplier"`
	MaxPositions   int     `json:"max_positions"`
}

// RiskLimit is a named portfolio-level cap.
type RiskLimit struct {
	Name    string  `json:"name"`
	Value   float64 `json:"value"`
	Enabled bool    `json:"enabled"`
}

// RiskViolation records a rejected or capped action.
type RiskViolation struct {
	ID         int64     `json:"id"`
	LimitName  string    `json:"limit_name"`
	Detail     string    `json:"detail"`
	OccurredAt time.Time `json:"occurred_at"`
}

// RuleStore persists the VIX sizing rules and risk limits/violations.
type RuleStore struct {
	db *sql.DB
}

func (s *RuleStore) initTables() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS vix_sizing_rules (
			vix_min REAL NOT NULL,
			vix_max REAL NOT NULL,
			size_multiplier REAL NOT NULL,
			max_positions INTEGER NOT NULL,
			PRIMARY KEY (vix_min, vix_max)
		)
	`)
	if err != nil {
		return fmt.Errorf("store: create vix_sizing_rules table: %w", err)
	}

	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS risk_limits (
			name TEXT PRIMARY KEY,
			value REAL NOT NULL,
			enabled BOOLEAN DEFAULT 1
		)
	`)
	if err != nil {
		return fmt.Errorf("store: create risk_limits table: %w", err)
	}

	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS risk_violations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			limit_name TEXT NOT NULL,
			detail TEXT DEFAULT '',
			occurred_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("store: create risk_violations table: %w", err)
	}

	return s.seedDefaults()
}

// seedDefaults populates the VIX buckets and baseline risk limits once.
func (s *RuleStore) seedDefaults() error {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(1) FROM vix_sizing_rules`).Scan(&n); err != nil {
		return err
	}
	if n == 0 {
		rules := []VIXSizingRule{
			{VIXMin: 0, VIXMax: 15, SizeMultiplier: 1.2, MaxPositions: 8},
			{VIXMin: 15, VIXMax: 20, SizeMultiplier: 1.0, MaxPositions: 6},
			{VIXMin: 20, VIXMax: 25, SizeMultiplier: 0.8, MaxPositions: 5},
			{VIXMin: 25, VIXMax: 30, SizeMultiplier: 0.6, MaxPositions: 3},
			{VIXMin: 30, VIXMax: 999, SizeMultiplier: 0.4, MaxPositions: 2},
		}
		for _, r := range rules {
			if _, err := s.db.Exec(`
				INSERT INTO vix_sizing_rules (vix_min, vix_max, size_multiplier, max_positions)
				VALUES (?, ?, ?, ?)
			`, r.VIXMin, r.VIXMax, r.SizeMultiplier, r.MaxPositions); err != nil {
				return fmt.Errorf("store: seed vix rule: %w", err)
			}
		}
	}

	if err := s.db.QueryRow(`SELECT COUNT(1) FROM risk_limits`).Scan(&n); err != nil {
		return err
	}
	if n == 0 {
		limits := []RiskLimit{
			{Name: "max_risk_per_trade_pct", Value: 2.0, Enabled: true},
			{Name: "max_open_positions", Value: 8, Enabled: true},
			{Name: "max_daily_loss_pct", Value: 5.0, Enabled: true},
		}
		for _, l := range limits {
			if _, err := s.db.Exec(`
				INSERT INTO risk_limits (name, value, enabled) VALUES (?, ?, ?)
			`, l.Name, l.Value, l.Enabled); err != nil {
				return fmt.Errorf("store: seed risk limit: %w", err)
			}
		}
	}
	return nil
}

// VIXSizeMultiplier resolves the sizing bucket covering vix.
func (s *RuleStore) VIXSizeMultiplier(vix float64) (float64, int, bool) {
	var mult float64
	var maxPositions int
	err := s.db.QueryRow(`
		SELECT size_multiplier, max_positions FROM vix_sizing_rules
		WHERE vix_min <= ? AND ? < vix_max
		ORDER BY vix_min LIMIT 1
	`, vix, vix).Scan(&mult, &maxPositions)
	if err != nil {
		return 0, 0, false
	}
	return mult, maxPositions, true
}

// RiskLimits lists all configured limits.
func (s *RuleStore) RiskLimits() ([]RiskLimit, error) {
	rows, err := s.db.Query(`SELECT name, value, enabled FROM risk_limits ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("store: list risk limits: %w", err)
	}
	defer rows.Close()

	var out []RiskLimit
	for rows.Next() {
		var l RiskLimit
		if err := rows.Scan(&l.Name, &l.Value, &l.Enabled); err != nil {
			return nil, fmt.Errorf("store: scan risk limit row: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// InsertViolation records a risk rejection.
func (s *RuleStore) InsertViolation(limitName, detail string) error {
	_, err := s.db.Exec(`
		INSERT INTO risk_violations (limit_name, detail) VALUES (?, ?)
	`, limitName, detail)
	if err != nil {
		return fmt.Errorf("store: insert risk violation: %w", err)
	}
	return nil
}

// Violations lists the newest recorded violations up to limit.
func (s *RuleStore) Violations(limit int) ([]RiskViolation, error) {
	rows, err := s.db.Query(`
		SELECT id, limit_name, detail, occurred_at FROM risk_violations
		ORDER BY occurred_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list risk violations: %w", err)
	}
	defer rows.Close()

	var out []RiskViolation
	for rows.Next() {
		var v RiskViolation
		if err := rows.Scan(&v.ID, &v.LimitName, &v.Detail, &v.OccurredAt); err != nil {
			return nil, fmt.Errorf("store: scan risk violation row: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
