// Package store is the persistence seam: one typed repository per table,
// all sharing a single *sql.DB. The database is the owner of record;
// everything above it holds transient copies.
package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Store bundles the per-table repositories.
type Store struct {
	db *sql.DB

	signals     *SignalStore
	orders      *OrderStore
	trades      *TradeStore
	positions   *PositionStore
	regimes     *RegimeStore
	rules       *RuleStore
	adapterLogs *AdapterLogStore
	decisions   *DecisionStore
}

// Open connects to databaseURL and prepares every repository. Call
// InitTables before first use on a fresh database.
func Open(databaseURL string) (*Store, error) {
	db, err := sql.Open("sqlite", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("store: ping database: %w", err)
	}

	s := &Store{db: db}
	s.signals = &SignalStore{db: db}
	s.orders = &OrderStore{db: db}
	s.trades = &TradeStore{db: db}
	s.positions = &PositionStore{db: db}
	s.regimes = &RegimeStore{db: db}
	s.rules = &RuleStore{db: db}
	s.adapterLogs = &AdapterLogStore{db: db}
	s.decisions = &DecisionStore{db: db}
	return s, nil
}

// InitTables creates every table, index and seed row the repositories
// expect. Idempotent.
func (s *Store) InitTables() error {
	inits := []func() error{
		s.signals.initTables,
		s.orders.initTables,
		s.trades.initTables,
		s.positions.initTables,
		s.regimes.initTables,
		s.rules.initTables,
		s.adapterLogs.initTables,
		s.decisions.initTables,
	}
	for _, init := range inits {
		if err := init(); err != nil {
			return err
		}
	}
	return nil
}

// Ping reports database connectivity for the health endpoint.
func (s *Store) Ping() error { return s.db.Ping() }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Signals() *SignalStore         { return s.signals }
func (s *Store) Orders() *OrderStore           { return s.orders }
func (s *Store) Trades() *TradeStore           { return s.trades }
func (s *Store) Positions() *PositionStore     { return s.positions }
func (s *Store) Regimes() *RegimeStore         { return s.regimes }
func (s *Store) Rules() *RuleStore             { return s.rules }
func (s *Store) AdapterLogs() *AdapterLogStore { return s.adapterLogs }
func (s *Store) Decisions() *DecisionStore     { return s.decisions }
