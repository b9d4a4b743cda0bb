package store

import (
	"database/sql"
	"fmt"
	"time"
)

// AdapterLog is one audited broker-adapter operation.
type AdapterLog struct {
	ID              int64     `json:"id"`
	AdapterName     string    `json:"adapter_name"`
	Operation       string    `json:"operation"`
	CorrelationID   string    `json:"correlation_id"`
	OrderID         string    `json:"order_id"`
	Status          string    `json:"status"`
	RequestPayload  string    `json:"request_payload"`
	ResponsePayload string    `json:"response_payload"`
	ErrorMessage    string    `json:"error_message"`
	CreatedAt       time.Time `json:"created_at"`
}

// AdapterLogStore is the append-only audit trail of adapter calls.
type AdapterLogStore struct {
	db *sql.DB
}

func (s *AdapterLogStore) initTables() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS adapter_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			adapter_name TEXT NOT NULL,
			operation TEXT NOT NULL,
			correlation_id TEXT DEFAULT '',
			order_id TEXT DEFAULT '',
			status TEXT DEFAULT '',
			request_payload TEXT DEFAULT '',
			response_payload TEXT DEFAULT '',
			error_message TEXT DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("store: create adapter_logs table: %w", err)
	}

	_, _ = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_adapter_logs_order ON adapter_logs(order_id)`)
	return nil
}

// Insert appends one audit record.
func (s *AdapterLogStore) Insert(l *AdapterLog) error {
	_, err := s.db.Exec(`
		INSERT INTO adapter_logs (adapter_name, operation, correlation_id, order_id, status,
			request_payload, response_payload, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, l.AdapterName, l.Operation, l.CorrelationID, l.OrderID, l.Status,
		l.RequestPayload, l.ResponsePayload, l.ErrorMessage)
	if err != nil {
		return fmt.Errorf("store: insert adapter log: %w", err)
	}
	return nil
}

// List returns the newest audit records up to limit.
func (s *AdapterLogStore) List(limit int) ([]AdapterLog, error) {
	rows, err := s.db.Query(`
		SELECT id, adapter_name, operation, correlation_id, order_id, status,
			request_payload, response_payload, error_message, created_at
		FROM adapter_logs ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list adapter logs: %w", err)
	}
	defer rows.Close()

	var out []AdapterLog
	for rows.Next() {
		var l AdapterLog
		if err := rows.Scan(&l.ID, &l.AdapterName, &l.Operation, &l.CorrelationID, &l.OrderID,
			&l.Status, &l.RequestPayload, &l.ResponsePayload, &l.ErrorMessage, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan adapter log row: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
