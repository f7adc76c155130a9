package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"chart-indicators/internal/indicator"
	"chart-indicators/internal/model"
)

// Reader provides read access to SQLite for backfill, backtests and
// snapshot restore. It implements model.BarReader.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading. The schema is created
// if missing so a fresh deployment reads empty tables instead of failing.
func NewReader(dbPath string) (*Reader, error) {
	db, err := open(dbPath)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite-reader] opened %s", dbPath)
	return &Reader{db: db}, nil
}

// DB returns the underlying sql.DB for health checks.
func (r *Reader) DB() *sql.DB { return r.db }

// ReadBars reads bars for one instrument and TF after afterTS, oldest first.
func (r *Reader) ReadBars(exchange, token string, tf int, afterTS int64) ([]model.Bar, error) {
	rows, err := r.db.Query(`
		SELECT token, exchange, tf, ts, trade_date, open, high, low, close, volume
		FROM bars
		WHERE exchange = ? AND token = ? AND tf = ? AND ts > ?
		ORDER BY ts ASC
	`, exchange, token, tf, afterTS)
	if err != nil {
		return nil, fmt.Errorf("sqlite query bars: %w", err)
	}
	return scanBars(rows)
}

// ReadAllBars reads bars of every instrument for a TF after afterTS,
// ordered by timestamp.
func (r *Reader) ReadAllBars(tf int, afterTS int64) ([]model.Bar, error) {
	rows, err := r.db.Query(`
		SELECT token, exchange, tf, ts, trade_date, open, high, low, close, volume
		FROM bars
		WHERE tf = ? AND ts > ?
		ORDER BY ts ASC, exchange ASC, token ASC
	`, tf, afterTS)
	if err != nil {
		return nil, fmt.Errorf("sqlite query all bars: %w", err)
	}
	return scanBars(rows)
}

func scanBars(rows *sql.Rows) ([]model.Bar, error) {
	defer rows.Close()

	var bars []model.Bar
	for rows.Next() {
		var b model.Bar
		var tsUnix int64
		if err := rows.Scan(&b.Token, &b.Exchange, &b.TF, &tsUnix, &b.TradeDate,
			&b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("sqlite scan bars: %w", err)
		}
		b.TS = time.Unix(tsUnix, 0).UTC()
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// ReadLatestSnapshotJSON returns the newest stored snapshot, or nil, nil.
func (r *Reader) ReadLatestSnapshotJSON() ([]byte, error) {
	var data string
	err := r.db.QueryRow(`
		SELECT data FROM indicator_snapshots
		ORDER BY id DESC
		LIMIT 1
	`).Scan(&data)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("sqlite read snapshot: %w", err)
	}
	return []byte(data), nil
}

// ReadLatestSnapshot decodes the newest stored engine snapshot.
func (r *Reader) ReadLatestSnapshot() (*indicator.EngineSnapshot, error) {
	data, err := r.ReadLatestSnapshotJSON()
	if err != nil || data == nil {
		return nil, err
	}
	var snap indicator.EngineSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}
