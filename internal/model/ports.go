package model

import "context"

// ── Storage Port Interfaces ──
// These decouple the indicator engine from Redis and SQLite.

// BarReader reads stored bars for backfill and replay, ordered by timestamp.
type BarReader interface {
	// ReadBars reads bars for one instrument and TF after afterTS (unix seconds).
	ReadBars(exchange, token string, tf int, afterTS int64) ([]Bar, error)

	// ReadAllBars reads bars of every instrument for a TF after afterTS.
	ReadAllBars(tf int, afterTS int64) ([]Bar, error)
}

// BarWriter persists bars.
type BarWriter interface {
	// WriteBars stores a batch of bars.
	WriteBars(bars []Bar) error
}

// ResultWriter publishes indicator results.
type ResultWriter interface {
	// WriteIndicatorBatch writes multiple indicator results in a single batch.
	WriteIndicatorBatch(ctx context.Context, results []IndicatorResult)
}

// SnapshotStore reads and writes indicator engine snapshots as raw JSON.
// Using []byte avoids a model→indicator import cycle.
type SnapshotStore interface {
	// SaveSnapshotJSON persists a JSON-encoded engine snapshot.
	SaveSnapshotJSON(data []byte) error

	// ReadLatestSnapshotJSON loads the most recent snapshot as raw JSON.
	// Returns nil, nil if no snapshot exists.
	ReadLatestSnapshotJSON() ([]byte, error)
}
