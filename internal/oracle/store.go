package oracle

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// SnapshotStore persists periodic price snapshots so charts keep working
// across feed outages and restarts.
type SnapshotStore struct {
	db *pgxpool.Pool
}

func NewSnapshotStore(db *pgxpool.Pool) *SnapshotStore {
	return &SnapshotStore{db: db}
}

// Record stores one snapshot per priceable symbol from the oracle's current
// cache. Symbols with no tick yet are skipped, not failed.
func (s *SnapshotStore) Record(ctx context.Context, o *Oracle) error {
	now := time.Now().UTC()
	for _, symbol := range o.Symbols() {
		tick, err := o.Latest(symbol)
		if err != nil {
			continue
		}
		if _, err := s.db.Exec(ctx, `
			INSERT INTO price_points (symbol, tick_at, price_micros)
			VALUES ($1, $2, $3)
		`, symbol, now, tick.PriceMicros); err != nil {
			return err
		}
	}
	return nil
}

// Recent returns locally persisted snapshots oldest first, the fallback
// series when the external feed cannot serve history.
func (s *SnapshotStore) Recent(ctx context.Context, symbol string, limit int) ([]PricePoint, error) {
	if limit <= 0 || limit > 500 {
		limit = 64
	}
	rows, err := s.db.Query(ctx, `
		SELECT tick_at, price_micros
		FROM price_points
		WHERE symbol = $1
		ORDER BY tick_at DESC
		LIMIT $2
	`, symbol, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PricePoint
	for rows.Next() {
		var p PricePoint
		if err := rows.Scan(&p.At, &p.PriceMicros); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
