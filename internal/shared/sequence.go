package shared

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
)

// SequenceAllocator hands out per-scope counters backed by a single-row
// upsert, so concurrent callers never observe the same value.
type SequenceAllocator struct {
	pool *pgxpool.Pool
}

// NewSequenceAllocator constructs SequenceAllocator.
func NewSequenceAllocator(pool *pgxpool.Pool) *SequenceAllocator {
	return &SequenceAllocator{pool: pool}
}

// Next atomically increments and returns the counter for scope.
func (s *SequenceAllocator) Next(ctx context.Context, scope string) (int64, error) {
	if s == nil {
		return 0, errors.New("sequence allocator not initialised")
	}
	if scope == "" {
		return 0, errors.New("sequence scope required")
	}
	var value int64
	err := s.pool.QueryRow(ctx, `INSERT INTO sequence_counters (scope, value) VALUES ($1, 1)
ON CONFLICT (scope) DO UPDATE SET value = sequence_counters.value + 1
RETURNING value`, scope).Scan(&value)
	if err != nil {
		return 0, err
	}
	return value, nil
}
