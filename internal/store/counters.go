package store

import "context"

// NextCounter atomically increments and returns the named counter
// (spec.md §4.2 next_counter), used for TASK-N and LOG-N sequence ids.
func (tx *Tx) NextCounter(ctx context.Context, name string) (int64, error) {
	if _, err := tx.tx.ExecContext(ctx, `
		INSERT INTO counters (name, value) VALUES (?, 1)
		ON CONFLICT(name) DO UPDATE SET value = value + 1`, name); err != nil {
		return 0, wrapStorage("increment counter", err)
	}
	var v int64
	if err := tx.tx.QueryRowContext(ctx, `SELECT value FROM counters WHERE name=?`, name).Scan(&v); err != nil {
		return 0, wrapStorage("read counter", err)
	}
	return v, nil
}

// SetCounterFloor raises a counter to at least n without decrementing it,
// used by rebuild() to recompute sequential counters from the maximum
// existing ID found while walking files (spec.md §4.11 rebuild).
func (tx *Tx) SetCounterFloor(ctx context.Context, name string, n int64) error {
	_, err := tx.tx.ExecContext(ctx, `
		INSERT INTO counters (name, value) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET value = MAX(value, excluded.value)`, name, n)
	return wrapStorage("raise counter floor", err)
}
