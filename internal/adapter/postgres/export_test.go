package postgres

import "context"

// Exec runs raw SQL against the pool so tests can set up rows the public API
// does not write.
func (s *Store) Exec(ctx context.Context, sql string) error {
	_, err := s.pool.Exec(ctx, sql)
	return err
}
