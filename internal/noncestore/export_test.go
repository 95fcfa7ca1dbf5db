package noncestore

import "time"

// SetNow overrides the store clock for testing purposes.
func (s *Store) SetNow(now func() time.Time) {
	s.now = now
}
