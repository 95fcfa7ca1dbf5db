package session

import "time"

// SetNow overrides the manager clock for testing purposes.
func (m *Manager) SetNow(now func() time.Time) {
	m.now = now
}

// ChallengeS256 exposes the PKCE challenge derivation for tests.
var ChallengeS256 = challengeS256
