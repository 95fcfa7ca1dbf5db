package session

import "time"

// Identity is the verified result of one ID token. It is immutable:
// a refresh replaces the whole value, nothing is mutated in place.
type Identity struct {
	Subject      string         `json:"subject"`
	Issuer       string         `json:"issuer"`
	Claims       map[string]any `json:"claims"`
	AccessToken  string         `json:"accessToken"`
	RefreshToken string         `json:"refreshToken,omitempty"`

	// Expiry is the access/ID token horizon. Past it the identity needs
	// a refresh before it may be handed to downstream handlers.
	Expiry time.Time `json:"expiry"`
}

// Session binds a browser-held session identifier to an Identity.
type Session struct {
	ID        string    `json:"id"`
	Identity  Identity  `json:"identity"`
	CreatedAt time.Time `json:"createdAt"`

	// Expiry is the session lifetime; refreshing tokens does not
	// extend it.
	Expiry time.Time `json:"expiry"`
}
