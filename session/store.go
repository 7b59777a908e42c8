// Package session persists the bearer token pair that represents a logged-in
// ModelGate session. Presence of both tokens is the sole "logged in" signal;
// clearing them logs the client out.
package session

// TokenPair holds the two opaque bearer credentials returned by the auth
// endpoints. Both are written together after a successful login or refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Fixed key names under which the two tokens are stored.
const (
	accessTokenKey  = "access_token"
	refreshTokenKey = "refresh_token"
)

// Store is the persistence contract for the token pair. Implementations must
// degrade to "no session" (empty strings) when the backing storage is
// unavailable rather than surface an error: a client that cannot read its
// tokens is simply logged out. Failures are logged, never returned.
type Store interface {
	AccessToken() string
	RefreshToken() string
	SetTokens(p TokenPair)
	Clear()
}
