package sessions

import "time"

// Session is a refresh-token session held by the stub backend.
type Session struct {
	RefreshToken string    `json:"refreshToken"`
	AccountID    string    `json:"accountId"`
	Email        string    `json:"email"`
	ExpiresAt    time.Time `json:"expiresAt"`
	CreatedAt    time.Time `json:"createdAt"`
}
