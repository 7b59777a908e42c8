package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/modelgate/modelgate-go/pkg/logger"
	"github.com/modelgate/modelgate-go/pkg/metrics"
	"github.com/modelgate/modelgate-go/session"
)

// User is the profile returned by the account endpoints.
type User struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Name          string    `json:"name"`
	EmailVerified bool      `json:"email_verified"`
	CreatedAt     time.Time `json:"created_at"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token,omitempty"`
}

// connection-level retries for login/register: 3 attempts total, waiting
// unit then 2*unit between them. HTTP responses of any status stop the
// retrying immediately.
const maxNetworkRetries = 2

// Login authenticates with email and password. On success the returned token
// pair is persisted before it is handed back. Connection failures are retried
// with backoff; HTTP error statuses are translated into user-facing messages.
func (c *Client) Login(ctx context.Context, email, password string) (session.TokenPair, error) {
	resp, err := c.postWithRetry(ctx, "/api/auth/login", loginRequest{Email: email, Password: password})
	if err != nil {
		return session.TokenPair{}, err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var pair session.TokenPair
		if err := json.Unmarshal(body, &pair); err != nil || pair.AccessToken == "" || pair.RefreshToken == "" {
			return session.TokenPair{}, &APIError{Status: resp.StatusCode, Message: msgGenericFallback}
		}
		c.store.SetTokens(pair)
		return pair, nil
	case resp.StatusCode == http.StatusUnauthorized:
		return session.TokenPair{}, &APIError{Status: resp.StatusCode, Message: msgInvalidCredentials}
	case resp.StatusCode == http.StatusForbidden:
		return session.TokenPair{}, &APIError{Status: resp.StatusCode, Message: messageFrom(body, msgVerifyEmail)}
	case resp.StatusCode == http.StatusTooManyRequests:
		return session.TokenPair{}, &APIError{Status: resp.StatusCode, Message: msgRateLimited}
	case resp.StatusCode >= 500:
		return session.TokenPair{}, &APIError{Status: resp.StatusCode, Message: msgServerError}
	default:
		return session.TokenPair{}, &APIError{Status: resp.StatusCode, Message: messageFrom(body, msgGenericFallback)}
	}
}

// Register creates a new account. It does not log the user in; most
// deployments require email verification first.
func (c *Client) Register(ctx context.Context, email, password, name string) (*User, error) {
	resp, err := c.postWithRetry(ctx, "/api/auth/register", registerRequest{Email: email, Password: password, Name: name})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var u User
		if err := json.Unmarshal(body, &u); err != nil {
			return nil, &APIError{Status: resp.StatusCode, Message: msgGenericFallback}
		}
		return &u, nil
	case resp.StatusCode == http.StatusConflict:
		return nil, &APIError{Status: resp.StatusCode, Message: msgAccountExists}
	case resp.StatusCode == http.StatusUnprocessableEntity:
		return nil, &APIError{Status: resp.StatusCode, Message: messageFrom(body, msgGenericFallback)}
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &APIError{Status: resp.StatusCode, Message: msgRateLimited}
	case resp.StatusCode >= 500:
		return nil, &APIError{Status: resp.StatusCode, Message: msgServerError}
	default:
		return nil, &APIError{Status: resp.StatusCode, Message: messageFrom(body, msgGenericFallback)}
	}
}

// Me fetches the current user profile. Best effort: any failure (network,
// non-2xx, malformed body) yields nil.
func (c *Client) Me(ctx context.Context) *User {
	resp, err := c.Do(ctx, http.MethodGet, "/api/auth/me", nil)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil
	}
	var u User
	if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
		return nil
	}
	return &u
}

// Logout revokes the session server-side (best effort, errors ignored) and
// always clears the local token pair.
func (c *Client) Logout(ctx context.Context) {
	if rt := c.store.RefreshToken(); rt != "" {
		resp, err := c.send(ctx, http.MethodPost, "/api/auth/logout", logoutRequest{RefreshToken: rt}, c.store.AccessToken(), nil)
		if err == nil {
			resp.Body.Close()
		}
	}
	c.store.Clear()
}

// VerifyEmail confirms an account with the token from the verification email.
func (c *Client) VerifyEmail(ctx context.Context, token string) error {
	return c.postAccount(ctx, "/api/auth/verify-email", map[string]string{"token": token})
}

// ResendVerification requests a fresh verification email.
func (c *Client) ResendVerification(ctx context.Context, email string) error {
	return c.postAccount(ctx, "/api/auth/resend-verification", map[string]string{"email": email})
}

// ForgotPassword starts the password reset flow.
func (c *Client) ForgotPassword(ctx context.Context, email string) error {
	return c.postAccount(ctx, "/api/auth/forgot-password", map[string]string{"email": email})
}

// ResetPassword completes the password reset flow.
func (c *Client) ResetPassword(ctx context.Context, token, newPassword string) error {
	return c.postAccount(ctx, "/api/auth/reset-password", map[string]string{"token": token, "password": newPassword})
}

// postAccount handles the secondary account endpoints: anonymous POST, no
// connection retries, error message extracted from the response body with a
// generic fallback.
func (c *Client) postAccount(ctx context.Context, path string, payload any) error {
	resp, err := c.send(ctx, http.MethodPost, path, payload, "", nil)
	if err != nil {
		logger.Debugf("client: POST %s failed: %v", path, err)
		return ErrServerUnreachable
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(resp.Body)
	return &APIError{Status: resp.StatusCode, Message: messageFrom(body, msgGenericFallback)}
}

// postWithRetry performs an anonymous POST, retrying only connection-level
// failures (refused, DNS, timeout). The first attempt that produces an HTTP
// response, whatever its status, ends the retrying.
func (c *Client) postWithRetry(ctx context.Context, path string, payload any) (*http.Response, error) {
	var resp *http.Response
	attempt := 0
	op := func() error {
		attempt++
		r, err := c.send(ctx, http.MethodPost, path, payload, "", nil)
		if err != nil {
			logger.Debugf("client: POST %s attempt %d failed: %v", path, attempt, err)
			if attempt <= maxNetworkRetries {
				metrics.NetworkRetriesTotal.WithLabelValues(path).Inc()
			}
			return err
		}
		resp = r
		return nil
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(&linearBackOff{unit: c.backoff}, maxNetworkRetries), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		logger.Warnf("client: POST %s unreachable after %d attempts: %v", path, attempt, err)
		return nil, ErrServerUnreachable
	}
	return resp, nil
}

// linearBackOff waits unit, then 2*unit, growing by one unit per attempt.
type linearBackOff struct {
	unit time.Duration
	n    int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.n++
	return time.Duration(b.n) * b.unit
}

func (b *linearBackOff) Reset() { b.n = 0 }

// messageFrom pulls a display message out of an error response body, looking
// at `error.message` then `detail`. Bodies are untrusted: parse failures fall
// back to the provided default instead of propagating.
func messageFrom(body []byte, fallback string) string {
	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Error.Message != "" {
			return payload.Error.Message
		}
		if payload.Detail != "" {
			return payload.Detail
		}
	}
	return fallback
}
