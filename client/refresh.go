package client

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/modelgate/modelgate-go/pkg/logger"
	"github.com/modelgate/modelgate-go/pkg/metrics"
	"github.com/modelgate/modelgate-go/session"
)

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// refreshOutcome is the settled result of one shared refresh. Every caller
// that joined the call gets the same instance, so the teardown Once lets
// exactly one of them run the failure side effects.
type refreshOutcome struct {
	ok       bool
	teardown sync.Once
}

// refreshAccessToken exchanges the stored refresh token for a new pair.
// At most one network call is in flight at any time: concurrent callers join
// the in-flight exchange and observe its outcome, and the shared handle is
// dropped once it settles so the next 401 starts a fresh attempt.
//
// The outcome is shared by every joined caller, so the exchange runs
// detached from the initiator's cancellation: a caller whose context dies
// mid-refresh must not fail the refresh for the others.
func (c *Client) refreshAccessToken(ctx context.Context) *refreshOutcome {
	v, _, _ := c.refreshing.Do("refresh", func() (interface{}, error) {
		return &refreshOutcome{ok: c.exchangeRefreshToken(context.WithoutCancel(ctx))}, nil
	})
	return v.(*refreshOutcome)
}

func (c *Client) exchangeRefreshToken(ctx context.Context) bool {
	rt := c.store.RefreshToken()
	if rt == "" {
		metrics.RefreshTotal.WithLabelValues("denied").Inc()
		return false
	}

	resp, err := c.send(ctx, http.MethodPost, "/api/auth/refresh", refreshRequest{RefreshToken: rt}, "", nil)
	if err != nil {
		logger.Warnf("client: token refresh request failed: %v", err)
		metrics.RefreshTotal.WithLabelValues("error").Inc()
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logger.Debugf("client: refresh endpoint returned %d", resp.StatusCode)
		metrics.RefreshTotal.WithLabelValues("denied").Inc()
		return false
	}

	var pair session.TokenPair
	if err := json.NewDecoder(resp.Body).Decode(&pair); err != nil || pair.AccessToken == "" || pair.RefreshToken == "" {
		logger.Warnf("client: refresh endpoint returned malformed body")
		metrics.RefreshTotal.WithLabelValues("error").Inc()
		return false
	}

	c.store.SetTokens(pair)
	metrics.RefreshTotal.WithLabelValues("ok").Inc()
	return true
}
