package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/modelgate/modelgate-go/session"
)

// authServer simulates a backend where only "new" is a valid access token;
// "old" gets 401. The refresh endpoint swaps RT-old for {new, RT-new}.
type authServer struct {
	refreshCalls int64
	pathCalls    sync.Map // path -> *int64
}

func (a *authServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&a.refreshCalls, 1)
		time.Sleep(20 * time.Millisecond)
		var req struct {
			RefreshToken string `json:"refresh_token"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.RefreshToken != "RT-old" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "new", "refresh_token": "RT-new"})
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		v, _ := a.pathCalls.LoadOrStore(r.URL.Path, new(int64))
		atomic.AddInt64(v.(*int64), 1)
		if r.Header.Get("Authorization") != "Bearer new" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"path": r.URL.Path})
	})
	return mux
}

func (a *authServer) calls(path string) int64 {
	v, ok := a.pathCalls.Load(path)
	if !ok {
		return 0
	}
	return atomic.LoadInt64(v.(*int64))
}

func TestDoAttachesBearerAndContentType(t *testing.T) {
	var gotAuth, gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := session.NewMemoryStore()
	store.SetTokens(session.TokenPair{AccessToken: "AT1", RefreshToken: "RT1"})
	c := New(srv.URL, store)

	resp, err := c.Do(context.Background(), http.MethodGet, "/v1/models", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "Bearer AT1", gotAuth)
	require.Equal(t, "application/json", gotContentType)
}

func TestDoHeaderOverride(t *testing.T) {
	var gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL, session.NewMemoryStore())
	hdr := http.Header{}
	hdr.Set("Content-Type", "text/plain")
	resp, err := c.DoWithHeaders(context.Background(), http.MethodPost, "/v1/upload", nil, hdr)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, "text/plain", gotContentType)
}

func TestDoRefreshesAndRetriesOnceOn401(t *testing.T) {
	a := &authServer{}
	srv := httptest.NewServer(a.handler())
	defer srv.Close()

	store := session.NewMemoryStore()
	store.SetTokens(session.TokenPair{AccessToken: "old", RefreshToken: "RT-old"})
	c := New(srv.URL, store)

	resp, err := c.Do(context.Background(), http.MethodGet, "/v1/usage", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, int64(1), atomic.LoadInt64(&a.refreshCalls))
	require.Equal(t, int64(2), a.calls("/v1/usage"))
	require.Equal(t, "new", store.AccessToken())
	require.Equal(t, "RT-new", store.RefreshToken())
}

// A 401 on the retried request is returned as-is: no second refresh, no
// second retry.
func TestDoRetriedRequestReturning401IsFinal(t *testing.T) {
	var refreshCalls, protectedCalls int64
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&refreshCalls, 1)
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "AT2", "refresh_token": "RT2"})
	})
	mux.HandleFunc("/v1/broken", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&protectedCalls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	store := session.NewMemoryStore()
	store.SetTokens(session.TokenPair{AccessToken: "AT1", RefreshToken: "RT1"})
	c := New(srv.URL, store)

	resp, err := c.Do(context.Background(), http.MethodGet, "/v1/broken", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, int64(1), atomic.LoadInt64(&refreshCalls))
	require.Equal(t, int64(2), atomic.LoadInt64(&protectedCalls))
}

// Anonymous calls never trigger a refresh: nothing was there to expire.
func TestDo401WithoutTokenIsPassthrough(t *testing.T) {
	var refreshCalls int64
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&refreshCalls, 1)
	})
	mux.HandleFunc("/v1/private", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(srv.URL, session.NewMemoryStore())
	resp, err := c.Do(context.Background(), http.MethodGet, "/v1/private", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, int64(0), atomic.LoadInt64(&refreshCalls))
}

// Failed refresh tears the session down: store cleared, navigator invoked
// exactly once, original 401 handed back.
func TestDoTeardownOnFailedRefresh(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	mux.HandleFunc("/v1/usage", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	store := session.NewMemoryStore()
	store.SetTokens(session.TokenPair{AccessToken: "AT1", RefreshToken: "RT1"})
	var redirects int64
	c := New(srv.URL, store, WithNavigator(NavigatorFunc(func() {
		atomic.AddInt64(&redirects, 1)
	})))

	resp, err := c.Do(context.Background(), http.MethodGet, "/v1/usage", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Empty(t, store.AccessToken())
	require.Empty(t, store.RefreshToken())
	require.Equal(t, int64(1), atomic.LoadInt64(&redirects))
}

// Two requests expiring at the same moment share one refresh and both get
// retried with the new token. A barrier holds both 401 responses back until
// both requests have arrived, so both callers hit the coordinator together.
func TestConcurrentRequestsShareOneRefresh(t *testing.T) {
	var refreshCalls int64
	retried := make(map[string]int64)
	var mu sync.Mutex
	var barrier sync.WaitGroup
	barrier.Add(2)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&refreshCalls, 1)
		// keep the exchange in flight while the second caller joins
		time.Sleep(30 * time.Millisecond)
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "new", "refresh_token": "RT-new"})
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer new" {
			barrier.Done()
			barrier.Wait()
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		mu.Lock()
		retried[r.URL.Path]++
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	store := session.NewMemoryStore()
	store.SetTokens(session.TokenPair{AccessToken: "old", RefreshToken: "RT-old"})
	c := New(srv.URL, store)

	var wg sync.WaitGroup
	statuses := make([]int, 2)
	errs := make([]error, 2)
	for i, path := range []string{"/x", "/y"} {
		wg.Add(1)
		go func(i int, path string) {
			defer wg.Done()
			resp, err := c.Do(context.Background(), http.MethodGet, path, nil)
			if err != nil {
				errs[i] = err
				return
			}
			defer resp.Body.Close()
			statuses[i] = resp.StatusCode
		}(i, path)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	require.Equal(t, int64(1), atomic.LoadInt64(&refreshCalls))
	require.Equal(t, []int{http.StatusOK, http.StatusOK}, statuses)
	require.Equal(t, int64(1), retried["/x"])
	require.Equal(t, int64(1), retried["/y"])
}

// When concurrent requests share a refresh that fails, the teardown belongs
// to the refresh, not the callers: one store clear, one redirect, and every
// caller gets its original 401 back.
func TestConcurrentFailedRefreshRedirectsOnce(t *testing.T) {
	var refreshCalls int64
	var barrier sync.WaitGroup
	barrier.Add(2)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&refreshCalls, 1)
		// keep the exchange in flight while the second caller joins
		time.Sleep(30 * time.Millisecond)
		w.WriteHeader(http.StatusUnauthorized)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		barrier.Done()
		barrier.Wait()
		w.WriteHeader(http.StatusUnauthorized)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	store := session.NewMemoryStore()
	store.SetTokens(session.TokenPair{AccessToken: "old", RefreshToken: "RT-old"})
	var redirects int64
	c := New(srv.URL, store, WithNavigator(NavigatorFunc(func() {
		atomic.AddInt64(&redirects, 1)
	})))

	var wg sync.WaitGroup
	statuses := make([]int, 2)
	errs := make([]error, 2)
	for i, path := range []string{"/x", "/y"} {
		wg.Add(1)
		go func(i int, path string) {
			defer wg.Done()
			resp, err := c.Do(context.Background(), http.MethodGet, path, nil)
			if err != nil {
				errs[i] = err
				return
			}
			defer resp.Body.Close()
			statuses[i] = resp.StatusCode
		}(i, path)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	require.Equal(t, int64(1), atomic.LoadInt64(&refreshCalls))
	require.Equal(t, int64(1), atomic.LoadInt64(&redirects))
	require.Equal(t, []int{http.StatusUnauthorized, http.StatusUnauthorized}, statuses)
	require.Empty(t, store.AccessToken())
	require.Empty(t, store.RefreshToken())
}

func TestAccessTokenExpiry(t *testing.T) {
	store := session.NewMemoryStore()
	c := New("http://modelgate.test", store)

	// no token stored
	_, ok := c.AccessTokenExpiry()
	require.False(t, ok)

	// opaque (non-JWT) token
	store.SetTokens(session.TokenPair{AccessToken: "opaque", RefreshToken: "RT"})
	_, ok = c.AccessTokenExpiry()
	require.False(t, ok)
}
