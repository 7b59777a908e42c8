package session

import (
	"path/filepath"
	"testing"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_SetGetClear(t *testing.T) {
	s := NewMemoryStore()
	require.Empty(t, s.AccessToken())
	require.Empty(t, s.RefreshToken())

	s.SetTokens(TokenPair{AccessToken: "AT1", RefreshToken: "RT1"})
	require.Equal(t, "AT1", s.AccessToken())
	require.Equal(t, "RT1", s.RefreshToken())

	// overwrite, then clear removes both
	s.SetTokens(TokenPair{AccessToken: "AT2", RefreshToken: "RT2"})
	require.Equal(t, "AT2", s.AccessToken())
	s.Clear()
	require.Empty(t, s.AccessToken())
	require.Empty(t, s.RefreshToken())
}

func TestBoltStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.db")

	s, err := NewBoltStore(path)
	require.NoError(t, err)
	s.SetTokens(TokenPair{AccessToken: "AT1", RefreshToken: "RT1"})
	require.Equal(t, "AT1", s.AccessToken())
	require.NoError(t, s.Close())

	// reopen: session survives
	s2, err := NewBoltStore(path)
	require.NoError(t, err)
	defer s2.Close()
	require.Equal(t, "AT1", s2.AccessToken())
	require.Equal(t, "RT1", s2.RefreshToken())

	s2.Clear()
	require.Empty(t, s2.AccessToken())
	require.Empty(t, s2.RefreshToken())
}

// The default path lives under a directory that may not exist yet; opening
// the store must create missing parents instead of failing.
func TestBoltStore_CreatesMissingParentDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deeper", "session.db")

	s, err := NewBoltStore(path)
	require.NoError(t, err)
	defer s.Close()

	s.SetTokens(TokenPair{AccessToken: "AT1", RefreshToken: "RT1"})
	require.Equal(t, "AT1", s.AccessToken())
}

func TestRedisStore_SetGetClear(t *testing.T) {
	m, err := mr.Run()
	require.NoError(t, err)
	defer m.Close()

	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	s := NewRedisStore(client, "test:session:")

	require.Empty(t, s.AccessToken())

	s.SetTokens(TokenPair{AccessToken: "AT1", RefreshToken: "RT1"})
	require.Equal(t, "AT1", s.AccessToken())
	require.Equal(t, "RT1", s.RefreshToken())

	s.Clear()
	require.Empty(t, s.AccessToken())
	require.Empty(t, s.RefreshToken())
}

// Storage unavailability must degrade to "logged out", not an error.
func TestRedisStore_UnavailableDegradesToNoSession(t *testing.T) {
	m, err := mr.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	s := NewRedisStore(client, "test:session:")
	s.SetTokens(TokenPair{AccessToken: "AT1", RefreshToken: "RT1"})

	m.Close()

	require.Empty(t, s.AccessToken())
	require.Empty(t, s.RefreshToken())
}
