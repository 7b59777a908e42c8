package session

import (
	"fmt"
	"os"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/modelgate/modelgate-go/pkg/logger"
)

var bktSession = []byte("session")

// BoltStore persists the token pair in a local bbolt file so the session
// survives process restarts. This is the default backend for the CLI.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) the database file at path, creating
// missing parent directories first so the default under ~/.modelgate works
// on a fresh machine.
func NewBoltStore(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create session db dir: %w", err)
	}
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open session db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bktSession)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init session bucket: %w", err)
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) get(key string) string {
	var v string
	err := s.db.View(func(tx *bolt.Tx) error {
		if b := tx.Bucket(bktSession).Get([]byte(key)); b != nil {
			v = string(b)
		}
		return nil
	})
	if err != nil {
		logger.Warnf("session: bolt read %s failed: %v", key, err)
		return ""
	}
	return v
}

func (s *BoltStore) AccessToken() string {
	return s.get(accessTokenKey)
}

func (s *BoltStore) RefreshToken() string {
	return s.get(refreshTokenKey)
}

// SetTokens writes both values in one transaction.
func (s *BoltStore) SetTokens(p TokenPair) {
	err := s.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(bktSession)
		if err := bkt.Put([]byte(accessTokenKey), []byte(p.AccessToken)); err != nil {
			return err
		}
		return bkt.Put([]byte(refreshTokenKey), []byte(p.RefreshToken))
	})
	if err != nil {
		logger.Warnf("session: bolt write failed: %v", err)
	}
}

func (s *BoltStore) Clear() {
	err := s.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(bktSession)
		if err := bkt.Delete([]byte(accessTokenKey)); err != nil {
			return err
		}
		return bkt.Delete([]byte(refreshTokenKey))
	})
	if err != nil {
		logger.Warnf("session: bolt clear failed: %v", err)
	}
}
