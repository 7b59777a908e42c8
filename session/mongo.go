package session

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/modelgate/modelgate-go/pkg/logger"
)

// MongoStore keeps the token pair as a single document in a Mongo collection.
// For host applications whose only persistent store is MongoDB. The document
// id distinguishes independent sessions sharing one collection.
type MongoStore struct {
	col     *mongo.Collection
	id      string
	timeout time.Duration
}

type sessionDoc struct {
	ID           string `bson:"_id"`
	AccessToken  string `bson:"accessToken"`
	RefreshToken string `bson:"refreshToken"`
}

// NewMongoStore creates a Mongo-backed store. id may be empty for a single
// shared session per collection.
func NewMongoStore(col *mongo.Collection, id string) *MongoStore {
	if id == "" {
		id = "session"
	}
	return &MongoStore{col: col, id: id, timeout: 5 * time.Second}
}

func (s *MongoStore) load() sessionDoc {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	var doc sessionDoc
	if err := s.col.FindOne(ctx, bson.M{"_id": s.id}).Decode(&doc); err != nil {
		if err != mongo.ErrNoDocuments {
			logger.Warnf("session: mongo read failed: %v", err)
		}
		return sessionDoc{}
	}
	return doc
}

func (s *MongoStore) AccessToken() string {
	return s.load().AccessToken
}

func (s *MongoStore) RefreshToken() string {
	return s.load().RefreshToken
}

func (s *MongoStore) SetTokens(p TokenPair) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	doc := sessionDoc{ID: s.id, AccessToken: p.AccessToken, RefreshToken: p.RefreshToken}
	opts := options.Replace().SetUpsert(true)
	if _, err := s.col.ReplaceOne(ctx, bson.M{"_id": s.id}, doc, opts); err != nil {
		logger.Warnf("session: mongo write failed: %v", err)
	}
}

func (s *MongoStore) Clear() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if _, err := s.col.DeleteOne(ctx, bson.M{"_id": s.id}); err != nil {
		logger.Warnf("session: mongo clear failed: %v", err)
	}
}
