// Package accesskeys maps bearer access keys to drive owners.
//
// Credential issuance happens out of band; this store only records the
// mapping and answers "which owner does this key belong to" on every
// request.
package accesskeys

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/crypto/bcrypt"
)

// AccessKey is one issued credential. The key material itself is never
// stored: only a bcrypt hash plus a short prefix for lookup.
type AccessKey struct {
	ID         primitive.ObjectID `bson:"_id"`
	OwnerID    primitive.ObjectID `bson:"owner_id"`
	KeyHash    string             `bson:"key_hash"`
	KeyPrefix  string             `bson:"key_prefix"` // "sk_" + first 8 hex chars
	Label      string             `bson:"label,omitempty"`
	Status     string             `bson:"status"` // "active", "revoked"
	LastUsedAt *time.Time         `bson:"last_used_at,omitempty"`
	UsageCount int64              `bson:"usage_count"`
	CreatedAt  time.Time          `bson:"created_at"`
	RevokedAt  *time.Time         `bson:"revoked_at,omitempty"`
}

// Status values for access keys.
const (
	StatusActive  = "active"
	StatusRevoked = "revoked"
)

var (
	// ErrNotFound is returned when an access key record is not found.
	ErrNotFound = errors.New("access key not found")
	// ErrInvalidKey is returned when a presented key matches no active record.
	ErrInvalidKey = errors.New("invalid access key")
)

const prefixLen = 11 // "sk_" + 8 hex chars

// Store provides access-key persistence.
type Store struct {
	c *mongo.Collection
}

// New creates a new access-key store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("access_keys")}
}

// GenerateKey produces a new random key. The full value is shown once
// at issuance; only the prefix is recoverable afterwards.
func GenerateKey() (fullKey, prefix string, err error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", "", err
	}
	fullKey = "sk_" + hex.EncodeToString(raw)
	return fullKey, fullKey[:prefixLen], nil
}

// IssueResult carries the stored record and the one-time full key.
type IssueResult struct {
	Key     AccessKey
	FullKey string
}

// Issue creates a new active key for an owner and returns the full key
// value, which is not stored and cannot be recovered later.
func (s *Store) Issue(ctx context.Context, ownerID primitive.ObjectID, label string) (IssueResult, error) {
	fullKey, prefix, err := GenerateKey()
	if err != nil {
		return IssueResult{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(fullKey), bcrypt.DefaultCost)
	if err != nil {
		return IssueResult{}, err
	}

	key := AccessKey{
		ID:        primitive.NewObjectID(),
		OwnerID:   ownerID,
		KeyHash:   string(hash),
		KeyPrefix: prefix,
		Label:     label,
		Status:    StatusActive,
		CreatedAt: time.Now(),
	}

	if _, err := s.c.InsertOne(ctx, key); err != nil {
		return IssueResult{}, err
	}

	return IssueResult{Key: key, FullKey: fullKey}, nil
}

// Resolve validates a presented key and returns the record it belongs
// to. Lookup goes by prefix, then bcrypt confirms the match. Usage
// tracking is best-effort and never fails the request.
func (s *Store) Resolve(ctx context.Context, presented string) (*AccessKey, error) {
	if len(presented) < prefixLen {
		return nil, ErrInvalidKey
	}

	cur, err := s.c.Find(ctx, bson.M{
		"key_prefix": presented[:prefixLen],
		"status":     StatusActive,
	})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var matched *AccessKey
	for cur.Next(ctx) {
		var key AccessKey
		if err := cur.Decode(&key); err != nil {
			continue
		}
		if bcrypt.CompareHashAndPassword([]byte(key.KeyHash), []byte(presented)) == nil {
			matched = &key
			break
		}
	}

	if matched == nil {
		return nil, ErrInvalidKey
	}

	now := time.Now()
	_, _ = s.c.UpdateOne(ctx, bson.M{"_id": matched.ID}, bson.M{
		"$set": bson.M{"last_used_at": now},
		"$inc": bson.M{"usage_count": 1},
	})

	return matched, nil
}

// ListByOwner returns all keys issued for an owner, newest first.
func (s *Store) ListByOwner(ctx context.Context, ownerID primitive.ObjectID) ([]AccessKey, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cur, err := s.c.Find(ctx, bson.M{"owner_id": ownerID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var keys []AccessKey
	if err := cur.All(ctx, &keys); err != nil {
		return nil, err
	}
	return keys, nil
}

// Revoke deactivates a key. Revoked keys stop resolving immediately.
func (s *Store) Revoke(ctx context.Context, id primitive.ObjectID) error {
	now := time.Now()
	result, err := s.c.UpdateOne(ctx, bson.M{
		"_id":    id,
		"status": StatusActive,
	}, bson.M{
		"$set": bson.M{
			"status":     StatusRevoked,
			"revoked_at": now,
		},
	})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// CountActive returns the number of active keys across all owners.
func (s *Store) CountActive(ctx context.Context) (int64, error) {
	return s.c.CountDocuments(ctx, bson.M{"status": StatusActive})
}
