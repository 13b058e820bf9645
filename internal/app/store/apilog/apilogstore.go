// Package apilog persists failed API requests so integration problems
// can be diagnosed after the fact. Only requests that end in an error
// status are recorded.
package apilog

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/dalemusser/stratadrive/internal/app/store/storeutil"
)

// Record is one failed API request.
type Record struct {
	ID         primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	RequestID  string              `bson:"request_id" json:"request_id"`
	OwnerID    *primitive.ObjectID `bson:"owner_id,omitempty" json:"owner_id,omitempty"`
	Method     string              `bson:"method" json:"method"`
	Path       string              `bson:"path" json:"path"`
	Query      string              `bson:"query,omitempty" json:"query,omitempty"`
	StatusCode int                 `bson:"status_code" json:"status_code"`
	ErrorClass string              `bson:"error_class" json:"error_class"`
	RemoteIP   string              `bson:"remote_ip" json:"remote_ip"`
	UserAgent  string              `bson:"user_agent,omitempty" json:"user_agent,omitempty"`
	DurationMs float64             `bson:"duration_ms" json:"duration_ms"`
	StartedAt  time.Time           `bson:"started_at" json:"started_at"`
}

// Store provides api log persistence.
type Store struct {
	c *mongo.Collection
}

// New creates a new api log store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("api_log")}
}

// Collection exposes the raw collection for index setup.
func (s *Store) Collection() *mongo.Collection {
	return s.c
}

// Create inserts a record.
func (s *Store) Create(ctx context.Context, rec Record) error {
	if rec.ID.IsZero() {
		rec.ID = primitive.NewObjectID()
	}
	_, err := s.c.InsertOne(ctx, rec)
	return err
}

// ListRecent returns the newest records, paginated (1-based page).
func (s *Store) ListRecent(ctx context.Context, limit, page int64) ([]Record, error) {
	opts := storeutil.Paginate(limit, page).
		SetSort(bson.D{{Key: "started_at", Value: -1}})

	cur, err := s.c.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var recs []Record
	if err := cur.All(ctx, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

// ListByOwner returns the newest records for one owner, paginated.
func (s *Store) ListByOwner(ctx context.Context, ownerID primitive.ObjectID, limit, page int64) ([]Record, error) {
	opts := storeutil.Paginate(limit, page).
		SetSort(bson.D{{Key: "started_at", Value: -1}})

	cur, err := s.c.Find(ctx, bson.M{"owner_id": ownerID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var recs []Record
	if err := cur.All(ctx, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

// CountSince returns how many failures were recorded after the cutoff.
func (s *Store) CountSince(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.c.CountDocuments(ctx, bson.M{"started_at": bson.M{"$gte": cutoff}})
}
