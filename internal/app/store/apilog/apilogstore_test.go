package apilog

import (
	"testing"
	"time"

	"github.com/dalemusser/stratadrive/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestStore_Create_And_List(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	owner := primitive.NewObjectID()
	base := time.Now().Add(-time.Minute)

	for i, class := range []string{"not_found", "conflict", "validation"} {
		rec := Record{
			RequestID:  primitive.NewObjectID().Hex(),
			Method:     "POST",
			Path:       "/folders",
			StatusCode: 400 + i,
			ErrorClass: class,
			RemoteIP:   "10.0.0.1",
			StartedAt:  base.Add(time.Duration(i) * time.Second),
		}
		if i < 2 {
			rec.OwnerID = &owner
		}
		if err := store.Create(ctx, rec); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	recent, err := store.ListRecent(ctx, 10, 1)
	if err != nil {
		t.Fatalf("ListRecent() error = %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("ListRecent() count = %d, want 3", len(recent))
	}
	if recent[0].ErrorClass != "validation" {
		t.Errorf("newest record class = %q, want validation", recent[0].ErrorClass)
	}

	mine, err := store.ListByOwner(ctx, owner, 10, 1)
	if err != nil {
		t.Fatalf("ListByOwner() error = %v", err)
	}
	if len(mine) != 2 {
		t.Errorf("ListByOwner() count = %d, want 2", len(mine))
	}

	// Pagination: one per page.
	page2, err := store.ListRecent(ctx, 1, 2)
	if err != nil {
		t.Fatalf("ListRecent(page 2) error = %v", err)
	}
	if len(page2) != 1 || page2[0].ErrorClass != "conflict" {
		t.Errorf("page 2 = %+v, want the middle record", page2)
	}

	n, err := store.CountSince(ctx, base.Add(500*time.Millisecond))
	if err != nil {
		t.Fatalf("CountSince() error = %v", err)
	}
	if n != 2 {
		t.Errorf("CountSince() = %d, want 2", n)
	}
}
