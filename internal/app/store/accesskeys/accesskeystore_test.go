package accesskeys

import (
	"strings"
	"testing"

	"github.com/dalemusser/stratadrive/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestGenerateKey(t *testing.T) {
	fullKey, prefix, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	if !strings.HasPrefix(fullKey, "sk_") {
		t.Errorf("key %q should start with sk_", fullKey)
	}
	if len(fullKey) != 3+64 {
		t.Errorf("key length = %d, want 67", len(fullKey))
	}
	if prefix != fullKey[:11] {
		t.Errorf("prefix = %q, want first 11 chars of key", prefix)
	}

	other, _, _ := GenerateKey()
	if other == fullKey {
		t.Error("two generated keys should differ")
	}
}

func TestStore_Issue_And_Resolve(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	ownerID := primitive.NewObjectID()

	issued, err := store.Issue(ctx, ownerID, "laptop")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if issued.Key.KeyHash == issued.FullKey {
		t.Error("the key must not be stored in the clear")
	}
	if issued.Key.Status != StatusActive {
		t.Errorf("Status = %v, want active", issued.Key.Status)
	}

	resolved, err := store.Resolve(ctx, issued.FullKey)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if resolved.OwnerID != ownerID {
		t.Errorf("OwnerID = %v, want %v", resolved.OwnerID, ownerID)
	}

	// A wrong key with the right prefix must not resolve.
	forged := issued.FullKey[:11] + strings.Repeat("0", 56)
	if _, err := store.Resolve(ctx, forged); err != ErrInvalidKey {
		t.Errorf("Resolve(forged) error = %v, want ErrInvalidKey", err)
	}

	// Garbage input.
	if _, err := store.Resolve(ctx, "nope"); err != ErrInvalidKey {
		t.Errorf("Resolve(short) error = %v, want ErrInvalidKey", err)
	}
}

func TestStore_Resolve_TracksUsage(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	issued, _ := store.Issue(ctx, primitive.NewObjectID(), "")

	store.Resolve(ctx, issued.FullKey)
	store.Resolve(ctx, issued.FullKey)

	keys, err := store.ListByOwner(ctx, issued.Key.OwnerID)
	if err != nil {
		t.Fatalf("ListByOwner() error = %v", err)
	}
	if len(keys) != 1 {
		t.Fatalf("ListByOwner() count = %d, want 1", len(keys))
	}
	if keys[0].UsageCount != 2 {
		t.Errorf("UsageCount = %d, want 2", keys[0].UsageCount)
	}
	if keys[0].LastUsedAt == nil {
		t.Error("LastUsedAt should be set after use")
	}
}

func TestStore_Revoke(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	issued, _ := store.Issue(ctx, primitive.NewObjectID(), "old laptop")

	if err := store.Revoke(ctx, issued.Key.ID); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}

	// A revoked key no longer resolves.
	if _, err := store.Resolve(ctx, issued.FullKey); err != ErrInvalidKey {
		t.Errorf("Resolve() after revoke error = %v, want ErrInvalidKey", err)
	}

	// Revoking twice is NotFound.
	if err := store.Revoke(ctx, issued.Key.ID); err != ErrNotFound {
		t.Errorf("second Revoke() error = %v, want ErrNotFound", err)
	}
}
