package store

import (
	"context"
	"testing"
)

func TestCustomerUpsertAndDisplayName(t *testing.T) {
	cs := NewCustomerStore(setupTestDB(t))
	ctx := context.Background()

	name, err := cs.DisplayName(ctx, "a@x.com")
	if err != nil {
		t.Fatalf("display name: %v", err)
	}
	if name != "" {
		t.Errorf("unknown name = %q, want empty", name)
	}

	if err := cs.Upsert(ctx, "a@x.com", "  jane   doe "); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	name, _ = cs.DisplayName(ctx, "a@x.com")
	if name != "Jane Doe" {
		t.Errorf("name = %q, want %q", name, "Jane Doe")
	}

	cs.Upsert(ctx, "a@x.com", "Janet")
	name, _ = cs.DisplayName(ctx, "a@x.com")
	if name != "Janet" {
		t.Errorf("updated name = %q, want Janet", name)
	}

	cs.Upsert(ctx, "a@x.com", "   ")
	name, _ = cs.DisplayName(ctx, "a@x.com")
	if name != "Janet" {
		t.Errorf("blank upsert changed name to %q", name)
	}
}
