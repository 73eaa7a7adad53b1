package entitlement

import (
	"context"
	"testing"
)

func TestMemoryStoreIsolatesUsedPages(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Set(ctx, Mutation{UsedPages: []string{"a"}, SetUsedPages: true}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	rec, err := store.Get(ctx)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	rec.UsedPages[0] = "mutated"

	again, err := store.Get(ctx)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if again.UsedPages[0] != "a" {
		t.Error("caller mutation leaked into the store")
	}
}

func TestMemoryStoreWithSeedAppliesDefaults(t *testing.T) {
	store := NewMemoryStoreWith(Record{Status: StatusPro, Plan: PlanForever})

	rec, err := store.Get(context.Background())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Mode != ModeAuto || rec.Theme != ThemeDark {
		t.Errorf("seed not defaulted: %+v", rec)
	}
	if rec.Status != StatusPro {
		t.Errorf("seed status lost: %+v", rec)
	}
}

func TestMemoryStoreHonorsCanceledContext(t *testing.T) {
	store := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := store.Get(ctx); err == nil {
		t.Error("expected context error from Get")
	}
	if err := store.Set(ctx, Mutation{}); err == nil {
		t.Error("expected context error from Set")
	}
}
