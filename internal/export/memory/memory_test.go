package memory

import (
	"context"
	"testing"
	"time"

	"finly/internal/core"
)

func TestAppendAndListMonth(t *testing.T) {
	store := New()
	ctx := context.Background()

	purchases := []core.Purchase{
		{Description: "a", Amount: core.Money{Cents: 100}, Date: core.NewDate(2024, time.March, 5)},
		{Description: "b", Amount: core.Money{Cents: 200}, Date: core.NewDate(2024, time.March, 20)},
		{Description: "c", Amount: core.Money{Cents: 300}, Date: core.NewDate(2024, time.April, 1)},
	}
	for _, p := range purchases {
		ref, err := store.Append(ctx, p)
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
		if ref == "" {
			t.Error("expected non-empty row reference")
		}
	}

	march, err := store.ListMonth(ctx, 2024, 3)
	if err != nil {
		t.Fatalf("ListMonth: %v", err)
	}
	if len(march) != 2 {
		t.Fatalf("expected 2 purchases in March, got %d", len(march))
	}

	if store.Len() != 3 {
		t.Errorf("Len() = %d, want 3", store.Len())
	}
}
