package storage

import (
	"context"
	"path/filepath"
	"testing"

	"deal-ranker/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "nested", "prefs.db"))
	if err != nil {
		t.Fatalf("NewStore error: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

func TestLoadDecisionSpecMissing(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	spec, err := store.LoadDecisionSpec(context.Background())
	if err != nil {
		t.Fatalf("LoadDecisionSpec error: %v", err)
	}
	if spec != nil {
		t.Fatalf("expected nil spec, got %+v", spec)
	}
}

func TestSaveDecisionSpecOverwrites(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	first := model.DefaultDecisionSpecWithBudget(model.AgentBudgetMax)
	first.Query = "rtx 4070"
	if err := store.SaveDecisionSpec(ctx, first); err != nil {
		t.Fatalf("SaveDecisionSpec error: %v", err)
	}

	second := model.DefaultDecisionSpec()
	second.Query = "mx master"
	second.RequiredKeywords = []string{"mouse"}
	second.Weights = model.Weights{Price: 0.5, SpecMatch: 0.5}
	if err := store.SaveDecisionSpec(ctx, second); err != nil {
		t.Fatalf("SaveDecisionSpec error: %v", err)
	}

	got, err := store.LoadDecisionSpec(ctx)
	if err != nil {
		t.Fatalf("LoadDecisionSpec error: %v", err)
	}
	if got == nil {
		t.Fatalf("expected stored spec")
	}
	if got.Query != "mx master" || got.BudgetMax != model.DefaultBudgetMax {
		t.Fatalf("unexpected spec: %+v", got)
	}
	if len(got.RequiredKeywords) != 1 || got.RequiredKeywords[0] != "mouse" {
		t.Fatalf("unexpected required keywords: %v", got.RequiredKeywords)
	}
	if got.Weights != second.Weights {
		t.Fatalf("weights mismatch: %+v", got.Weights)
	}

	var count int64
	if err := store.db.Model(&model.Preference{}).Count(&count).Error; err != nil {
		t.Fatalf("count preferences: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 preference row, got %d", count)
	}
}

func TestLoadPreferenceRejectsCorruptBlob(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	if err := store.db.Create(&model.Preference{Key: "broken", Value: []byte(`"not an object"`)}).Error; err != nil {
		t.Fatalf("seed preference: %v", err)
	}

	var spec model.DecisionSpec
	if _, err := store.LoadPreference(ctx, "broken", &spec); err == nil {
		t.Fatalf("expected decode error")
	}
}
