package automation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-node/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-node/internal/infrastructure/database"
	_ "github.com/nerrad567/gray-logic-node/migrations"
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{Path: database.MemoryPath, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return db
}

func TestSQLiteDocumentStore(t *testing.T) {
	ctx := context.Background()
	store := NewSQLiteDocumentStore(openTestDB(t).DB)

	if _, err := store.LoadDocument(ctx, "node"); !errors.Is(err, ErrDocumentNotFound) {
		t.Fatalf("LoadDocument(empty) error = %v, want ErrDocumentNotFound", err)
	}

	doc, err := ParseDocument([]byte(`{"metadata": {"id": "hall"}, "device1": {"_type": "relay", "topic": "a"}}`))
	if err != nil {
		t.Fatal(err)
	}
	if err := store.SaveDocument(ctx, "node", doc); err != nil {
		t.Fatalf("SaveDocument() error = %v", err)
	}
	doc.Metadata.ID = "porch"
	if err := store.SaveDocument(ctx, "node", doc); err != nil {
		t.Fatalf("SaveDocument(update) error = %v", err)
	}

	got, err := store.LoadDocument(ctx, "node")
	if err != nil {
		t.Fatalf("LoadDocument() error = %v", err)
	}
	if got.Metadata.ID != "porch" || got.Instances["device1"].Type() != "relay" {
		t.Errorf("LoadDocument() = %+v", got)
	}

	if err := store.SaveDocument(ctx, "", doc); err == nil {
		t.Error("SaveDocument(\"\") succeeded")
	}
}

func TestLoadOrSeed(t *testing.T) {
	ctx := context.Background()
	store := NewSQLiteDocumentStore(openTestDB(t).DB)

	calls := 0
	seed := func() (*Document, error) {
		calls++
		return ParseDocument([]byte(`{"metadata": {"id": "seeded"}}`))
	}

	for range 2 {
		doc, err := LoadOrSeed(ctx, store, "node", seed)
		if err != nil {
			t.Fatalf("LoadOrSeed() error = %v", err)
		}
		if doc.Metadata.ID != "seeded" {
			t.Errorf("Metadata.ID = %q", doc.Metadata.ID)
		}
	}
	if calls != 1 {
		t.Errorf("seed called %d times, want 1", calls)
	}

	errSeed := errors.New("unreadable")
	_, err := LoadOrSeed(ctx, store, "other", func() (*Document, error) { return nil, errSeed })
	if !errors.Is(err, errSeed) {
		t.Errorf("LoadOrSeed(failing seed) error = %v", err)
	}
}

func TestEngine_SaveSchedules(t *testing.T) {
	ctx := context.Background()
	store := NewSQLiteDocumentStore(openTestDB(t).DB)

	f := newEngineFixture(t, at(1, 12, 0), `{
		"device1": {"_type": "dimmer", "topic": "t", "default_rule": 10, "schedule": {"07:00": 80}}
	}`, func(o *Options) {
		o.Store = store
		o.DocumentID = "node"
	})
	if err := f.engine.AddScheduleRule("device1", "12:30", 40); err != nil {
		t.Fatal(err)
	}
	if err := f.engine.AddKeyword("evening", "19:45"); err != nil {
		t.Fatal(err)
	}
	if err := f.engine.SaveSchedules(ctx); err != nil {
		t.Fatalf("SaveSchedules() error = %v", err)
	}

	saved, err := store.LoadDocument(ctx, "node")
	if err != nil {
		t.Fatal(err)
	}
	if got := saved.Instances["device1"].Schedule()["12:30"]; got != float64(40) {
		t.Errorf("saved 12:30 = %v, want 40", got)
	}
	if got := saved.Metadata.ScheduleKeywords["evening"]; got != "19:45" {
		t.Errorf("saved keyword evening = %q", got)
	}

	bare := newEngineFixture(t, at(1, 12, 0), `{}`)
	if err := bare.engine.SaveSchedules(ctx); !errors.Is(err, ErrNoDocumentStore) {
		t.Errorf("SaveSchedules() without store error = %v, want ErrNoDocumentStore", err)
	}
}

func TestEngine_Replace(t *testing.T) {
	ctx := context.Background()
	store := NewSQLiteDocumentStore(openTestDB(t).DB)
	f := newEngineFixture(t, at(1, 12, 0), `{"device1": {"_type": "relay", "topic": "a"}}`, func(o *Options) {
		o.Store = store
		o.DocumentID = "node"
	})

	next, err := ParseDocument([]byte(`{"device1": {"_type": "relay", "topic": "a"}, "device2": {"_type": "relay", "topic": "b"}}`))
	if err != nil {
		t.Fatal(err)
	}
	if err := f.engine.Replace(ctx, next); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}
	if _, err := f.engine.Find("device2"); err != nil {
		t.Errorf("Find(device2) after Replace error = %v", err)
	}
	if saved, err := store.LoadDocument(ctx, "node"); err != nil || len(saved.Instances) != 2 {
		t.Errorf("stored document = %v, %v", saved, err)
	}
}

func TestSQLiteRuleHistoryRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteRuleHistoryRepository(openTestDB(t).DB)
	base := time.Now().UTC().Add(-time.Hour)

	entries := []RuleHistoryEntry{
		{Instance: "device1", Event: "rule_changed", Rule: 50, Previous: 0, Scheduled: true, CreatedAt: base},
		{Instance: "device1", Event: "rule_changed", Rule: "fade/80/60", Previous: 50, CreatedAt: base.Add(500 * time.Millisecond)},
		{Instance: "device1", Event: "disabled", CreatedAt: base.Add(time.Second)},
		{Instance: "device2", Event: "enabled", CreatedAt: base},
		{Instance: "device1", Event: "rule_changed", Rule: 10, CreatedAt: time.Now().UTC().Add(-48 * time.Hour)},
	}
	for _, e := range entries {
		if err := repo.RecordRuleChange(ctx, e); err != nil {
			t.Fatalf("RecordRuleChange() error = %v", err)
		}
	}

	got, err := repo.GetHistory(ctx, "device1", 0)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("len = %d, want 4", len(got))
	}
	if got[0].Event != "disabled" || got[0].Rule != nil {
		t.Errorf("newest = %+v, want the disable", got[0])
	}
	if got[1].Rule != "fade/80/60" || got[1].Previous != float64(50) {
		t.Errorf("second = %+v", got[1])
	}
	if !got[2].Scheduled || got[2].Rule != float64(50) {
		t.Errorf("third = %+v", got[2])
	}

	limited, err := repo.GetHistory(ctx, "device1", 2)
	if err != nil || len(limited) != 2 {
		t.Errorf("GetHistory(limit 2) = %d entries, %v", len(limited), err)
	}

	n, err := repo.PruneHistory(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("PruneHistory() error = %v", err)
	}
	if n != 1 {
		t.Errorf("PruneHistory() removed %d, want 1", n)
	}

	invalid := []struct {
		name string
		fn   func() error
	}{
		{"no instance", func() error { return repo.RecordRuleChange(ctx, RuleHistoryEntry{Event: "enabled"}) }},
		{"no event", func() error { return repo.RecordRuleChange(ctx, RuleHistoryEntry{Instance: "device1"}) }},
		{"history without instance", func() error { _, err := repo.GetHistory(ctx, "", 10); return err }},
		{"zero prune window", func() error { _, err := repo.PruneHistory(ctx, 0); return err }},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			if tt.fn() == nil {
				t.Error("expected an error")
			}
		})
	}
}
