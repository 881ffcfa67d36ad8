package tracker

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/orpheus-ai/orpheus/pkg/models"
)

func newTestTracker(t *testing.T) *SQLiteTracker {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	tr, err := New(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}

func TestRecordAndList(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()
	now := time.Now().UTC()

	rec := models.AttemptRecord{
		CreationName:  "reel",
		Endpoint:      "acme/abc-gen",
		Outcome:       models.OutcomeEnhanced,
		EstimatedCost: 0.10,
		ActualCost:    0.05,
		ProcessingMs:  15000,
		BootMs:        90000,
		CreatedAt:     now,
	}
	if err := tr.Record(ctx, rec); err != nil {
		t.Fatal(err)
	}

	records, err := tr.List(ctx, now.Add(-time.Minute), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	got := records[0]
	if got.ID == "" {
		t.Error("expected generated id")
	}
	if got.Outcome != models.OutcomeEnhanced || got.CreationName != "reel" {
		t.Errorf("unexpected record: %+v", got)
	}
	if got.ActualCost != 0.05 || got.BootMs != 90000 {
		t.Errorf("unexpected costs/timings: %+v", got)
	}
}

func TestListNewestFirstWithLimit(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for i, name := range []string{"first", "second", "third"} {
		_ = tr.Record(ctx, models.AttemptRecord{
			CreationName: name,
			Outcome:      models.OutcomeDeclined,
			Reason:       string(models.DeclineBudgetExceeded),
			CreatedAt:    now.Add(time.Duration(i) * time.Second),
		})
	}

	records, err := tr.List(ctx, now.Add(-time.Minute), 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].CreationName != "third" || records[1].CreationName != "second" {
		t.Errorf("unexpected order: %s, %s", records[0].CreationName, records[1].CreationName)
	}
}

func TestListExcludesOlder(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_ = tr.Record(ctx, models.AttemptRecord{CreationName: "old", Outcome: models.OutcomeEnhanced, CreatedAt: now.Add(-48 * time.Hour)})
	_ = tr.Record(ctx, models.AttemptRecord{CreationName: "new", Outcome: models.OutcomeEnhanced, CreatedAt: now})

	records, err := tr.List(ctx, now.Add(-24*time.Hour), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].CreationName != "new" {
		t.Errorf("expected only the recent attempt, got %+v", records)
	}
}

func TestSummaryAndTotal(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_ = tr.Record(ctx, models.AttemptRecord{CreationName: "a", Outcome: models.OutcomeEnhanced, ActualCost: 0.10, ProcessingMs: 30000, CreatedAt: now})
	_ = tr.Record(ctx, models.AttemptRecord{CreationName: "b", Outcome: models.OutcomeEnhanced, ActualCost: 0.05, ProcessingMs: 10000, CreatedAt: now})
	_ = tr.Record(ctx, models.AttemptRecord{CreationName: "c", Outcome: models.OutcomeDeclined, Reason: "no_abc_extracted", CreatedAt: now})

	summaries, err := tr.Summary(ctx, now.Add(-time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if len(summaries) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(summaries))
	}
	declined, enhanced := summaries[0], summaries[1]
	if declined.Outcome != models.OutcomeDeclined || declined.Count != 1 {
		t.Errorf("unexpected declined summary: %+v", declined)
	}
	if enhanced.Count != 2 || enhanced.AvgProcessMs != 20000 {
		t.Errorf("unexpected enhanced summary: %+v", enhanced)
	}
	if math.Abs(enhanced.TotalCost-0.15) > 1e-9 {
		t.Errorf("expected total 0.15, got %f", enhanced.TotalCost)
	}

	total, err := tr.TotalCost(ctx, now.Add(-time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(total-0.15) > 1e-9 {
		t.Errorf("expected 0.15, got %f", total)
	}
}

func TestReopenKeepsHistory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()

	tr, err := New(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	_ = tr.Record(ctx, models.AttemptRecord{ID: "fixed-id", CreationName: "kept", Outcome: models.OutcomeCached})
	_ = tr.Close()

	tr, err = New(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer tr.Close()

	records, err := tr.List(ctx, time.Time{}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].ID != "fixed-id" {
		t.Errorf("expected persisted record, got %+v", records)
	}
}
