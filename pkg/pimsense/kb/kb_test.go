package kb

import (
	"testing"
	"time"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestMergeInsertsNewFlaggedForReview(t *testing.T) {
	entries := make(map[string]*Entry)
	cats := []Category{
		{Key: "CAT1", Breadcrumb: "Plomería > Llaves", ProductCount: 120},
		{Key: "CAT2", Breadcrumb: "Herramientas > Taladros", ProductCount: 80},
	}

	stats := Merge(entries, cats, "es-MX", "run-1", t0)
	if stats.Added != 2 || stats.Updated != 0 {
		t.Fatalf("stats = %+v", stats)
	}

	e := entries["CAT1"]
	if !e.NeedsReview {
		t.Error("new entries must be flagged for review")
	}
	if e.Locale != "es-MX" || e.Breadcrumb != "Plomería > Llaves" {
		t.Errorf("entry = %+v", e)
	}
	if len(e.History) != 1 || e.History[0].Action != ActionAutoDetected {
		t.Errorf("history = %v", e.History)
	}
}

func TestMergeRefreshesExisting(t *testing.T) {
	entries := make(map[string]*Entry)
	cats := []Category{
		{Key: "CAT1", Breadcrumb: "Plomería > Llaves", ProductCount: 120},
		{Key: "CAT2", Breadcrumb: "Herramientas > Taladros", ProductCount: 80},
	}
	Merge(entries, cats, "es-MX", "run-1", t0)

	cats[0].ProductCount = 150
	stats := Merge(entries, cats, "es-MX", "run-2", t0.Add(time.Hour))
	if stats.Added != 0 || stats.Updated != 2 {
		t.Fatalf("re-merge stats = %+v", stats)
	}
	if len(entries) != 2 {
		t.Errorf("re-merge must not duplicate keys: %d", len(entries))
	}
	if entries["CAT1"].ProductCount != 150 {
		t.Errorf("count not refreshed: %d", entries["CAT1"].ProductCount)
	}
	if got := entries["CAT1"].History; len(got) != 2 || got[1].Action != ActionRefreshed {
		t.Errorf("history = %v", got)
	}
}

func TestMergeNeverClearsReview(t *testing.T) {
	entries := make(map[string]*Entry)
	cats := []Category{{Key: "CAT1", Breadcrumb: "Plomería", ProductCount: 10}}
	Merge(entries, cats, "es-MX", "run-1", t0)

	for i := 0; i < 3; i++ {
		Merge(entries, cats, "es-MX", "run-n", t0)
	}
	if !entries["CAT1"].NeedsReview {
		t.Error("merge must never clear needs_review")
	}
}

func TestMergePreservesCuration(t *testing.T) {
	entries := make(map[string]*Entry)
	Merge(entries, []Category{{Key: "CAT1", Breadcrumb: "Plomería", ProductCount: 10}}, "es-MX", "run-1", t0)

	// Human curation.
	entries["CAT1"].NeedsReview = false
	entries["CAT1"].Notes = "curated copy"

	Merge(entries, []Category{{Key: "CAT1", Breadcrumb: "Plomería > Llaves", ProductCount: 20}}, "es-MX", "run-2", t0)
	e := entries["CAT1"]
	if e.NeedsReview {
		t.Error("refresh with good evidence must preserve cleared review state")
	}
	if e.Notes != "curated copy" {
		t.Errorf("notes clobbered: %q", e.Notes)
	}
}

func TestMergeLocaleSetOnce(t *testing.T) {
	entries := make(map[string]*Entry)
	cats := []Category{{Key: "CAT1", Breadcrumb: "B", ProductCount: 1}}
	Merge(entries, cats, "es-MX", "run-1", t0)
	Merge(entries, cats, "en-US", "run-2", t0)
	if entries["CAT1"].Locale != "es-MX" {
		t.Errorf("locale must not be overwritten, got %q", entries["CAT1"].Locale)
	}

	// But an unset locale fills in later.
	entries2 := make(map[string]*Entry)
	Merge(entries2, cats, "", "run-1", t0)
	Merge(entries2, cats, "es-MX", "run-2", t0)
	if entries2["CAT1"].Locale != "es-MX" {
		t.Errorf("unset locale should fill in, got %q", entries2["CAT1"].Locale)
	}
}

func TestMergeEvidenceDecay(t *testing.T) {
	entries := make(map[string]*Entry)
	Merge(entries, []Category{{Key: "CAT1", Breadcrumb: "Plomería > Llaves", ProductCount: 10}}, "es-MX", "run-1", t0)
	entries["CAT1"].NeedsReview = false

	// The hierarchy disappeared; the breadcrumb degrades to the raw key.
	Merge(entries, []Category{{Key: "CAT1", Breadcrumb: "", ProductCount: 10}}, "es-MX", "run-2", t0)
	e := entries["CAT1"]
	if !e.NeedsReview {
		t.Error("breadcrumb decay must re-flag the entry")
	}
	last := e.History[len(e.History)-1]
	if last.Action != ActionEvidenceDecay {
		t.Errorf("last action = %q", last.Action)
	}
}

func TestMergeIdempotent(t *testing.T) {
	cats := []Category{
		{Key: "CAT1", Breadcrumb: "A > B", ProductCount: 7},
		{Key: "CAT2", Breadcrumb: "A > C", ProductCount: 3},
	}
	entries := make(map[string]*Entry)
	Merge(entries, cats, "es-MX", "run-1", t0)
	before := len(entries)

	stats := Merge(entries, cats, "es-MX", "run-2", t0)
	if stats.Added != 0 {
		t.Errorf("identical re-merge added %d", stats.Added)
	}
	if len(entries) != before {
		t.Errorf("entry count changed: %d -> %d", before, len(entries))
	}
	if entries["CAT1"].ProductCount != 7 || entries["CAT1"].Breadcrumb != "A > B" {
		t.Errorf("entry drifted: %+v", entries["CAT1"])
	}
}

func TestSortedUnreviewedFirst(t *testing.T) {
	entries := map[string]*Entry{
		"A": {CategoryKey: "A", ProductCount: 500, NeedsReview: false},
		"B": {CategoryKey: "B", ProductCount: 10, NeedsReview: true},
		"C": {CategoryKey: "C", ProductCount: 90, NeedsReview: true},
		"D": {CategoryKey: "D", ProductCount: 90, NeedsReview: true},
	}
	got := Sorted(entries)
	var keys []string
	for _, e := range got {
		keys = append(keys, e.CategoryKey)
	}
	want := []string{"C", "D", "B", "A"}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("order = %v, want %v", keys, want)
		}
	}
}
