package pimsense

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cognicore/pimsense/pkg/pimsense/config"
	"github.com/cognicore/pimsense/pkg/pimsense/export"
	"github.com/cognicore/pimsense/pkg/pimsense/internalerr"
	"github.com/cognicore/pimsense/pkg/pimsense/kb"
	"github.com/cognicore/pimsense/pkg/pimsense/kb/memstore"
	"github.com/cognicore/pimsense/pkg/pimsense/signals"
)

const productsXML = `<?xml version="1.0" encoding="UTF-8"?>
<STEP-ProductInformation>
  <Products>
    <Product ID="P1" UserTypeID="PMDM.PRD.GoldenRecord" ParentID="CAT1">
      <Name>Llave Monomando</Name>
      <Values>
        <Value AttributeID="THD.PR.WebName">Llave monomando para cocina cromo</Value>
        <Value AttributeID="THD.CT.COLOR">Cromo</Value>
        <Value AttributeID="THD.PR.SpanishDescription">Llave de acero para la cocina con acabado cromo</Value>
      </Values>
    </Product>
    <Product ID="P2" UserTypeID="PMDM.PRD.GoldenRecord" ParentID="CAT1">
      <Name>Llave Mezcladora</Name>
      <Values>
        <Value AttributeID="THD.PR.WebName">Llave mezcladora para el baño</Value>
        <Value AttributeID="THD.CT.COLOR">Negro</Value>
      </Values>
    </Product>
    <Product ID="P3" UserTypeID="PMDM.PRD.Draft" ParentID="CAT1">
      <Name>Borrador</Name>
    </Product>
    <Product ID="P4" UserTypeID="PMDM.PRD.GoldenRecord" ParentID="CAT2">
      <Name>Taladro</Name>
      <Values>
        <Value AttributeID="THD.PR.WebName">Taladro inalámbrico para concreto</Value>
      </Values>
    </Product>
  </Products>
</STEP-ProductInformation>`

const hierarchyXML = `<?xml version="1.0" encoding="UTF-8"?>
<STEP-ProductInformation>
  <Products>
    <Product ID="DEPT1" UserTypeID="PMDM.HIE.Department">
      <Name>Plomería</Name>
    </Product>
    <Product ID="CAT1" ParentID="DEPT1" UserTypeID="PMDM.HIE.Category">
      <Name>Llaves</Name>
      <Values>
        <Value AttributeID="THD.HR.WebDepartment">Plomería</Value>
        <Value AttributeID="THD.HR.WebCategory">Llaves</Value>
      </Values>
    </Product>
  </Products>
</STEP-ProductInformation>`

func writeFixture(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func testEngine(t *testing.T) (*Engine, *memstore.Store, Inputs) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.MinProducts = 2
	cfg.MinStrongAttrs = 1

	store := memstore.New()
	eng := New(Options{Store: store, Config: cfg})
	in := Inputs{
		ProductFiles:   []string{writeFixture(t, dir, "products.xml", productsXML)},
		HierarchyFiles: []string{writeFixture(t, dir, "hierarchy.xml", hierarchyXML)},
	}
	return eng, store, in
}

func TestAnalyzeEndToEnd(t *testing.T) {
	eng, _, in := testEngine(t)
	a, err := eng.Analyze(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}

	if a.RunID == "" {
		t.Error("missing run id")
	}
	if got := a.Report.ProductFiles[0].Records; got != 3 {
		t.Errorf("golden records = %d, want 3 (draft excluded)", got)
	}
	if a.Report.UniqueCategoryKeys != 2 {
		t.Errorf("unique keys = %d", a.Report.UniqueCategoryKeys)
	}

	// CAT1 dominates, so it sorts first.
	if a.CategoryMap[0].CategoryKey != "CAT1" || a.CategoryMap[0].ProductCount != 2 {
		t.Fatalf("category map = %+v", a.CategoryMap)
	}
	if a.CategoryMap[0].Breadcrumb != "Plomería > Llaves" {
		t.Errorf("breadcrumb = %q", a.CategoryMap[0].Breadcrumb)
	}
	// CAT2 is not in the hierarchy; its breadcrumb falls back to the key.
	if a.CategoryMap[1].Breadcrumb != "CAT2" {
		t.Errorf("fallback breadcrumb = %q", a.CategoryMap[1].Breadcrumb)
	}

	if a.Locale.Locale != "es-MX" {
		t.Errorf("locale = %q", a.Locale.Locale)
	}

	byKey := make(map[string]signals.CategoryInsight)
	for _, ins := range a.Insights {
		byKey[ins.CategoryKey] = ins
	}
	if !byKey["CAT1"].GenerateDescription {
		t.Errorf("CAT1 should pass the gate: %v", byKey["CAT1"].SkipReasons)
	}
	if byKey["CAT2"].GenerateDescription {
		t.Error("CAT2 (1 product, no labels) must not pass the gate")
	}

	if len(a.Report.ReadinessScores) == 0 {
		t.Error("readiness scores missing")
	}
}

func TestAnalyzeRequiresProducts(t *testing.T) {
	eng, _, _ := testEngine(t)
	_, err := eng.Analyze(context.Background(), Inputs{})
	if !errors.Is(err, internalerr.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestAnalyzeWithoutHierarchy(t *testing.T) {
	eng, _, in := testEngine(t)
	in.HierarchyFiles = nil
	a, err := eng.Analyze(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	// Without the hierarchy file CAT1 has no index entry; its records still
	// aggregate and the breadcrumb falls back to the raw key.
	if a.CategoryMap[0].CategoryKey != "CAT1" || a.CategoryMap[0].Breadcrumb != "CAT1" {
		t.Errorf("category map = %+v", a.CategoryMap[0])
	}
}

func TestPersistWritesArtifactsAndMerges(t *testing.T) {
	eng, store, in := testEngine(t)
	ctx := context.Background()
	outDir := filepath.Join(t.TempDir(), "outputs")

	a, err := eng.Analyze(ctx, in)
	if err != nil {
		t.Fatal(err)
	}
	if err := eng.Persist(ctx, a, outDir); err != nil {
		t.Fatal(err)
	}

	if a.Report.KnowledgeBaseMerge.Added != 2 || a.Report.KnowledgeBaseMerge.Updated != 0 {
		t.Errorf("first merge = %+v", a.Report.KnowledgeBaseMerge)
	}

	for _, name := range []string{"category_map.jsonl", "category_insights.jsonl", "category_kb.jsonl", "dataset_report.json"} {
		if _, err := os.Stat(filepath.Join(outDir, name)); err != nil {
			t.Errorf("missing artifact %s: %v", name, err)
		}
	}

	rows, err := export.ReadJSONL[kb.Entry](filepath.Join(outDir, "category_kb.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("kb snapshot rows = %d", len(rows))
	}
	for _, r := range rows {
		if !r.NeedsReview {
			t.Errorf("new entry %s must need review", r.CategoryKey)
		}
	}

	// Second run over the same data updates instead of duplicating.
	b, err := eng.Analyze(ctx, in)
	if err != nil {
		t.Fatal(err)
	}
	if err := eng.Persist(ctx, b, outDir); err != nil {
		t.Fatal(err)
	}
	if b.Report.KnowledgeBaseMerge.Added != 0 || b.Report.KnowledgeBaseMerge.Updated != 2 {
		t.Errorf("second merge = %+v", b.Report.KnowledgeBaseMerge)
	}

	entries, err := store.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Errorf("store entries = %d", len(entries))
	}
}

func TestPersistPreservesClearedReview(t *testing.T) {
	eng, store, in := testEngine(t)
	ctx := context.Background()
	outDir := t.TempDir()

	a, err := eng.Analyze(ctx, in)
	if err != nil {
		t.Fatal(err)
	}
	if err := eng.Persist(ctx, a, outDir); err != nil {
		t.Fatal(err)
	}
	if err := store.ClearReview(ctx, "CAT1", "curator"); err != nil {
		t.Fatal(err)
	}

	b, err := eng.Analyze(ctx, in)
	if err != nil {
		t.Fatal(err)
	}
	if err := eng.Persist(ctx, b, outDir); err != nil {
		t.Fatal(err)
	}
	entries, _ := store.Load(ctx)
	if entries["CAT1"].NeedsReview {
		t.Error("re-merge with intact evidence must not re-flag a curated entry")
	}
}

func TestPersistWithoutStore(t *testing.T) {
	eng := New(Options{Config: config.DefaultConfig()})
	err := eng.Persist(context.Background(), &Analysis{}, t.TempDir())
	if !errors.Is(err, internalerr.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestAnalyzeAutoStrategy(t *testing.T) {
	eng, _, in := testEngine(t)
	eng.cfg.GroupingStrategy = "auto"
	eng.cfg.AutoGroup.MinGroupProducts = 2
	eng.cfg.AutoGroup.ScoreThreshold = 0

	a, err := eng.Analyze(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	if len(a.AutoGroups) == 0 {
		t.Fatal("auto strategy should surface selected groups")
	}
	var foundParentGroup bool
	for _, row := range a.CategoryMap {
		if strings.HasPrefix(row.CategoryKey, "by_parent_id::CAT1") {
			foundParentGroup = true
		}
	}
	if !foundParentGroup {
		t.Errorf("category map lacks the parent auto group: %+v", a.CategoryMap)
	}
}
