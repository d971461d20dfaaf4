package aggregate

import (
	"testing"

	"github.com/cognicore/pimsense/pkg/pimsense/config"
)

func TestProfilerCoverage(t *testing.T) {
	ids := config.DefaultConfig().Attributes
	p := NewProfiler(ids, 10)

	p.Add(rec("P1", "CAT1", map[string]string{
		ids.WebName:     "<p>Llave <b>Monomando</b></p>",
		ids.BrandPrimary: "FOSET",
		ids.Department:  "Plomería",
		ids.SpanishDesc: "Llave monomando para cocina",
	}))
	p.Add(rec("P2", "", map[string]string{
		ids.WebName:  "Tarja",
		ids.BrandAlt: "Rotoplas",
	}))
	p.Add(rec("P3", "CAT1", nil))

	out := p.Result()
	if out.ProductsSampled != 3 {
		t.Fatalf("sampled = %d", out.ProductsSampled)
	}

	approx := func(key string, want float64) {
		t.Helper()
		if got := out.CoveragePct[key]; got < want-0.01 || got > want+0.01 {
			t.Errorf("coverage[%s] = %.2f, want %.2f", key, got, want)
		}
	}
	approx("product_id", 100)
	approx("parent_id", 100.0*2/3)
	approx("web_name", 100.0*2/3)
	approx("brand", 100.0*2/3) // primary and alt brand ids both count
	approx("spanish_desc", 100.0/3)
	approx("english_desc", 0)
	approx("best_language_desc", 100.0/3)

	if len(out.TextSamples) != 2 {
		t.Fatalf("samples = %v", out.TextSamples)
	}
	if out.TextSamples[0] != "Llave Monomando" {
		t.Errorf("markup not stripped from sample: %q", out.TextSamples[0])
	}
	if out.TopBrands[0].Value != "FOSET" && out.TopBrands[0].Value != "Rotoplas" {
		t.Errorf("top brands = %v", out.TopBrands)
	}
}

func TestProfilerEmpty(t *testing.T) {
	out := NewProfiler(config.DefaultConfig().Attributes, 5).Result()
	if out.ProductsSampled != 0 {
		t.Errorf("sampled = %d", out.ProductsSampled)
	}
	if out.CoveragePct["best_language_desc"] != 0 {
		t.Error("empty profile must report zero coverage, not NaN")
	}
}

func TestProfilerSampleBound(t *testing.T) {
	ids := config.DefaultConfig().Attributes
	p := NewProfiler(ids, 2)
	for i := 0; i < 5; i++ {
		p.Add(rec("P", "", map[string]string{ids.WebName: "Producto"}))
	}
	if got := len(p.Result().TextSamples); got != 2 {
		t.Errorf("sample bound not honored: %d", got)
	}
}
