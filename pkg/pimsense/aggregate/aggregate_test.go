package aggregate

import (
	"reflect"
	"testing"

	"github.com/cognicore/pimsense/pkg/pimsense/stepxml"
)

const (
	deptAttr = "THD.HR.WebDepartment"
	catAttr  = "THD.HR.WebCategory"
	subAttr  = "THD.HR.WebSubCategory"
	nameAttr = "THD.PR.WebName"
)

func rec(id, parent string, attrs map[string]string) *stepxml.ProductRecord {
	r := &stepxml.ProductRecord{ID: id, ParentID: parent, Values: make(map[string][]stepxml.Value)}
	for k, v := range attrs {
		r.Values[k] = []stepxml.Value{{Text: v}}
	}
	return r
}

func newAgg() *Aggregator {
	return New(Options{
		Resolver:    StructuralResolver{DeptAttr: deptAttr, CatAttr: catAttr, SubAttr: subAttr},
		WebNameAttr: nameAttr,
		DeptAttr:    deptAttr,
		CatAttr:     catAttr,
		SubAttr:     subAttr,
		SampleCap:   3,
	})
}

func TestStructuralResolverParentWins(t *testing.T) {
	r := StructuralResolver{DeptAttr: deptAttr, CatAttr: catAttr, SubAttr: subAttr}

	key, ok := r.Resolve(rec("P1", "CAT9", map[string]string{catAttr: "Llaves"}))
	if !ok || key != "CAT9" {
		t.Errorf("parent reference must win: %q %v", key, ok)
	}
}

func TestStructuralResolverCompositeFallback(t *testing.T) {
	r := StructuralResolver{DeptAttr: deptAttr, CatAttr: catAttr, SubAttr: subAttr}

	key, ok := r.Resolve(rec("P1", "", map[string]string{
		deptAttr: "Plomería",
		subAttr:  "Monomando",
	}))
	if !ok || key != "Plomería > Monomando" {
		t.Errorf("composite key = %q, ok=%v", key, ok)
	}

	if _, ok := r.Resolve(rec("P2", "", nil)); ok {
		t.Error("record with no parent and no labels must not resolve")
	}
}

func TestAggregatorBucketsAndCounts(t *testing.T) {
	agg := newAgg()
	agg.Add(rec("P1", "CAT1", map[string]string{nameAttr: "Llave A", "THD.CT.COLOR": "Cromo", deptAttr: "Plomería"}))
	agg.Add(rec("P2", "CAT1", map[string]string{nameAttr: "Llave B", "THD.CT.COLOR": "Negro"}))
	agg.Add(rec("P3", "CAT2", map[string]string{nameAttr: "Taladro"}))
	agg.Add(rec("P4", "", nil)) // resolves nowhere

	ctxs := agg.Finalize()
	if len(ctxs) != 3 {
		t.Fatalf("expected 3 contexts, got %d", len(ctxs))
	}
	if ctxs[0].Key != "CAT1" || ctxs[0].Products != 2 {
		t.Errorf("largest context first: %q/%d", ctxs[0].Key, ctxs[0].Products)
	}
	if got := ctxs[0].AttrPresence["THD.CT.COLOR"]; got != 2 {
		t.Errorf("color presence = %d", got)
	}

	var keys []string
	for _, c := range ctxs {
		keys = append(keys, c.Key)
	}
	// CAT2 and UNMAPPED both hold one product; ties break by key.
	want := []string{"CAT1", "CAT2", UnmappedKey}
	if !reflect.DeepEqual(keys, want) {
		t.Errorf("order = %v, want %v", keys, want)
	}
}

func TestAggregatorOrderIndependent(t *testing.T) {
	records := []*stepxml.ProductRecord{
		rec("P1", "CAT1", map[string]string{nameAttr: "A", "X": "1", deptAttr: "Plomería"}),
		rec("P2", "CAT1", map[string]string{"Y": "2", deptAttr: "Plomería"}),
		rec("P3", "CAT2", map[string]string{"X": "3"}),
	}

	forward, reverse := newAgg(), newAgg()
	for _, r := range records {
		forward.Add(r)
	}
	for i := len(records) - 1; i >= 0; i-- {
		reverse.Add(records[i])
	}

	a, b := forward.Finalize(), reverse.Finalize()
	if len(a) != len(b) {
		t.Fatalf("context counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].Key != b[i].Key || a[i].Products != b[i].Products {
			t.Errorf("context %d differs: %s/%d vs %s/%d", i, a[i].Key, a[i].Products, b[i].Key, b[i].Products)
		}
		if !reflect.DeepEqual(a[i].AttrPresence, b[i].AttrPresence) {
			t.Errorf("context %s presence differs", a[i].Key)
		}
		if a[i].Labels() != b[i].Labels() {
			t.Errorf("context %s labels differ", a[i].Key)
		}
	}
}

func TestAggregatorSampleCap(t *testing.T) {
	agg := newAgg()
	for i := 0; i < 10; i++ {
		agg.Add(rec("P", "CAT1", map[string]string{nameAttr: "Producto"}))
	}
	ctxs := agg.Finalize()
	if len(ctxs[0].Samples) != 3 {
		t.Errorf("sample cap not honored: %d", len(ctxs[0].Samples))
	}
}

func TestContextMajorityLabels(t *testing.T) {
	agg := newAgg()
	agg.Add(rec("P1", "CAT1", map[string]string{deptAttr: "Plomería", catAttr: "Llaves"}))
	agg.Add(rec("P2", "CAT1", map[string]string{deptAttr: "Plomería", catAttr: "Tarjas"}))
	agg.Add(rec("P3", "CAT1", map[string]string{deptAttr: "Herramientas", catAttr: "Llaves"}))

	labels := agg.Finalize()[0].Labels()
	if labels.Department != "Plomería" || labels.Category != "Llaves" {
		t.Errorf("majority labels = %+v", labels)
	}
	if labels.Subcategory != "" {
		t.Errorf("no votes should give empty label, got %q", labels.Subcategory)
	}
}

func TestTopAttrsOrdering(t *testing.T) {
	ctx := &Context{AttrPresence: map[string]int{"B": 3, "A": 3, "C": 5, "D": 1}}
	got := ctx.TopAttrs(3)
	want := []AttrCount{{"C", 5}, {"A", 3}, {"B", 3}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("TopAttrs = %v, want %v", got, want)
	}
}
