package aggregate

import (
	"sort"

	"github.com/cognicore/pimsense/pkg/pimsense/config"
	"github.com/cognicore/pimsense/pkg/pimsense/ingest"
	"github.com/cognicore/pimsense/pkg/pimsense/stepxml"
)

// Profiler accumulates dataset-wide coverage statistics in the same
// streaming pass the Aggregator runs in. Its output feeds locale detection
// and the readiness scores.
type Profiler struct {
	ids        config.AttributeIDs
	maxSamples int

	n            int
	coverage     map[string]int
	deptTop      map[string]int
	catTop       map[string]int
	subTop       map[string]int
	brandTop     map[string]int
	attrPresence map[string]int

	hasLong, hasShort, hasES, hasEN int

	samples []string
}

// NewProfiler creates a profiler retaining up to maxSamples text samples.
func NewProfiler(ids config.AttributeIDs, maxSamples int) *Profiler {
	if maxSamples <= 0 {
		maxSamples = 250
	}
	return &Profiler{
		ids:          ids,
		maxSamples:   maxSamples,
		coverage:     make(map[string]int),
		deptTop:      make(map[string]int),
		catTop:       make(map[string]int),
		subTop:       make(map[string]int),
		brandTop:     make(map[string]int),
		attrPresence: make(map[string]int),
	}
}

// Add consumes one record.
func (p *Profiler) Add(rec *stepxml.ProductRecord) {
	p.n++
	if rec.ID != "" {
		p.coverage["product_id"]++
	}
	if rec.ParentID != "" {
		p.coverage["parent_id"]++
	}

	webName := rec.First(p.ids.WebName)
	if webName == "" {
		webName = rec.Name
	}
	if webName != "" {
		p.coverage["web_name"]++
		if len(p.samples) < p.maxSamples {
			p.samples = append(p.samples, ingest.StripMarkup(webName))
		}
	}

	brand := rec.First(p.ids.BrandPrimary)
	if brand == "" {
		brand = rec.First(p.ids.BrandAlt)
	}
	if brand != "" {
		p.coverage["brand"]++
		p.brandTop[brand]++
	}
	if rec.First(p.ids.Model) != "" {
		p.coverage["model"]++
	}

	if v := rec.First(p.ids.Department); v != "" {
		p.coverage["department"]++
		p.deptTop[v]++
	}
	if v := rec.First(p.ids.Category); v != "" {
		p.coverage["category"]++
		p.catTop[v]++
	}
	if v := rec.First(p.ids.Subcategory); v != "" {
		p.coverage["subcategory"]++
		p.subTop[v]++
	}

	if rec.First(p.ids.WebLong) != "" {
		p.hasLong++
	}
	if rec.First(p.ids.WebShort) != "" {
		p.hasShort++
	}
	if rec.First(p.ids.SpanishDesc) != "" {
		p.hasES++
	}
	if rec.First(p.ids.EnglishDesc) != "" {
		p.hasEN++
	}

	for attrID := range rec.Values {
		p.attrPresence[attrID]++
	}
}

// ValueCount is a counted distinct value.
type ValueCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// AttrPct pairs an attribute id with the percentage of products carrying it.
type AttrPct struct {
	AttributeID string  `json:"attribute_id"`
	PctProducts float64 `json:"pct_products"`
}

// Profile is the finalized dataset profile.
type Profile struct {
	ProductsSampled int                `json:"products_sampled"`
	CoveragePct     map[string]float64 `json:"coverage_pct"`
	DescPresencePct map[string]float64 `json:"descriptions_presence_pct"`

	TopDepartments   []ValueCount `json:"top_departments"`
	TopCategories    []ValueCount `json:"top_categories"`
	TopSubcategories []ValueCount `json:"top_subcategories"`
	TopBrands        []ValueCount `json:"top_brands"`
	TopAttributeIDs  []AttrPct    `json:"top_attribute_ids_by_presence"`

	TextSamples []string `json:"text_samples"`
}

// Result finalizes the profile. Coverage percentages include the derived
// "best_language_desc" key consumed by translation readiness.
func (p *Profiler) Result() Profile {
	pct := func(x int) float64 {
		if p.n == 0 {
			return 0
		}
		return float64(x) / float64(p.n) * 100.0
	}

	coverage := make(map[string]float64, len(p.coverage)+3)
	for k, v := range p.coverage {
		coverage[k] = pct(v)
	}
	coverage["spanish_desc"] = pct(p.hasES)
	coverage["english_desc"] = pct(p.hasEN)
	best := p.hasES
	if p.hasEN > best {
		best = p.hasEN
	}
	coverage["best_language_desc"] = pct(best)

	return Profile{
		ProductsSampled: p.n,
		CoveragePct:     coverage,
		DescPresencePct: map[string]float64{
			"web_long":     pct(p.hasLong),
			"web_short":    pct(p.hasShort),
			"spanish_desc": pct(p.hasES),
			"english_desc": pct(p.hasEN),
		},
		TopDepartments:   topValues(p.deptTop, 15),
		TopCategories:    topValues(p.catTop, 15),
		TopSubcategories: topValues(p.subTop, 15),
		TopBrands:        topValues(p.brandTop, 15),
		TopAttributeIDs:  topAttrPct(p.attrPresence, p.n, 30),
		TextSamples:      p.samples,
	}
}

func topValues(m map[string]int, k int) []ValueCount {
	out := make([]ValueCount, 0, len(m))
	for v, n := range m {
		out = append(out, ValueCount{Value: v, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Value < out[j].Value
	})
	if len(out) > k {
		out = out[:k]
	}
	return out
}

func topAttrPct(m map[string]int, total, k int) []AttrPct {
	out := make([]AttrPct, 0, len(m))
	for id, n := range m {
		p := 0.0
		if total > 0 {
			p = float64(n) / float64(total) * 100.0
		}
		out = append(out, AttrPct{AttributeID: id, PctProducts: p})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PctProducts != out[j].PctProducts {
			return out[i].PctProducts > out[j].PctProducts
		}
		return out[i].AttributeID < out[j].AttributeID
	})
	if len(out) > k {
		out = out[:k]
	}
	return out
}
