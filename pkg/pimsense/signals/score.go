// Package signals turns finalized category contexts into derived signals
// and the generate/skip decision consumed by the generation layer.
package signals

import (
	"fmt"
	"sort"

	"github.com/cognicore/pimsense/pkg/pimsense/aggregate"
	"github.com/cognicore/pimsense/pkg/pimsense/config"
	"github.com/cognicore/pimsense/pkg/pimsense/hierarchy"
	"github.com/cognicore/pimsense/pkg/pimsense/ingest"
)

// StrongAttr is an attribute whose presence ratio met the configured
// threshold, meaning it reliably characterizes the category.
type StrongAttr struct {
	AttributeID string  `json:"attribute_id"`
	Count       int     `json:"count"`
	Ratio       float64 `json:"ratio"`
}

// CategorySignals are structural and lexical flags that orient what a
// category description should talk about.
type CategorySignals struct {
	HasDimensions bool `json:"has_dimensions"`
	HasMaterial   bool `json:"has_material"`
	HasColor      bool `json:"has_color"`
	HasModel      bool `json:"has_model"`
	IsTechLike    bool `json:"is_tech_like"`
	IsHomeLike    bool `json:"is_home_like"`
}

// CategoryLabels identify a category for the insight record.
type CategoryLabels struct {
	ParentID    string `json:"parent_id"`
	Department  string `json:"web_department,omitempty"`
	Category    string `json:"web_category,omitempty"`
	Subcategory string `json:"web_subcategory,omitempty"`
}

// Evidence is the bounded supporting data shipped with each insight.
type Evidence struct {
	StrongAttributes []StrongAttr          `json:"strong_attributes"`
	TopAttributes    []aggregate.AttrCount `json:"top_attributes_by_presence"`
	SampleWebNames   []string              `json:"sample_web_names"`
}

// CategoryInsight is the per-category record consumed by the generation
// layer. GenerateDescription=false is authoritative: the generation layer
// must not override it.
type CategoryInsight struct {
	CategoryKey         string          `json:"category_key"`
	Breadcrumb          string          `json:"breadcrumb"`
	Labels              CategoryLabels  `json:"labels"`
	ProductsCount       int             `json:"products_count"`
	Keywords            []string        `json:"keywords"`
	Signals             CategorySignals `json:"signals"`
	RecommendedFocus    []string        `json:"recommended_focus"`
	GenerateDescription bool            `json:"generate_category_description"`
	SkipReasons         []string        `json:"skip_reasons"`
	Evidence            Evidence        `json:"evidence"`
}

// Scorer post-processes category contexts.
type Scorer struct {
	cfg config.Config
	tok *ingest.Tokenizer
}

// NewScorer builds a scorer; the tokenizer carries the configured stoplist.
func NewScorer(cfg config.Config) *Scorer {
	return &Scorer{cfg: cfg, tok: ingest.NewTokenizer(cfg.Stopwords)}
}

// Score derives the insight for one finalized context. labels may come
// from the hierarchy index or from the context's own label votes;
// breadcrumb defaults to the category key when the hierarchy resolved
// nothing.
func (s *Scorer) Score(ctx *aggregate.Context, labels hierarchy.Labels, breadcrumb string) CategoryInsight {
	if breadcrumb == "" {
		breadcrumb = ctx.Key
	}

	strong := s.strongAttrs(ctx)
	strongIDs := make([]string, len(strong))
	for i, a := range strong {
		strongIDs[i] = a.AttributeID
	}
	keywords := s.Keywords(ctx.Samples, s.cfg.TopKeywords)
	sig := s.categorySignals(strongIDs, keywords)

	var reasons []string
	if ctx.Products < s.cfg.MinProducts {
		reasons = append(reasons, fmt.Sprintf("product count %d below minimum %d", ctx.Products, s.cfg.MinProducts))
	}
	if len(strong) < s.cfg.MinStrongAttrs {
		reasons = append(reasons, fmt.Sprintf("strong attributes %d below minimum %d", len(strong), s.cfg.MinStrongAttrs))
	}
	if labels.Empty() && breadcrumb == ctx.Key {
		reasons = append(reasons, "no hierarchy labels resolved")
	}

	return CategoryInsight{
		CategoryKey: ctx.Key,
		Breadcrumb:  breadcrumb,
		Labels: CategoryLabels{
			ParentID:    ctx.Key,
			Department:  labels.Department,
			Category:    labels.Category,
			Subcategory: labels.Subcategory,
		},
		ProductsCount:       ctx.Products,
		Keywords:            keywords,
		Signals:             sig,
		RecommendedFocus:    recommendedFocus(sig),
		GenerateDescription: len(reasons) == 0,
		SkipReasons:         reasons,
		Evidence: Evidence{
			StrongAttributes: strong,
			TopAttributes:    ctx.TopAttrs(s.cfg.TopAttrs),
			SampleWebNames:   ctx.Samples,
		},
	}
}

// strongAttrs returns attributes whose presence ratio meets the threshold,
// ordered by count descending. The result is always a subset of the
// context's presence counters.
func (s *Scorer) strongAttrs(ctx *aggregate.Context) []StrongAttr {
	if ctx.Products == 0 {
		return nil
	}
	var out []StrongAttr
	for id, cnt := range ctx.AttrPresence {
		ratio := float64(cnt) / float64(ctx.Products)
		if ratio >= s.cfg.StrongPresence {
			out = append(out, StrongAttr{AttributeID: id, Count: cnt, Ratio: ratio})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].AttributeID < out[j].AttributeID
	})
	return out
}

// Keywords extracts the top-k frequent tokens from sampled names, after
// markup stripping, stopword removal and diacritic folding.
func (s *Scorer) Keywords(samples []string, k int) []string {
	counts := make(map[string]int)
	order := make([]string, 0)
	for _, sample := range samples {
		for _, tok := range s.tok.Tokenize(ingest.StripMarkup(sample)) {
			if counts[tok] == 0 {
				order = append(order, tok)
			}
			counts[tok]++
		}
	}
	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	if k > 0 && len(order) > k {
		order = order[:k]
	}
	return order
}

func (s *Scorer) categorySignals(strongIDs, keywords []string) CategorySignals {
	sets := s.cfg.SignalSets
	return CategorySignals{
		HasDimensions: anyIn(strongIDs, sets.Dimensions),
		HasMaterial:   anyIn(strongIDs, sets.Material),
		HasColor:      anyIn(strongIDs, sets.Color),
		HasModel:      anyIn(strongIDs, sets.Model),
		IsTechLike:    anyIn(keywords, sets.TechHints),
		IsHomeLike:    anyIn(keywords, sets.HomeHints),
	}
}

func anyIn(have, wanted []string) bool {
	set := make(map[string]struct{}, len(wanted))
	for _, w := range wanted {
		set[w] = struct{}{}
	}
	for _, h := range have {
		if _, ok := set[h]; ok {
			return true
		}
	}
	return false
}

// recommendedFocus orders description themes by the signals present,
// deduplicated, capped at eight.
func recommendedFocus(sig CategorySignals) []string {
	var focus []string
	if sig.HasDimensions {
		focus = append(focus, "dimensions_and_weight")
	}
	if sig.HasMaterial {
		focus = append(focus, "materials_and_finishes")
	}
	if sig.HasColor {
		focus = append(focus, "color_variants")
	}
	if sig.HasModel {
		focus = append(focus, "models_and_specs")
	}
	if sig.IsTechLike {
		focus = append(focus, "capacity_and_performance", "connectivity", "compatibility")
	}
	if sig.IsHomeLike {
		focus = append(focus, "home_usage", "installation", "durability")
	}
	seen := make(map[string]struct{}, len(focus))
	out := focus[:0]
	for _, f := range focus {
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	if len(out) > 8 {
		out = out[:8]
	}
	return out
}
