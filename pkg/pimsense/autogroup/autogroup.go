// Package autogroup builds competing candidate groupings of the product
// stream and selects the most coherent ones. It is the fallback category
// resolver for exports whose hierarchy labels are missing or unreliable.
package autogroup

import (
	"math"
	"sort"
	"strings"

	"github.com/cognicore/pimsense/pkg/pimsense/config"
	"github.com/cognicore/pimsense/pkg/pimsense/ingest"
	"github.com/cognicore/pimsense/pkg/pimsense/stepxml"
)

// Grouping strategies, in resolution priority order.
const (
	StrategyParent         = "by_parent_id"
	StrategyClassification = "by_classification"
	StrategyUserType       = "by_user_type"
)

// coreTerms is the top-term core used for the coherence mass fraction.
const coreTerms = 15

// Example is one representative product kept per group.
type Example struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name,omitempty"`
	Model       string `json:"model,omitempty"`
	ShortDesc   string `json:"short_desc,omitempty"`
}

// GroupStats describes one scored candidate group.
type GroupStats struct {
	GroupType    string    `json:"group_type"`
	GroupKey     string    `json:"group_key"`
	ProductCount int       `json:"product_count"`
	Coherence    float64   `json:"coherence"`
	Diversity    float64   `json:"diversity"`
	Score        float64   `json:"score"`
	TopTerms     []string  `json:"top_terms"`
	Examples     []Example `json:"examples"`
}

// CategoryKey is the derived key a selected group contributes.
func (g GroupStats) CategoryKey() string {
	return g.GroupType + "::" + g.GroupKey
}

type groupAccum struct {
	strategy string
	key      string
	n        int
	terms    map[string]int
	subtypes map[string]int
	examples []Example
}

// Collector accumulates candidate-group counters incrementally while the
// record stream is consumed; records themselves are not retained. Memory
// is bounded by the number of candidate groups and their vocabularies.
type Collector struct {
	cfg         config.AutoGroupConfig
	ids         config.AttributeIDs
	tok         *ingest.Tokenizer
	maxExamples int
	groups      map[string]*groupAccum
}

// NewCollector builds a collector using the run configuration's stoplist
// and attribute ids.
func NewCollector(cfg config.Config) *Collector {
	return &Collector{
		cfg:         cfg.AutoGroup,
		ids:         cfg.Attributes,
		tok:         ingest.NewTokenizer(cfg.Stopwords),
		maxExamples: 8,
		groups:      make(map[string]*groupAccum),
	}
}

// Add routes one record into every candidate grouping it belongs to.
func (c *Collector) Add(rec *stepxml.ProductRecord) {
	if rec.ParentID != "" {
		c.route(StrategyParent, rec.ParentID, rec)
	}
	for _, cr := range rec.Classifications {
		if cr.Type != "" && cr.ID != "" {
			c.route(StrategyClassification, cr.Type+"::"+cr.ID, rec)
		}
	}
	if rec.UserType != "" {
		c.route(StrategyUserType, rec.UserType, rec)
	}
}

func (c *Collector) route(strategy, key string, rec *stepxml.ProductRecord) {
	id := strategy + "\x00" + key
	g, ok := c.groups[id]
	if !ok {
		g = &groupAccum{
			strategy: strategy,
			key:      key,
			terms:    make(map[string]int),
			subtypes: make(map[string]int),
		}
		c.groups[id] = g
	}
	g.n++

	text := strings.Join([]string{
		rec.First(c.ids.WebName),
		rec.Name,
		rec.First(c.ids.WebShort),
		rec.First(c.ids.Model),
	}, " ")
	for _, tok := range c.tok.Tokenize(ingest.StripMarkup(text)) {
		g.terms[tok]++
	}

	if sub := subtypeOf(rec); sub != "" {
		g.subtypes[sub]++
	}
	if len(g.examples) < c.maxExamples {
		g.examples = append(g.examples, Example{
			ProductID:   rec.ID,
			ProductName: rec.First(c.ids.WebName),
			Model:       rec.First(c.ids.Model),
			ShortDesc:   rec.First(c.ids.WebShort),
		})
	}
}

// subtypeOf picks an internal subtype label used for the diversity
// distribution: the first classification reference, else the record type.
func subtypeOf(rec *stepxml.ProductRecord) string {
	if len(rec.Classifications) > 0 {
		cr := rec.Classifications[0]
		return cr.Type + "::" + cr.ID
	}
	return rec.UserType
}

// Select scores every size-qualifying candidate and returns the winners:
// score descending, size descending on ties, dropped below the score
// threshold, capped at MaxGroups. Groups under MinGroupProducts are never
// candidates regardless of score.
func (c *Collector) Select() []GroupStats {
	var stats []GroupStats
	for _, g := range c.groups {
		if gs, ok := c.score(g); ok {
			stats = append(stats, gs)
		}
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Score != stats[j].Score {
			return stats[i].Score > stats[j].Score
		}
		if stats[i].ProductCount != stats[j].ProductCount {
			return stats[i].ProductCount > stats[j].ProductCount
		}
		return stats[i].CategoryKey() < stats[j].CategoryKey()
	})

	var selected []GroupStats
	for _, s := range stats {
		if s.Score < c.cfg.ScoreThreshold {
			continue
		}
		selected = append(selected, s)
		if c.cfg.MaxGroups > 0 && len(selected) >= c.cfg.MaxGroups {
			break
		}
	}
	return selected
}

func (c *Collector) score(g *groupAccum) (GroupStats, bool) {
	if g.n < c.cfg.MinGroupProducts || len(g.terms) == 0 {
		return GroupStats{}, false
	}

	top := topTerms(g.terms, 35)
	totalMass := 0
	for _, n := range g.terms {
		totalMass += n
	}
	coreMass := 0
	core := top
	if len(core) > coreTerms {
		core = core[:coreTerms]
	}
	for _, t := range core {
		coreMass += g.terms[t]
	}
	coherence := float64(coreMass) / math.Max(float64(totalMass), 1)

	// Normalized entropy of the internal subtype distribution. Trivially
	// uniform groups score near zero, chaotic ones near one; absent
	// subtypes fall back to a neutral 0.5.
	diversity := 0.5
	if len(g.subtypes) > 0 {
		ent := 0.0
		for _, cnt := range g.subtypes {
			p := float64(cnt) / float64(g.n)
			ent -= p * math.Log(p+1e-12)
		}
		if len(g.subtypes) > 1 {
			ent /= math.Log(float64(len(g.subtypes)))
		}
		diversity = ent
	}

	sizeFactor := 1.0
	switch {
	case g.n > 1500:
		sizeFactor = 0.6
	case g.n > 800:
		sizeFactor = 0.8
	}

	band := c.cfg.DiversityBand
	if band <= 0 {
		band = 0.55
	}
	dev := math.Abs(diversity - c.cfg.DiversityTarget)
	if dev > band {
		dev = band
	}
	diversityPenalty := 1.0 - dev/band

	score := coherence*c.cfg.CoherenceWeight +
		diversityPenalty*c.cfg.DiversityWeight +
		sizeFactor*c.cfg.SizeWeight

	return GroupStats{
		GroupType:    g.strategy,
		GroupKey:     g.key,
		ProductCount: g.n,
		Coherence:    coherence,
		Diversity:    diversity,
		Score:        score,
		TopTerms:     top,
		Examples:     g.examples,
	}, true
}

func topTerms(terms map[string]int, k int) []string {
	out := make([]string, 0, len(terms))
	for t := range terms {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if terms[out[i]] != terms[out[j]] {
			return terms[out[i]] > terms[out[j]]
		}
		return out[i] < out[j]
	})
	if len(out) > k {
		out = out[:k]
	}
	return out
}

// Selection indexes selected groups for use as a category resolver on a
// second streaming pass.
type Selection struct {
	byStrategy map[string]map[string]string // strategy -> raw key -> category key
	groups     []GroupStats
}

// NewSelection indexes selected groups.
func NewSelection(groups []GroupStats) *Selection {
	s := &Selection{byStrategy: make(map[string]map[string]string), groups: groups}
	for _, g := range groups {
		m, ok := s.byStrategy[g.GroupType]
		if !ok {
			m = make(map[string]string)
			s.byStrategy[g.GroupType] = m
		}
		m[g.GroupKey] = g.CategoryKey()
	}
	return s
}

// Groups returns the selected groups in score order.
func (s *Selection) Groups() []GroupStats { return s.groups }

// Resolve maps a record to the best selected group it belongs to,
// preferring parent grouping, then classification, then record type.
func (s *Selection) Resolve(rec *stepxml.ProductRecord) (string, bool) {
	if rec.ParentID != "" {
		if key, ok := s.byStrategy[StrategyParent][rec.ParentID]; ok {
			return key, true
		}
	}
	for _, cr := range rec.Classifications {
		if key, ok := s.byStrategy[StrategyClassification][cr.Type+"::"+cr.ID]; ok {
			return key, true
		}
	}
	if rec.UserType != "" {
		if key, ok := s.byStrategy[StrategyUserType][rec.UserType]; ok {
			return key, true
		}
	}
	return "", false
}
