// Package aggregate buckets streamed product records by category key and
// accumulates per-category counters in a single forward pass.
package aggregate

import (
	"sort"

	"github.com/cognicore/pimsense/pkg/pimsense/hierarchy"
	"github.com/cognicore/pimsense/pkg/pimsense/stepxml"
)

// UnmappedKey groups records that resolve to no category at all.
const UnmappedKey = "UNMAPPED"

// Resolver derives the grouping key for one record. The structural
// resolver and the auto-group selection both implement it; the pipeline
// picks one by configuration.
type Resolver interface {
	Resolve(rec *stepxml.ProductRecord) (key string, ok bool)
}

// StructuralResolver keys records by parent reference, falling back to a
// composite of the record's own hierarchy labels so label-only records
// still group together.
type StructuralResolver struct {
	DeptAttr string
	CatAttr  string
	SubAttr  string
}

// Resolve implements Resolver.
func (r StructuralResolver) Resolve(rec *stepxml.ProductRecord) (string, bool) {
	if rec.ParentID != "" {
		return rec.ParentID, true
	}
	var parts []string
	for _, attr := range []string{r.DeptAttr, r.CatAttr, r.SubAttr} {
		if v := rec.First(attr); v != "" {
			parts = append(parts, v)
		}
	}
	if len(parts) == 0 {
		return "", false
	}
	key := parts[0]
	for _, p := range parts[1:] {
		key += hierarchy.Separator + p
	}
	return key, true
}

// Context accumulates one category's evidence during the pass. It is
// mutated only by its owning Aggregator and frozen by Finalize.
type Context struct {
	Key      string
	Products int

	// AttrPresence counts products carrying each attribute id.
	AttrPresence map[string]int

	// Label votes; the majority value wins at finalization.
	deptVotes map[string]int
	catVotes  map[string]int
	subVotes  map[string]int

	// Samples holds up to the configured cap of web names.
	Samples []string
}

// Labels returns the majority-vote label triple observed on the category's
// own records.
func (c *Context) Labels() hierarchy.Labels {
	return hierarchy.Labels{
		Department:  majority(c.deptVotes),
		Category:    majority(c.catVotes),
		Subcategory: majority(c.subVotes),
	}
}

func majority(votes map[string]int) string {
	best, bestN := "", 0
	for v, n := range votes {
		if n > bestN || (n == bestN && v < best) {
			best, bestN = v, n
		}
	}
	return best
}

// TopAttrs returns up to n attribute ids ordered by presence count
// descending, id ascending on ties.
func (c *Context) TopAttrs(n int) []AttrCount {
	out := make([]AttrCount, 0, len(c.AttrPresence))
	for id, cnt := range c.AttrPresence {
		out = append(out, AttrCount{AttributeID: id, Count: cnt})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].AttributeID < out[j].AttributeID
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// AttrCount pairs an attribute id with its presence count.
type AttrCount struct {
	AttributeID string `json:"attribute_id"`
	Count       int    `json:"count"`
}

// Aggregator is the sole mutator of Contexts during a run.
type Aggregator struct {
	resolver  Resolver
	webName   string
	deptAttr  string
	catAttr   string
	subAttr   string
	sampleCap int

	contexts map[string]*Context
	done     bool
}

// Options configure an Aggregator.
type Options struct {
	Resolver    Resolver
	WebNameAttr string
	DeptAttr    string
	CatAttr     string
	SubAttr     string
	SampleCap   int
}

// New creates an Aggregator.
func New(opts Options) *Aggregator {
	sampleCap := opts.SampleCap
	if sampleCap <= 0 {
		sampleCap = 12
	}
	return &Aggregator{
		resolver:  opts.Resolver,
		webName:   opts.WebNameAttr,
		deptAttr:  opts.DeptAttr,
		catAttr:   opts.CatAttr,
		subAttr:   opts.SubAttr,
		sampleCap: sampleCap,
		contexts:  make(map[string]*Context),
	}
}

// Add consumes one record. The work is linear in the record's
// attribute-value count; records are not retained.
func (a *Aggregator) Add(rec *stepxml.ProductRecord) {
	if a.done {
		return
	}
	key, ok := a.resolver.Resolve(rec)
	if !ok {
		key = UnmappedKey
	}
	ctx, ok := a.contexts[key]
	if !ok {
		ctx = &Context{
			Key:          key,
			AttrPresence: make(map[string]int),
			deptVotes:    make(map[string]int),
			catVotes:     make(map[string]int),
			subVotes:     make(map[string]int),
		}
		a.contexts[key] = ctx
	}

	ctx.Products++
	for attrID := range rec.Values {
		ctx.AttrPresence[attrID]++
	}
	if v := rec.First(a.deptAttr); v != "" {
		ctx.deptVotes[v]++
	}
	if v := rec.First(a.catAttr); v != "" {
		ctx.catVotes[v]++
	}
	if v := rec.First(a.subAttr); v != "" {
		ctx.subVotes[v]++
	}
	if len(ctx.Samples) < a.sampleCap {
		name := rec.First(a.webName)
		if name == "" {
			name = rec.Name
		}
		if name != "" {
			ctx.Samples = append(ctx.Samples, name)
		}
	}
}

// Finalize freezes the aggregator and returns contexts sorted by product
// count descending, key ascending on ties. Contexts must not be mutated
// afterwards.
func (a *Aggregator) Finalize() []*Context {
	a.done = true
	out := make([]*Context, 0, len(a.contexts))
	for _, ctx := range a.contexts {
		out = append(out, ctx)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Products != out[j].Products {
			return out[i].Products > out[j].Products
		}
		return out[i].Key < out[j].Key
	})
	return out
}
