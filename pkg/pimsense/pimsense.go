// Package pimsense derives per-category context from PIM/MDM catalog
// exports: it streams product records, aggregates per-category evidence,
// scores it, and maintains the persisted category knowledge base.
package pimsense

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/cognicore/pimsense/pkg/pimsense/aggregate"
	"github.com/cognicore/pimsense/pkg/pimsense/autogroup"
	"github.com/cognicore/pimsense/pkg/pimsense/config"
	"github.com/cognicore/pimsense/pkg/pimsense/export"
	"github.com/cognicore/pimsense/pkg/pimsense/hierarchy"
	"github.com/cognicore/pimsense/pkg/pimsense/internalerr"
	"github.com/cognicore/pimsense/pkg/pimsense/kb"
	"github.com/cognicore/pimsense/pkg/pimsense/signals"
	"github.com/cognicore/pimsense/pkg/pimsense/stepxml"
)

// Engine is the pipeline facade. A single Engine runs one analysis at a
// time; the pipeline is strictly sequential and holds no shared mutable
// state between runs.
type Engine struct {
	store kb.Store
	cfg   config.Config
}

// Options configures an Engine.
type Options struct {
	Store  kb.Store
	Config config.Config
}

// New creates an Engine with the given dependencies.
func New(opts Options) *Engine {
	return &Engine{store: opts.Store, cfg: opts.Config}
}

// Close shuts the engine down.
func (e *Engine) Close() error {
	if e.store == nil {
		return nil
	}
	return e.store.Close()
}

// Inputs name the export files of one run. Hierarchy files are optional;
// without them breadcrumbs fall back to the records' own labels or the
// raw category keys.
type Inputs struct {
	ProductFiles   []string
	HierarchyFiles []string
}

// FileReport accounts for one scanned file.
type FileReport struct {
	File    string `json:"file"`
	Records int    `json:"records"`
	Skipped int    `json:"skipped_fragments"`
}

// CategoryMapRow is one line of the category map artifact.
type CategoryMapRow struct {
	CategoryKey     string              `json:"category_key"`
	Breadcrumb      string              `json:"breadcrumb"`
	ProductCount    int                 `json:"product_count"`
	TopAttributeIDs []aggregate.AttrPct `json:"top_attribute_ids"`
}

// Report is the dataset-level summary persisted as dataset_report.json.
type Report struct {
	RunID                string                  `json:"run_id"`
	ProductFiles         []FileReport            `json:"product_files"`
	HierarchyFiles       []FileReport            `json:"hierarchy_files,omitempty"`
	AttributeScan        aggregate.ScanResult    `json:"attribute_scan"`
	LocaleDetection      signals.LocaleInfo      `json:"locale_detection"`
	FieldRegistry        aggregate.FieldRegistry `json:"field_registry"`
	ProductProfile       aggregate.Profile       `json:"product_profile"`
	ReadinessScores      map[string]float64      `json:"readiness_scores"`
	UniqueCategoryKeys   int                     `json:"unique_category_keys"`
	CategoryDescInSource bool                    `json:"category_description_available"`
	KnowledgeBaseMerge   kb.MergeStats           `json:"knowledge_base_merge"`
	NextActions          []string                `json:"next_actions"`
}

// Analysis is the in-memory outcome of one run. It stays valid after a
// failed Persist so the save can be retried without re-scanning.
type Analysis struct {
	RunID       string
	Report      Report
	CategoryMap []CategoryMapRow
	Insights    []signals.CategoryInsight
	AutoGroups  []autogroup.GroupStats
	Categories  []kb.Category
	Locale      signals.LocaleInfo
}

// Analyze runs the full streaming pipeline over the inputs. It performs
// no durable writes; Persist does.
func (e *Engine) Analyze(ctx context.Context, in Inputs) (*Analysis, error) {
	if len(in.ProductFiles) == 0 {
		return nil, fmt.Errorf("%w: no product files", internalerr.ErrInvalidInput)
	}
	runID := newRunID()
	cfg := e.cfg
	ids := cfg.Attributes

	index := hierarchy.NewIndex()
	var hierReports []FileReport
	for _, path := range in.HierarchyFiles {
		rep, err := consumeHierarchy(index, path)
		if err != nil {
			return nil, err
		}
		hierReports = append(hierReports, rep)
	}

	scan, err := e.scanAttributes(in.ProductFiles[0])
	if err != nil {
		return nil, err
	}

	resolver, autoGroups, err := e.buildResolver(in.ProductFiles)
	if err != nil {
		return nil, err
	}

	agg := aggregate.New(aggregate.Options{
		Resolver:    resolver,
		WebNameAttr: ids.WebName,
		DeptAttr:    ids.Department,
		CatAttr:     ids.Category,
		SubAttr:     ids.Subcategory,
		SampleCap:   cfg.SampleCap,
	})
	profiler := aggregate.NewProfiler(ids, 250)

	var prodReports []FileReport
	for _, path := range in.ProductFiles {
		rep, err := streamProducts(path, ids.GoldenRecordType, func(rec *stepxml.ProductRecord) {
			agg.Add(rec)
			profiler.Add(rec)
		})
		if err != nil {
			return nil, err
		}
		prodReports = append(prodReports, rep)
	}

	profile := profiler.Result()
	locale := signals.DetectLocale(profile.TextSamples, cfg.Locales, cfg.LocaleTie, cfg.LocaleMaxSamples)
	registry := aggregate.BuildFieldRegistry(scan, ids, locale.Locale)

	scorer := signals.NewScorer(cfg)
	contexts := agg.Finalize()

	var (
		catMap     []CategoryMapRow
		insights   []signals.CategoryInsight
		categories []kb.Category
	)
	for _, cc := range contexts {
		labels := index.Labels(cc.Key, ids.Department, ids.Category, ids.Subcategory)
		if labels.Empty() {
			labels = cc.Labels()
		}
		breadcrumb := index.Breadcrumb(cc.Key)
		if breadcrumb == cc.Key && !labels.Empty() {
			breadcrumb = composeBreadcrumb(labels)
		}

		insights = append(insights, scorer.Score(cc, labels, breadcrumb))
		catMap = append(catMap, CategoryMapRow{
			CategoryKey:     cc.Key,
			Breadcrumb:      breadcrumb,
			ProductCount:    cc.Products,
			TopAttributeIDs: attrPcts(cc, e.cfg.TopAttrs),
		})
		categories = append(categories, kb.Category{
			Key:          cc.Key,
			Breadcrumb:   breadcrumb,
			ProductCount: cc.Products,
		})
	}

	descAvailable := hierarchyHasCategoryDesc(index)
	return &Analysis{
		RunID: runID,
		Report: Report{
			RunID:                runID,
			ProductFiles:         prodReports,
			HierarchyFiles:       hierReports,
			AttributeScan:        scan,
			LocaleDetection:      locale,
			FieldRegistry:        registry,
			ProductProfile:       profile,
			ReadinessScores:      signals.Readiness(profile.CoveragePct, cfg.Readiness),
			UniqueCategoryKeys:   len(contexts),
			CategoryDescInSource: descAvailable,
			NextActions:          nextActions(descAvailable),
		},
		CategoryMap: catMap,
		Insights:    insights,
		AutoGroups:  autoGroups,
		Categories:  categories,
		Locale:      locale,
	}, nil
}

// Persist merges the run into the knowledge base and writes the run's
// artifacts under outDir. A failure here leaves the Analysis intact; the
// caller may retry Persist without re-running Analyze.
func (e *Engine) Persist(ctx context.Context, a *Analysis, outDir string) error {
	if e.store == nil {
		return fmt.Errorf("persist: %w", internalerr.ErrStoreUnavailable)
	}

	entries, err := e.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("persist: %w", err)
	}
	stats := kb.Merge(entries, a.Categories, a.Locale.Locale, a.RunID, time.Now().UTC())
	for _, entry := range entries {
		if err := e.store.Upsert(ctx, entry); err != nil {
			return fmt.Errorf("persist: %w", err)
		}
	}
	a.Report.KnowledgeBaseMerge = stats

	if err := export.WriteJSONL(filepath.Join(outDir, "category_map.jsonl"), a.CategoryMap); err != nil {
		return err
	}
	if err := export.WriteJSONL(filepath.Join(outDir, "category_insights.jsonl"), a.Insights); err != nil {
		return err
	}
	if len(a.AutoGroups) > 0 {
		if err := export.WriteJSONL(filepath.Join(outDir, "auto_groups.jsonl"), a.AutoGroups); err != nil {
			return err
		}
	}
	if err := export.WriteJSONL(filepath.Join(outDir, "category_kb.jsonl"), kb.Sorted(entries)); err != nil {
		return err
	}
	return export.WriteJSON(filepath.Join(outDir, "dataset_report.json"), a.Report)
}

// buildResolver returns the structural resolver, or runs the auto-group
// selection pass first when configured. The auto path streams the inputs
// once to score candidate partitions and a second time to aggregate; each
// pass stays bounded-memory.
func (e *Engine) buildResolver(productFiles []string) (aggregate.Resolver, []autogroup.GroupStats, error) {
	ids := e.cfg.Attributes
	if e.cfg.GroupingStrategy != "auto" {
		return aggregate.StructuralResolver{
			DeptAttr: ids.Department,
			CatAttr:  ids.Category,
			SubAttr:  ids.Subcategory,
		}, nil, nil
	}

	collector := autogroup.NewCollector(e.cfg)
	for _, path := range productFiles {
		if _, err := streamProducts(path, ids.GoldenRecordType, collector.Add); err != nil {
			return nil, nil, err
		}
	}
	selection := autogroup.NewSelection(collector.Select())
	return selection, selection.Groups(), nil
}

func (e *Engine) scanAttributes(path string) (aggregate.ScanResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return aggregate.ScanResult{}, fmt.Errorf("scan %s: %w", path, err)
	}
	defer f.Close()
	pr := stepxml.NewProductReader(f, e.cfg.Attributes.GoldenRecordType)
	return aggregate.ScanAttributeIDs(pr, filepath.Base(path), e.cfg.ScanMaxProducts)
}

func streamProducts(path, goldenType string, fn func(*stepxml.ProductRecord)) (FileReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return FileReport{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	pr := stepxml.NewProductReader(f, goldenType)
	rep := FileReport{File: filepath.Base(path)}
	for {
		rec, err := pr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return rep, fmt.Errorf("read %s: %w", path, err)
		}
		fn(rec)
		rep.Records++
	}
	rep.Skipped = pr.Skipped()
	return rep, nil
}

func consumeHierarchy(index *hierarchy.Index, path string) (FileReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return FileReport{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	nr := stepxml.NewNodeReader(f)
	n, err := index.Consume(nr)
	if err != nil {
		return FileReport{}, fmt.Errorf("read %s: %w", path, err)
	}
	return FileReport{File: filepath.Base(path), Records: n, Skipped: nr.Skipped()}, nil
}

func composeBreadcrumb(l hierarchy.Labels) string {
	var parts []string
	for _, p := range []string{l.Department, l.Category, l.Subcategory} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += hierarchy.Separator
		}
		out += p
	}
	return out
}

func attrPcts(cc *aggregate.Context, n int) []aggregate.AttrPct {
	top := cc.TopAttrs(n)
	out := make([]aggregate.AttrPct, len(top))
	for i, a := range top {
		pct := 0.0
		if cc.Products > 0 {
			pct = float64(a.Count) / float64(cc.Products) * 100.0
		}
		out[i] = aggregate.AttrPct{AttributeID: a.AttributeID, PctProducts: pct}
	}
	return out
}

// hierarchyHasCategoryDesc reports whether the hierarchy export already
// carries category-level descriptive attributes; when it does, generation
// can link them instead of writing from scratch.
func hierarchyHasCategoryDesc(index *hierarchy.Index) bool {
	for _, id := range index.IDs() {
		n, _ := index.Node(id)
		for attrID := range n.Values {
			if aggregate.CategoryDescPattern.MatchString(attrID) {
				return true
			}
		}
		for _, link := range n.Links {
			if aggregate.CategoryDescPattern.MatchString(link.AttributeID) {
				return true
			}
		}
	}
	return false
}

func nextActions(categoryDescAvailable bool) []string {
	if categoryDescAvailable {
		return []string{
			"Category descriptions detected in the hierarchy export; link them into category context before generating.",
			"Enable generation for categories whose gate passed.",
		}
	}
	return []string{
		"No category descriptions detected; generate from product evidence for categories whose gate passed, or request source descriptions.",
		"Review auto-detected knowledge-base entries flagged needs_review.",
	}
}

func newRunID() string {
	return ulid.MustNew(ulid.Now(), ulid.Monotonic(rand.Reader, 0)).String()
}
