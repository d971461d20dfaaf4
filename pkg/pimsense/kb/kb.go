// Package kb is the persisted category knowledge base: key-addressed
// category metadata merged incrementally across runs without destroying
// prior human curation.
package kb

import (
	"context"
	"sort"
	"time"
)

// Actions recorded in entry history.
const (
	ActionAutoDetected  = "auto_detected"
	ActionRefreshed     = "refreshed"
	ActionEvidenceDecay = "evidence_decay"
	ActionReviewCleared = "review_cleared"
)

// Event is one history line on an entry.
type Event struct {
	RunID  string    `json:"run_id"`
	At     time.Time `json:"at"`
	Action string    `json:"action"`
}

// Entry is one persisted category. NeedsReview marks metadata that has not
// been human-curated, or has degraded since curation; automated merges
// never clear it.
type Entry struct {
	CategoryKey  string  `json:"category_key"`
	Breadcrumb   string  `json:"breadcrumb"`
	ProductCount int     `json:"product_count"`
	Locale       string  `json:"locale"`
	NeedsReview  bool    `json:"needs_review"`
	Notes        string  `json:"notes"`
	History      []Event `json:"history"`
}

// Category is the merge input derived by a run's aggregation pass.
type Category struct {
	Key          string
	Breadcrumb   string
	ProductCount int
}

// MergeStats reports what one merge changed.
type MergeStats struct {
	Added   int `json:"new_categories_added"`
	Updated int `json:"categories_updated"`
}

// Store owns durable persistence of entries. It is the only component
// permitted to write them. Concurrent runs against one store are not
// supported; callers serialize.
type Store interface {
	Load(ctx context.Context) (map[string]*Entry, error)
	Upsert(ctx context.Context, e *Entry) error

	// ClearReview is the explicit curation action; it is the only path
	// that sets NeedsReview back to false.
	ClearReview(ctx context.Context, categoryKey, runID string) error

	Close() error
}

// Merge upserts this run's categories into entries, in place.
//
//   - Unknown key: inserted flagged for review with an auto-detected note.
//   - Known key: breadcrumb and product count refresh in place; the
//     existing NeedsReview value is preserved, and locale only fills in
//     when previously unset.
//   - Evidence decay: a breadcrumb indistinguishable from the raw key
//     forces NeedsReview true even on existing entries.
//
// Re-merging identical input changes no counts and creates no duplicate
// keys.
func Merge(entries map[string]*Entry, categories []Category, locale, runID string, now time.Time) MergeStats {
	var stats MergeStats
	for _, c := range categories {
		breadcrumb := c.Breadcrumb
		if breadcrumb == "" {
			breadcrumb = c.Key
		}

		e, ok := entries[c.Key]
		if !ok {
			e = &Entry{
				CategoryKey:  c.Key,
				Breadcrumb:   breadcrumb,
				ProductCount: c.ProductCount,
				Locale:       locale,
				NeedsReview:  true,
				Notes:        "auto-detected from dataset",
				History:      []Event{{RunID: runID, At: now, Action: ActionAutoDetected}},
			}
			entries[c.Key] = e
			stats.Added++
		} else {
			e.Breadcrumb = breadcrumb
			e.ProductCount = c.ProductCount
			if e.Locale == "" {
				e.Locale = locale
			}
			e.History = append(e.History, Event{RunID: runID, At: now, Action: ActionRefreshed})
			stats.Updated++
		}

		if breadcrumb == c.Key && !e.NeedsReview {
			e.NeedsReview = true
			e.History = append(e.History, Event{RunID: runID, At: now, Action: ActionEvidenceDecay})
		}
	}
	return stats
}

// Sorted orders entries for output: unreviewed first, then product count
// descending, key ascending, so reviewers see the highest-impact
// unreviewed categories at the top.
func Sorted(entries map[string]*Entry) []*Entry {
	out := make([]*Entry, 0, len(entries))
	for _, e := range entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].NeedsReview != out[j].NeedsReview {
			return out[i].NeedsReview
		}
		if out[i].ProductCount != out[j].ProductCount {
			return out[i].ProductCount > out[j].ProductCount
		}
		return out[i].CategoryKey < out[j].CategoryKey
	})
	return out
}
