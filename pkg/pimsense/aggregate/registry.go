package aggregate

import (
	"regexp"
	"strings"

	"github.com/cognicore/pimsense/pkg/pimsense/config"
)

// FieldRegistry records which attribute ids serve each logical field, and
// which ids downstream write-back should target. Detection combines the
// configured canonical ids with pattern discovery over the scanned ids, so
// the pipeline adapts to tenants with renamed attributes.
type FieldRegistry struct {
	FieldsDetected   map[string][]string `json:"fields_detected"`
	WritebackTargets map[string]string   `json:"writeback_targets"`
	SuggestedFields  map[string]string   `json:"suggested_new_fields_if_missing"`
}

var registryPatterns = map[string]*regexp.Regexp{
	"web_name":     regexp.MustCompile(`(?i)\bWebName\b`),
	"brand":        regexp.MustCompile(`(?i)\bBrand\b`),
	"model":        regexp.MustCompile(`(?i)\bModel\b`),
	"web_long":     regexp.MustCompile(`(?i)WebLongDescription`),
	"web_short":    regexp.MustCompile(`(?i)WebShortDescription`),
	"spanish_desc": regexp.MustCompile(`(?i)SpanishDescription`),
	"english_desc": regexp.MustCompile(`(?i)EnglishDescription`),
}

// CategoryDescPattern spots attribute ids that could already hold
// category-level descriptive content.
var CategoryDescPattern = regexp.MustCompile(`(?i)(Category|WebCategory|Department|Subcategory).*Description|MarketingText|SEO.*Description`)

// BuildFieldRegistry derives the registry from an attribute scan. The
// write-back targets always resolve: when a standard id is absent from the
// export the standard id is still proposed as the target.
func BuildFieldRegistry(scan ScanResult, ids config.AttributeIDs, locale string) FieldRegistry {
	detected := map[string][]string{
		"web_name":     detect(scan, registryPatterns["web_name"], ids.WebName),
		"brand":        detect(scan, registryPatterns["brand"], ids.BrandPrimary, ids.BrandAlt),
		"model":        detect(scan, registryPatterns["model"], ids.Model),
		"web_long":     detect(scan, registryPatterns["web_long"], ids.WebLong),
		"web_short":    detect(scan, registryPatterns["web_short"], ids.WebShort),
		"spanish_desc": detect(scan, registryPatterns["spanish_desc"], ids.SpanishDesc),
		"english_desc": detect(scan, registryPatterns["english_desc"], ids.EnglishDesc),
		"category_labels": detect(scan, nil, ids.Department, ids.Category, ids.Subcategory),
		"category_description_candidates": detect(scan, CategoryDescPattern),
	}

	wbLong := ids.WebLong
	wbShort := ids.WebShort
	wbNameSEO := ids.WebName + "SEO"

	// Translation targets the opposite-language field when one exists.
	var wbTranslation string
	switch {
	case strings.HasPrefix(locale, "es"):
		wbTranslation = firstOr(detected["english_desc"], ids.WebLong+"EN")
	case strings.HasPrefix(locale, "en"):
		wbTranslation = firstOr(detected["spanish_desc"], ids.WebLong+"ES")
	default:
		wbTranslation = firstOr(detected["english_desc"], ids.WebLong+"EN")
	}

	return FieldRegistry{
		FieldsDetected: detected,
		WritebackTargets: map[string]string{
			"case_long":        wbLong,
			"case_short":       wbShort,
			"case_naming_seo":  wbNameSEO,
			"case_translation": wbTranslation,
		},
		SuggestedFields: map[string]string{
			"case_naming_seo":  wbNameSEO,
			"case_translation": wbTranslation,
		},
	}
}

func detect(scan ScanResult, pattern *regexp.Regexp, canonical ...string) []string {
	var out []string
	seen := make(map[string]struct{})
	add := func(id string) {
		if id == "" {
			return
		}
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	for _, id := range canonical {
		if scan.Has(id) {
			add(id)
		}
	}
	if pattern != nil {
		for _, id := range scan.AllAttributeIDs {
			if pattern.MatchString(id) {
				add(id)
			}
		}
	}
	return out
}

func firstOr(ids []string, fallback string) string {
	if len(ids) > 0 {
		return ids[0]
	}
	return fallback
}
