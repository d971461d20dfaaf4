package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cognicore/pimsense/pkg/pimsense/internalerr"
)

// Config holds every tunable used by the aggregation and scoring passes.
// The source exports were processed with several inconsistent hard-coded
// values over time; all of them are runtime configuration here.
type Config struct {
	// Gate thresholds.
	MinProducts     int     `yaml:"min_products"`
	StrongPresence  float64 `yaml:"strong_presence"`
	MinStrongAttrs  int     `yaml:"min_strong_attrs"`

	// Aggregation bounds.
	SampleCap        int `yaml:"sample_cap"`
	TopAttrs         int `yaml:"top_attrs"`
	TopKeywords      int `yaml:"top_keywords"`
	ScanMaxProducts  int `yaml:"scan_max_products"`
	LocaleMaxSamples int `yaml:"locale_max_samples"`

	// Grouping strategy: "hierarchy" (structural) or "auto".
	GroupingStrategy string `yaml:"grouping_strategy"`

	AutoGroup AutoGroupConfig  `yaml:"auto_group"`
	Readiness ReadinessWeights `yaml:"readiness"`
	Locales   []LocaleMarkers  `yaml:"locales"`
	LocaleTie int              `yaml:"locale_tie_margin"`

	Attributes AttributeIDs  `yaml:"attributes"`
	SignalSets SignalSets    `yaml:"signal_sets"`
	Stopwords  []string      `yaml:"stopwords"`
}

// AutoGroupConfig tunes candidate-partition selection.
type AutoGroupConfig struct {
	MinGroupProducts int     `yaml:"min_group_products"`
	MaxGroups        int     `yaml:"max_groups"`
	ScoreThreshold   float64 `yaml:"score_threshold"`
	CoherenceWeight  float64 `yaml:"coherence_weight"`
	DiversityWeight  float64 `yaml:"diversity_weight"`
	SizeWeight       float64 `yaml:"size_weight"`
	DiversityTarget  float64 `yaml:"diversity_target"`
	DiversityBand    float64 `yaml:"diversity_band"`
}

// ReadinessWeights maps a downstream use case to weighted coverage fields.
// Field names refer to coverage keys produced by the profile pass
// (web_name, brand, model, department, category, subcategory,
// spanish_desc, english_desc).
type ReadinessWeights map[string]map[string]float64

// LocaleMarkers is a small function-word set used for locale scoring.
type LocaleMarkers struct {
	Locale  string   `yaml:"locale"`
	Markers []string `yaml:"markers"`
}

// AttributeIDs names the canonical attribute identifiers of the export.
// The field registry additionally discovers pattern-matched variants.
type AttributeIDs struct {
	WebName      string `yaml:"web_name"`
	Model        string `yaml:"model"`
	BrandPrimary string `yaml:"brand_primary"`
	BrandAlt     string `yaml:"brand_alt"`

	Department  string `yaml:"department"`
	Category    string `yaml:"category"`
	Subcategory string `yaml:"subcategory"`

	WebLong     string `yaml:"web_long"`
	WebShort    string `yaml:"web_short"`
	SpanishDesc string `yaml:"spanish_desc"`
	EnglishDesc string `yaml:"english_desc"`

	GoldenRecordType string `yaml:"golden_record_type"`
}

// SignalSets drive the structural/lexical signals per category.
type SignalSets struct {
	Dimensions []string `yaml:"dimensions"`
	Material   []string `yaml:"material"`
	Color      []string `yaml:"color"`
	Model      []string `yaml:"model"`
	TechHints  []string `yaml:"tech_hints"`
	HomeHints  []string `yaml:"home_hints"`
}

// DefaultConfig returns the defaults used when no config file is given.
// Gate thresholds sit in the middle of the ranges observed in production
// (min products 25-30, strong presence 0.6-0.9).
func DefaultConfig() Config {
	return Config{
		MinProducts:      30,
		StrongPresence:   0.75,
		MinStrongAttrs:   8,
		SampleCap:        12,
		TopAttrs:         25,
		TopKeywords:      15,
		ScanMaxProducts:  350,
		LocaleMaxSamples: 140,
		GroupingStrategy: "hierarchy",
		AutoGroup: AutoGroupConfig{
			MinGroupProducts: 25,
			MaxGroups:        200,
			ScoreThreshold:   0.62,
			CoherenceWeight:  0.55,
			DiversityWeight:  0.35,
			SizeWeight:       0.10,
			DiversityTarget:  0.55,
			DiversityBand:    0.55,
		},
		Readiness: ReadinessWeights{
			"case_long":        {"web_name": 0.6, "brand": 0.2, "department": 0.2},
			"case_short":       {"web_name": 0.7, "brand": 0.15, "category": 0.15},
			"case_naming_seo":  {"web_name": 0.8, "category": 0.2},
			"case_translation": {"best_language_desc": 1.0},
		},
		Locales: []LocaleMarkers{
			{Locale: "es-MX", Markers: []string{"el", "la", "los", "las", "para", "con", "en", "sin", "de", "del", "al"}},
			{Locale: "en-US", Markers: []string{"the", "with", "for", "in", "without", "and", "or", "of"}},
		},
		Attributes: AttributeIDs{
			WebName:          "THD.PR.WebName",
			Model:            "THD.PR.Model",
			BrandPrimary:     "THD.PR.BrandID",
			BrandAlt:         "THD.PR.Brand",
			Department:       "THD.HR.WebDepartment",
			Category:         "THD.HR.WebCategory",
			Subcategory:      "THD.HR.WebSubcategory",
			WebLong:          "THD.PR.WebLongDescription",
			WebShort:         "THD.PR.WebShortDescription",
			SpanishDesc:      "THD.PR.SpanishDescription",
			EnglishDesc:      "THD.PR.EnglishDescription",
			GoldenRecordType: "PMDM.PRD.GoldenRecord",
		},
		SignalSets: SignalSets{
			Dimensions: []string{"THD.CT.ALTO", "THD.CT.ANCHO", "THD.CT.LARGO", "THD.CT.PESO", "THD.PR.EachAlto", "THD.PR.EachAncho"},
			Material:   []string{"THD.CT.MATERIAL"},
			Color:      []string{"THD.CT.COLOR"},
			Model:      []string{"THD.CT.MODELO", "THD.PR.Model"},
			TechHints:  []string{"smartphone", "ram", "procesador", "android", "gb", "5g", "bluetooth", "hdmi", "usb", "wifi"},
			HomeHints:  []string{"cocina", "mezcladora", "llave", "campana", "empotre", "empotrable", "acero", "inox", "cromo"},
		},
		Stopwords: []string{
			"de", "la", "el", "los", "las", "y", "o", "en", "para", "con", "sin",
			"por", "del", "al", "un", "una", "uno", "unos", "unas", "su", "sus",
			"the", "and", "for", "with", "cms", "mts",
		},
	}
}

// Load reads a YAML config file and overlays it on the defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects values that would make the pipeline meaningless.
func (c Config) Validate() error {
	if c.MinProducts < 1 {
		return fmt.Errorf("%w: min_products must be >= 1", internalerr.ErrInvalidConfig)
	}
	if c.StrongPresence <= 0 || c.StrongPresence > 1 {
		return fmt.Errorf("%w: strong_presence must be in (0,1]", internalerr.ErrInvalidConfig)
	}
	if c.MinStrongAttrs < 0 {
		return fmt.Errorf("%w: min_strong_attrs must be >= 0", internalerr.ErrInvalidConfig)
	}
	if c.GroupingStrategy != "hierarchy" && c.GroupingStrategy != "auto" {
		return fmt.Errorf("%w: grouping_strategy must be hierarchy or auto", internalerr.ErrInvalidConfig)
	}
	ag := c.AutoGroup
	if ag.MinGroupProducts < 1 {
		return fmt.Errorf("%w: auto_group.min_group_products must be >= 1", internalerr.ErrInvalidConfig)
	}
	if ag.ScoreThreshold < 0 || ag.ScoreThreshold > 1 {
		return fmt.Errorf("%w: auto_group.score_threshold must be in [0,1]", internalerr.ErrInvalidConfig)
	}
	return nil
}
