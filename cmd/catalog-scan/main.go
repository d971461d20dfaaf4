package main

import (
	"context"
	"flag"
	"log"
	"strings"

	"github.com/cognicore/pimsense/pkg/pimsense"
	"github.com/cognicore/pimsense/pkg/pimsense/config"
	"github.com/cognicore/pimsense/pkg/pimsense/kb/sqlite"
)

func main() {
	var (
		productsArg  = flag.String("products", "", "Comma-separated product export XML files (required)")
		hierarchyArg = flag.String("hierarchy", "", "Comma-separated hierarchy export XML files (optional)")
		kbPath       = flag.String("kb", "category_kb.db", "Knowledge-base database path")
		outDir       = flag.String("out", "outputs", "Output directory for run artifacts")
		configPath   = flag.String("config", "", "YAML config file (optional)")
		strategy     = flag.String("strategy", "", "Grouping strategy override: hierarchy or auto")
	)
	flag.Parse()

	if *productsArg == "" {
		log.Fatal("--products required")
	}

	cfg := config.DefaultConfig()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatal("Failed to load config:", err)
		}
		cfg = loaded
	}
	if *strategy != "" {
		cfg.GroupingStrategy = *strategy
		if err := cfg.Validate(); err != nil {
			log.Fatal(err)
		}
	}

	ctx := context.Background()

	store, err := sqlite.Open(ctx, *kbPath)
	if err != nil {
		log.Fatal("Failed to open knowledge base:", err)
	}

	engine := pimsense.New(pimsense.Options{Store: store, Config: cfg})
	defer engine.Close()

	inputs := pimsense.Inputs{
		ProductFiles:   splitList(*productsArg),
		HierarchyFiles: splitList(*hierarchyArg),
	}

	analysis, err := engine.Analyze(ctx, inputs)
	if err != nil {
		log.Fatal("Analysis failed:", err)
	}
	log.Printf("run %s: %d categories, locale %s (%.2f)",
		analysis.RunID, len(analysis.CategoryMap),
		analysis.Locale.Locale, analysis.Locale.Confidence)

	if err := engine.Persist(ctx, analysis, *outDir); err != nil {
		log.Fatal("Persistence failed (analysis kept in memory this run):", err)
	}
	log.Printf("kb merge: %d added, %d updated; artifacts in %s",
		analysis.Report.KnowledgeBaseMerge.Added,
		analysis.Report.KnowledgeBaseMerge.Updated,
		*outDir)
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
