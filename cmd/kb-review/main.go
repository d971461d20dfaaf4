package main

import (
	"context"
	"crypto/rand"
	"flag"
	"fmt"
	"log"

	"github.com/oklog/ulid/v2"

	"github.com/cognicore/pimsense/pkg/pimsense/kb"
	"github.com/cognicore/pimsense/pkg/pimsense/kb/sqlite"
)

// kb-review lists knowledge-base entries awaiting curation and clears the
// needs-review flag once a human has checked one. Clearing here is the
// only way the flag ever goes back to false.
func main() {
	var (
		kbPath = flag.String("kb", "category_kb.db", "Knowledge-base database path")
		clear  = flag.String("clear", "", "Category key to mark as reviewed")
	)
	flag.Parse()

	ctx := context.Background()

	store, err := sqlite.Open(ctx, *kbPath)
	if err != nil {
		log.Fatal("Failed to open knowledge base:", err)
	}
	defer store.Close()

	if *clear != "" {
		runID := ulid.MustNew(ulid.Now(), ulid.Monotonic(rand.Reader, 0)).String()
		if err := store.ClearReview(ctx, *clear, runID); err != nil {
			log.Fatal(err)
		}
		fmt.Printf("cleared needs_review for %s\n", *clear)
		return
	}

	entries, err := store.Load(ctx)
	if err != nil {
		log.Fatal(err)
	}
	pending := 0
	for _, e := range kb.Sorted(entries) {
		if !e.NeedsReview {
			continue
		}
		pending++
		fmt.Printf("%-40s %6d products  %s\n", e.CategoryKey, e.ProductCount, e.Breadcrumb)
	}
	fmt.Printf("%d entries awaiting review (%d total)\n", pending, len(entries))
}
