package aggregate

import (
	"io"
	"sort"

	"github.com/cognicore/pimsense/pkg/pimsense/stepxml"
)

// ScanResult summarizes which attribute ids an export actually uses, from
// a bounded sample of records. It seeds the field registry.
type ScanResult struct {
	File               string      `json:"file"`
	ProductsScanned    int         `json:"products_scanned"`
	UniqueAttributeIDs int         `json:"unique_attribute_ids"`
	TopAttributeIDs    []AttrCount `json:"top_attribute_ids"`
	AllAttributeIDs    []string    `json:"all_attribute_ids_sample"`
}

// Has reports whether the scan saw the attribute id.
func (s ScanResult) Has(attrID string) bool {
	for _, id := range s.AllAttributeIDs {
		if id == attrID {
			return true
		}
	}
	return false
}

// ScanAttributeIDs samples up to maxProducts records from pr and counts
// attribute-id occurrences.
func ScanAttributeIDs(pr *stepxml.ProductReader, file string, maxProducts int) (ScanResult, error) {
	seen := make(map[string]int)
	scanned := 0
	for maxProducts <= 0 || scanned < maxProducts {
		rec, err := pr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return ScanResult{}, err
		}
		for attrID := range rec.Values {
			seen[attrID]++
		}
		scanned++
	}

	counts := make([]AttrCount, 0, len(seen))
	for id, n := range seen {
		counts = append(counts, AttrCount{AttributeID: id, Count: n})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Count != counts[j].Count {
			return counts[i].Count > counts[j].Count
		}
		return counts[i].AttributeID < counts[j].AttributeID
	})

	all := make([]string, len(counts))
	for i, c := range counts {
		all[i] = c.AttributeID
	}
	top := counts
	if len(top) > 400 {
		top = top[:400]
	}
	return ScanResult{
		File:               file,
		ProductsScanned:    scanned,
		UniqueAttributeIDs: len(seen),
		TopAttributeIDs:    top,
		AllAttributeIDs:    all,
	}, nil
}
