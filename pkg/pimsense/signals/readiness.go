package signals

import (
	"math"
	"sort"

	"github.com/cognicore/pimsense/pkg/pimsense/config"
)

// Readiness computes a 0-100 score per downstream use case as a weighted
// linear combination of coverage percentages. Weights come from
// configuration; unknown coverage fields contribute zero.
func Readiness(coverage map[string]float64, weights config.ReadinessWeights) map[string]float64 {
	out := make(map[string]float64, len(weights))
	for useCase, fields := range weights {
		score := 0.0
		for field, w := range fields {
			score += coverage[field] * w
		}
		if score > 100 {
			score = 100
		}
		out[useCase] = math.Round(score*10) / 10
	}
	return out
}

// UseCases lists the configured use cases in stable order.
func UseCases(weights config.ReadinessWeights) []string {
	out := make([]string, 0, len(weights))
	for uc := range weights {
		out = append(out, uc)
	}
	sort.Strings(out)
	return out
}
