package signals

import (
	"strings"
	"unicode"

	"github.com/cognicore/pimsense/pkg/pimsense/config"
)

// LocaleUndetermined is returned when no marker set wins clearly.
const LocaleUndetermined = "und"

// LocaleInfo is the outcome of marker-word locale scoring.
type LocaleInfo struct {
	Locale     string         `json:"locale"`
	Confidence float64        `json:"confidence"`
	Evidence   map[string]int `json:"evidence,omitempty"`
}

// DetectLocale scores text samples against each configured marker-word set
// (language-specific function words). The best-scoring locale wins when its
// margin over the runner-up exceeds tieMargin; otherwise the locale is
// undetermined. Confidence grows with the margin relative to the token
// count scanned, capped at 0.95.
func DetectLocale(samples []string, locales []config.LocaleMarkers, tieMargin, maxSamples int) LocaleInfo {
	if len(samples) == 0 || len(locales) == 0 {
		return LocaleInfo{Locale: LocaleUndetermined, Confidence: 0}
	}
	if maxSamples > 0 && len(samples) > maxSamples {
		samples = samples[:maxSamples]
	}

	markerSets := make([]map[string]struct{}, len(locales))
	for i, lm := range locales {
		set := make(map[string]struct{}, len(lm.Markers))
		for _, m := range lm.Markers {
			set[strings.ToLower(m)] = struct{}{}
		}
		markerSets[i] = set
	}

	scores := make([]int, len(locales))
	evidence := make(map[string]int, len(locales))
	totalTokens := 0
	for _, s := range samples {
		for _, tok := range localeTokens(s) {
			totalTokens++
			for i, set := range markerSets {
				if _, hit := set[tok]; hit {
					scores[i]++
				}
			}
		}
	}
	for i, lm := range locales {
		evidence[lm.Locale] = scores[i]
	}
	if totalTokens == 0 {
		return LocaleInfo{Locale: LocaleUndetermined, Confidence: 0}
	}

	best, second := 0, 0
	for i := 1; i < len(scores); i++ {
		if scores[i] > scores[best] {
			second = best
			best = i
		} else if len(scores) > 1 && (best == second || scores[i] > scores[second]) {
			second = i
		}
	}
	margin := scores[best]
	if len(scores) > 1 {
		margin = scores[best] - scores[second]
	}
	if margin <= tieMargin {
		return LocaleInfo{Locale: LocaleUndetermined, Confidence: 0.3, Evidence: evidence}
	}

	conf := float64(margin)/float64(totalTokens)*10 + 0.55
	if conf > 0.95 {
		conf = 0.95
	}
	return LocaleInfo{Locale: locales[best].Locale, Confidence: conf, Evidence: evidence}
}

func localeTokens(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
}
