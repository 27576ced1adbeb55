package nlu

import (
	"context"
	"strings"

	"github.com/spec-kit/dispatch-service/internal/domain"
)

var categoryKeywords = []struct {
	category domain.IncidentCategory
	words    []string
}{
	{domain.CategoryCardiac, []string{"cardiac", "heart", "chest pain"}},
	{domain.CategoryTrauma, []string{"trauma", "accident", "hit", "crash"}},
	{domain.CategoryFire, []string{"fire", "smoke", "burn"}},
}

var riskIndicators = []string{
	"unconscious",
	"unresponsive",
	"not breathing",
	"shortness of breath",
	"severe bleeding",
	"multiple victims",
	"trapped",
	"explosion",
	"spreading",
	"child",
}

// KeywordClassifier is a deterministic, offline classifier matching known
// phrases. It backs the service when no external NLU endpoint is configured.
type KeywordClassifier struct{}

// NewKeywordClassifier creates the offline classifier.
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{}
}

// Classify scans the text for category keywords and risk indicator phrases.
// The first category whose keywords hit wins; confidence scales with the
// number of distinct keyword hits. Empty text yields ErrNoCategory.
func (c *KeywordClassifier) Classify(ctx context.Context, text string, hints []string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	lowered := strings.ToLower(strings.TrimSpace(text))
	if lowered == "" {
		return nil, ErrNoCategory
	}

	category := domain.CategoryOther
	hits := 0
	for _, entry := range categoryKeywords {
		count := 0
		for _, word := range entry.words {
			if strings.Contains(lowered, word) {
				count++
			}
		}
		if count > 0 {
			category = entry.category
			hits = count
			break
		}
	}

	indicators := make([]string, 0, len(hints))
	seen := make(map[string]struct{}, len(hints))
	for _, hint := range hints {
		hint = strings.ToLower(strings.TrimSpace(hint))
		if hint == "" {
			continue
		}
		if _, dup := seen[hint]; dup {
			continue
		}
		seen[hint] = struct{}{}
		indicators = append(indicators, hint)
	}
	for _, phrase := range riskIndicators {
		if _, dup := seen[phrase]; dup {
			continue
		}
		if strings.Contains(lowered, phrase) {
			seen[phrase] = struct{}{}
			indicators = append(indicators, phrase)
		}
	}

	confidence := 0.55
	switch {
	case hits >= 2:
		confidence = 0.9
	case hits == 1:
		confidence = 0.75
	}

	return &Result{
		Category:   category,
		Indicators: indicators,
		Confidence: confidence,
	}, nil
}
