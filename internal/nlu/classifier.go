// Package nlu provides classifiers that turn free-text emergency reports
// into structured categories, severity indicators, and a confidence score.
package nlu

import (
	"context"
	"errors"

	"github.com/spec-kit/dispatch-service/internal/domain"
)

// ErrNoCategory signals that the classifier could not determine any category
// for the text. Callers degrade to an unknown-category incident.
var ErrNoCategory = errors.New("nlu: no category recognized")

// Result is the structured interpretation of one report.
type Result struct {
	Category   domain.IncidentCategory
	Indicators []string
	Confidence float64
}

// Classifier extracts incident attributes from unstructured text. Implementations
// must respect the context deadline; classification is the only suspend point in
// the intake path.
type Classifier interface {
	Classify(ctx context.Context, text string, hints []string) (*Result, error)
}
