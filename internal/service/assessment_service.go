package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/dispatch-service/internal/config"
	"github.com/spec-kit/dispatch-service/internal/domain"
	"github.com/spec-kit/dispatch-service/internal/events"
	"github.com/spec-kit/dispatch-service/internal/nlu"
	"github.com/spec-kit/dispatch-service/internal/observability"
	"github.com/spec-kit/dispatch-service/internal/repository"
	"github.com/spec-kit/dispatch-service/pkg/util/errorutil"
)

// AssessmentService normalizes raw reports into assessed incidents.
type AssessmentService struct {
	incidents  repository.IncidentRepository
	classifier nlu.Classifier
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	cfg        config.AssessmentConfig
}

// AssessmentDependencies bundles collaborators for the assessment service.
type AssessmentDependencies struct {
	IncidentRepo repository.IncidentRepository
	Classifier   nlu.Classifier
	Dispatcher   events.Dispatcher
	Metrics      *observability.Metrics
	Logger       *zap.Logger
	Config       config.AssessmentConfig
}

// ReportInput describes one raw emergency report.
type ReportInput struct {
	Description   string
	Latitude      float64
	Longitude     float64
	Address       string
	Hints         []string
	CallerContact *string
}

// NewAssessmentService constructs the service.
func NewAssessmentService(deps AssessmentDependencies) *AssessmentService {
	return &AssessmentService{
		incidents:  deps.IncidentRepo,
		classifier: deps.Classifier,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		cfg:        deps.Config,
	}
}

// Assess interprets the report and creates the incident record. Classification
// failures degrade to an unknown-category incident at the configured severity
// floor; a report is never silently dropped. Queue insertion is the caller's
// responsibility.
func (s *AssessmentService) Assess(ctx context.Context, input ReportInput) (*domain.Incident, error) {
	description := strings.TrimSpace(input.Description)
	if description == "" && len(input.Hints) == 0 {
		return nil, errorutil.NewValidationError("description or hints required", nil)
	}
	location := domain.Location{
		Latitude:  input.Latitude,
		Longitude: input.Longitude,
		Address:   strings.TrimSpace(input.Address),
	}
	if !location.Valid() {
		return nil, errorutil.NewValidationError("location coordinates out of range", map[string]any{
			"latitude":  "must be within [-90, 90]",
			"longitude": "must be within [-180, 180]",
		})
	}

	assessment := s.classify(ctx, description, input.Hints)
	severity := severityScore(assessment.Category, assessment.Confidence, len(assessment.Indicators), s.cfg.FallbackSeverity)

	incident := &domain.Incident{
		ExternalKey:   generateIncidentKey(),
		Category:      assessment.Category,
		Severity:      severity,
		Confidence:    assessment.Confidence,
		Degraded:      assessment.Degraded,
		Location:      location,
		Description:   description,
		Indicators:    assessment.Indicators,
		CallerContact: input.CallerContact,
		Status:        domain.IncidentStatusNew,
	}
	if err := s.incidents.Create(ctx, incident); err != nil {
		return nil, errorutil.ToDomainError(err)
	}

	s.metrics.RecordStage(observability.StageReceived)
	if assessment.Degraded {
		s.metrics.RecordStage(observability.StageAssessmentFallback)
	} else {
		s.metrics.RecordStage(observability.StageAssessed)
	}

	s.logger.Info("incident assessed",
		zap.String("incident_id", incident.ID),
		zap.String("external_key", incident.ExternalKey),
		zap.String("category", string(incident.Category)),
		zap.Int("severity", incident.Severity),
		zap.Bool("degraded", assessment.Degraded))

	publishEvent(ctx, s.dispatcher, events.Event{
		Type:       events.EventIncidentReceived,
		IncidentID: incident.ID,
		Actor:      actorOperator,
		Payload: events.IncidentReceivedPayload{
			Category:   incident.Category,
			Severity:   incident.Severity,
			Band:       incident.Band(),
			Degraded:   assessment.Degraded,
			Confidence: incident.Confidence,
		},
	})
	return incident, nil
}

// classify runs the external classifier with a bounded timeout per attempt and
// a short backoff between attempts. All failures collapse into the degraded
// assessment; the error itself is only logged.
func (s *AssessmentService) classify(ctx context.Context, text string, hints []string) domain.Assessment {
	attempts := s.cfg.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	var (
		result *nlu.Result
		err    error
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout())
		result, err = s.classifier.Classify(callCtx, text, hints)
		cancel()
		if err == nil || ctx.Err() != nil {
			break
		}
		if attempt < attempts {
			select {
			case <-ctx.Done():
			case <-time.After(s.cfg.RetryBackoff()):
			}
		}
	}

	if err != nil {
		degraded := errorutil.ToDomainError(errorutil.NewAssessmentError("classifier unavailable or undecided", err))
		s.logger.Warn("assessment degraded to fallback",
			zap.String("code", degraded.Code),
			zap.Int("fallback_severity", s.cfg.FallbackSeverity),
			zap.Error(err))
		return domain.Assessment{
			Category:   domain.CategoryUnknown,
			Confidence: 0,
			Indicators: normalizeIndicators(hints, nil),
			Degraded:   true,
		}
	}

	return domain.Assessment{
		Category:   result.Category,
		Confidence: result.Confidence,
		Indicators: normalizeIndicators(hints, result.Indicators),
	}
}

var categoryBaseSeverity = map[domain.IncidentCategory]int{
	domain.CategoryCardiac: 8,
	domain.CategoryTrauma:  7,
	domain.CategoryFire:    8,
	domain.CategoryOther:   5,
}

// severityScore blends the category base score, half a point per indicator,
// and the fallback floor weighted by classifier confidence. The result is
// truncated and clamped to the valid range.
func severityScore(category domain.IncidentCategory, confidence float64, indicators int, floor int) int {
	base, known := categoryBaseSeverity[category]
	if !known {
		return domain.ClampSeverity(floor)
	}
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	raw := confidence*(float64(base)+0.5*float64(indicators)) + (1-confidence)*float64(floor)
	return domain.ClampSeverity(int(raw))
}

func normalizeIndicators(hints, extracted []string) []string {
	out := make([]string, 0, len(hints)+len(extracted))
	seen := make(map[string]struct{}, len(hints)+len(extracted))
	for _, group := range [][]string{hints, extracted} {
		for _, indicator := range group {
			indicator = strings.ToLower(strings.TrimSpace(indicator))
			if indicator == "" {
				continue
			}
			if _, dup := seen[indicator]; dup {
				continue
			}
			seen[indicator] = struct{}{}
			out = append(out, indicator)
		}
	}
	return out
}
