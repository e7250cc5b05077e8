package extract

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/carenote/medrec/internal/domain/medication"
	"github.com/carenote/medrec/internal/observability/metrics"
	"github.com/carenote/medrec/pkg/circuitbreaker"
)

// Extraction method labels reported in results and metrics.
const (
	MethodPrimary  = "primary"
	MethodFallback = "fallback"
)

// Result is the outcome of running a note through the extraction pipeline.
type Result struct {
	Medications        []*medication.Command `json:"medications"`
	StoppedMedications []string              `json:"stoppedMedications"`
	TotalFound         int                   `json:"totalFound"`
	Confidence         float64               `json:"confidence"`
	Method             string                `json:"method"`
	ProcessingTimeMs   int64                 `json:"processingTimeMs"`
}

// Service runs the primary oracle behind a circuit breaker and falls back to
// the regex extractor when the primary is unavailable, misbehaving, or finds
// nothing. It never returns an error: the fallback always produces a result,
// possibly empty.
type Service struct {
	primary  Oracle
	fallback Oracle
	breaker  *circuitbreaker.CircuitBreaker
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewService creates an extraction service. primary may be nil, in which case
// every note goes straight to the fallback extractor.
func NewService(primary, fallback Oracle, breaker *circuitbreaker.CircuitBreaker, m *metrics.Metrics, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		primary:  primary,
		fallback: fallback,
		breaker:  breaker,
		metrics:  m,
		logger:   logger,
	}
}

// Extract runs the note through the primary oracle, falling back on failure.
func (s *Service) Extract(ctx context.Context, note string, pctx PatientContext) *Result {
	start := time.Now()

	ext, method := s.run(ctx, note, pctx)

	res := &Result{
		Medications:        ext.Commands,
		StoppedMedications: ext.StoppedNames,
		TotalFound:         len(ext.Commands),
		Confidence:         meanConfidence(ext.Commands),
		Method:             method,
		ProcessingTimeMs:   time.Since(start).Milliseconds(),
	}
	if res.Medications == nil {
		res.Medications = []*medication.Command{}
	}
	if res.StoppedMedications == nil {
		res.StoppedMedications = []string{}
	}

	if s.metrics != nil {
		s.metrics.ExtractionsTotal.WithLabelValues(method).Inc()
		s.metrics.ExtractionConfidence.Observe(res.Confidence)
		s.metrics.ExtractionDuration.Observe(time.Since(start).Seconds())
	}

	s.logger.Info("note extracted",
		zap.String("method", method),
		zap.Int("medications", res.TotalFound),
		zap.Int("stopped", len(res.StoppedMedications)),
		zap.Float64("confidence", res.Confidence))

	return res
}

func (s *Service) run(ctx context.Context, note string, pctx PatientContext) (*Extraction, string) {
	if s.primary != nil {
		ext, err := s.runPrimary(ctx, note, pctx)
		if err == nil && ext != nil && len(ext.Commands) > 0 {
			return ext, MethodPrimary
		}
		if err != nil {
			if s.metrics != nil {
				s.metrics.OracleFailures.Inc()
			}
			if errors.Is(err, ErrMalformedResponse) {
				s.logger.Warn("primary oracle returned malformed response, falling back",
					zap.String("oracle", s.primary.Name()))
			} else {
				s.logger.Warn("primary oracle failed, falling back",
					zap.String("oracle", s.primary.Name()),
					zap.Error(err))
			}
		} else {
			s.logger.Debug("primary oracle found no medications, falling back",
				zap.String("oracle", s.primary.Name()))
		}
	}

	ext, err := s.fallback.Extract(ctx, note, pctx)
	if err != nil || ext == nil {
		// The regex extractor does not error, but guard anyway.
		return &Extraction{}, MethodFallback
	}
	return ext, MethodFallback
}

func (s *Service) runPrimary(ctx context.Context, note string, pctx PatientContext) (*Extraction, error) {
	if s.breaker == nil {
		return s.primary.Extract(ctx, note, pctx)
	}
	result, err := s.breaker.Execute(ctx, func() (interface{}, error) {
		return s.primary.Extract(ctx, note, pctx)
	})
	if err != nil {
		return nil, err
	}
	// A nil extraction with a nil error is an oracle contract violation;
	// treated as an empty result so the caller falls back.
	ext, _ := result.(*Extraction)
	return ext, nil
}

func meanConfidence(commands []*medication.Command) float64 {
	if len(commands) == 0 {
		return 0
	}
	var sum float64
	for _, c := range commands {
		sum += c.Confidence
	}
	return sum / float64(len(commands))
}
