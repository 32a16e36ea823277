package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"medcred/internal/document"
	"medcred/internal/providers"
	"medcred/internal/registry/metrics"
	"medcred/internal/specialty"
	"medcred/pkg/platform/circuit"
	"medcred/pkg/requestcontext"
)

const providerID = "registry"

const (
	defaultMaxRetries     = 2
	defaultInitialBackoff = 500 * time.Millisecond
)

var tracer = otel.Tracer("medcred/registry")

// Service runs registry searches with bounded retries and a circuit
// breaker, then picks the first exact document match. Results are never
// cached: license status must reflect the registry at verification time.
type Service struct {
	searcher       Searcher
	breaker        *circuit.Breaker
	maxRetries     uint64
	initialBackoff time.Duration
	logger         *slog.Logger
	metrics        *metrics.Metrics
	now            func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithMaxRetries bounds retries after the first attempt.
func WithMaxRetries(n uint64) Option {
	return func(s *Service) {
		s.maxRetries = n
	}
}

// WithInitialBackoff sets the first retry delay; later delays grow exponentially.
func WithInitialBackoff(d time.Duration) Option {
	return func(s *Service) {
		s.initialBackoff = d
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(s *Service) {
		s.breaker = b
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func New(searcher Searcher, opts ...Option) (*Service, error) {
	if searcher == nil {
		return nil, errors.New("searcher is required")
	}
	s := &Service{
		searcher:       searcher,
		maxRetries:     defaultMaxRetries,
		initialBackoff: defaultInitialBackoff,
		logger:         slog.Default(),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.breaker == nil {
		s.breaker = circuit.New(providerID)
	}
	return s, nil
}

// Lookup searches the registry for id. It never returns an error value:
// failures are reported as SourceError with Err set and no candidate data.
func (s *Service) Lookup(ctx context.Context, id document.Identifier) Lookup {
	ctx, span := tracer.Start(ctx, "registry.lookup")
	defer span.End()
	start := time.Now()

	query := id.Digits()
	if query == "" {
		query = id.Value()
	}

	result := s.lookup(ctx, query)
	result.CheckedAt = s.now()

	span.SetAttributes(
		attribute.String("registry.source", string(result.Source)),
		attribute.Int("registry.attempts", result.Attempts),
		attribute.Int("registry.rows", result.RawMatchCount),
	)
	if result.Err != nil {
		span.RecordError(result.Err)
		span.SetStatus(codes.Error, string(providers.GetCategory(result.Err)))
	}
	if s.metrics != nil {
		s.metrics.IncLookup(string(result.Source))
		s.metrics.ObserveLookupDuration(time.Since(start))
	}
	s.logger.InfoContext(ctx, "registry lookup finished",
		"source", result.Source,
		"attempts", result.Attempts,
		"rows", result.RawMatchCount,
		"duration_ms", time.Since(start).Milliseconds(),
		"request_id", requestcontext.RequestID(ctx),
	)
	return result
}

func (s *Service) lookup(ctx context.Context, query string) Lookup {
	if !s.breaker.Allow() {
		return Lookup{
			Source: SourceError,
			Err:    providers.NewProviderError(providers.ErrorCircuitOpen, providerID, "registry temporarily unavailable", nil),
		}
	}

	rows, attempts, err := s.searchWithRetry(ctx, query)
	if err != nil {
		if ctx.Err() == nil {
			s.recordFailure(ctx)
		}
		return Lookup{Source: SourceError, Attempts: attempts, Err: err}
	}
	s.recordSuccess(ctx)

	result := selectMatch(rows, query)
	result.Attempts = attempts
	if result.Match != nil && result.Specialties.Diagnostic != "" {
		s.logger.WarnContext(ctx, "specialty text could not be parsed",
			"diagnostic", result.Specialties.Diagnostic,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	return result
}

func (s *Service) searchWithRetry(ctx context.Context, query string) ([]Candidate, int, error) {
	var rows []Candidate
	attempts := 0

	op := func() error {
		attempts++
		found, err := s.searcher.Search(ctx, query)
		if err != nil {
			pe := providers.Classify(providerID, err)
			if !pe.Retryable || ctx.Err() != nil {
				return backoff.Permanent(pe)
			}
			return pe
		}
		rows = found
		return nil
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = s.initialBackoff
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, s.maxRetries), ctx)

	notify := func(err error, wait time.Duration) {
		if s.metrics != nil {
			s.metrics.IncRetry()
		}
		s.logger.WarnContext(ctx, "registry search failed, retrying",
			"error", err,
			"attempt", attempts,
			"wait_ms", wait.Milliseconds(),
			"request_id", requestcontext.RequestID(ctx),
		)
	}

	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return nil, attempts, err
	}
	return rows, attempts, nil
}

func (s *Service) recordFailure(ctx context.Context) {
	_, change := s.breaker.RecordFailure()
	if change.Opened {
		s.logger.WarnContext(ctx, "registry circuit opened", "breaker", s.breaker.Name())
		if s.metrics != nil {
			s.metrics.SetBreakerOpen(true)
		}
	}
}

func (s *Service) recordSuccess(ctx context.Context) {
	_, change := s.breaker.RecordSuccess()
	if change.Closed {
		s.logger.InfoContext(ctx, "registry circuit closed", "breaker", s.breaker.Name())
		if s.metrics != nil {
			s.metrics.SetBreakerOpen(false)
		}
	}
}

// selectMatch applies the ambiguity policy. Rows that carry a document
// number must equal the query exactly; partial matches never win. When the
// results table has no document column at all, the first row is used and
// any others are flagged.
func selectMatch(rows []Candidate, query string) Lookup {
	result := Lookup{RawMatchCount: len(rows), Warnings: []string{}}
	if len(rows) == 0 {
		result.Source = SourceNotFound
		return result
	}

	numbered, exact := 0, 0
	for i := range rows {
		digits := digitsOf(rows[i].DocumentNumber)
		if digits == "" {
			continue
		}
		numbered++
		if digits != digitsOf(query) {
			continue
		}
		exact++
		if result.Match == nil {
			match := rows[i]
			result.Match = &match
		}
	}

	switch {
	case numbered == 0:
		match := rows[0]
		result.Match = &match
		if len(rows) > 1 {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("registry returned %d rows without document numbers; using the first", len(rows)))
		}
	case result.Match == nil:
		result.Source = SourceNotFound
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("registry returned %d row(s) but none matched the document number exactly", len(rows)))
		return result
	case exact > 1:
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("registry returned %d exact matches; using the first", exact))
	}

	result.Source = SourceRegistryScrape
	result.Specialties = specialty.Analyze(result.Match.SpecialtyText)
	result.LicenseActive = LicenseActive(result.Match.LicenseStatus)
	if strings.TrimSpace(result.Match.LicenseStatus) == "" {
		result.Warnings = append(result.Warnings, "registry did not report a license status")
	}
	return result
}

func digitsOf(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
