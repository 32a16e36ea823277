package decision

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"medcred/internal/decision/metrics"
	"medcred/internal/document"
	"medcred/pkg/platform/audit"
	"medcred/pkg/requestcontext"
)

const evidenceTimeout = 90 * time.Second

// Service gathers both pipelines' evidence and applies the rule chain.
type Service struct {
	credentials CredentialVerifier
	sessions    SessionReader
	auditor     AuditPublisher
	metrics     *metrics.Metrics
	logger      *slog.Logger
	now         func() time.Time
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

func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *Service) {
		s.auditor = p
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(credentials CredentialVerifier, sessions SessionReader, opts ...Option) (*Service, error) {
	if credentials == nil {
		return nil, errors.New("credential verifier is required")
	}
	if sessions == nil {
		return nil, errors.New("session reader is required")
	}
	s := &Service{
		credentials: credentials,
		sessions:    sessions,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Evaluate runs the credential check and reads the biometric session
// concurrently. Only a missing session is an error; registry problems are
// part of the outcome.
func (s *Service) Evaluate(ctx context.Context, req EvaluateRequest) (*EvaluateResult, error) {
	start := time.Now()
	defer func() {
		s.metrics.ObserveEvaluateLatency(time.Since(start))
	}()

	result, err := s.gather(ctx, req)
	if err != nil {
		return nil, err
	}

	result.Outcome = EvaluateSession(result.Credential, result.Session)
	result.EvaluatedAt = s.now()
	s.metrics.IncrementOutcome(string(result.Status), string(result.Reason))

	s.logger.InfoContext(ctx, "decision evaluated",
		"status", result.Status,
		"reason", result.Reason,
		"session_id", req.SessionID,
		"request_id", requestcontext.RequestID(ctx),
	)
	s.emit(ctx, req, result)
	return result, nil
}

// gather fetches evidence in parallel with shared cancellation.
func (s *Service) gather(ctx context.Context, req EvaluateRequest) (*EvaluateResult, error) {
	ctx, cancel := context.WithTimeout(ctx, evidenceTimeout)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	result := &EvaluateResult{}

	g.Go(func() error {
		started := time.Now()
		result.Credential = s.credentials.Verify(ctx, req.Credential)
		s.metrics.ObserveEvidenceLatency("credential", time.Since(started))
		return nil
	})

	if req.SessionID != "" {
		g.Go(func() error {
			started := time.Now()
			session, err := s.sessions.Get(req.SessionID)
			s.metrics.ObserveEvidenceLatency("session", time.Since(started))
			if err != nil {
				return err
			}
			result.Session = &session
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) emit(ctx context.Context, req EvaluateRequest, result *EvaluateResult) {
	if s.auditor == nil {
		return
	}
	subject := req.Credential.SubjectRef
	if subject == "" && result.Session != nil {
		subject = result.Session.SubjectID
	}
	ev := audit.NewEvent(audit.EventDecisionMade, subject, result.EvaluatedAt)
	ev.Decision = string(result.Status)
	ev.Reason = string(result.Reason)
	ev.SubjectIDHash = audit.HashSubjectID(document.Normalize(req.Credential.DocumentNumber))
	ev.RequestID = requestcontext.RequestID(ctx)
	ev.Caller = requestcontext.Caller(ctx)
	if err := s.auditor.Emit(ctx, ev); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event",
			"action", audit.EventDecisionMade,
			"error", err,
			"request_id", ev.RequestID,
		)
	}
}
