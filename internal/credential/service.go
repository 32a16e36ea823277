// Package credential composes document validation and the registry lookup
// into a single license verification result.
package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"medcred/internal/document"
	"medcred/internal/providers"
	"medcred/internal/registry"
	"medcred/internal/specialty"
	"medcred/pkg/platform/audit"
	"medcred/pkg/requestcontext"
)

var tracer = otel.Tracer("medcred/credential")

// Service verifies professional credentials.
type Service struct {
	lookup        LicenseLookup
	auditor       AuditPublisher
	logger        *slog.Logger
	nameThreshold float64
	now           func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *Service) {
		s.auditor = p
	}
}

func WithNameThreshold(t float64) Option {
	return func(s *Service) {
		s.nameThreshold = t
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func New(lookup LicenseLookup, opts ...Option) (*Service, error) {
	if lookup == nil {
		return nil, errors.New("license lookup is required")
	}
	s := &Service{
		lookup:        lookup,
		logger:        slog.Default(),
		nameThreshold: DefaultNameThreshold,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Verify validates the document and, only when it is valid, searches the
// registry. IsVerified requires a valid document, an exact registry match
// and a license in good standing.
func (s *Service) Verify(ctx context.Context, req Request) Result {
	ctx, span := tracer.Start(ctx, "credential.verify")
	defer span.End()

	now := s.now()
	opts := []document.Option{document.WithNow(now), document.WithTypeName(req.DocumentType)}
	if req.BirthDate != nil {
		opts = append(opts, document.WithBirthDate(*req.BirthDate))
	}
	doc := document.Validate(req.DocumentNumber, opts...)

	res := Result{
		IsValid:          doc.IsValid,
		DocumentType:     doc.DocumentType,
		Confidence:       doc.Confidence,
		Specialties:      []string{},
		SpecialtyOutcome: specialty.OutcomeNone,
		Warnings:         append([]string{}, doc.Warnings...),
		Errors:           append([]string{}, doc.Errors...),
		CheckedAt:        now,
	}

	if !doc.IsValid {
		res.VerificationSource = SourceNotAttempted
		s.finish(ctx, req, doc, res)
		span.SetAttributes(attribute.String("credential.source", string(res.VerificationSource)))
		return res
	}

	found := s.lookup.Lookup(ctx, doc.Identifier)
	s.applyLookup(&res, found)

	if found.Found() && req.FullName() != "" {
		matched, score := NamesMatch(req.FullName(), found.Match.Name, s.nameThreshold)
		res.NameMatched = &matched
		if !matched {
			res.Warnings = append(res.Warnings, "supplied name does not match the registry name")
			s.logger.InfoContext(ctx, "registry name mismatch",
				"similarity", score,
				"request_id", requestcontext.RequestID(ctx),
			)
		}
	}

	res.IsVerified = res.IsValid && found.Found() && found.LicenseActive
	span.SetAttributes(
		attribute.String("credential.source", string(res.VerificationSource)),
		attribute.Bool("credential.verified", res.IsVerified),
	)
	s.finish(ctx, req, doc, res)
	return res
}

// VerifyAsync runs Verify on its own goroutine. The channel yields exactly
// one Result and is then closed.
func (s *Service) VerifyAsync(ctx context.Context, req Request) <-chan Result {
	out := make(chan Result, 1)
	go func() {
		defer close(out)
		out <- s.Verify(ctx, req)
	}()
	return out
}

func (s *Service) applyLookup(res *Result, found registry.Lookup) {
	res.RawMatchCount = found.RawMatchCount
	res.Warnings = append(res.Warnings, found.Warnings...)

	switch found.Source {
	case registry.SourceError:
		res.VerificationSource = SourceError
		res.Errors = append(res.Errors, registryErrorMessage(found.Err))
		return
	case registry.SourceNotFound:
		res.VerificationSource = SourceNotFound
		return
	}

	res.VerificationSource = SourceRegistryScrape
	match := found.Match
	res.DoctorName = match.Name
	res.Profession = match.Profession
	res.LicenseNumber = match.LicenseNumber
	res.LicenseStatus = match.LicenseStatus
	res.LicenseActive = found.LicenseActive
	res.Specialties = found.Specialties.Specialties
	res.SpecialtyOutcome = found.Specialties.Outcome
	if primary, ok := found.Specialties.Primary(); ok {
		res.Specialty = primary
	}
	if found.Specialties.Outcome == specialty.OutcomeMultiple {
		res.Warnings = append(res.Warnings, fmt.Sprintf("%d specialties registered; none selected", len(res.Specialties)))
	}
	if !found.LicenseActive {
		res.Warnings = append(res.Warnings, fmt.Sprintf("license status %q does not allow practice", match.LicenseStatus))
	}
}

func registryErrorMessage(err error) string {
	switch providers.GetCategory(err) {
	case providers.ErrorTimeout:
		return "registry did not respond in time; try again later"
	case providers.ErrorCircuitOpen, providers.ErrorProviderOutage:
		return "registry temporarily unavailable; try again later"
	default:
		return "registry lookup failed"
	}
}

func (s *Service) finish(ctx context.Context, req Request, doc document.Result, res Result) {
	action := audit.EventCredentialRejected
	decision := "unverified"
	if res.IsVerified {
		action = audit.EventCredentialVerified
		decision = "verified"
	}

	s.logger.InfoContext(ctx, "credential checked",
		"document_type", doc.DocumentType.String(),
		"valid", res.IsValid,
		"verified", res.IsVerified,
		"source", res.VerificationSource,
		"confidence", res.Confidence,
		"request_id", requestcontext.RequestID(ctx),
	)

	if s.auditor == nil {
		return
	}
	subject := req.SubjectRef
	hash := audit.HashSubjectID(doc.Normalized)
	if subject == "" && len(hash) >= 16 {
		subject = "doc:" + hash[:16]
	}
	ev := audit.NewEvent(action, subject, res.CheckedAt)
	ev.Decision = decision
	ev.Reason = string(res.VerificationSource)
	ev.SubjectIDHash = hash
	ev.RequestID = requestcontext.RequestID(ctx)
	ev.Caller = requestcontext.Caller(ctx)
	if err := s.auditor.Emit(ctx, ev); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event",
			"action", action,
			"error", err,
			"request_id", ev.RequestID,
		)
	}
}
