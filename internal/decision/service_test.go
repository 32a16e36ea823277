package decision_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"medcred/internal/credential"
	"medcred/internal/decision"
	"medcred/internal/decision/metrics"
	"medcred/internal/document"
	"medcred/internal/verification"
	dErrors "medcred/pkg/domain-errors"
	"medcred/pkg/platform/audit"
	"medcred/pkg/platform/audit/publisher"
	auditmemory "medcred/pkg/platform/audit/store/memory"
	"medcred/pkg/platform/sentinel"
)

// =============================================================================
// Decision Service Test Suite
// =============================================================================
// Justification for unit tests: the service only gathers evidence and
// forwards it to the rule chain; these tests pin the gathering contract.

type ServiceSuite struct {
	suite.Suite
	creds      *stubVerifier
	sessions   *stubSessions
	metrics    *metrics.Metrics
	auditStore *auditmemory.InMemoryStore
	service    *decision.Service
	now        time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

type stubVerifier struct {
	got    credential.Request
	result credential.Result
}

func (s *stubVerifier) Verify(_ context.Context, req credential.Request) credential.Result {
	s.got = req
	return s.result
}

type stubSessions struct {
	sessions map[string]verification.Session
}

func (s *stubSessions) Get(id string) (verification.Session, error) {
	if sess, ok := s.sessions[id]; ok {
		return sess, nil
	}
	return verification.Session{}, dErrors.Wrap(sentinel.ErrNotFound, dErrors.CodeNotFound, "verification session not found")
}

func (s *ServiceSuite) SetupTest() {
	s.creds = &stubVerifier{result: credential.Result{
		IsValid:            true,
		IsVerified:         true,
		LicenseActive:      true,
		VerificationSource: credential.SourceRegistryScrape,
	}}
	s.sessions = &stubSessions{sessions: map[string]verification.Session{
		"s-done": {
			ID:        "s-done",
			SubjectID: "user-1",
			State:     verification.StateCompleted,
			Decision:  &verification.Decision{SessionID: "s-done", Score: 100},
		},
	}}
	s.metrics = metrics.NewWithRegisterer(prometheus.NewRegistry())
	s.auditStore = auditmemory.NewInMemoryStore()
	s.now = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	svc, err := decision.NewService(s.creds, s.sessions,
		decision.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		decision.WithMetrics(s.metrics),
		decision.WithAuditPublisher(publisher.NewPublisher(s.auditStore)),
		decision.WithClock(func() time.Time { return s.now }),
	)
	s.Require().NoError(err)
	s.service = svc
}

func (s *ServiceSuite) TestNewService_RequiresDependencies() {
	_, err := decision.NewService(nil, s.sessions)
	s.Error(err)
	_, err = decision.NewService(s.creds, nil)
	s.Error(err)
}

func (s *ServiceSuite) TestEvaluate_PassWithCompletedSession() {
	result, err := s.service.Evaluate(context.Background(), decision.EvaluateRequest{
		Credential: credential.Request{DocumentNumber: "V-13266929"},
		SessionID:  "s-done",
	})
	s.Require().NoError(err)

	s.Equal(decision.StatusPass, result.Status)
	s.Equal(s.now, result.EvaluatedAt)
	s.Require().NotNil(result.Session)
	s.Equal("V-13266929", s.creds.got.DocumentNumber)
	s.Equal(float64(1), promtest.ToFloat64(s.metrics.DecisionOutcome.WithLabelValues("pass", "all_checks_passed")))

	events, _ := s.auditStore.ListBySubject(context.Background(), "user-1")
	s.Require().Len(events, 1)
	s.Equal(string(audit.EventDecisionMade), events[0].Action)
	s.Equal("pass", events[0].Decision)
	s.Equal(audit.HashSubjectID("V-13266929"), events[0].SubjectIDHash)
}

// The decision event must carry the same subject hash as the credential
// event for one document, however the caller formatted the number.
func (s *ServiceSuite) TestEvaluate_HashesNormalizedDocumentNumber() {
	_, err := s.service.Evaluate(context.Background(), decision.EvaluateRequest{
		Credential: credential.Request{DocumentNumber: " v-13.266.929 ", SubjectRef: "ref-fmt"},
	})
	s.Require().NoError(err)

	events, _ := s.auditStore.ListBySubject(context.Background(), "ref-fmt")
	s.Require().Len(events, 1)
	s.Equal(audit.HashSubjectID("V-13266929"), events[0].SubjectIDHash)
	s.Equal(audit.HashSubjectID(document.Validate(" v-13.266.929 ").Normalized), events[0].SubjectIDHash)
}

func (s *ServiceSuite) TestEvaluate_WithoutSessionIsPending() {
	result, err := s.service.Evaluate(context.Background(), decision.EvaluateRequest{
		Credential: credential.Request{DocumentNumber: "V-13266929", SubjectRef: "ref-9"},
	})
	s.Require().NoError(err)
	s.Equal(decision.StatusPending, result.Status)
	s.Nil(result.Session)

	events, _ := s.auditStore.ListBySubject(context.Background(), "ref-9")
	s.Len(events, 1)
}

func (s *ServiceSuite) TestEvaluate_UnknownSession() {
	_, err := s.service.Evaluate(context.Background(), decision.EvaluateRequest{
		Credential: credential.Request{DocumentNumber: "V-13266929"},
		SessionID:  "missing",
	})
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}
