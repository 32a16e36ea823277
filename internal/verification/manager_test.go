package verification_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"medcred/internal/providers"
	"medcred/internal/verification"
	"medcred/internal/verification/metrics"
	"medcred/internal/verification/mocks"
	"medcred/internal/verification/provider"
	dErrors "medcred/pkg/domain-errors"
	"medcred/pkg/platform/audit"
	"medcred/pkg/platform/audit/publisher"
	auditmemory "medcred/pkg/platform/audit/store/memory"
)

// =============================================================================
// Verification Manager Test Suite
// =============================================================================
// Justification for unit tests: terminal guards, poll loop cancellation and
// expiry detection are timing-sensitive state machine rules. The provider is
// mocked so every poll response is scripted and call counts are exact.

type ManagerSuite struct {
	suite.Suite
	ctrl       *gomock.Controller
	provider   *mocks.MockProvider
	metrics    *metrics.Metrics
	auditStore *auditmemory.InMemoryStore
	clock      *fakeClock
	manager    *verification.Manager
}

func TestManagerSuite(t *testing.T) {
	suite.Run(t, new(ManagerSuite))
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (s *ManagerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.provider = mocks.NewMockProvider(s.ctrl)
	s.metrics = metrics.NewWithRegisterer(prometheus.NewRegistry())
	s.auditStore = auditmemory.NewInMemoryStore()
	s.clock = &fakeClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	// An hour between polls keeps the loop idle unless a test shortens it.
	s.manager = s.newManager(verification.WithPollInterval(time.Hour))
}

func (s *ManagerSuite) TearDownTest() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Require().NoError(s.manager.Shutdown(ctx))
	s.ctrl.Finish()
}

func (s *ManagerSuite) newManager(opts ...verification.Option) *verification.Manager {
	base := []verification.Option{
		verification.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		verification.WithMetrics(s.metrics),
		verification.WithAuditPublisher(publisher.NewPublisher(s.auditStore)),
		verification.WithClock(s.clock.Now),
		verification.WithSessionTTL(30 * time.Minute),
		verification.WithMaxPollErrors(2),
	}
	m, err := verification.NewManager(s.provider, append(base, opts...)...)
	s.Require().NoError(err)
	return m
}

func (s *ManagerSuite) expectCreate(id string) {
	s.provider.EXPECT().CreateSession(gomock.Any(), gomock.Any()).Return(&provider.SessionCreated{
		SessionID:  id,
		SessionURL: "https://verify.example/" + id,
		Status:     provider.StatusNotStarted,
		Features:   []string{"OCR", "LIVENESS", "FACE_MATCH", "AML"},
	}, nil)
}

func (s *ManagerSuite) start(id string) *verification.Handle {
	s.expectCreate(id)
	h, err := s.manager.Start(context.Background(), verification.StartRequest{SubjectID: "user-" + id})
	s.Require().NoError(err)
	return h
}

func (s *ManagerSuite) waitDone(h *verification.Handle) {
	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		s.FailNow("session did not reach a terminal state")
	}
}

func decisionEvent(id string, source verification.EventSource, d *provider.Decision) verification.Event {
	return verification.Event{SessionID: id, Source: source, Decision: d, At: time.Now()}
}

func approved() *provider.Decision {
	return &provider.Decision{
		Status:         provider.StatusApproved,
		IDVerification: &provider.Check{Status: "Approved"},
		FaceMatch:      &provider.Check{Status: "Approved"},
		Liveness:       &provider.Check{Status: "Approved"},
		AML:            &provider.AMLCheck{Status: "Approved"},
	}
}

func inProgress() *provider.Decision {
	return &provider.Decision{Status: provider.StatusInProgress}
}

func providerErr(category providers.ErrorCategory) error {
	return providers.NewProviderError(category, provider.ProviderID, "scripted", nil)
}

// =============================================================================
// Start Tests
// =============================================================================

func (s *ManagerSuite) TestNewManager_RequiresProvider() {
	_, err := verification.NewManager(nil)
	s.Require().Error(err)
}

func (s *ManagerSuite) TestStart_EntersListening() {
	var got provider.CreateSessionRequest
	s.provider.EXPECT().CreateSession(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req provider.CreateSessionRequest) (*provider.SessionCreated, error) {
			got = req
			return &provider.SessionCreated{SessionID: "s-1", SessionURL: "https://verify.example/s-1", Status: provider.StatusNotStarted}, nil
		})
	dob := time.Date(1980, 5, 17, 0, 0, 0, 0, time.UTC)

	h, err := s.manager.Start(context.Background(), verification.StartRequest{
		SubjectID:      "user-1",
		FirstName:      "Anghinie",
		LastName:       "Sanchez",
		DateOfBirth:    &dob,
		DocumentNumber: "13266929",
	})
	s.Require().NoError(err)

	s.Equal("s-1", h.ID)
	s.Equal("https://verify.example/s-1", h.URL)
	s.Equal("user-1", got.VendorData)
	s.Require().NotNil(got.ExpectedDetails)
	s.Equal("1980-05-17", got.ExpectedDetails.DateOfBirth)

	sess, err := h.Session()
	s.Require().NoError(err)
	s.Equal(verification.StateListening, sess.State)
	s.Equal(s.clock.Now().Add(30*time.Minute), sess.ExpiresAt)
	s.Equal(1, s.manager.Active())
	s.Equal(float64(1), promtest.ToFloat64(s.metrics.SessionsActive))

	events, _ := s.auditStore.ListBySubject(context.Background(), "user-1")
	s.Require().Len(events, 1)
	s.Equal(string(audit.EventSessionStarted), events[0].Action)
}

func (s *ManagerSuite) TestStart_ProviderErrors() {
	s.Run("bad request is a caller error", func() {
		s.provider.EXPECT().CreateSession(gomock.Any(), gomock.Any()).Return(nil, providerErr(providers.ErrorBadRequest))
		_, err := s.manager.Start(context.Background(), verification.StartRequest{SubjectID: "u"})
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
	s.Run("outage is unavailable", func() {
		s.provider.EXPECT().CreateSession(gomock.Any(), gomock.Any()).Return(nil, providerErr(providers.ErrorProviderOutage))
		_, err := s.manager.Start(context.Background(), verification.StartRequest{SubjectID: "u"})
		s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
	})
	s.Zero(s.manager.Active())
}

// =============================================================================
// Apply Tests
// =============================================================================

func (s *ManagerSuite) TestApply_ProgressStatusesMapToProcessing() {
	s.start("s-1")

	sess, changed := s.manager.Apply(context.Background(), decisionEvent("s-1", verification.SourceWebhook, inProgress()))
	s.True(changed)
	s.Equal(verification.StateProcessing, sess.State)
	s.Equal(provider.StatusInProgress, sess.ProviderStatus)

	_, changed = s.manager.Apply(context.Background(), decisionEvent("s-1", verification.SourceWebhook, inProgress()))
	s.False(changed, "repeated delivery changes nothing")

	sess, changed = s.manager.Apply(context.Background(), decisionEvent("s-1", verification.SourcePoll, &provider.Decision{Status: provider.StatusInReview}))
	s.True(changed)
	s.Equal(verification.StateProcessing, sess.State)
	s.Require().NotNil(sess.LastPolledAt)
}

func (s *ManagerSuite) TestApply_ApprovedCompletesWithDecision() {
	h := s.start("s-1")

	sess, changed := s.manager.Apply(context.Background(), decisionEvent("s-1", verification.SourceWebhook, approved()))
	s.True(changed)
	s.Equal(verification.StateCompleted, sess.State)
	s.Require().NotNil(sess.Decision)
	s.Equal(100, sess.Decision.Score)
	s.True(sess.Decision.Successful())

	s.waitDone(h)
	s.Zero(s.manager.Active())

	final, err := s.manager.Get("s-1")
	s.Require().NoError(err)
	s.Equal(verification.StateCompleted, final.State)

	events, _ := s.auditStore.ListBySubject(context.Background(), "user-s-1")
	s.Require().Len(events, 2)
	s.Equal(string(audit.EventSessionCompleted), events[1].Action)
	s.Equal("verified", events[1].Decision)
	s.Equal(float64(1), promtest.ToFloat64(s.metrics.SessionsFinished.WithLabelValues("completed")))
}

func (s *ManagerSuite) TestApply_DeclinedCompletesUnsuccessful() {
	s.start("s-1")
	d := &provider.Decision{
		Status:         provider.StatusDeclined,
		IDVerification: &provider.Check{Status: "Approved"},
		FaceMatch:      &provider.Check{Status: "Declined"},
		Liveness:       &provider.Check{Status: "Declined"},
		AML:            &provider.AMLCheck{Status: "Approved"},
	}

	sess, _ := s.manager.Apply(context.Background(), decisionEvent("s-1", verification.SourcePoll, d))
	s.Equal(verification.StateCompleted, sess.State)
	s.Equal(50, sess.Decision.Score)
	s.False(sess.Decision.Successful())
}

func (s *ManagerSuite) TestApply_TerminalProviderStatuses() {
	cases := []struct {
		status string
		state  verification.State
		reason string
	}{
		{provider.StatusAbandoned, verification.StateFailed, verification.ReasonAbandoned},
		{provider.StatusExpired, verification.StateExpired, verification.ReasonExpired},
		{"Teleported", verification.StateFailed, verification.ReasonMalformed},
	}
	for i, tc := range cases {
		s.Run(tc.status, func() {
			id := string(rune('a' + i))
			s.start(id)
			sess, changed := s.manager.Apply(context.Background(), decisionEvent(id, verification.SourcePoll, &provider.Decision{Status: tc.status}))
			s.True(changed)
			s.Equal(tc.state, sess.State)
			s.Equal(tc.reason, sess.FailureReason)
			s.Nil(sess.Decision)
		})
	}
}

func (s *ManagerSuite) TestApply_ErrorsByCategory() {
	cases := []struct {
		category providers.ErrorCategory
		state    verification.State
		reason   string
	}{
		{providers.ErrorNotFound, verification.StateExpired, verification.ReasonExpired},
		{providers.ErrorBadRequest, verification.StateFailed, verification.ReasonRejected},
		{providers.ErrorAuthentication, verification.StateFailed, verification.ReasonRejected},
		{providers.ErrorBadData, verification.StateFailed, verification.ReasonMalformed},
	}
	for _, tc := range cases {
		s.Run(string(tc.category), func() {
			id := "s-" + string(tc.category)
			s.start(id)
			sess, changed := s.manager.Apply(context.Background(), verification.Event{SessionID: id, Source: verification.SourcePoll, Err: providerErr(tc.category)})
			s.True(changed)
			s.Equal(tc.state, sess.State)
			s.Equal(tc.reason, sess.FailureReason)
		})
	}
}

func (s *ManagerSuite) TestApply_TransientErrorsUseRetryBudget() {
	s.start("s-1")
	outage := verification.Event{SessionID: "s-1", Source: verification.SourcePoll, Err: providerErr(providers.ErrorProviderOutage)}

	for range 2 {
		sess, changed := s.manager.Apply(context.Background(), outage)
		s.False(changed)
		s.Equal(verification.StateListening, sess.State)
	}

	s.manager.Apply(context.Background(), decisionEvent("s-1", verification.SourcePoll, inProgress()))
	for range 2 {
		sess, _ := s.manager.Apply(context.Background(), outage)
		s.Equal(verification.StateProcessing, sess.State, "a good poll resets the budget")
	}

	sess, changed := s.manager.Apply(context.Background(), outage)
	s.True(changed)
	s.Equal(verification.StateFailed, sess.State)
	s.Equal(verification.ReasonRetryExhausted, sess.FailureReason)
}

func (s *ManagerSuite) TestApply_UnknownSession() {
	sess, changed := s.manager.Apply(context.Background(), decisionEvent("nope", verification.SourceWebhook, approved()))
	s.False(changed)
	s.Empty(sess.ID)
}

// =============================================================================
// Idempotence Tests
// =============================================================================

func (s *ManagerSuite) TestApply_TerminalSessionIgnoresLateEvents() {
	s.start("s-1")
	done, _ := s.manager.Apply(context.Background(), decisionEvent("s-1", verification.SourcePoll, approved()))
	s.Require().Equal(verification.StateCompleted, done.State)

	late := []verification.Event{
		decisionEvent("s-1", verification.SourceWebhook, &provider.Decision{Status: provider.StatusDeclined}),
		decisionEvent("s-1", verification.SourceWebhook, inProgress()),
		decisionEvent("s-1", verification.SourceWebhook, approved()),
		{SessionID: "s-1", Source: verification.SourcePoll, Err: providerErr(providers.ErrorNotFound)},
		{SessionID: "s-1", Source: verification.SourceTimer, Expired: true},
		{SessionID: "s-1", Source: verification.SourceStop, Stopped: true},
	}
	for _, ev := range late {
		sess, changed := s.manager.Apply(context.Background(), ev)
		s.False(changed)
		s.Equal(verification.StateCompleted, sess.State)
		s.Equal(100, sess.Decision.Score)
	}

	final, err := s.manager.Get("s-1")
	s.Require().NoError(err)
	s.Equal(done, final)
}

func (s *ManagerSuite) TestApply_ConcurrentTerminalEventsApplyOnce() {
	h := s.start("s-1")

	var applied atomic.Int32
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d := approved()
			if i%2 == 1 {
				d.Status = provider.StatusDeclined
				d.Liveness.Status = "Declined"
			}
			if _, changed := s.manager.Apply(context.Background(), decisionEvent("s-1", verification.SourceWebhook, d)); changed {
				applied.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), applied.Load())
	s.waitDone(h)
	s.Equal(float64(1), promtest.ToFloat64(s.metrics.SessionsFinished.WithLabelValues("completed")))
}

// =============================================================================
// Poll Loop Tests
// =============================================================================

func (s *ManagerSuite) TestPoll_InProgressThenNotFoundExpiresAndStops() {
	m := s.newManager(verification.WithPollInterval(5 * time.Millisecond))
	defer func() { _ = m.Shutdown(context.Background()) }()

	var calls atomic.Int32
	var stateAtSecondPoll verification.State
	s.expectCreate("s-c")
	gomock.InOrder(
		s.provider.EXPECT().GetDecision(gomock.Any(), "s-c").DoAndReturn(
			func(context.Context, string) (*provider.Decision, error) {
				calls.Add(1)
				return inProgress(), nil
			}),
		s.provider.EXPECT().GetDecision(gomock.Any(), "s-c").DoAndReturn(
			func(context.Context, string) (*provider.Decision, error) {
				calls.Add(1)
				sess, _ := m.Get("s-c")
				stateAtSecondPoll = sess.State
				return nil, providers.FromStatus(provider.ProviderID, 404, "session not found")
			}),
	)

	h, err := m.Start(context.Background(), verification.StartRequest{SubjectID: "user-c"})
	s.Require().NoError(err)
	s.waitDone(h)

	s.Equal(verification.StateProcessing, stateAtSecondPoll)
	sess, err := m.Get("s-c")
	s.Require().NoError(err)
	s.Equal(verification.StateExpired, sess.State)
	s.Equal(verification.ReasonExpired, sess.FailureReason)

	time.Sleep(50 * time.Millisecond)
	s.Equal(int32(2), calls.Load(), "no polls after expiry")
	s.Zero(m.Active())
}

func (s *ManagerSuite) TestPoll_ExpiresLocallyWithoutCallingProvider() {
	// The first reading stamps CreatedAt; every later one is past the TTL.
	var readings atomic.Int32
	clock := func() time.Time {
		if readings.Add(1) == 1 {
			return s.clock.Now()
		}
		return s.clock.Now().Add(31 * time.Minute)
	}
	m := s.newManager(verification.WithPollInterval(5*time.Millisecond), verification.WithClock(clock))
	defer func() { _ = m.Shutdown(context.Background()) }()
	s.expectCreate("s-x")

	h, err := m.Start(context.Background(), verification.StartRequest{SubjectID: "user-x"})
	s.Require().NoError(err)
	s.waitDone(h)

	sess, err := m.Get("s-x")
	s.Require().NoError(err)
	s.Equal(verification.StateExpired, sess.State)
	s.Nil(sess.LastPolledAt)
}

func (s *ManagerSuite) TestPoll_RecoversFromTransientErrors() {
	m := s.newManager(verification.WithPollInterval(5 * time.Millisecond))
	defer func() { _ = m.Shutdown(context.Background()) }()
	s.expectCreate("s-t")
	gomock.InOrder(
		s.provider.EXPECT().GetDecision(gomock.Any(), "s-t").Return(nil, providerErr(providers.ErrorTimeout)).Times(2),
		s.provider.EXPECT().GetDecision(gomock.Any(), "s-t").Return(approved(), nil),
	)

	h, err := m.Start(context.Background(), verification.StartRequest{SubjectID: "user-t"})
	s.Require().NoError(err)
	s.waitDone(h)

	sess, _ := h.Session()
	s.Equal(verification.StateCompleted, sess.State)
	s.Equal(float64(2), promtest.ToFloat64(s.metrics.PollsTotal.WithLabelValues("timeout")))
}

// =============================================================================
// Stop / Shutdown Tests
// =============================================================================

func (s *ManagerSuite) TestStop() {
	h := s.start("s-1")

	sess, err := s.manager.Stop(context.Background(), "s-1")
	s.Require().NoError(err)
	s.Equal(verification.StateFailed, sess.State)
	s.Equal(verification.ReasonStopped, sess.FailureReason)
	s.waitDone(h)

	again, err := s.manager.Stop(context.Background(), "s-1")
	s.Require().NoError(err)
	s.Equal(sess, again)

	events, _ := s.auditStore.ListBySubject(context.Background(), "user-s-1")
	s.Require().Len(events, 2)
	s.Equal(string(audit.EventSessionStopped), events[1].Action)

	_, err = s.manager.Stop(context.Background(), "missing")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ManagerSuite) TestShutdown_StopsRunningSessions() {
	h1 := s.start("s-1")
	h2 := s.start("s-2")

	s.Require().NoError(s.manager.Shutdown(context.Background()))
	s.waitDone(h1)
	s.waitDone(h2)

	sess, _ := h1.Session()
	s.Equal(verification.StateFailed, sess.State)
	s.Equal(verification.ReasonShutdown, sess.FailureReason)

	_, err := s.manager.Start(context.Background(), verification.StartRequest{SubjectID: "late"})
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
}

func (s *ManagerSuite) TestGet_RetentionIsBounded() {
	s.manager = s.newManager(verification.WithPollInterval(time.Hour), verification.WithRetention(1))
	s.start("s-1")
	s.start("s-2")
	s.manager.Apply(context.Background(), decisionEvent("s-1", verification.SourceWebhook, approved()))
	s.manager.Apply(context.Background(), decisionEvent("s-2", verification.SourceWebhook, approved()))

	_, err := s.manager.Get("s-1")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	_, err = s.manager.Get("s-2")
	s.NoError(err)
}
