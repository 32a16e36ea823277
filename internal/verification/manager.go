package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"medcred/internal/providers"
	"medcred/internal/verification/metrics"
	"medcred/internal/verification/provider"
	dErrors "medcred/pkg/domain-errors"
	"medcred/pkg/platform/audit"
	"medcred/pkg/platform/sentinel"
	"medcred/pkg/requestcontext"
)

var tracer = otel.Tracer("medcred/verification")

const (
	defaultPollInterval  = 5 * time.Second
	defaultSessionTTL    = 30 * time.Minute
	defaultMaxPollErrors = 5
	defaultRetention     = 1024
)

// ReasonShutdown is recorded on sessions still running when the manager stops.
const ReasonShutdown = "service shutting down"

// ErrManagerClosed is returned by Start after Shutdown.
var ErrManagerClosed = errors.New("verification manager closed")

// tracked is the mutable record behind one session. mu serializes every
// write; the poll loop and webhook deliveries both go through Apply.
type tracked struct {
	mu         sync.Mutex
	session    Session
	cancel     context.CancelFunc
	done       chan struct{}
	pollErrors int
}

// Manager owns the active sessions and their poll loops.
type Manager struct {
	provider      Provider
	auditor       AuditPublisher
	metrics       *metrics.Metrics
	logger        *slog.Logger
	pollInterval  time.Duration
	sessionTTL    time.Duration
	maxPollErrors int
	retention     int
	now           func() time.Time

	mu          sync.RWMutex
	sessions    map[string]*tracked
	recent      map[string]Session
	recentOrder []string
	closed      bool
	wg          sync.WaitGroup
}

type Option func(*Manager)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = mt
	}
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(m *Manager) {
		m.auditor = p
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.pollInterval = d
		}
	}
}

func WithSessionTTL(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.sessionTTL = d
		}
	}
}

// WithMaxPollErrors sets how many consecutive transient poll failures are
// tolerated before the session fails.
func WithMaxPollErrors(n int) Option {
	return func(m *Manager) {
		if n >= 0 {
			m.maxPollErrors = n
		}
	}
}

// WithRetention bounds how many finished sessions stay readable via Get.
func WithRetention(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.retention = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

func NewManager(p Provider, opts ...Option) (*Manager, error) {
	if p == nil {
		return nil, errors.New("verification provider is required")
	}
	m := &Manager{
		provider:      p,
		logger:        slog.Default(),
		pollInterval:  defaultPollInterval,
		sessionTTL:    defaultSessionTTL,
		maxPollErrors: defaultMaxPollErrors,
		retention:     defaultRetention,
		now:           time.Now,
		sessions:      make(map[string]*tracked),
		recent:        make(map[string]Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Handle is returned by Start. Done is closed once the session reaches a
// terminal state.
type Handle struct {
	ID   string
	URL  string
	done <-chan struct{}
	m    *Manager
}

func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Session returns the current snapshot of the session.
func (h *Handle) Session() (Session, error) {
	return h.m.Get(h.ID)
}

// Start creates the remote session, moves it to listening and starts its
// poll loop. It returns as soon as the provider answered.
func (m *Manager) Start(ctx context.Context, req StartRequest) (*Handle, error) {
	ctx, span := tracer.Start(ctx, "verification.start")
	defer span.End()

	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return nil, dErrors.Wrap(ErrManagerClosed, dErrors.CodeUnavailable, "verification is shutting down")
	}

	created, err := m.provider.CreateSession(ctx, provider.CreateSessionRequest{
		VendorData:      req.SubjectID,
		ExpectedDetails: expectedDetails(req),
	})
	if err != nil {
		return nil, translateProviderError(err)
	}

	now := m.now()
	t := &tracked{
		session: Session{
			ID:             created.SessionID,
			SubjectID:      req.SubjectID,
			State:          StateCreated,
			ProviderStatus: created.Status,
			URL:            created.SessionURL,
			CreatedAt:      now,
			ExpiresAt:      now.Add(m.sessionTTL),
			Features:       append([]string{}, created.Features...),
		},
		done: make(chan struct{}),
	}
	m.logger.InfoContext(ctx, "verification session created",
		"session_id", created.SessionID,
		"expires_at", t.session.ExpiresAt,
		"request_id", requestcontext.RequestID(ctx),
	)
	t.session.State = StateListening

	// The loop outlives the request but keeps its values for logging.
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	t.cancel = cancel

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		cancel()
		return nil, dErrors.Wrap(ErrManagerClosed, dErrors.CodeUnavailable, "verification is shutting down")
	}
	if _, exists := m.sessions[created.SessionID]; exists {
		m.mu.Unlock()
		cancel()
		return nil, dErrors.Wrap(sentinel.ErrConflict, dErrors.CodeConflict, "session already tracked")
	}
	m.sessions[created.SessionID] = t
	m.wg.Add(1)
	m.mu.Unlock()

	span.SetAttributes(attribute.String("verification.session_id", created.SessionID))
	if m.metrics != nil {
		m.metrics.SessionStarted()
	}
	m.emit(ctx, audit.EventSessionStarted, t.session.clone(), "started")

	go m.poll(loopCtx, t, created.SessionID, t.session.ExpiresAt)

	return &Handle{ID: created.SessionID, URL: created.SessionURL, done: t.done, m: m}, nil
}

// poll is the single timer of a session. Requests are issued sequentially
// so there is never more than one in flight.
func (m *Manager) poll(ctx context.Context, t *tracked, id string, expiresAt time.Time) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		// Both cases may be ready at once; a stopped session must not poll.
		if ctx.Err() != nil {
			return
		}

		if !m.now().Before(expiresAt) {
			m.Apply(ctx, Event{SessionID: id, Source: SourceTimer, Expired: true, At: m.now()})
			return
		}

		d, err := m.provider.GetDecision(ctx, id)
		if ctx.Err() != nil {
			return
		}
		if m.metrics != nil {
			m.metrics.IncPoll(pollResult(err))
		}
		s, _ := m.Apply(ctx, Event{SessionID: id, Source: SourcePoll, Decision: d, Err: err, At: m.now()})
		if s.State.Terminal() {
			return
		}
	}
}

// Apply is the only place session state changes. It reports whether the
// event changed the session. Events for terminal or unknown sessions are
// ignored; the returned snapshot is empty for unknown sessions.
func (m *Manager) Apply(ctx context.Context, ev Event) (Session, bool) {
	m.mu.RLock()
	t, ok := m.sessions[ev.SessionID]
	finished, wasRecent := m.recent[ev.SessionID]
	m.mu.RUnlock()
	if !ok {
		m.ignored(ctx, ev, "unknown or finished session")
		if wasRecent {
			return finished.clone(), false
		}
		return Session{}, false
	}

	t.mu.Lock()
	if t.session.State.Terminal() {
		snap := t.session.clone()
		t.mu.Unlock()
		m.ignored(ctx, ev, "session already terminal")
		return snap, false
	}
	changed := m.transition(ctx, t, ev)
	snap := t.session.clone()
	t.mu.Unlock()

	if snap.State.Terminal() {
		m.finish(ctx, t, snap)
	}
	return snap, changed
}

// transition applies ev to t. Callers hold t.mu.
func (m *Manager) transition(ctx context.Context, t *tracked, ev Event) bool {
	s := &t.session
	if ev.Source == SourcePoll {
		at := ev.At
		s.LastPolledAt = &at
	}

	switch {
	case ev.Stopped:
		s.State = StateFailed
		s.FailureReason = ReasonStopped
		if ev.Err != nil {
			s.FailureReason = ev.Err.Error()
		}
		return true
	case ev.Expired:
		s.State = StateExpired
		s.FailureReason = ReasonExpired
		return true
	case ev.Err != nil:
		return m.transitionOnError(ctx, t, ev.Err)
	case ev.Decision == nil:
		s.State = StateFailed
		s.FailureReason = ReasonMalformed
		return true
	}

	t.pollErrors = 0
	d := ev.Decision
	statusChanged := s.ProviderStatus != d.Status
	s.ProviderStatus = d.Status

	switch normalizeStatus(d.Status) {
	case "not started", "in progress", "in review":
		stateChanged := s.State != StateProcessing
		s.State = StateProcessing
		return stateChanged || statusChanged
	case "approved", "declined":
		decision := Evaluate(s.ID, d)
		s.Decision = &decision
		s.State = StateCompleted
	case "abandoned":
		s.State = StateFailed
		s.FailureReason = ReasonAbandoned
	case "expired":
		s.State = StateExpired
		s.FailureReason = ReasonExpired
	default:
		m.logger.WarnContext(ctx, "unrecognized provider status",
			"session_id", s.ID,
			"status", d.Status,
		)
		s.State = StateFailed
		s.FailureReason = ReasonMalformed
	}
	return true
}

func (m *Manager) transitionOnError(ctx context.Context, t *tracked, err error) bool {
	s := &t.session
	switch providers.GetCategory(err) {
	case providers.ErrorNotFound:
		s.State = StateExpired
		s.FailureReason = ReasonExpired
		return true
	case providers.ErrorBadRequest, providers.ErrorAuthentication:
		s.State = StateFailed
		s.FailureReason = ReasonRejected
		return true
	case providers.ErrorBadData:
		s.State = StateFailed
		s.FailureReason = ReasonMalformed
		return true
	}

	t.pollErrors++
	m.logger.WarnContext(ctx, "verification poll failed",
		"session_id", s.ID,
		"consecutive_failures", t.pollErrors,
		"error", err,
	)
	if t.pollErrors > m.maxPollErrors {
		s.State = StateFailed
		s.FailureReason = ReasonRetryExhausted
		return true
	}
	return false
}

// finish runs once per session, after the terminal transition.
func (m *Manager) finish(ctx context.Context, t *tracked, snap Session) {
	m.mu.Lock()
	delete(m.sessions, snap.ID)
	m.remember(snap)
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.SessionFinished(string(snap.State))
		if snap.Decision != nil {
			m.metrics.ObserveScore(snap.Decision.Score)
		}
	}

	m.logger.InfoContext(ctx, "verification session finished",
		"session_id", snap.ID,
		"state", snap.State,
		"provider_status", snap.ProviderStatus,
		"reason", snap.FailureReason,
		"request_id", requestcontext.RequestID(ctx),
	)

	action, outcome := terminalAudit(snap)
	m.emit(context.WithoutCancel(ctx), action, snap, outcome)

	t.cancel()
	close(t.done)
}

// remember keeps a bounded window of finished sessions. Callers hold m.mu.
func (m *Manager) remember(s Session) {
	if _, ok := m.recent[s.ID]; !ok {
		m.recentOrder = append(m.recentOrder, s.ID)
	}
	m.recent[s.ID] = s
	for len(m.recentOrder) > m.retention {
		oldest := m.recentOrder[0]
		m.recentOrder = m.recentOrder[1:]
		delete(m.recent, oldest)
	}
}

// Get returns a snapshot of an active or recently finished session.
func (m *Manager) Get(id string) (Session, error) {
	m.mu.RLock()
	t, ok := m.sessions[id]
	finished, wasRecent := m.recent[id]
	m.mu.RUnlock()

	if ok {
		t.mu.Lock()
		defer t.mu.Unlock()
		return t.session.clone(), nil
	}
	if wasRecent {
		return finished.clone(), nil
	}
	return Session{}, dErrors.Wrap(sentinel.ErrNotFound, dErrors.CodeNotFound, "verification session not found")
}

// Stop cancels the session's loop and marks it failed. Stopping a finished
// session returns its final snapshot unchanged.
func (m *Manager) Stop(ctx context.Context, id string) (Session, error) {
	if _, err := m.Get(id); err != nil {
		return Session{}, err
	}
	s, _ := m.Apply(ctx, Event{SessionID: id, Source: SourceStop, Stopped: true, At: m.now()})
	if s.ID == "" {
		return m.Get(id)
	}
	return s, nil
}

// Active returns the number of sessions with a running loop.
func (m *Manager) Active() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Shutdown stops every running session and waits for the loops to exit.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.Apply(ctx, Event{
			SessionID: id,
			Source:    SourceStop,
			Stopped:   true,
			Err:       errors.New(ReasonShutdown),
			At:        m.now(),
		})
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for poll loops: %w", ctx.Err())
	}
}

func (m *Manager) ignored(ctx context.Context, ev Event, why string) {
	if m.metrics != nil {
		m.metrics.IncIgnored(string(ev.Source))
	}
	m.logger.DebugContext(ctx, "verification event ignored",
		"session_id", ev.SessionID,
		"source", ev.Source,
		"reason", why,
	)
}

func (m *Manager) emit(ctx context.Context, action audit.AuditEvent, s Session, outcome string) {
	if m.auditor == nil {
		return
	}
	ev := audit.NewEvent(action, s.SubjectID, m.now())
	ev.Decision = outcome
	ev.Reason = s.FailureReason
	ev.RequestID = requestcontext.RequestID(ctx)
	ev.Caller = requestcontext.Caller(ctx)
	if err := m.auditor.Emit(ctx, ev); err != nil {
		m.logger.WarnContext(ctx, "failed to emit audit event",
			"action", action,
			"session_id", s.ID,
			"error", err,
		)
	}
}

func terminalAudit(s Session) (audit.AuditEvent, string) {
	switch s.State {
	case StateCompleted:
		if s.Decision != nil && s.Decision.Successful() {
			return audit.EventSessionCompleted, "verified"
		}
		return audit.EventSessionCompleted, "unverified"
	case StateExpired:
		return audit.EventSessionExpired, "expired"
	}
	if s.FailureReason == ReasonStopped || s.FailureReason == ReasonShutdown {
		return audit.EventSessionStopped, "stopped"
	}
	return audit.EventSessionFailed, "failed"
}

func pollResult(err error) string {
	if err == nil {
		return "ok"
	}
	return string(providers.GetCategory(err))
}

func expectedDetails(req StartRequest) *provider.ExpectedDetails {
	d := provider.ExpectedDetails{
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		DocumentNumber: req.DocumentNumber,
	}
	if req.DateOfBirth != nil {
		d.DateOfBirth = req.DateOfBirth.Format("2006-01-02")
	}
	if d == (provider.ExpectedDetails{}) {
		return nil
	}
	return &d
}

func translateProviderError(err error) error {
	switch providers.GetCategory(err) {
	case providers.ErrorBadRequest:
		return dErrors.Wrap(err, dErrors.CodeBadRequest, "verification provider rejected the session request")
	case providers.ErrorTimeout, providers.ErrorProviderOutage, providers.ErrorRateLimited:
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "verification provider unavailable")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create verification session")
	}
}

func (s Session) clone() Session {
	out := s
	out.Features = append([]string{}, s.Features...)
	if s.LastPolledAt != nil {
		at := *s.LastPolledAt
		out.LastPolledAt = &at
	}
	if s.Decision != nil {
		d := *s.Decision
		out.Decision = &d
	}
	return out
}
