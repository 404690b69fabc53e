package reconciliation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/poojaseva/checkout-reconciler/internal/models"
	"github.com/sirupsen/logrus"
)

const auditTimeout = 5 * time.Second

// Engine owns the polling loop and state of exactly one PaymentReference.
// Lookups are driven by clock timers; at most one automatic lookup is in
// flight, and every result goes through Transition under the engine lock.
type Engine struct {
	mu sync.Mutex

	id      uuid.UUID
	screen  models.Screen
	gateway Gateway
	policy  Policy
	clock   Clock
	logger  *logrus.Logger
	audit   AuditRecorder

	baseCtx   context.Context
	ctx       context.Context
	cancelCtx context.CancelFunc

	state     models.ReconciliationState
	createdAt time.Time
	started   bool
	cancelled bool

	timer          Timer
	timerSeq       uint64
	generation     uint64
	lookupInFlight bool
	manualInFlight int
	delays         []time.Duration

	settled    chan struct{}
	settleOnce sync.Once
}

// Option configures an Engine
type Option func(*Engine)

// WithClock replaces the wall clock, e.g. with a ManualClock in tests
func WithClock(clock Clock) Option {
	return func(e *Engine) { e.clock = clock }
}

func WithLogger(logger *logrus.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

func WithAuditRecorder(recorder AuditRecorder) Option {
	return func(e *Engine) { e.audit = recorder }
}

func WithID(id uuid.UUID) Option {
	return func(e *Engine) { e.id = id }
}

func WithScreen(screen models.Screen) Option {
	return func(e *Engine) { e.screen = screen }
}

// WithContext sets the parent of every lookup context. Values such as the
// forwarded bearer token are read from it; Cancel cancels the derived context.
func WithContext(ctx context.Context) Option {
	return func(e *Engine) { e.baseCtx = ctx }
}

// NewEngine creates an idle engine; call Start to begin polling
func NewEngine(gateway Gateway, policy Policy, opts ...Option) *Engine {
	e := &Engine{
		id:      uuid.New(),
		screen:  models.ScreenPending,
		gateway: gateway,
		policy:  policy,
		clock:   WallClock(),
		logger:  logrus.StandardLogger(),
		baseCtx: context.Background(),
		settled: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.ctx, e.cancelCtx = context.WithCancel(e.baseCtx)
	e.createdAt = e.clock.Now()
	return e
}

func (e *Engine) ID() uuid.UUID         { return e.id }
func (e *Engine) Screen() models.Screen { return e.screen }
func (e *Engine) Policy() Policy        { return e.policy }
func (e *Engine) CreatedAt() time.Time  { return e.createdAt }

// Done is closed once automatic polling has ended: the state left Pending or
// the engine was cancelled.
func (e *Engine) Done() <-chan struct{} { return e.settled }

// Cancelled reports whether Cancel has been called
func (e *Engine) Cancelled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancelled
}

// Start initialises the state for ref and schedules the first lookup immediately
func (e *Engine) Start(ref models.PaymentReference) error {
	if ref.IsEmpty() {
		return ErrEmptyReference
	}

	e.mu.Lock()
	if e.cancelled {
		e.mu.Unlock()
		return ErrCancelled
	}
	if e.started {
		e.mu.Unlock()
		return ErrAlreadyStarted
	}
	e.started = true
	e.state = models.ReconciliationState{
		Reference: ref,
		Status:    models.ReconciliationPending,
		StartedAt: e.clock.Now(),
	}
	e.armLocked(0)
	e.mu.Unlock()

	e.logger.WithFields(logrus.Fields{
		"reconciliation_id": e.id,
		"screen":            e.screen,
		"reference":         ref.String(),
		"max_attempts":      e.policy.MaxAttempts,
	}).Info("Reconciliation started")

	entry := models.NewReconciliationAudit(e.id, e.screen, models.ReconciliationEventStarted, models.ReconciliationSourceSystem).
		SetReference(ref).
		SetTransition(models.ReconciliationPending, models.ReconciliationPending, 0)
	e.record(entry)
	return nil
}

// PerformLookup queries the remote API once for the current reference under
// the policy's per-call timeout. It does not change the state.
func (e *Engine) PerformLookup(ctx context.Context) Outcome {
	e.mu.Lock()
	chain := &lookupChain{
		gateway:     e.gateway,
		ref:         e.state.Reference,
		bookingHint: e.state.BookingHint,
		allowLatest: e.policy.AllowLatestBookingFallback,
	}
	timeout := e.policy.LookupTimeout
	e.mu.Unlock()

	lookupCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	outcome := chain.run(lookupCtx)
	e.logger.WithFields(logrus.Fields{
		"reconciliation_id": e.id,
		"outcome":           outcome.String(),
	}).Debug("Lookup completed")
	return outcome
}

// OnLookupOutcome feeds an outcome into the transition table and acts on its effect
func (e *Engine) OnLookupOutcome(outcome Outcome) StateTransition {
	return e.onOutcome(outcome, models.ReconciliationSourceSystem, nil)
}

func (e *Engine) onOutcome(outcome Outcome, source models.ReconciliationEventSource, meta *RequestMetadata) StateTransition {
	e.mu.Lock()
	if !e.started || e.cancelled {
		snapshot := e.snapshotLocked()
		e.mu.Unlock()
		return StateTransition{From: snapshot.Status, To: snapshot.Status, Outcome: outcome, State: snapshot}
	}
	tr := e.applyLocked(outcome)
	e.mu.Unlock()

	e.afterTransition(tr, source, meta)
	return tr
}

// ScheduleNextAttempt arms the timer for the next automatic lookup and returns its delay.
// It returns zero without arming when polling has ended.
func (e *Engine) ScheduleNextAttempt() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started || e.cancelled || e.state.Status != models.ReconciliationPending {
		return 0
	}
	return e.scheduleNextAttemptLocked()
}

// ScheduledDelays returns every backoff delay computed so far
func (e *Engine) ScheduledDelays() []time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]time.Duration, len(e.delays))
	copy(out, e.delays)
	return out
}

// Cancel stops any scheduled lookup and discards in-flight results.
// It is safe to call any number of times.
func (e *Engine) Cancel() {
	e.mu.Lock()
	if e.cancelled {
		e.mu.Unlock()
		return
	}
	e.cancelled = true
	e.generation++
	e.stopTimerLocked()
	started := e.started
	state := e.state
	e.mu.Unlock()

	e.cancelCtx()
	e.settle()

	if !started || state.Status.IsTerminal() {
		return
	}
	e.logger.WithFields(logrus.Fields{
		"reconciliation_id": e.id,
		"status":            state.Status,
		"attempt":           state.Attempt,
	}).Info("Reconciliation cancelled")

	entry := models.NewReconciliationAudit(e.id, e.screen, models.ReconciliationEventCancelled, models.ReconciliationSourceSystem).
		SetReference(state.Reference).
		SetTransition(state.Status, state.Status, state.Attempt)
	e.record(entry)
}

// Snapshot returns a copy of the current state
func (e *Engine) Snapshot() models.ReconciliationState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// View maps the current state to its presentation
func (e *Engine) View() ViewModel {
	return Present(e.Snapshot())
}

// Wait blocks until automatic polling has ended or ctx is done
func (e *Engine) Wait(ctx context.Context) (models.ReconciliationState, error) {
	select {
	case <-e.settled:
		return e.Snapshot(), nil
	case <-ctx.Done():
		return e.Snapshot(), ctx.Err()
	}
}

// fire runs the lookup of the timer identified by seq
func (e *Engine) fire(seq uint64) {
	e.mu.Lock()
	if seq != e.timerSeq {
		e.mu.Unlock()
		return
	}
	e.timer = nil
	e.state.NextAttemptAt = nil
	e.mu.Unlock()

	e.lookupOnce(models.ReconciliationSourcePolling, func(s models.ReconciliationStatus) bool {
		return s == models.ReconciliationPending
	})
}

// lookupOnce performs one lookup if allowed and no other lookup is in flight.
// Results that arrive after Cancel are dropped.
func (e *Engine) lookupOnce(source models.ReconciliationEventSource, allowed func(models.ReconciliationStatus) bool) bool {
	e.mu.Lock()
	if !e.started || e.cancelled || e.lookupInFlight || !allowed(e.state.Status) {
		e.mu.Unlock()
		return false
	}
	e.lookupInFlight = true
	gen := e.generation
	ctx := e.ctx
	e.mu.Unlock()

	outcome := e.PerformLookup(ctx)

	e.mu.Lock()
	e.lookupInFlight = false
	if gen != e.generation || e.cancelled {
		e.mu.Unlock()
		e.logger.WithFields(logrus.Fields{
			"reconciliation_id": e.id,
			"outcome":           outcome.String(),
		}).Debug("Discarding lookup result after cancel")
		return false
	}
	tr := e.applyLocked(outcome)
	e.mu.Unlock()

	e.afterTransition(tr, source, nil)
	return true
}

func (e *Engine) applyLocked(outcome Outcome) StateTransition {
	tr := Transition(e.state, outcome, e.policy)
	e.state = tr.State

	switch tr.Effect {
	case EffectScheduleNext:
		e.scheduleNextAttemptLocked()
	case EffectStop, EffectExposeManualVerify:
		e.stopTimerLocked()
		now := e.clock.Now()
		e.state.SettledAt = &now
		e.settle()
	}

	tr.State = e.snapshotLocked()
	return tr
}

func (e *Engine) scheduleNextAttemptLocked() time.Duration {
	delay := e.policy.Delay(e.state.Attempt)
	e.delays = append(e.delays, delay)
	e.armLocked(delay)
	return delay
}

// armLocked replaces any armed timer with one firing after d
func (e *Engine) armLocked(d time.Duration) {
	e.stopTimerLocked()
	seq := e.timerSeq
	at := e.clock.Now().Add(d)
	e.state.NextAttemptAt = &at
	e.timer = e.clock.AfterFunc(d, func() { e.fire(seq) })
}

func (e *Engine) stopTimerLocked() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.timerSeq++
	e.state.NextAttemptAt = nil
}

func (e *Engine) settle() {
	e.settleOnce.Do(func() { close(e.settled) })
}

func (e *Engine) elapsedLocked() time.Duration {
	if !e.started {
		return 0
	}
	end := e.clock.Now()
	if e.state.SettledAt != nil {
		end = *e.state.SettledAt
	}
	return end.Sub(e.state.StartedAt)
}

func (e *Engine) snapshotLocked() models.ReconciliationState {
	s := e.state
	elapsed := e.elapsedLocked()
	s.ElapsedSeconds = elapsed.Seconds()
	s.ManualVerifyAvailable = e.started && !e.cancelled && e.policy.manualVerifyAvailable(s.Status, elapsed)
	s.ManualVerifyInFlight = e.manualInFlight > 0
	if s.SettledAt != nil {
		settled := *s.SettledAt
		s.SettledAt = &settled
	}
	if s.NextAttemptAt != nil {
		next := *s.NextAttemptAt
		s.NextAttemptAt = &next
	}
	return s
}

func (e *Engine) afterTransition(tr StateTransition, source models.ReconciliationEventSource, meta *RequestMetadata) {
	fields := logrus.Fields{
		"reconciliation_id": e.id,
		"screen":            e.screen,
		"outcome":           tr.Outcome.Kind.String(),
		"from_status":       tr.From,
		"status":            tr.To,
		"attempt":           tr.State.Attempt,
		"source":            source,
	}
	if tr.State.NextAttemptAt != nil && tr.Effect == EffectScheduleNext {
		fields["delay_ms"] = tr.State.NextAttemptAt.Sub(e.clock.Now()).Milliseconds()
	}

	var eventType models.ReconciliationEventType
	switch {
	case tr.Effect == EffectNone:
		return
	case tr.Changed() && tr.To == models.ReconciliationSuccess:
		eventType = models.ReconciliationEventBookingConfirmed
		e.logger.WithFields(fields).WithField("booking_id", bookingID(tr.State.Booking)).Info("Booking confirmed")
	case tr.Changed() && tr.To == models.ReconciliationFailed:
		eventType = models.ReconciliationEventPaymentFailed
		e.logger.WithFields(fields).WithField("failure_reason", tr.State.FailureReason).Warn("Payment failed")
	case tr.Changed() && tr.To == models.ReconciliationNeedsManualVerification:
		eventType = models.ReconciliationEventManualRequired
		e.logger.WithFields(fields).Warn("Automatic attempts exhausted, manual verification required")
	case tr.Outcome.Kind == OutcomeLookupError:
		eventType = models.ReconciliationEventLookupError
		e.logger.WithFields(fields).WithField("error", tr.State.LastError).Warn("Lookup failed, will retry")
	default:
		eventType = models.ReconciliationEventLookup
		e.logger.WithFields(fields).Debug("Payment not settled yet")
	}

	entry := models.NewReconciliationAudit(e.id, e.screen, eventType, source).
		SetReference(tr.State.Reference).
		SetTransition(tr.From, tr.To, tr.State.Attempt).
		SetBookingID(bookingID(tr.State.Booking)).
		SetError(tr.State.LastError).
		SetDetails(map[string]interface{}{"outcome": tr.Outcome.Kind.String()})
	if meta != nil {
		entry.SetMetadata(meta.IPAddress, meta.UserAgent, meta.Device)
	}
	e.record(entry)
}

// record persists an audit entry; failures are only logged
func (e *Engine) record(entry *models.ReconciliationAudit) {
	if e.audit == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), auditTimeout)
	defer cancel()
	if err := e.audit.Record(ctx, entry); err != nil {
		e.logger.WithFields(logrus.Fields{
			"reconciliation_id": e.id,
			"event_type":        entry.EventType,
			"error":             err.Error(),
		}).Warn("Failed to record reconciliation audit")
	}
}

func bookingID(b *models.Booking) string {
	if b == nil {
		return ""
	}
	return b.BookID
}
