package generation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"fitness-planner/internal/metrics"
	"fitness-planner/internal/planservice"
	"fitness-planner/internal/profile"

	log "github.com/sirupsen/logrus"
)

// ProfileSource provides the profile a request is built from.
type ProfileSource interface {
	Get() profile.Profile
}

// Generator calls the plan service.
type Generator interface {
	Generate(ctx context.Context, req planservice.Request) (planservice.Plan, error)
}

// HistoryRefresher reloads the history of the orchestrator's kind.
type HistoryRefresher interface {
	Refresh(ctx context.Context, email string)
}

// Recorder stores one metric per generation call.
type Recorder interface {
	Record(ctx context.Context, m metrics.ExecutionMetric) error
}

// ResultSaver keeps successful plans locally.
type ResultSaver interface {
	Save(ctx context.Context, kind planservice.Kind, email string, plan planservice.Plan) error
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithHistory refreshes h after every successful generation.
func WithHistory(h HistoryRefresher) Option {
	return func(o *Orchestrator) { o.history = h }
}

// WithRecorder records the outcome and latency of every call.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithResults saves every successful plan.
func WithResults(r ResultSaver) Option {
	return func(o *Orchestrator) { o.results = r }
}

// Orchestrator runs the generation lifecycle of one plan kind.
type Orchestrator struct {
	kind     planservice.Kind
	profiles ProfileSource
	gen      Generator
	history  HistoryRefresher
	recorder Recorder
	results  ResultSaver
	now      func() time.Time

	mu     sync.Mutex
	state  State
	closed bool
	subs   map[int]func(State)
	nextID int

	wg sync.WaitGroup
}

// New creates an idle Orchestrator for kind.
func New(kind planservice.Kind, profiles ProfileSource, gen Generator, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		kind:     kind,
		profiles: profiles,
		gen:      gen,
		now:      time.Now,
		state:    State{Kind: kind, Status: StatusIdle},
		subs:     make(map[int]func(State)),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Kind returns the plan kind this orchestrator handles.
func (o *Orchestrator) Kind() planservice.Kind {
	return o.kind
}

// Submit builds a request from the current profile and form, moves to Loading
// before returning and dispatches the request in the background. The returned
// channel receives the state once the outcome has been applied.
//
// Submits are not deduplicated. Callers should not submit while Loading.
// Cancelling ctx does not abort a dispatched request.
func (o *Orchestrator) Submit(ctx context.Context, form planservice.Form) <-chan State {
	done := make(chan State, 1)

	if form == nil || form.Kind() != o.kind {
		st, _ := o.apply(outcome{event: eventSubmit})
		if _, applied := o.apply(outcome{
			event:   eventFailed,
			message: fmt.Sprintf("Cannot generate a %s plan from this form.", o.kind),
		}); applied {
			st = o.Current()
		}
		done <- st
		close(done)
		return done
	}

	p := o.profiles.Get()
	req := form.Build(p)

	st, applied := o.apply(outcome{event: eventSubmit})
	if !applied {
		done <- st
		close(done)
		return done
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer close(done)
		done <- o.dispatch(context.WithoutCancel(ctx), p, req)
	}()
	return done
}

// Generate submits and waits for the outcome.
func (o *Orchestrator) Generate(ctx context.Context, form planservice.Form) State {
	return <-o.Submit(ctx, form)
}

// Current returns a snapshot of the state.
func (o *Orchestrator) Current() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Subscribe registers fn to be called with every new state. The returned
// function removes the subscription.
func (o *Orchestrator) Subscribe(fn func(State)) func() {
	o.mu.Lock()
	defer o.mu.Unlock()

	id := o.nextID
	o.nextID++
	o.subs[id] = fn

	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		delete(o.subs, id)
	}
}

// Close detaches the orchestrator from its owner. Requests still in flight
// complete, but their outcomes are dropped and subscribers are no longer called.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	o.subs = make(map[int]func(State))
}

// Wait blocks until every dispatched request and history refresh has finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) dispatch(ctx context.Context, p profile.Profile, req planservice.Request) State {
	logger := log.WithField("kind", o.kind)

	start := time.Now()
	plan, err := o.gen.Generate(ctx, req)
	latency := time.Since(start)

	oc, label := classify(o.kind, plan, err)
	if oc.event == eventFailed {
		logger.WithError(err).WithField("outcome", label).Warn("plan generation failed")
	} else {
		logger.WithField("latency", latency.Round(time.Millisecond)).Info("plan generated")
	}

	o.record(ctx, label, latency)

	st, applied := o.apply(oc)
	if !applied {
		logger.Debug("dropping outcome of closed orchestrator")
		return st
	}

	if oc.event == eventSucceeded {
		o.save(ctx, p.Email, plan)
		if o.history != nil && p.HasEmail() {
			o.wg.Add(1)
			go func() {
				defer o.wg.Done()
				o.history.Refresh(ctx, p.Email)
			}()
		}
	}
	return st
}

func (o *Orchestrator) apply(oc outcome) (State, bool) {
	o.mu.Lock()
	if o.closed {
		st := o.state
		o.mu.Unlock()
		return st, false
	}

	next, ok := transition(o.state, oc)
	if !ok {
		st := o.state
		o.mu.Unlock()
		log.WithFields(log.Fields{
			"kind":   o.kind,
			"status": st.Status,
			"event":  oc.event,
		}).Warn("ignoring illegal state transition")
		return st, false
	}
	next.UpdatedAt = o.now()
	o.state = next

	fns := make([]func(State), 0, len(o.subs))
	for _, fn := range o.subs {
		fns = append(fns, fn)
	}
	o.mu.Unlock()

	for _, fn := range fns {
		fn(next)
	}
	return next, true
}

func (o *Orchestrator) record(ctx context.Context, label string, latency time.Duration) {
	if o.recorder == nil {
		return
	}
	err := o.recorder.Record(ctx, metrics.ExecutionMetric{
		Kind:      string(o.kind),
		Outcome:   label,
		LatencyMS: latency.Milliseconds(),
	})
	if err != nil {
		log.WithError(err).WithField("kind", o.kind).Warn("failed to record generation metric")
	}
}

func (o *Orchestrator) save(ctx context.Context, email string, plan planservice.Plan) {
	if o.results == nil {
		return
	}
	if err := o.results.Save(ctx, o.kind, email, plan); err != nil {
		log.WithError(err).WithField("kind", o.kind).Warn("failed to save plan locally")
	}
}

// classify maps a service call result onto a state machine outcome and a
// metrics label.
func classify(kind planservice.Kind, plan planservice.Plan, err error) (outcome, string) {
	if err == nil && plan == nil {
		err = &planservice.EmptyResultError{Kind: kind}
	}

	var (
		svcErr   *planservice.ServiceError
		emptyErr *planservice.EmptyResultError
		reqErr   *planservice.RequestError
	)
	switch {
	case err == nil:
		return outcome{event: eventSucceeded, plan: plan}, metrics.OutcomeSuccess
	case errors.As(err, &svcErr):
		return outcome{event: eventFailed, message: svcErr.Message}, metrics.OutcomeService
	case errors.As(err, &emptyErr):
		return outcome{event: eventFailed, message: MessageNoPlan}, metrics.OutcomeEmpty
	case errors.As(err, &reqErr):
		return outcome{event: eventFailed, message: MessageRequest}, metrics.OutcomeRequest
	default:
		return outcome{event: eventFailed, message: MessageNetwork}, metrics.OutcomeNetwork
	}
}
