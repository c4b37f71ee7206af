// Package stream pushes job status changes to long-lived client connections.
package stream

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"intake-pipeline/backend/pkg/models"
)

// Event names on the wire.
const (
	EventOpen     = "open"
	EventProgress = "progress"
	EventComplete = "complete"
	EventError    = "error"
)

// State is a subscription's lifecycle position.
type State int

const (
	StateOpen State = iota
	StateStreaming
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateStreaming:
		return "streaming"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Event is one named message carrying a status snapshot.
type Event struct {
	Name string
	Data models.StatusView
}

// Snapshotter returns the current view of a job. An unknown job is reported
// as a view with status not_found and a non-nil error.
type Snapshotter interface {
	Query(ctx context.Context, rawID string) (models.StatusView, error)
}

// Sink is the transport side of a subscription.
type Sink interface {
	Send(ev Event) error
	Heartbeat() error
}

// Logger defines the logging interface compatible with the application logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Broker runs one polling loop per subscription against a Snapshotter.
type Broker struct {
	snap           Snapshotter
	logger         Logger
	poll           time.Duration
	heartbeat      time.Duration
	grace          time.Duration
	unknownAsError bool
	onTick         func(jobID string)
	onState        func(jobID string, s State)

	active  atomic.Int64
	gauge   metric.Int64UpDownCounter
	emitted metric.Int64Counter
}

type Option func(*Broker)

// WithPollInterval sets how often the status is re-read.
func WithPollInterval(d time.Duration) Option {
	return func(b *Broker) {
		if d > 0 {
			b.poll = d
		}
	}
}

// WithHeartbeatInterval sets the keep-alive period.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(b *Broker) {
		if d > 0 {
			b.heartbeat = d
		}
	}
}

// WithCloseGrace sets the delay between the terminal event and closing.
func WithCloseGrace(d time.Duration) Option {
	return func(b *Broker) {
		if d >= 0 {
			b.grace = d
		}
	}
}

// WithUnknownAsError makes a subscription to an unknown job end with an
// error event instead of a not_found complete event.
func WithUnknownAsError(v bool) Option {
	return func(b *Broker) { b.unknownAsError = v }
}

// WithTickHook is called on every poll tick.
func WithTickHook(fn func(jobID string)) Option {
	return func(b *Broker) { b.onTick = fn }
}

// WithStateHook is called on every state transition.
func WithStateHook(fn func(jobID string, s State)) Option {
	return func(b *Broker) { b.onState = fn }
}

// NewBroker creates a Broker with 2s polling, 20s heartbeats and a 100ms close grace.
func NewBroker(snap Snapshotter, logger Logger, opts ...Option) *Broker {
	b := &Broker{
		snap:      snap,
		logger:    logger,
		poll:      2 * time.Second,
		heartbeat: 20 * time.Second,
		grace:     100 * time.Millisecond,
		onTick:    func(string) {},
		onState:   func(string, State) {},
	}
	for _, o := range opts {
		o(b)
	}

	meter := otel.Meter("intake-pipeline/backend/stream")
	var err error
	if b.gauge, err = meter.Int64UpDownCounter("stream.subscriptions",
		metric.WithDescription("Open status stream subscriptions")); err != nil {
		otel.Handle(err)
	}
	if b.emitted, err = meter.Int64Counter("stream.events",
		metric.WithDescription("Status stream events sent by name")); err != nil {
		otel.Handle(err)
	}
	return b
}

// Active returns the number of subscriptions currently being served.
func (b *Broker) Active() int64 {
	return b.active.Load()
}

// subscription is the per-connection state. It is owned by the Serve
// goroutine and never shared.
type subscription struct {
	jobID        string
	sink         Sink
	state        State
	terminalSent bool
	poll         *time.Ticker
	heartbeat    *time.Ticker
}

// Serve streams jobID to sink until a terminal event has been delivered, ctx
// is cancelled or the sink fails. Cancelling ctx stops every timer of the
// subscription before Serve returns.
func (b *Broker) Serve(ctx context.Context, jobID string, sink Sink) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	b.active.Add(1)
	b.addGauge(ctx, 1)
	defer func() {
		b.active.Add(-1)
		b.addGauge(context.WithoutCancel(ctx), -1)
	}()

	sub := &subscription{jobID: jobID, sink: sink}
	b.transition(sub, StateOpen)
	defer b.transition(sub, StateClosed)

	view, err := b.snap.Query(ctx, jobID)
	if err != nil {
		if view.Status == models.StatusNotFound {
			// finished and expired or never existed; both end the subscription
			name := EventComplete
			if b.unknownAsError {
				name = EventError
				view.Message = "unknown job id"
			}
			b.logger.Debug("stream subscribed to unknown job", "job_id", jobID, "event", name)
			return b.finish(ctx, sub, name, view)
		}
		return b.fail(ctx, sub, err)
	}

	if err := b.send(ctx, sub, EventOpen, view); err != nil {
		return err
	}
	if terminal(view) {
		return b.finish(ctx, sub, EventComplete, view)
	}

	sub.poll = time.NewTicker(b.poll)
	sub.heartbeat = time.NewTicker(b.heartbeat)
	defer sub.stopTimers()
	b.transition(sub, StateStreaming)

	last := keyOf(view)
	for {
		select {
		case <-ctx.Done():
			b.logger.Debug("stream client went away", "job_id", jobID)
			return nil

		case <-sub.heartbeat.C:
			if err := sink.Heartbeat(); err != nil {
				return err
			}

		case <-sub.poll.C:
			b.onTick(jobID)
			view, err := b.snap.Query(ctx, jobID)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				if view.Status == models.StatusNotFound {
					// the entry expired between ticks
					return b.finish(ctx, sub, EventComplete, view)
				}
				return b.fail(ctx, sub, err)
			}
			if terminal(view) {
				return b.finish(ctx, sub, EventComplete, view)
			}
			if k := keyOf(view); k != last {
				if err := b.send(ctx, sub, EventProgress, view); err != nil {
					return err
				}
				last = k
			}
		}
	}
}

// finish delivers the single terminal event, stops the timers and closes
// after the grace delay. Repeat calls are no-ops.
func (b *Broker) finish(ctx context.Context, sub *subscription, name string, view models.StatusView) error {
	if sub.terminalSent {
		return nil
	}
	sub.terminalSent = true
	sub.stopTimers()

	err := b.send(ctx, sub, name, view)
	b.transition(sub, StateClosing)
	if err != nil {
		return err
	}

	if b.grace > 0 {
		t := time.NewTimer(b.grace)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
		}
	}
	return nil
}

// fail reports an internal error to the client before closing.
func (b *Broker) fail(ctx context.Context, sub *subscription, cause error) error {
	b.logger.Error("stream snapshot failed", "job_id", sub.jobID, "error", cause)
	view := models.StatusView{
		Success: false,
		CaseID:  sub.jobID,
		Error:   "status could not be read: " + cause.Error(),
		Message: "Status stream interrupted",
	}
	if err := b.finish(ctx, sub, EventError, view); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

func (b *Broker) send(ctx context.Context, sub *subscription, name string, view models.StatusView) error {
	if err := sub.sink.Send(Event{Name: name, Data: view}); err != nil {
		b.logger.Debug("stream send failed", "job_id", sub.jobID, "event", name, "error", err)
		return err
	}
	if b.emitted != nil {
		b.emitted.Add(context.WithoutCancel(ctx), 1, metric.WithAttributes(attribute.String("event", name)))
	}
	return nil
}

func (b *Broker) transition(sub *subscription, s State) {
	if sub.state == s && s != StateOpen {
		return
	}
	sub.state = s
	b.onState(sub.jobID, s)
}

func (b *Broker) addGauge(ctx context.Context, n int64) {
	if b.gauge != nil {
		b.gauge.Add(ctx, n)
	}
}

func (s *subscription) stopTimers() {
	if s.poll != nil {
		s.poll.Stop()
	}
	if s.heartbeat != nil {
		s.heartbeat.Stop()
	}
}

// changeKey is the part of a view whose change is worth a progress event.
type changeKey struct {
	status       models.Status
	progress     int
	currentPhase string
}

func keyOf(v models.StatusView) changeKey {
	return changeKey{status: v.Status, progress: v.Progress, currentPhase: v.CurrentPhase}
}

// terminal reports whether no further changes can follow. skipped is final
// for a stream even though the store does not freeze it.
func terminal(v models.StatusView) bool {
	return v.Status.IsTerminal() || v.Status == models.StatusSkipped
}
