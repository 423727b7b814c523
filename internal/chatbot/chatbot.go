// Package chatbot coordinates a chat session: it keeps the bounded history,
// runs completion calls on a worker pool behind an admission gate, and hands
// every presentation update to the surface through a FIFO event queue.
package chatbot

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"DeepChat/internal/attachment"
	"DeepChat/internal/config"
	"DeepChat/internal/gate"
	"DeepChat/internal/journal"
	"DeepChat/internal/session"
	"DeepChat/internal/telemetry"
)

// Completer performs one synchronous completion call
type Completer interface {
	Complete(ctx context.Context, mode session.Mode, messages []session.Message) (string, error)
}

// Recorder stores request outcomes
type Recorder interface {
	Record(ctx context.Context, e journal.Entry) error
}

// Options is the session context handed to New
type Options struct {
	Config   config.Config
	Logger   *slog.Logger
	Tracer   trace.Tracer
	Meter    metric.Meter
	Recorder Recorder // optional
}

type job func(ctx context.Context)

// Coordinator owns one chat session
type Coordinator struct {
	cfg      config.Config
	client   Completer
	history  *session.History
	gate     *gate.Gate
	events   *Queue[Event]
	jobs     *Queue[job]
	recorder Recorder

	logger   *slog.Logger
	tracer   trace.Tracer
	inFlight metric.Int64UpDownCounter
	failures metric.Int64Counter

	mode atomic.Int32

	// mu keeps the pending count and the BusyEvents reporting it in step
	mu      sync.Mutex
	pending int

	cancel    context.CancelFunc
	group     *errgroup.Group
	startOnce sync.Once
	closeOnce sync.Once
}

// New creates a coordinator. Call Start before submitting work.
func New(client Completer, opts Options) *Coordinator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	tracer, meter := opts.Tracer, opts.Meter
	if tracer == nil || meter == nil {
		noopTracer, noopMeter := telemetry.Noop()
		if tracer == nil {
			tracer = noopTracer
		}
		if meter == nil {
			meter = noopMeter
		}
	}

	c := &Coordinator{
		cfg:      opts.Config,
		client:   client,
		history:  session.NewHistory(opts.Config.Session.MaxTurns),
		gate:     gate.New(opts.Config.Session.MaxInFlight),
		events:   NewQueue[Event](),
		jobs:     NewQueue[job](),
		recorder: opts.Recorder,
		logger:   logger,
		tracer:   tracer,
	}
	c.mode.Store(int32(opts.Config.Mode()))

	var err error
	c.inFlight, err = meter.Int64UpDownCounter("chat.requests.in_flight",
		metric.WithDescription("Completion requests holding a gate ticket"))
	if err != nil {
		logger.Warn("failed to create in-flight counter", "error", err)
	}
	c.failures, err = meter.Int64Counter("chat.requests.failed",
		metric.WithDescription("Completion requests that ended in an error"))
	if err != nil {
		logger.Warn("failed to create failure counter", "error", err)
	}

	return c
}

// Start launches the worker pool
func (c *Coordinator) Start(ctx context.Context) {
	c.startOnce.Do(func() {
		ctx, c.cancel = context.WithCancel(ctx)
		c.group = &errgroup.Group{}

		workers := c.cfg.Session.Workers
		if workers < 1 {
			workers = 1
		}
		for i := 0; i < workers; i++ {
			c.group.Go(func() error {
				c.work(ctx)
				return nil
			})
		}
		c.logger.Info("coordinator started",
			"workers", workers,
			"max_in_flight", c.gate.Capacity(),
			"max_messages", c.history.Limit(),
			"mode", c.Mode().String())
	})
}

// Close stops the workers. In-flight calls are cancelled and the event queue
// is closed once they have reported.
func (c *Coordinator) Close() error {
	c.closeOnce.Do(func() {
		c.jobs.Close()
		if c.cancel != nil {
			c.cancel()
			_ = c.group.Wait()
		}
		c.events.Close()
		c.logger.Info("coordinator stopped")
	})
	return nil
}

func (c *Coordinator) work(ctx context.Context) {
	for {
		j, err := c.jobs.Pop(ctx)
		if err != nil {
			return
		}
		c.run(ctx, j)
	}
}

func (c *Coordinator) run(ctx context.Context, j job) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("worker job panicked", "panic", r)
			c.events.Push(ErrorEvent{Err: fmt.Errorf("%w: %v", ErrInternal, r)})
		}
	}()
	j(ctx)
}

// Submit sends text as the next user turn and returns its turn id. It never
// blocks: the user message and busy state are queued immediately and the
// completion runs on a worker. A non-empty id returned with an error names a
// turn whose events were already queued.
func (c *Coordinator) Submit(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyMessage
	}

	turn := uuid.NewString()
	if !c.events.Push(UserMessageEvent{Turn: turn, Text: text}) {
		return "", ErrClosed
	}
	c.begin()

	if !c.jobs.Push(func(ctx context.Context) { c.dispatch(ctx, turn, text) }) {
		// the message is already shown, so the turn has to fail visibly
		c.events.Push(ErrorEvent{Turn: turn, Err: ErrClosed})
		c.finish()
		return turn, ErrClosed
	}

	c.logger.Info("message submitted", "turn", turn, "length", len(text))
	return turn, nil
}

// Attach reads a file on a worker and submits its text as if typed
func (c *Coordinator) Attach(path string) error {
	ok := c.jobs.Push(func(ctx context.Context) {
		text, err := attachment.Read(path)
		if err == nil && strings.TrimSpace(text) == "" {
			err = &attachment.ReadError{Path: path, Err: attachment.ErrNoText}
		}
		if err != nil {
			c.logger.Error("failed to read attachment", "path", path, "error", err)
			c.events.Push(ErrorEvent{Err: err})
			return
		}

		c.logger.Info("attachment read", "path", path, "length", len(text))
		if _, err := c.Submit(text); err != nil {
			c.logger.Warn("failed to submit attachment", "path", path, "error", err)
		}
	})
	if !ok {
		return ErrClosed
	}
	return nil
}

func (c *Coordinator) begin() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending++
	c.events.Push(BusyEvent{InFlight: c.pending})
}

func (c *Coordinator) finish() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending--
	c.events.Push(BusyEvent{InFlight: c.pending})
}

// dispatch runs one turn on a worker: Dispatched -> Completed | Failed
func (c *Coordinator) dispatch(ctx context.Context, turn, text string) {
	defer c.finish()
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("turn panicked", "turn", turn, "panic", r)
			c.events.Push(ErrorEvent{Turn: turn, Err: fmt.Errorf("%w: %v", ErrInternal, r)})
		}
	}()

	start := time.Now()
	ctx, span := c.tracer.Start(ctx, "chat_turn",
		trace.WithAttributes(attribute.String("chat.turn", turn)))
	defer span.End()

	var (
		mode     = c.Mode()
		reply    string
		outbound []session.Message
	)
	err := c.gate.Do(ctx, func(ctx context.Context) error {
		c.addInFlight(ctx, 1)
		defer c.addInFlight(ctx, -1)

		// mode and history are read only once a ticket is held
		mode = c.Mode()
		span.SetAttributes(attribute.String("chat.mode", mode.String()))
		outbound = c.buildMessages(mode, text)
		c.logger.Debug("dispatching turn", "turn", turn, "messages", len(outbound), "model", c.cfg.Model(mode))

		var err error
		reply, err = c.client.Complete(ctx, mode, outbound)
		return err
	})

	entry := journal.Entry{
		TurnID:       turn,
		Mode:         mode.String(),
		Model:        c.cfg.Model(mode),
		StartedAt:    start,
		Duration:     time.Since(start),
		MessageCount: len(outbound),
		Fingerprint:  journal.Fingerprint(outbound),
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if c.failures != nil {
			c.failures.Add(ctx, 1)
		}
		c.logger.Error("API call failed", "turn", turn, "error", err)

		entry.Status = journal.StatusFailed
		entry.Error = err.Error()
		c.record(ctx, entry)

		c.events.Push(ErrorEvent{Turn: turn, Err: err})
		return
	}

	c.history.AppendTurn(text, reply)
	c.logger.Info("turn completed", "turn", turn, "duration_ms", entry.Duration.Milliseconds(), "history", c.history.Len())

	entry.Status = journal.StatusCompleted
	c.record(ctx, entry)

	c.events.Push(ReplyEvent{Turn: turn, Text: reply, Mode: mode})
}

// buildMessages returns the outbound list: the mode's system preamble (unless
// history already has a system message), the history snapshot, then text.
func (c *Coordinator) buildMessages(mode session.Mode, text string) []session.Message {
	snapshot := c.history.Snapshot()

	messages := make([]session.Message, 0, len(snapshot)+2)
	if !session.HasRole(snapshot, session.RoleSystem) {
		messages = append(messages, session.Message{Role: session.RoleSystem, Content: c.cfg.Preamble(mode)})
	}
	messages = append(messages, snapshot...)
	messages = append(messages, session.Message{Role: session.RoleUser, Content: text})
	return messages
}

func (c *Coordinator) addInFlight(ctx context.Context, n int64) {
	if c.inFlight != nil {
		c.inFlight.Add(ctx, n)
	}
}

func (c *Coordinator) record(ctx context.Context, e journal.Entry) {
	if c.recorder == nil {
		return
	}
	if err := c.recorder.Record(context.WithoutCancel(ctx), e); err != nil {
		c.logger.Warn("failed to record request", "turn", e.TurnID, "error", err)
	}
}

// NextEvent blocks until the next presentation update is available. Only the
// presentation loop should call it.
func (c *Coordinator) NextEvent(ctx context.Context) (Event, error) {
	return c.events.Pop(ctx)
}

// SetMode changes the mode used by subsequent requests
func (c *Coordinator) SetMode(mode session.Mode) {
	if session.Mode(c.mode.Swap(int32(mode))) != mode {
		c.logger.Info("mode changed", "mode", mode.String(), "model", c.cfg.Model(mode))
	}
}

// Mode returns the current mode
func (c *Coordinator) Mode() session.Mode {
	return session.Mode(c.mode.Load())
}

// Model returns the model id the current mode targets
func (c *Coordinator) Model() string {
	return c.cfg.Model(c.Mode())
}

// History returns a snapshot of the committed conversation
func (c *Coordinator) History() []session.Message {
	return c.history.Snapshot()
}

// Pending returns the number of submissions without an outcome yet
func (c *Coordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}
