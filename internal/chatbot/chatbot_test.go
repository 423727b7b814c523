package chatbot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DeepChat/internal/attachment"
	"DeepChat/internal/backend"
	"DeepChat/internal/config"
	"DeepChat/internal/journal"
	"DeepChat/internal/session"
)

type call struct {
	mode     session.Mode
	messages []session.Message
}

// fakeCompleter records every call and answers with reply or err
type fakeCompleter struct {
	mu    sync.Mutex
	calls []call
	reply func(messages []session.Message) (string, error)

	active atomic.Int32
	peak   atomic.Int32
	block  chan struct{}
}

func (f *fakeCompleter) Complete(ctx context.Context, mode session.Mode, messages []session.Message) (string, error) {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		peak := f.peak.Load()
		if n <= peak || f.peak.CompareAndSwap(peak, n) {
			break
		}
	}

	f.mu.Lock()
	f.calls = append(f.calls, call{mode: mode, messages: append([]session.Message(nil), messages...)})
	f.mu.Unlock()

	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.reply == nil {
		return "ok", nil
	}
	return f.reply(messages)
}

func (f *fakeCompleter) Calls() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

type memoryRecorder struct {
	mu      sync.Mutex
	entries []journal.Entry
}

func (r *memoryRecorder) Record(_ context.Context, e journal.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return nil
}

func (r *memoryRecorder) Entries() []journal.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]journal.Entry(nil), r.entries...)
}

func newTestCoordinator(t *testing.T, client Completer, tweak func(*config.Config)) (*Coordinator, *memoryRecorder) {
	t.Helper()

	cfg := config.Default()
	if tweak != nil {
		tweak(&cfg)
	}
	rec := &memoryRecorder{}
	c := New(client, Options{Config: cfg, Recorder: rec})
	c.Start(context.Background())
	t.Cleanup(func() { _ = c.Close() })
	return c, rec
}

func submit(t *testing.T, c *Coordinator, text string) string {
	t.Helper()
	turn, err := c.Submit(text)
	require.NoError(t, err)
	require.NotEmpty(t, turn)
	return turn
}

// collect pops events until n BusyEvents reporting zero have been seen
func collect(t *testing.T, c *Coordinator, idle int) []Event {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var events []Event
	for idle > 0 {
		ev, err := c.NextEvent(ctx)
		require.NoError(t, err)
		events = append(events, ev)
		if busy, ok := ev.(BusyEvent); ok && !busy.Busy() {
			idle--
		}
	}
	return events
}

func TestSubmitFirstMessage(t *testing.T) {
	client := &fakeCompleter{reply: func([]session.Message) (string, error) { return "Hi there", nil }}
	c, rec := newTestCoordinator(t, client, nil)

	turn := submit(t, c, "Hello")
	events := collect(t, c, 1)

	require.Len(t, client.Calls(), 1)
	assert.Equal(t, []session.Message{
		{Role: session.RoleSystem, Content: ""},
		{Role: session.RoleUser, Content: "Hello"},
	}, client.Calls()[0].messages)

	assert.Equal(t, []session.Message{
		{Role: session.RoleUser, Content: "Hello"},
		{Role: session.RoleAssistant, Content: "Hi there"},
	}, c.History())

	require.Len(t, events, 4)
	user, ok := events[0].(UserMessageEvent)
	require.True(t, ok)
	assert.Equal(t, "Hello", user.Text)
	assert.Equal(t, turn, user.Turn)
	assert.Equal(t, BusyEvent{InFlight: 1}, events[1])
	reply, ok := events[2].(ReplyEvent)
	require.True(t, ok)
	assert.Equal(t, user.Turn, reply.Turn)
	assert.Equal(t, "Hi there", reply.Text)
	assert.Equal(t, session.ModeChat, reply.Mode)
	assert.Equal(t, BusyEvent{InFlight: 0}, events[3])

	entries := rec.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, journal.StatusCompleted, entries[0].Status)
	assert.Equal(t, config.DefaultChatModel, entries[0].Model)
	assert.Equal(t, 2, entries[0].MessageCount)
}

func TestSubmitSendsHistory(t *testing.T) {
	client := &fakeCompleter{reply: func(m []session.Message) (string, error) {
		return "re: " + m[len(m)-1].Content, nil
	}}
	c, _ := newTestCoordinator(t, client, func(cfg *config.Config) {
		cfg.Prompts.Chat = "be brief"
	})

	submit(t, c, "one")
	collect(t, c, 1)
	submit(t, c, "two")
	collect(t, c, 1)

	calls := client.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, []session.Message{
		{Role: session.RoleSystem, Content: "be brief"},
		{Role: session.RoleUser, Content: "one"},
		{Role: session.RoleAssistant, Content: "re: one"},
		{Role: session.RoleUser, Content: "two"},
	}, calls[1].messages)
}

func TestSubmitFailureLeavesHistoryUnchanged(t *testing.T) {
	remote := &backend.RemoteCallError{Model: "deepseek-chat", StatusCode: 500, Err: errors.New("boom")}
	client := &fakeCompleter{reply: func([]session.Message) (string, error) { return "", remote }}
	c, rec := newTestCoordinator(t, client, nil)

	submit(t, c, "Hello")
	events := collect(t, c, 1)

	assert.Empty(t, c.History())
	require.Len(t, events, 4)
	failed, ok := events[2].(ErrorEvent)
	require.True(t, ok)
	assert.ErrorIs(t, failed.Err, remote)
	assert.Equal(t, "API call failed: boom", Describe(failed.Err))
	assert.Equal(t, BusyEvent{InFlight: 0}, events[3])
	assert.Equal(t, 0, c.Pending())

	entries := rec.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, journal.StatusFailed, entries[0].Status)
	assert.NotEmpty(t, entries[0].Error)
}

func TestSubmitBlankIsIgnored(t *testing.T) {
	client := &fakeCompleter{}
	c, _ := newTestCoordinator(t, client, nil)

	for _, text := range []string{"", "   ", "\n\t"} {
		turn, err := c.Submit(text)
		assert.ErrorIs(t, err, ErrEmptyMessage)
		assert.Empty(t, turn)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.NextEvent(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, client.Calls())
}

func TestSetModeAppliesToNextRequest(t *testing.T) {
	client := &fakeCompleter{}
	c, rec := newTestCoordinator(t, client, func(cfg *config.Config) {
		cfg.Prompts.Reasoner = "think"
	})

	c.SetMode(session.ModeReasoner)
	assert.Equal(t, config.DefaultReasonerModel, c.Model())

	submit(t, c, "why")
	events := collect(t, c, 1)

	calls := client.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, session.ModeReasoner, calls[0].mode)
	assert.Equal(t, "think", calls[0].messages[0].Content)
	assert.Equal(t, session.ModeReasoner, events[2].(ReplyEvent).Mode)
	assert.Equal(t, config.DefaultReasonerModel, rec.Entries()[0].Model)
}

func TestGateLimitsConcurrentCalls(t *testing.T) {
	client := &fakeCompleter{block: make(chan struct{})}
	c, _ := newTestCoordinator(t, client, func(cfg *config.Config) {
		cfg.Session.MaxInFlight = 2
		cfg.Session.Workers = 5
	})

	for i := 0; i < 5; i++ {
		submit(t, c, "hi")
	}
	require.Eventually(t, func() bool { return client.active.Load() == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 5, c.Pending())

	close(client.block)
	events := collect(t, c, 1)

	var replies int
	for _, ev := range events {
		if _, ok := ev.(ReplyEvent); ok {
			replies++
		}
	}
	assert.Equal(t, 5, replies)
	assert.LessOrEqual(t, client.peak.Load(), int32(2))
	assert.Len(t, c.History(), 10)
}

func TestPanicBecomesErrorEvent(t *testing.T) {
	client := &fakeCompleter{reply: func([]session.Message) (string, error) { panic("bad state") }}
	c, _ := newTestCoordinator(t, client, nil)

	submit(t, c, "Hello")
	events := collect(t, c, 1)

	require.Len(t, events, 4)
	failed, ok := events[2].(ErrorEvent)
	require.True(t, ok)
	assert.ErrorIs(t, failed.Err, ErrInternal)
	assert.Empty(t, c.History())

	// the worker survives
	client.reply = nil
	submit(t, c, "again")
	events = collect(t, c, 1)
	_, ok = events[2].(ReplyEvent)
	assert.True(t, ok)
}

func TestAttachSubmitsFileText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("file body"), 0o644))

	client := &fakeCompleter{}
	c, _ := newTestCoordinator(t, client, nil)

	require.NoError(t, c.Attach(path))
	events := collect(t, c, 1)

	user, ok := events[0].(UserMessageEvent)
	require.True(t, ok)
	assert.Equal(t, "file body", user.Text)
	require.Len(t, client.Calls(), 1)
	assert.Equal(t, "file body", client.Calls()[0].messages[1].Content)
}

func TestAttachErrors(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.txt")
	require.NoError(t, os.WriteFile(empty, []byte("  \n"), 0o644))

	tests := []struct {
		name string
		path string
		want error
	}{
		{"missing", filepath.Join(dir, "nope.txt"), os.ErrNotExist},
		{"unsupported", filepath.Join(dir, "image.png"), attachment.ErrUnsupportedType},
		{"empty", empty, attachment.ErrNoText},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeCompleter{}
			c, _ := newTestCoordinator(t, client, nil)

			require.NoError(t, c.Attach(tt.path))

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			ev, err := c.NextEvent(ctx)
			require.NoError(t, err)

			failed, ok := ev.(ErrorEvent)
			require.True(t, ok)
			assert.Empty(t, failed.Turn)
			assert.ErrorIs(t, failed.Err, tt.want)

			var readErr *attachment.ReadError
			assert.ErrorAs(t, failed.Err, &readErr)
			assert.Empty(t, client.Calls())
		})
	}
}

func TestClosedCoordinatorRejectsWork(t *testing.T) {
	c, _ := newTestCoordinator(t, &fakeCompleter{}, nil)
	require.NoError(t, c.Close())

	_, err := c.Submit("late")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, c.Attach("late.txt"), ErrClosed)

	_, err = c.NextEvent(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestCloseFailsQueuedTurns(t *testing.T) {
	client := &fakeCompleter{block: make(chan struct{})}
	c, rec := newTestCoordinator(t, client, func(cfg *config.Config) {
		cfg.Session.MaxInFlight = 1
		cfg.Session.Workers = 1
	})

	first := submit(t, c, "first")
	second := submit(t, c, "second")
	require.Eventually(t, func() bool { return client.active.Load() == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, c.Close())

	failed := map[string]error{}
	var last BusyEvent
	for {
		ev, err := c.NextEvent(context.Background())
		if errors.Is(err, ErrClosed) {
			break
		}
		require.NoError(t, err)
		switch ev := ev.(type) {
		case ErrorEvent:
			failed[ev.Turn] = ev.Err
		case BusyEvent:
			last = ev
		case ReplyEvent:
			t.Fatalf("unexpected reply for turn %s", ev.Turn)
		}
	}

	require.Len(t, failed, 2)
	assert.ErrorIs(t, failed[first], context.Canceled)
	assert.ErrorIs(t, failed[second], context.Canceled)
	assert.False(t, last.Busy())
	assert.Len(t, client.Calls(), 1)
	assert.Empty(t, c.History())
	assert.Len(t, rec.Entries(), 2)
}

func TestSubmitAfterJobsClosedFailsTurn(t *testing.T) {
	client := &fakeCompleter{}
	c, _ := newTestCoordinator(t, client, nil)
	c.jobs.Close()

	turn, err := c.Submit("Hello")
	require.ErrorIs(t, err, ErrClosed)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var events []Event
	for len(events) < 4 {
		ev, err := c.NextEvent(ctx)
		require.NoError(t, err)
		events = append(events, ev)
	}

	user, ok := events[0].(UserMessageEvent)
	require.True(t, ok)
	assert.Equal(t, BusyEvent{InFlight: 1}, events[1])
	failed, ok := events[2].(ErrorEvent)
	require.True(t, ok)
	assert.Equal(t, turn, user.Turn)
	assert.Equal(t, turn, failed.Turn)
	assert.ErrorIs(t, failed.Err, ErrClosed)
	assert.Equal(t, "The chat session is shutting down.", Describe(failed.Err))
	assert.Equal(t, BusyEvent{InFlight: 0}, events[3])
	assert.Empty(t, client.Calls())
	assert.Zero(t, c.Pending())
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "missing credential",
			err:  &config.Error{Field: config.DefaultKeyName, Err: config.ErrMissingCredential},
			want: "API key is not set. Enter it with /key <value>.",
		},
		{
			name: "remote",
			err:  &backend.RemoteCallError{Model: "m", StatusCode: 401, Err: errors.New("unauthorized")},
			want: "API call failed: unauthorized",
		},
		{
			name: "attachment",
			err:  &attachment.ReadError{Path: "/tmp/a.png", Err: attachment.ErrUnsupportedType},
			want: "Could not read file: could not read a.png: unsupported file type",
		},
		{
			name: "closed",
			err:  ErrClosed,
			want: "The chat session is shutting down.",
		},
		{
			name: "unknown",
			err:  errors.New("weird"),
			want: "An unexpected error occurred. Please check the logs for details.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Describe(tt.err))
		})
	}
}
