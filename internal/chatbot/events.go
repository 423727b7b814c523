package chatbot

import "DeepChat/internal/session"

// Event is a presentation update produced by the Coordinator. Events are
// delivered in the order they were produced and must be applied by the
// presentation loop only.
type Event interface {
	event()
}

// UserMessageEvent shows a submitted message before its reply arrives
type UserMessageEvent struct {
	Turn string
	Text string
}

// ReplyEvent carries the assistant's answer to a turn
type ReplyEvent struct {
	Turn string
	Text string
	Mode session.Mode
}

// ErrorEvent reports a failed turn or attachment. Turn is empty for
// attachment errors.
type ErrorEvent struct {
	Turn string
	Err  error
}

// BusyEvent reports how many submissions are still waiting for an outcome
type BusyEvent struct {
	InFlight int
}

// Busy reports whether the loading indicator should be shown
func (e BusyEvent) Busy() bool { return e.InFlight > 0 }

func (UserMessageEvent) event() {}
func (ReplyEvent) event()       {}
func (ErrorEvent) event()       {}
func (BusyEvent) event()        {}
