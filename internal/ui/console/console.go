// Package console is the line-mode surface used with -plain. A single loop
// reads operator lines and coordinator events and is the only place either
// is applied.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"DeepChat/internal/chatbot"
	"DeepChat/internal/config"
	"DeepChat/internal/ui"
)

type taskResult struct {
	output string
	err    error
}

// Console renders a chat session on plain text streams
type Console struct {
	ctrl *ui.Controller
	in   io.Reader
	out  io.Writer

	user      func(a ...interface{}) string
	assistant func(a ...interface{}) string
	notice    func(a ...interface{}) string
	failure   func(a ...interface{}) string

	askKey   bool
	inFlight int
	typed    map[string]bool // turns submitted from input, already on screen
	awaiting int             // shown messages without a reply or error yet
	tasks    int             // command tasks still running
}

func New(ctrl *ui.Controller, in io.Reader, out io.Writer) *Console {
	return &Console{
		ctrl:      ctrl,
		in:        in,
		out:       out,
		user:      color.New(color.FgGreen, color.Bold).SprintFunc(),
		assistant: color.New(color.FgCyan, color.Bold).SprintFunc(),
		notice:    color.New(color.FgHiBlack).SprintFunc(),
		failure:   color.New(color.FgRed).SprintFunc(),
		typed:     make(map[string]bool),
	}
}

// Run drives the session until /quit, end of input or ctx is done. askKey
// asks for the API key before the first message.
func (c *Console) Run(ctx context.Context, askKey bool) error {
	coord := c.ctrl.Coordinator

	fmt.Fprintln(c.out, c.user("=== DeepChat ==="))
	fmt.Fprintf(c.out, "Mode: %s (%s)\n", coord.Mode(), coord.Model())
	fmt.Fprintln(c.out, "Type /help for commands, /quit to exit")
	fmt.Fprintln(c.out)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.in)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	events := make(chan chatbot.Event)
	go func() {
		defer close(events)
		for {
			ev, err := coord.NextEvent(ctx)
			if err != nil {
				return
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	tasks := make(chan taskResult)

	if askKey {
		c.promptKey()
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case line, ok := <-lines:
			if !ok {
				return c.finish(ctx, events, tasks)
			}
			if quit := c.handleLine(ctx, line, tasks); quit {
				fmt.Fprintln(c.out, "Goodbye!")
				return nil
			}

		case ev, ok := <-events:
			if !ok {
				return nil
			}
			c.handleEvent(ev)

		case res := <-tasks:
			c.tasks--
			c.printResult(res.output, res.err)
		}
	}
}

// finish prints outstanding replies and task results once input has ended
func (c *Console) finish(ctx context.Context, events <-chan chatbot.Event, tasks <-chan taskResult) error {
	for len(c.typed) > 0 || c.awaiting > 0 || c.tasks > 0 {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				// a nil channel blocks, leaving only tasks to wait for
				events = nil
				c.typed = map[string]bool{}
				c.awaiting = 0
				continue
			}
			c.handleEvent(ev)
		case res := <-tasks:
			c.tasks--
			c.printResult(res.output, res.err)
		}
	}
	return nil
}

func (c *Console) handleLine(ctx context.Context, line string, tasks chan<- taskResult) bool {
	if c.askKey {
		c.askKey = false
		if strings.TrimSpace(line) == "" {
			fmt.Fprintln(c.out, c.notice("No API key set. Use /key <value> before sending."))
			return false
		}
		c.apply(ctx, c.ctrl.KeyTask(line), tasks)
		return false
	}

	if ui.IsCommand(line) {
		res := c.ctrl.Execute(line)
		if res.Quit {
			return true
		}
		c.apply(ctx, res, tasks)
		return false
	}

	// a turn id means the outcome, failure included, arrives as events
	turn, err := c.ctrl.Coordinator.Submit(line)
	switch {
	case turn != "":
		c.typed[turn] = true
	case err != nil && !errors.Is(err, chatbot.ErrEmptyMessage):
		c.printResult("", err)
	}
	return false
}

// apply prints a command result and starts its task, if any
func (c *Console) apply(ctx context.Context, res ui.Result, tasks chan<- taskResult) {
	c.printResult(res.Output, res.Err)
	if res.Task == nil {
		return
	}

	c.tasks++
	task := res.Task
	go func() {
		out, err := task(ctx)
		select {
		case tasks <- taskResult{output: out, err: err}:
		case <-ctx.Done():
		}
	}()
}

func (c *Console) handleEvent(ev chatbot.Event) {
	c.ctrl.Transcript.Apply(ev)

	switch ev := ev.(type) {
	case chatbot.UserMessageEvent:
		c.awaiting++
		// typed lines are already on screen, attachments are not
		if c.typed[ev.Turn] {
			delete(c.typed, ev.Turn)
			return
		}
		fmt.Fprintf(c.out, "%s %s\n", c.user("You:"), ev.Text)

	case chatbot.ReplyEvent:
		c.awaiting--
		fmt.Fprintf(c.out, "%s %s\n\n", c.assistant("Assistant:"), ev.Text)

	case chatbot.ErrorEvent:
		if ev.Turn != "" {
			c.awaiting--
		}
		fmt.Fprintln(c.out, c.failure("Error: "+chatbot.Describe(ev.Err)))
		if errors.Is(ev.Err, config.ErrMissingCredential) {
			c.promptKey()
		}

	case chatbot.BusyEvent:
		if ev.Busy() && c.inFlight == 0 {
			fmt.Fprintln(c.out, c.notice("Loading, please wait..."))
		}
		c.inFlight = ev.InFlight
	}
}

func (c *Console) promptKey() {
	c.askKey = true
	fmt.Fprint(c.out, "Enter your API Key: ")
}

func (c *Console) printResult(output string, err error) {
	if err != nil {
		fmt.Fprintln(c.out, c.failure("Error: "+err.Error()))
	}
	if output != "" {
		fmt.Fprintln(c.out, output)
	}
}
