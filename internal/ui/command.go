// Package ui holds what the terminal and console surfaces share: slash
// command handling and the rendered transcript.
package ui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"DeepChat/internal/chatbot"
	"DeepChat/internal/export"
	"DeepChat/internal/journal"
	"DeepChat/internal/session"
)

const recentRequests = 10

var (
	ErrUnknownCommand = errors.New("unknown command")
	errNoJournal      = errors.New("request journal is disabled")
	errBlankKey       = errors.New("please enter a valid API key")
)

const HelpText = `Available commands:
  /quit, /exit          - Exit the chat
  /mode [chat|reasoner] - Show or switch the mode
  /attach <path>        - Send the text of a .docx, .pdf or .txt file
  /export [path]        - Save the transcript (.docx or .md)
  /key <value>          - Set and save the API key
  /requests             - Show the most recent requests
  /help                 - Show this help message`

// KeyStore persists the API key
type KeyStore interface {
	Save(key string) error
}

// KeySetter receives the API key at runtime
type KeySetter interface {
	SetAPIKey(key string)
}

// RequestLog lists recorded requests
type RequestLog interface {
	Recent(ctx context.Context, limit int) ([]journal.Entry, error)
}

// Result is the outcome of a command. Task, when set, does blocking work and
// must run off the presentation loop.
type Result struct {
	Output string
	Quit   bool
	Err    error
	Task   func(ctx context.Context) (string, error)
}

// Controller executes slash commands against a session
type Controller struct {
	Coordinator *chatbot.Coordinator
	Credentials KeyStore
	Client      KeySetter
	Journal     RequestLog // nil when the journal is disabled
	Transcript  *Transcript
	Logger      *slog.Logger
}

// IsCommand reports whether input should be handled by Execute
func IsCommand(input string) bool {
	return strings.HasPrefix(strings.TrimSpace(input), "/")
}

// Execute handles one slash command. It must be called from the
// presentation loop.
func (c *Controller) Execute(input string) Result {
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return Result{}
	}
	arg := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(input), parts[0]))

	switch parts[0] {
	case "/quit", "/exit":
		return Result{Quit: true}

	case "/help":
		return Result{Output: HelpText}

	case "/mode":
		if arg == "" {
			return Result{Output: fmt.Sprintf("Mode: %s (%s)", c.Coordinator.Mode(), c.Coordinator.Model())}
		}
		mode, err := session.ParseMode(arg)
		if err != nil {
			return Result{Err: err}
		}
		c.Coordinator.SetMode(mode)
		return Result{Output: fmt.Sprintf("Switched to %s mode (%s)", mode, c.Coordinator.Model())}

	case "/attach":
		if arg == "" {
			return Result{Err: fmt.Errorf("usage: /attach <path>")}
		}
		if err := c.Coordinator.Attach(arg); err != nil {
			return Result{Err: err}
		}
		return Result{Output: "Reading " + arg + "..."}

	case "/export":
		path := arg
		if path == "" {
			path = fmt.Sprintf("chat-%s.docx", time.Now().Format("20060102-150405"))
		}
		entries := c.Transcript.Entries()
		if len(entries) == 0 {
			return Result{Err: export.ErrEmptyTranscript}
		}
		return Result{Task: func(context.Context) (string, error) {
			written, err := export.Write(path, entries)
			if err != nil {
				return "", err
			}
			c.logger().Info("transcript exported", "path", written, "entries", len(entries))
			return "Chat history saved to " + written, nil
		}}

	case "/key":
		return c.KeyTask(arg)

	case "/requests":
		if c.Journal == nil {
			return Result{Err: errNoJournal}
		}
		return Result{Task: func(ctx context.Context) (string, error) {
			entries, err := c.Journal.Recent(ctx, recentRequests)
			if err != nil {
				return "", err
			}
			return FormatRequests(entries), nil
		}}

	default:
		return Result{Err: fmt.Errorf("%w: %s (try /help)", ErrUnknownCommand, parts[0])}
	}
}

// KeyTask validates key and returns a Task that saves it. Saving writes the
// credentials file, so it runs off the presentation loop like any other Task.
func (c *Controller) KeyTask(key string) Result {
	key = strings.TrimSpace(key)
	if key == "" {
		return Result{Err: errBlankKey}
	}
	return Result{Task: func(context.Context) (string, error) {
		if err := c.SetKey(key); err != nil {
			return "", err
		}
		return "API key saved.", nil
	}}
}

// SetKey saves key and hands it to the client. It blocks on file I/O.
func (c *Controller) SetKey(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errBlankKey
	}
	if err := c.Credentials.Save(key); err != nil {
		c.logger().Error("failed to save API key", "error", err)
		return err
	}
	c.Client.SetAPIKey(key)
	c.logger().Info("API key updated")
	return nil
}

func (c *Controller) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

// FormatRequests renders journal entries one per line
func FormatRequests(entries []journal.Entry) string {
	if len(entries) == 0 {
		return "No requests recorded yet."
	}

	var sb strings.Builder
	sb.WriteString("Recent requests:")
	for _, e := range entries {
		line := fmt.Sprintf("\n  %s  %-9s %-18s %6dms  %2d msgs",
			e.StartedAt.Local().Format("15:04:05"), e.Status, e.Model, e.Duration.Milliseconds(), e.MessageCount)
		if e.Error != "" {
			line += "  " + e.Error
		}
		sb.WriteString(line)
	}
	return sb.String()
}
