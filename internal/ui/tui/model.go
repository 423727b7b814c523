// Package tui is the Bubble Tea surface. Update is the only consumer of the
// coordinator's event queue: a waitForEvent command pops one event, Update
// applies it and issues the next wait.
package tui

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"DeepChat/internal/chatbot"
	"DeepChat/internal/config"
	"DeepChat/internal/ui"
)

// eventMsg carries one coordinator event into Update
type eventMsg struct{ event chatbot.Event }

// eventsClosedMsg is sent once the coordinator has shut down
type eventsClosedMsg struct{}

// taskDoneMsg reports the outcome of a command task
type taskDoneMsg struct {
	output string
	err    error
}

type blockKind int

const (
	blockUser blockKind = iota
	blockAssistant
	blockNotice
	blockError
)

// block is one rendered piece of the conversation view
type block struct {
	kind blockKind
	text string
}

// Model is the chat screen
type Model struct {
	ctx   context.Context
	ctrl  *ui.Controller
	coord *chatbot.Coordinator

	input    textinput.Model
	keyInput textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	styles   styles

	blocks   []block
	inFlight int
	askKey   bool
	closed   bool

	width  int
	height int
}

// New builds the model. askKey opens the API key prompt on start.
func New(ctx context.Context, ctrl *ui.Controller, askKey bool) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Type a message, /help for commands"
	ti.CharLimit = 0
	ti.Focus()

	ki := textinput.New()
	ki.Prompt = "API key: "
	ki.EchoMode = textinput.EchoPassword
	ki.EchoCharacter = '*'

	sp := spinner.New()
	sp.Spinner = spinner.Spinner{
		Frames: []string{"|", "/", "-", "\\"},
		FPS:    time.Second / 10,
	}

	m := Model{
		ctx:      ctx,
		ctrl:     ctrl,
		coord:    ctrl.Coordinator,
		input:    ti,
		keyInput: ki,
		viewport: viewport.New(80, 20),
		spinner:  sp,
		styles:   defaultStyles(),
	}
	m.spinner.Style = m.styles.spinner
	if askKey {
		m.openKeyPrompt()
	}
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.waitForEvent())
}

// waitForEvent blocks on the coordinator's event queue
func (m Model) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, err := m.coord.NextEvent(m.ctx)
		if err != nil {
			return eventsClosedMsg{}
		}
		return eventMsg{event: ev}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg)

	case tea.KeyMsg:
		return m.handleKey(msg)

	case eventMsg:
		return m.handleEvent(msg.event)

	case eventsClosedMsg:
		m.closed = true
		m.inFlight = 0
		return m, nil

	case taskDoneMsg:
		if msg.err != nil {
			m.appendBlock(blockError, msg.err.Error())
		} else {
			m.appendBlock(blockNotice, msg.output)
		}
		return m, nil

	case spinner.TickMsg:
		if m.inFlight > 0 {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) handleResize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	const (
		headerHeight = 2
		inputHeight  = 3
		statusHeight = 1
	)

	m.width = msg.Width
	m.height = msg.Height

	m.viewport.Width = max(msg.Width, 1)
	m.viewport.Height = max(msg.Height-headerHeight-inputHeight-statusHeight, 1)
	m.input.Width = max(msg.Width-4, 1)
	m.keyInput.Width = max(msg.Width-12, 1)

	m.refresh()
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyCtrlC {
		return m, tea.Quit
	}
	if m.askKey {
		return m.handleKeyPrompt(msg)
	}

	switch msg.Type {
	case tea.KeyEnter:
		return m.submit()

	case tea.KeyTab:
		res := m.ctrl.Execute("/mode " + m.coord.Mode().Toggle().String())
		return m.applyResult(res)

	case tea.KeyEsc:
		m.input.Reset()
		return m, nil

	case tea.KeyPgUp, tea.KeyPgDown, tea.KeyUp, tea.KeyDown:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKeyPrompt(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		res := m.ctrl.KeyTask(m.keyInput.Value())
		if res.Err != nil {
			m.appendBlock(blockError, res.Err.Error())
			m.keyInput.Reset()
			return m, nil
		}
		m.closeKeyPrompt()
		next, save := m.applyResult(res)
		return next, tea.Batch(save, textinput.Blink)

	case tea.KeyEsc:
		m.closeKeyPrompt()
		m.appendBlock(blockNotice, "No API key set. Use /key <value> before sending.")
		return m, textinput.Blink
	}

	var cmd tea.Cmd
	m.keyInput, cmd = m.keyInput.Update(msg)
	return m, cmd
}

func (m *Model) openKeyPrompt() {
	m.askKey = true
	m.input.Blur()
	m.keyInput.Reset()
	m.keyInput.Focus()
}

func (m *Model) closeKeyPrompt() {
	m.askKey = false
	m.keyInput.Reset()
	m.keyInput.Blur()
	m.input.Focus()
}

// submit sends the input line as a message or runs it as a command
func (m Model) submit() (tea.Model, tea.Cmd) {
	text := m.input.Value()
	m.input.Reset()

	if ui.IsCommand(text) {
		return m.applyResult(m.ctrl.Execute(text))
	}

	// with a turn id the failure is reported by an ErrorEvent
	turn, err := m.coord.Submit(text)
	if turn == "" && err != nil && !errors.Is(err, chatbot.ErrEmptyMessage) {
		m.appendBlock(blockError, err.Error())
	}
	return m, nil
}

func (m Model) applyResult(res ui.Result) (tea.Model, tea.Cmd) {
	if res.Quit {
		return m, tea.Quit
	}
	if res.Err != nil {
		m.appendBlock(blockError, res.Err.Error())
	}
	if res.Output != "" {
		m.appendBlock(blockNotice, res.Output)
	}
	if res.Task == nil {
		return m, nil
	}

	ctx, task := m.ctx, res.Task
	return m, func() tea.Msg {
		out, err := task(ctx)
		return taskDoneMsg{output: out, err: err}
	}
}

func (m Model) handleEvent(ev chatbot.Event) (tea.Model, tea.Cmd) {
	cmds := []tea.Cmd{m.waitForEvent()}

	m.ctrl.Transcript.Apply(ev)

	switch ev := ev.(type) {
	case chatbot.UserMessageEvent:
		m.appendBlock(blockUser, ev.Text)

	case chatbot.ReplyEvent:
		m.appendBlock(blockAssistant, ev.Text)

	case chatbot.ErrorEvent:
		m.appendBlock(blockError, chatbot.Describe(ev.Err))
		if errors.Is(ev.Err, config.ErrMissingCredential) {
			m.openKeyPrompt()
		}

	case chatbot.BusyEvent:
		wasBusy := m.inFlight > 0
		m.inFlight = ev.InFlight
		if !wasBusy && ev.Busy() {
			cmds = append(cmds, m.spinner.Tick)
		}
	}

	return m, tea.Batch(cmds...)
}

func (m *Model) appendBlock(kind blockKind, text string) {
	m.blocks = append(m.blocks, block{kind: kind, text: text})
	m.refresh()
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderBlocks())
	m.viewport.GotoBottom()
}

// Run starts the terminal UI and blocks until the operator quits
func Run(ctx context.Context, ctrl *ui.Controller, askKey bool) error {
	p := tea.NewProgram(New(ctx, ctrl, askKey), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
