package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"DeepChat/internal/session"
)

type styles struct {
	header    lipgloss.Style
	mode      lipgloss.Style
	user      lipgloss.Style
	assistant lipgloss.Style
	notice    lipgloss.Style
	errorText lipgloss.Style
	status    lipgloss.Style
	spinner   lipgloss.Style
	keyPrompt lipgloss.Style
}

func defaultStyles() styles {
	return styles{
		header:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFFFF")).Background(lipgloss.Color("#2E5C8A")).Padding(0, 1),
		mode:      lipgloss.NewStyle().Foreground(lipgloss.Color("#A8C7FA")).Padding(0, 1),
		user:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#4A90D9")),
		assistant: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5FB878")),
		notice:    lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")).Italic(true),
		errorText: lipgloss.NewStyle().Foreground(lipgloss.Color("#E05252")),
		status:    lipgloss.NewStyle().Foreground(lipgloss.Color("#666666")),
		spinner:   lipgloss.NewStyle().Foreground(lipgloss.Color("#E0A526")),
		keyPrompt: lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#E0A526")).Padding(0, 1),
	}
}

func (m Model) View() string {
	var sb strings.Builder

	sb.WriteString(m.renderHeader())
	sb.WriteString("\n\n")
	sb.WriteString(m.viewport.View())
	sb.WriteString("\n")
	sb.WriteString(m.renderStatus())
	sb.WriteString("\n")
	if m.askKey {
		sb.WriteString(m.styles.keyPrompt.Render("Enter your API Key (Esc to skip)\n" + m.keyInput.View()))
	} else {
		sb.WriteString(m.input.View())
	}
	return sb.String()
}

func (m Model) renderHeader() string {
	title := m.styles.header.Render("DeepChat")
	mode := m.styles.mode.Render(fmt.Sprintf("%s mode · %s", m.coord.Mode(), m.coord.Model()))
	return lipgloss.JoinHorizontal(lipgloss.Top, title, mode)
}

func (m Model) renderStatus() string {
	switch {
	case m.closed:
		return m.styles.errorText.Render("session closed")
	case m.inFlight > 0:
		return m.spinner.View() + m.styles.spinner.Render(fmt.Sprintf(" Loading, please wait... (%d pending)", m.inFlight))
	default:
		return m.styles.status.Render("enter send · tab switch mode · esc clear · pgup/pgdn scroll · ctrl+c quit")
	}
}

// renderBlocks renders the conversation, wrapped to the viewport width
func (m Model) renderBlocks() string {
	wrap := lipgloss.NewStyle().Width(max(m.viewport.Width-1, 1))

	parts := make([]string, 0, len(m.blocks))
	for _, b := range m.blocks {
		var s string
		switch b.kind {
		case blockUser:
			s = m.styles.user.Render(session.RoleUser.Label()+": ") + b.text
		case blockAssistant:
			s = m.styles.assistant.Render(session.RoleAssistant.Label()+": ") + b.text
		case blockNotice:
			s = m.styles.notice.Render(b.text)
		case blockError:
			s = m.styles.errorText.Render("Error: " + b.text)
		}
		parts = append(parts, wrap.Render(s))
	}
	return strings.Join(parts, "\n\n")
}
