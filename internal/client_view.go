package internal

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/samber/lo"

	"chatrelay/internal/session"
)

// pre styled colors// all from lipglpss
var (
	appTitleStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213")).Padding(0, 1)
	menuHintStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).MarginTop(1)
	noticeBoxStyle     = lipgloss.NewStyle().BorderStyle(lipgloss.NormalBorder()).BorderForeground(lipgloss.Color("95")).Padding(0, 1).MarginTop(1)
	chatHeaderStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213")).BorderStyle(lipgloss.NormalBorder()).BorderBottom(true).BorderForeground(lipgloss.Color("63")).Padding(0, 1)
	statusStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("109"))
	connectedStyle     = statusStyle.Copy().Foreground(lipgloss.Color("42")).Bold(true)
	connectingStyle    = statusStyle.Copy().Foreground(lipgloss.Color("178")).Italic(true)
	messageBodyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("253"))
	messageBoxStyle    = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("60")).Padding(0, 1).MarginTop(1)
	inputBoxStyle      = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("63")).Padding(0, 1).MarginTop(1)
	timestampStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	indexStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	usernameStyle      = lipgloss.NewStyle().Bold(true)
	activeUserStyle    = usernameStyle.Copy().Foreground(lipgloss.Color("213"))
	privateStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("177")).Italic(true)
	metaStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("108"))
	systemMessageStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Italic(true)
	errorStyle         = statusStyle.Copy().Foreground(lipgloss.Color("196")).Bold(true)
	dividerStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("237")).Render(" ┃ ")
	userColorPalette   = []lipgloss.Color{
		lipgloss.Color("45"),
		lipgloss.Color("81"),
		lipgloss.Color("141"),
		lipgloss.Color("98"),
		lipgloss.Color("63"),
		lipgloss.Color("135"),
		lipgloss.Color("32"),
	}
)

const minVisibleMessages = 5

func (model *TUIModel) View() string {
	if model.mode == modeNamePrompt {
		return model.renderPrompt("chatrelay", "Choose a display name and press Enter.")
	}
	return model.renderChatView()
}

func (model *TUIModel) renderPrompt(title, hint string) string {
	sections := []string{appTitleStyle.Render(title), menuHintStyle.Render(hint)}
	if notices := model.renderNotices(); notices != "" {
		sections = append(sections, notices)
	}
	sections = append(sections, inputBoxStyle.Render(model.textInput.View()))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (model *TUIModel) renderChatView() string {
	state := model.state
	header := chatHeaderStyle.Render(strings.Join([]string{
		"chatrelay",
		fmt.Sprintf("Room %s", state.room),
		fmt.Sprintf("User %s", model.username),
		fmt.Sprintf("Server %s", model.serverJoinURL),
	}, dividerStyle))

	var statusLine string
	switch {
	case model.connectionError != nil && !model.isConnected:
		statusLine = errorStyle.Render("Connection error: " + model.connectionError.Error())
	case model.isConnected:
		names := lo.Map(state.users, func(u session.Session, _ int) string { return u.Username })
		statusLine = connectedStyle.Render("Connected") + statusStyle.Render("  online: "+strings.Join(names, ", "))
	default:
		statusLine = connectingStyle.Render("Connecting…")
	}

	sections := []string{header, statusLine, model.renderMessages()}
	if len(state.results) > 0 {
		sections = append(sections, model.renderResults())
	}
	if notices := model.renderNotices(); notices != "" {
		sections = append(sections, notices)
	}
	if typing := renderTyping(state.typing); typing != "" {
		sections = append(sections, typing)
	}
	sections = append(sections,
		inputBoxStyle.Render(model.textInput.View()),
		menuHintStyle.Render("/help for commands • Esc or /quit to exit"),
	)
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (model *TUIModel) renderMessages() string {
	messages := model.state.messages
	visible := model.visibleMessages()
	start := 0
	if len(messages) > visible {
		start = len(messages) - visible
	}
	var lines []string
	if start > 0 || model.state.hasMore {
		lines = append(lines, indexStyle.Render("… /more loads older messages"))
	}
	for i := start; i < len(messages); i++ {
		lines = append(lines, model.renderChatMessage(i+1, messages[i]))
	}
	if len(messages) == 0 {
		lines = append(lines, systemMessageStyle.Render("No messages yet. Say hi and start the conversation."))
	}
	return messageBoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func (model *TUIModel) visibleMessages() int {
	// header, status, notices, input and hints take roughly this many rows
	const chrome = 18
	if model.height-chrome < minVisibleMessages {
		return minVisibleMessages
	}
	return model.height - chrome
}

func (model *TUIModel) renderResults() string {
	lines := []string{systemMessageStyle.Render("Search results")}
	for _, msg := range model.state.results {
		lines = append(lines, model.renderChatMessage(0, msg))
	}
	return noticeBoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func (model *TUIModel) renderNotices() string {
	if len(model.state.notices) == 0 {
		return ""
	}
	lines := lo.Map(model.state.notices, func(n notice, _ int) string {
		return timestampStyle.Render(fmt.Sprintf("[%s] ", n.at.Local().Format("15:04:05"))) + systemMessageStyle.Render(n.text)
	})
	return noticeBoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

// renderChatMessage renders a single log line: number, timestamp, sender,
// body, then reaction and read-receipt counts.
func (model *TUIModel) renderChatMessage(index int, msg session.Message) string {
	parts := []string{}
	if index > 0 {
		parts = append(parts, indexStyle.Render(fmt.Sprintf("%3d", index)), " ")
	}
	parts = append(parts, timestampStyle.Render(fmt.Sprintf("[%s]", msg.Timestamp.Local().Format("15:04:05"))), " ")

	nameStyle := usernameStyle.Copy().Foreground(colorForUser(msg.Sender))
	if msg.Sender == model.username {
		nameStyle = activeUserStyle
	}
	parts = append(parts, nameStyle.Render(msg.Sender))
	if msg.Private {
		parts = append(parts, privateStyle.Render(" → "+msg.Recipient+" (private)"))
	}
	parts = append(parts, ": ", messageBodyStyle.Render(strings.ReplaceAll(msg.Text, "\n", "\n      ")))
	if meta := renderMeta(msg); meta != "" {
		parts = append(parts, "  ", metaStyle.Render(meta))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func renderMeta(msg session.Message) string {
	var meta []string
	for _, emoji := range msg.Reactions.Emojis() {
		meta = append(meta, fmt.Sprintf("%s%d", emoji, len(msg.Reactions.Users(emoji))))
	}
	if readers := len(msg.ReadBy); readers > 1 {
		meta = append(meta, fmt.Sprintf("✓%d", readers))
	}
	return strings.Join(meta, " ")
}

func renderTyping(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return connectingStyle.Render(names[0] + " is typing…")
	default:
		return connectingStyle.Render(strings.Join(names, ", ") + " are typing…")
	}
}

// color for users
func colorForUser(name string) lipgloss.Color {
	if len(userColorPalette) == 0 {
		return lipgloss.Color("249")
	}
	if name == "" {
		return userColorPalette[0]
	}
	var sum int
	for _, r := range name {
		sum += int(r)
	}
	return userColorPalette[sum%len(userColorPalette)]
}
