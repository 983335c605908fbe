package internal

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"chatrelay/internal/session"
)

func (model *TUIModel) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch typedMessage := message.(type) {
	case tea.WindowSizeMsg:
		model.height = typedMessage.Height
		model.textInput.Width = typedMessage.Width - 6
		return model, nil

	case tea.KeyMsg:
		// Ctrl+C or Esc leaves from any mode.
		if typedMessage.Type == tea.KeyCtrlC || typedMessage.Type == tea.KeyEsc {
			model.closeConn("")
			return model, tea.Quit
		}
		switch model.mode {
		case modeNamePrompt:
			return model.updateNamePrompt(typedMessage)
		case modeChat:
			return model.updateChat(typedMessage)
		}

	case connectedMsg:
		model.websocketConn = typedMessage.conn
		model.isConnected = true
		model.connectionError = nil
		model.state.selfID = ""
		join := model.sendCmd(session.EventJoin, session.JoinPayload{Username: model.username, Room: model.state.room})
		return model, tea.Batch(join, model.readOnceCmd())

	case incomingMsg:
		if err := model.state.apply(session.Frame(typedMessage)); err != nil {
			model.state.notify(err.Error())
		}
		return model, model.readOnceCmd()

	case readFailedMsg:
		model.isConnected = false
		model.isTyping = false
		model.websocketConn = nil
		model.connectionError = typedMessage.err
		return model, model.scheduleReconnect()

	case connectFailedMsg:
		model.connectionError = typedMessage.err
		if model.mode == modeChat {
			return model, model.scheduleReconnect()
		}
		return model, nil

	case sendFailedMsg:
		model.state.notify("Send failed: " + typedMessage.err.Error())
		return model, nil

	case reconnectMsg:
		if model.mode == modeChat && !model.isConnected {
			return model, model.connectCmd()
		}
		return model, nil

	case roomsMsg:
		if typedMessage.err != nil {
			model.state.notify(fmt.Sprintf("Error listing rooms: %v", typedMessage.err))
			return model, nil
		}
		parts := make([]string, 0, len(typedMessage.rooms))
		for _, room := range typedMessage.rooms {
			parts = append(parts, fmt.Sprintf("%s (%d)", room.Name, room.UserCount))
		}
		model.state.notify("Rooms: " + strings.Join(parts, ", "))
		return model, nil

	case existsMsg:
		if typedMessage.err == nil && !typedMessage.exists {
			model.state.notify(fmt.Sprintf("Creating room %s.", typedMessage.room))
		}
		return model, nil
	}
	return model, nil
}

func (model *TUIModel) updateNamePrompt(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Type != tea.KeyEnter {
		var cmd tea.Cmd
		model.textInput, cmd = model.textInput.Update(key)
		return model, cmd
	}
	trimmed := strings.TrimSpace(model.textInput.Value())
	if trimmed == "" {
		model.state.notify("Display name cannot be empty.")
		return model, nil
	}
	model.username = trimmed
	model.enterChat()
	return model, model.connectCmd()
}

func (model *TUIModel) updateChat(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Type == tea.KeyEnter {
		trimmed := strings.TrimSpace(model.textInput.Value())
		if trimmed == "" {
			return model, nil
		}
		model.textInput.SetValue("")
		cmds := []tea.Cmd{model.setTyping(false)}
		if strings.HasPrefix(trimmed, "/") {
			cmd, quit := model.runCommand(trimmed)
			if quit {
				return model, cmd
			}
			cmds = append(cmds, cmd)
		} else if model.isConnected {
			cmds = append(cmds, model.sendCmd(session.EventSend, session.SendPayload{Text: trimmed, Room: model.state.room}))
		} else {
			model.state.notify("Not connected yet; message not sent.")
		}
		return model, tea.Batch(cmds...)
	}

	var cmd tea.Cmd
	model.textInput, cmd = model.textInput.Update(key)
	value := strings.TrimSpace(model.textInput.Value())
	typing := value != "" && !strings.HasPrefix(value, "/")
	return model, tea.Batch(cmd, model.setTyping(typing))
}

// setTyping sends a typing frame when the local typing state flips.
func (model *TUIModel) setTyping(typing bool) tea.Cmd {
	if typing == model.isTyping || !model.isConnected {
		return nil
	}
	model.isTyping = typing
	return model.sendCmd(session.EventTyping, session.TypingPayload{IsTyping: typing, Room: model.state.room})
}
