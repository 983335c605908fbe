package internal

import (
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"
)

// tui model struct for all the components and modes
type TUIModel struct {
	textInput       textinput.Model
	state           *chatState
	serverJoinURL   string
	username        string
	websocketConn   *websocket.Conn
	writeMutex      *sync.Mutex
	isConnected     bool
	isTyping        bool
	connectionError error
	mode            appMode
	height          int
}

type appMode int

const (
	modeNamePrompt appMode = iota
	modeChat
)

func NewTUIModel(serverJoinURL, room, username string) *TUIModel {
	input := textinput.New()
	input.CharLimit = 4000
	input.Focus()

	model := &TUIModel{
		textInput:     input,
		serverJoinURL: serverJoinURL,
		username:      strings.TrimSpace(username),
		writeMutex:    &sync.Mutex{},
	}
	model.state = newChatState(model.username, room)
	if model.username == "" {
		model.mode = modeNamePrompt
		model.textInput.SetValue(defaultUsername())
		model.textInput.Placeholder = "Enter display name…"
		model.textInput.Prompt = "name> "
	} else {
		model.enterChat()
	}
	return model
}

// init user
func defaultUsername() string {
	if user := os.Getenv("CHATRELAY_USER"); user != "" {
		return user
	}
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	return "anon"
}

func (model *TUIModel) enterChat() {
	model.mode = modeChat
	model.state.self = model.username
	model.textInput.SetValue("")
	model.textInput.Placeholder = "Type a message or /help…"
	model.textInput.Prompt = "> "
}

func (model *TUIModel) Init() tea.Cmd {
	if model.mode == modeChat {
		return tea.Batch(textinput.Blink, model.connectCmd())
	}
	return textinput.Blink
}
