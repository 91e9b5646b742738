// Package view implements the terminal UI: a passcode lock screen followed
// by the transaction list.
package view

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ArionMiles/smsledger/internal/session"
	"github.com/ArionMiles/smsledger/pkg/api"
)

// opTimeout bounds a single refresh, speak or export.
const opTimeout = 2 * time.Minute

type screen int

const (
	screenLock screen = iota
	screenList
)

var (
	appStyle    = lipgloss.NewStyle().Padding(1, 2)
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	statusStyle = lipgloss.NewStyle().Faint(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// StatusMsg carries an intermediate status line from a running operation.
type StatusMsg string

// stateMsg delivers the state produced by a finished operation.
type stateMsg struct {
	state session.State
}

type spokeMsg struct{}

// Model is the root Bubble Tea model.
type Model struct {
	sess   *session.Session
	state  session.State
	screen screen
	busy   bool

	lock lockModel
	list listModel
}

// New creates the root model in the locked state.
func New(sess *session.Session) Model {
	return Model{
		sess:   sess,
		state:  session.Initial(),
		screen: screenLock,
		lock:   newLockModel(),
		list:   newListModel(),
	}
}

// State returns the current application state.
func (m Model) State() session.State {
	return m.state
}

func (m Model) Init() tea.Cmd {
	return m.lock.Init()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.list.setSize(msg.Width, msg.Height)
		return m, nil

	case StatusMsg:
		m.state.Status = string(msg)
		m.state.Err = nil
		return m, nil

	case stateMsg:
		return m.applyState(msg.state)

	case spokeMsg:
		m.busy = false
		return m, nil
	}

	switch m.screen {
	case screenLock:
		return m.updateLock(msg)
	case screenList:
		return m.updateList(msg)
	}
	return m, nil
}

func (m Model) applyState(st session.State) (tea.Model, tea.Cmd) {
	m.busy = false
	m.state = st

	if !st.Unlocked {
		m.lock = newLockModel()
		return m, m.lock.Init()
	}

	m.screen = screenList
	return m, m.list.setTransactions(st.Transactions)
}

func (m Model) updateLock(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.busy {
		return m, nil
	}

	var (
		cmd    tea.Cmd
		result lockResult
	)
	m.lock, cmd, result = m.lock.update(msg)

	switch result {
	case lockAborted:
		return m, tea.Quit
	case lockSubmitted:
		m.busy = true
		m.state.Status = "Checking passcode..."
		return m, m.unlockCmd(m.lock.passcode())
	}
	return m, cmd
}

func (m Model) updateList(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "q":
			return m, tea.Quit
		case "r":
			if m.busy {
				return m, nil
			}
			m.busy = true
			m.state.Status = "Reading SMS..."
			return m, m.refreshCmd()
		case "enter", "s":
			tx := m.list.selected()
			if tx == nil || m.busy {
				return m, nil
			}
			m.busy = true
			return m, m.speakCmd(tx)
		case "x":
			if m.busy {
				return m, nil
			}
			m.busy = true
			m.state.Status = "Exporting..."
			return m, m.exportCmd()
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.update(msg)
	return m, cmd
}

func (m Model) View() string {
	var body string
	switch m.screen {
	case screenLock:
		body = m.lock.View()
	case screenList:
		body = m.list.View()
	}

	status := statusStyle.Render(m.state.Status)
	if m.state.Err != nil {
		status = errorStyle.Render(m.state.Status)
	}

	help := "ctrl+c: quit"
	if m.screen == screenList {
		help = "r: refresh | enter/s: speak | x: export | q: quit"
	}

	return appStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
		headerStyle.Render("SMS Transactions"),
		"",
		body,
		"",
		status,
		helpStyle.Render(help),
	))
}

func (m Model) unlockCmd(input string) tea.Cmd {
	sess, st := m.sess, m.state
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		return stateMsg{state: sess.Unlock(ctx, input, st)}
	}
}

func (m Model) refreshCmd() tea.Cmd {
	sess, st := m.sess, m.state
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		return stateMsg{state: sess.Refresh(ctx, st)}
	}
}

func (m Model) exportCmd() tea.Cmd {
	sess, st := m.sess, m.state
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		return stateMsg{state: sess.Export(ctx, st)}
	}
}

func (m Model) speakCmd(tx *api.Transaction) tea.Cmd {
	sess := m.sess
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		sess.Speak(ctx, tx)
		return spokeMsg{}
	}
}
