package view

import (
	"fmt"
	"io"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ArionMiles/smsledger/pkg/api"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true)
	subtitleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	extraStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	cursorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
)

// item adapts a transaction to the list.
type item struct {
	tx *api.Transaction
}

func (i item) FilterValue() string { return i.tx.Title }

// rowDelegate renders title, subtitle and extra on three lines.
type rowDelegate struct{}

func (rowDelegate) Height() int                             { return 3 }
func (rowDelegate) Spacing() int                            { return 1 }
func (rowDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }

func (rowDelegate) Render(w io.Writer, m list.Model, index int, li list.Item) {
	it, ok := li.(item)
	if !ok {
		return
	}

	prefix := "  "
	if index == m.Index() {
		prefix = cursorStyle.Render("> ")
	}

	width := m.Width() - 2
	if width < 10 {
		width = 10
	}
	line := lipgloss.NewStyle().MaxWidth(width)

	_, _ = fmt.Fprintf(w, "%s%s\n%s%s\n%s%s",
		prefix, line.Render(titleStyle.Render(it.tx.Title)),
		"  ", line.Render(subtitleStyle.Render(it.tx.Subtitle())),
		"  ", line.Render(extraStyle.Render(it.tx.Extra())),
	)
}

type listModel struct {
	list list.Model
}

func newListModel() listModel {
	l := list.New(nil, rowDelegate{}, 80, 20)
	l.SetShowTitle(false)
	l.SetShowStatusBar(true)
	l.SetStatusBarItemName("transaction", "transactions")
	l.SetFilteringEnabled(false)
	l.SetShowHelp(false)
	l.DisableQuitKeybindings()
	return listModel{list: l}
}

// setTransactions replaces every row; the cursor returns to the top.
func (l *listModel) setTransactions(txns []*api.Transaction) tea.Cmd {
	items := make([]list.Item, 0, len(txns))
	for _, tx := range txns {
		items = append(items, item{tx: tx})
	}
	cmd := l.list.SetItems(items)
	l.list.ResetSelected()
	return cmd
}

func (l *listModel) setSize(width, height int) {
	// Header, status and help lines plus padding.
	l.list.SetSize(width-4, height-8)
}

func (l listModel) selected() *api.Transaction {
	it, ok := l.list.SelectedItem().(item)
	if !ok {
		return nil
	}
	return it.tx
}

func (l listModel) count() int {
	return len(l.list.Items())
}

func (l listModel) update(msg tea.Msg) (listModel, tea.Cmd) {
	var cmd tea.Cmd
	l.list, cmd = l.list.Update(msg)
	return l, cmd
}

func (l listModel) View() string {
	if len(l.list.Items()) == 0 {
		return subtitleStyle.Render("No transactions")
	}
	return l.list.View()
}
