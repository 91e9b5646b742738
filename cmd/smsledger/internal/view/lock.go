package view

import (
	"errors"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
)

const passcodeKey = "passcode"

type lockResult int

const (
	lockPending lockResult = iota
	lockSubmitted
	lockAborted
)

type lockModel struct {
	form *huh.Form
}

func newLockModel() lockModel {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Key(passcodeKey).
				Title("Passcode").
				EchoMode(huh.EchoModePassword).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return errors.New("passcode cannot be empty")
					}
					return nil
				}),
		),
	).WithWidth(30).WithShowHelp(false)

	return lockModel{form: form}
}

func (l lockModel) Init() tea.Cmd {
	return l.form.Init()
}

// update forwards msg to the form and reports whether it was submitted or aborted.
func (l lockModel) update(msg tea.Msg) (lockModel, tea.Cmd, lockResult) {
	form, cmd := l.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		l.form = f
	}

	switch l.form.State {
	case huh.StateCompleted:
		return l, nil, lockSubmitted
	case huh.StateAborted:
		return l, nil, lockAborted
	}
	return l, cmd, lockPending
}

func (l lockModel) passcode() string {
	return l.form.GetString(passcodeKey)
}

func (l lockModel) View() string {
	return l.form.View()
}
