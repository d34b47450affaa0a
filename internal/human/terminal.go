package human

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"
)

// ErrAborted is returned when the operator cancels the prompt.
var ErrAborted = errors.New("prompt aborted")

var (
	questionStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	hintStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// Terminal prompts on the controlling terminal.
type Terminal struct {
	Width  int
	Input  io.Reader
	Output io.Writer
}

// NewTerminal creates a terminal prompter on stdin/stdout.
func NewTerminal() *Terminal {
	return &Terminal{Width: 100, Input: os.Stdin, Output: os.Stdout}
}

// Prompt shows text and blocks until the operator presses enter.
func (t *Terminal) Prompt(ctx context.Context, text string) (string, error) {
	m := newPromptModel(text, t.Width)
	opts := []tea.ProgramOption{tea.WithContext(ctx)}
	if t.Input != nil {
		opts = append(opts, tea.WithInput(t.Input))
	}
	if t.Output != nil {
		opts = append(opts, tea.WithOutput(t.Output))
	}

	final, err := tea.NewProgram(m, opts...).Run()
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("prompt failed: %w", err)
	}
	pm := final.(promptModel)
	if pm.aborted {
		return "", ErrAborted
	}
	return pm.input.Value(), nil
}

type promptModel struct {
	question string
	width    int
	input    textinput.Model
	done     bool
	aborted  bool
}

func newPromptModel(question string, width int) promptModel {
	ti := textinput.New()
	ti.Placeholder = "ok"
	ti.Focus()
	ti.CharLimit = 4000
	ti.Width = width - 4
	return promptModel{question: question, width: width, input: ti}
}

func (m promptModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m promptModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "ctrl+c", "esc":
			m.aborted = true
			return m, tea.Quit
		case "enter":
			m.done = true
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m promptModel) View() string {
	if m.done || m.aborted {
		return ""
	}
	return questionStyle.Render(wordwrap.String(m.question, m.width)) + "\n" +
		m.input.View() + "\n" +
		hintStyle.Render("enter to submit, esc to abort") + "\n"
}
