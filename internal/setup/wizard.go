package setup

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")) // Blue

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("15"))

	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))
)

// Step is one question of the wizard.
type Step int

const (
	StepProvider Step = iota
	StepModel
	StepAPIKey
	StepExecuteFile
	StepFrontendURL
	StepDone
)

type question struct {
	prompt string
	hint   string
	secret bool
}

var questions = map[Step]question{
	StepProvider:    {"LLM provider", "anthropic, openai, google, mistral, groq", false},
	StepModel:       {"Model", "enter accepts the suggestion", false},
	StepAPIKey:      {"API key", "leave empty to read it from the environment", true},
	StepExecuteFile: {"Entry script run after each change", "e.g. main.py, empty to skip", false},
	StepFrontendURL: {"Frontend URL for screenshots", "e.g. http://localhost:5173, empty to skip", false},
}

// Model is the bubbletea model of the setup wizard.
type Model struct {
	step      Step
	input     textinput.Model
	opts      Options
	cancelled bool
}

// NewWizard starts the wizard with defaults prefilled from opts.
func NewWizard(opts Options) Model {
	if opts.Provider == "" {
		opts.Provider = "anthropic"
	}
	m := Model{opts: opts}
	m.input = textinput.New()
	m.input.CharLimit = 256
	m.input.Width = 60
	m.enter(StepProvider)
	return m
}

func (m *Model) enter(step Step) {
	m.step = step
	m.input.Reset()
	m.input.EchoMode = textinput.EchoNormal
	if questions[step].secret {
		m.input.EchoMode = textinput.EchoPassword
	}
	switch step {
	case StepProvider:
		m.input.SetValue(m.opts.Provider)
	case StepModel:
		model := m.opts.Model
		if model == "" {
			model = DefaultModel(m.opts.Provider)
		}
		m.input.SetValue(model)
	case StepExecuteFile:
		m.input.SetValue(m.opts.ExecuteFile)
	case StepFrontendURL:
		m.input.SetValue(m.opts.FrontendURL)
	}
	m.input.Focus()
}

// Options returns the collected answers.
func (m Model) Options() Options {
	return m.opts
}

// Cancelled reports whether the user quit before finishing.
func (m Model) Cancelled() bool {
	return m.cancelled
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.cancelled = true
			return m, tea.Quit
		case tea.KeyEnter:
			m.answer(strings.TrimSpace(m.input.Value()))
			if m.step == StepDone {
				return m, tea.Quit
			}
			return m, nil
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) answer(v string) {
	switch m.step {
	case StepProvider:
		if v == "" {
			return
		}
		if v != m.opts.Provider {
			m.opts.Model = ""
		}
		m.opts.Provider = v
	case StepModel:
		if v == "" {
			return
		}
		m.opts.Model = v
	case StepAPIKey:
		m.opts.APIKey = v
	case StepExecuteFile:
		m.opts.ExecuteFile = v
	case StepFrontendURL:
		m.opts.FrontendURL = v
	}
	if m.step+1 == StepDone {
		m.step = StepDone
		return
	}
	m.enter(m.step + 1)
}

func (m Model) View() string {
	if m.step == StepDone {
		return ""
	}
	q := questions[m.step]
	var sb strings.Builder
	sb.WriteString(titleStyle.Render(fmt.Sprintf("coder setup (%d/%d)", int(m.step)+1, int(StepDone))) + "\n\n")
	sb.WriteString(promptStyle.Render(q.prompt) + "\n")
	sb.WriteString(m.input.View() + "\n")
	sb.WriteString(hintStyle.Render(q.hint+" · esc to cancel") + "\n")
	return sb.String()
}

// Run shows the wizard and returns the answers.
func Run(opts Options) (Options, error) {
	final, err := tea.NewProgram(NewWizard(opts)).Run()
	if err != nil {
		return opts, err
	}
	m := final.(Model)
	if m.Cancelled() {
		return opts, fmt.Errorf("setup cancelled")
	}
	return m.Options(), nil
}
