package replay

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fsnotify/fsnotify"
	"github.com/muesli/reflow/wordwrap"
)

var (
	pagerTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	pagerInfoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))
)

// pager is a full-screen scrollable view of a rendered timeline.
type pager struct {
	title string
}

func newPager(title string) *pager {
	return &pager{title: title}
}

// Run shows content until the user quits.
func (p *pager) Run(content string) error {
	prog := tea.NewProgram(&pagerModel{title: p.title, content: content},
		tea.WithAltScreen(), tea.WithMouseCellMotion())
	_, err := prog.Run()
	return err
}

// RunLive re-renders whenever path is written.
func (p *pager) RunLive(path string, render func() (string, error)) error {
	content, err := render()
	if err != nil {
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("failed to watch file: %w", err)
	}

	prog := tea.NewProgram(&pagerModel{
		title:   p.title,
		content: content,
		live:    true,
		render:  render,
		watcher: watcher,
	}, tea.WithAltScreen(), tea.WithMouseCellMotion())
	_, err = prog.Run()
	return err
}

type fileChangedMsg struct{}

type pagerModel struct {
	viewport viewport.Model
	title    string
	content  string
	wrapped  string
	ready    bool

	live    bool
	render  func() (string, error)
	watcher *fsnotify.Watcher

	searching   bool
	searchInput textinput.Model
	query       string
	matches     []int // wrapped line numbers
	current     int
}

func (m *pagerModel) Init() tea.Cmd {
	if m.live {
		return m.waitForChange()
	}
	return nil
}

func (m *pagerModel) waitForChange() tea.Cmd {
	return func() tea.Msg {
		for {
			select {
			case ev, ok := <-m.watcher.Events:
				if !ok {
					return nil
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					// let the writer finish the line
					time.Sleep(100 * time.Millisecond)
					return fileChangedMsg{}
				}
			case _, ok := <-m.watcher.Errors:
				if !ok {
					return nil
				}
			}
		}
	}
}

func (m *pagerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.searching {
		if key, ok := msg.(tea.KeyMsg); ok {
			switch key.String() {
			case "enter":
				m.searching = false
				m.query = m.searchInput.Value()
				m.search()
				m.jump(0)
				return m, nil
			case "esc", "ctrl+c":
				m.searching = false
				m.clearSearch()
				return m, nil
			}
		}
		var cmd tea.Cmd
		m.searchInput, cmd = m.searchInput.Update(msg)
		return m, cmd
	}

	var cmds []tea.Cmd
	switch msg := msg.(type) {
	case fileChangedMsg:
		if content, err := m.render(); err == nil {
			offset := m.viewport.YOffset
			m.setContent(content)
			m.viewport.SetYOffset(offset)
		}
		cmds = append(cmds, m.waitForChange())

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "esc":
			if m.query == "" {
				return m, tea.Quit
			}
			m.clearSearch()
		case "g":
			m.viewport.GotoTop()
		case "G", "f":
			m.viewport.GotoBottom()
		case "/":
			m.searching = true
			m.searchInput = textinput.New()
			m.searchInput.Placeholder = "Search..."
			m.searchInput.CharLimit = 100
			m.searchInput.Width = 40
			m.searchInput.SetValue(m.query)
			m.searchInput.Focus()
			return m, textinput.Blink
		case "n":
			if len(m.matches) > 0 {
				m.jump((m.current + 1) % len(m.matches))
			}
		case "N":
			if len(m.matches) > 0 {
				m.jump((m.current + len(m.matches) - 1) % len(m.matches))
			}
		}

	case tea.WindowSizeMsg:
		height := msg.Height - 2 // header and footer
		if !m.ready {
			m.viewport = viewport.New(msg.Width, height)
			m.viewport.YPosition = 1
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = height
		}
		m.setContent(m.content)
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m *pagerModel) setContent(content string) {
	m.content = content
	m.wrapped = wrapContent(content, m.viewport.Width)
	m.viewport.SetContent(m.wrapped)
	if m.query != "" {
		m.search()
	}
}

func (m *pagerModel) search() {
	m.matches = nil
	m.current = 0
	if m.query == "" {
		return
	}
	q := strings.ToLower(m.query)
	for i, line := range strings.Split(m.wrapped, "\n") {
		if strings.Contains(strings.ToLower(line), q) {
			m.matches = append(m.matches, i)
		}
	}
}

func (m *pagerModel) clearSearch() {
	m.query = ""
	m.matches = nil
	m.current = 0
}

// jump centers match i on screen.
func (m *pagerModel) jump(i int) {
	if i < 0 || i >= len(m.matches) {
		return
	}
	m.current = i
	m.viewport.SetYOffset(m.matches[i] - m.viewport.Height/2)
}

func (m *pagerModel) View() string {
	if !m.ready {
		return "\n  Loading..."
	}
	title := pagerTitleStyle.Render(m.title)
	header := title + pagerInfoStyle.Render(strings.Repeat("─", max(0, m.viewport.Width-lipgloss.Width(title))))

	if m.searching {
		return header + "\n" + m.viewport.View() + "\n" + warnStyle.Render("/") + m.searchInput.View()
	}

	var help string
	switch {
	case m.query != "" && len(m.matches) == 0:
		help = fmt.Sprintf(" %s │ /: search ", errorStyle.Render("Pattern not found"))
	case len(m.matches) > 0:
		help = fmt.Sprintf(" %s │ n/N: next/prev │ esc: clear ", warnStyle.Render(fmt.Sprintf("[%d/%d]", m.current+1, len(m.matches))))
	case m.live:
		help = fmt.Sprintf(" %s │ q: quit │ /: search │ f: follow ", successStyle.Bold(true).Render("● LIVE"))
	default:
		help = " q: quit │ /: search │ g/G: top/bottom "
	}
	info := fmt.Sprintf(" %3.f%% ", m.viewport.ScrollPercent()*100)
	fill := max(0, m.viewport.Width-lipgloss.Width(help)-lipgloss.Width(info))
	footer := pagerInfoStyle.Render(help) + pagerInfoStyle.Render(strings.Repeat("─", fill)) + pagerInfoStyle.Render(info)
	return header + "\n" + m.viewport.View() + "\n" + footer
}

// wrapContent wraps lines to width. Timeline rows keep their continuation
// lines aligned after the last column separator.
func wrapContent(content string, width int) string {
	if width <= 0 {
		return content
	}
	var out []string
	for _, line := range strings.Split(content, "\n") {
		if lipgloss.Width(line) <= width {
			out = append(out, line)
			continue
		}
		cut := strings.LastIndex(line, "│")
		if cut < 0 {
			out = append(out, strings.Split(wordwrap.String(line, width), "\n")...)
			continue
		}
		cut += len("│")
		for cut < len(line) && line[cut] == ' ' {
			cut++
		}
		prefix := line[:cut]
		indent := strings.Repeat(" ", lipgloss.Width(prefix))
		parts := strings.Split(wordwrap.String(line[cut:], max(20, width-len(indent))), "\n")
		out = append(out, prefix+parts[0])
		for _, p := range parts[1:] {
			out = append(out, indent+p)
		}
	}
	return strings.Join(out, "\n")
}
