package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/ankitem/briefly/internal/report"
	"github.com/ankitem/briefly/internal/research"
)

// Config wires runtime options into the TUI program.
type Config struct {
	Research       *research.Client
	Exporter       *report.Exporter
	APIKey         string
	RevealInterval time.Duration
}

// New returns a tea.Model ready to be mounted into a Program.
func New(config Config) tea.Model {
	keyInput := textinput.New()
	keyInput.Placeholder = "Gemini API key"
	keyInput.EchoMode = textinput.EchoPassword
	keyInput.CharLimit = 120
	keyInput.Width = 60
	keyInput.SetValue(config.APIKey)

	topicInput := textinput.New()
	topicInput.Placeholder = "What do you want to research?"
	topicInput.CharLimit = 200
	topicInput.Width = 60

	if strings.TrimSpace(config.APIKey) == "" {
		keyInput.Focus()
	} else {
		topicInput.Focus()
	}

	spin := spinner.New()
	spin.Spinner = spinner.Dot

	vp := viewport.New(80, 20)
	vp.MouseWheelEnabled = true

	return &model{
		config:        config,
		stage:         stageInput,
		keyInput:      keyInput,
		topicInput:    topicInput,
		spinner:       spin,
		viewport:      vp,
		tw:            newTypewriter(config.RevealInterval),
		viewportDirty: true,
		infoMessage:   "Enter a topic and press Enter to research it.",
	}
}

type stage int

const (
	stageInput stage = iota
	stageBusy
	stageResult
)

const heroTagline = "Search-grounded research briefs in your terminal."

const (
	minViewportWidth          = 40
	viewportHorizontalPadding = 4
)

type model struct {
	config Config
	stage  stage

	keyInput   textinput.Model
	topicInput textinput.Model
	spinner    spinner.Model
	viewport   viewport.Model
	tw         typewriter

	result       *research.Result
	errorMessage string
	infoMessage  string

	// requestSeq is bumped on every dispatch; a completion is applied only
	// when it still carries the latest value, so an overlapping submission
	// resolves last-write-wins with stale responses discarded.
	requestSeq    int
	viewportDirty bool
}

type researchResultMsg struct {
	seq    int
	result *research.Result
	err    error
}

func (m *model) Init() tea.Cmd {
	return textinput.Blink
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		if m.stage == stageBusy {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil
	case typeTickMsg:
		cmd := m.tw.Advance(msg)
		m.markViewportDirty()
		return m, cmd
	case researchResultMsg:
		return m.handleResearchResult(msg)
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			return m, tea.Quit
		case tea.KeyEsc:
			if m.stage == stageResult {
				m.startNewQuery()
				return m, nil
			}
			return m, tea.Quit
		}
		return m.handleKey(msg)
	case tea.MouseMsg:
		if m.stage == stageResult {
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
		return m, nil
	case tea.WindowSizeMsg:
		newWidth := msg.Width - viewportHorizontalPadding
		if newWidth < minViewportWidth {
			newWidth = minViewportWidth
		}
		m.viewport.Width = newWidth
		height := msg.Height - 8
		if height < 5 {
			height = 5
		}
		m.viewport.Height = height
		m.markViewportDirty()
		return m, nil
	}
	return m, nil
}

func (m *model) handleKey(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.stage {
	case stageInput:
		switch key.Type {
		case tea.KeyTab, tea.KeyShiftTab:
			m.toggleFocus()
			return m, nil
		case tea.KeyEnter:
			return m, m.submit()
		}
		var cmd tea.Cmd
		if m.keyInput.Focused() {
			m.keyInput, cmd = m.keyInput.Update(key)
		} else {
			m.topicInput, cmd = m.topicInput.Update(key)
		}
		return m, cmd
	case stageBusy:
		// The submit control is disabled while a request is in flight.
		return m, nil
	case stageResult:
		return m.handleResultKey(key)
	default:
		return m, nil
	}
}

func (m *model) handleResultKey(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.String() {
	case "p":
		m.exportPDF()
		return m, nil
	case "n":
		m.startNewQuery()
		return m, nil
	case "g":
		m.viewport.SetYOffset(0)
		return m, nil
	case "G":
		m.viewport.GotoBottom()
		return m, nil
	}
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(key)
	return m, cmd
}

func (m *model) toggleFocus() {
	if m.keyInput.Focused() {
		m.keyInput.Blur()
		m.topicInput.Focus()
	} else {
		m.topicInput.Blur()
		m.keyInput.Focus()
	}
}

// submit validates both inputs and dispatches a research request. A new
// attempt clears both the previous result and error before dispatch, so
// mid-flight the UI shows neither.
func (m *model) submit() tea.Cmd {
	if m.stage == stageBusy {
		return nil
	}
	credential := strings.TrimSpace(m.keyInput.Value())
	topic := strings.TrimSpace(m.topicInput.Value())
	if credential == "" || topic == "" {
		m.errorMessage = "Both the API key and a topic are required."
		return nil
	}
	m.result = nil
	m.errorMessage = ""
	m.tw.Stop()
	m.stage = stageBusy
	m.requestSeq++
	m.infoMessage = fmt.Sprintf("Researching %q…", topic)
	m.markViewportDirty()
	return tea.Batch(m.spinner.Tick, researchCmd(m.config.Research, m.requestSeq, topic, credential))
}

func (m *model) handleResearchResult(msg researchResultMsg) (tea.Model, tea.Cmd) {
	if msg.seq != m.requestSeq {
		// Out-of-order completion for a superseded request.
		return m, nil
	}
	if msg.err != nil {
		m.stage = stageInput
		m.result = nil
		m.errorMessage = describeResearchError(msg.err)
		m.infoMessage = "Adjust the topic or key and press Enter to retry."
		return m, nil
	}
	m.stage = stageResult
	m.result = msg.result
	m.errorMessage = ""
	m.infoMessage = "Press p to export a PDF, n for a new topic."
	m.tw.SetText(msg.result.Summary)
	m.viewport.SetYOffset(0)
	m.markViewportDirty()
	return m, m.tw.Tick()
}

// exportPDF runs synchronously from the UI's perspective and never touches
// the result or error slots; outcomes land in the status line only.
func (m *model) exportPDF() {
	if m.result == nil {
		m.infoMessage = "Nothing to export yet."
		return
	}
	path, err := m.config.Exporter.Export(m.result)
	switch {
	case errors.Is(err, report.ErrUnavailable):
		m.infoMessage = "PDF renderer is not available."
	case err != nil:
		m.infoMessage = fmt.Sprintf("PDF export failed: %v", err)
	default:
		m.infoMessage = fmt.Sprintf("Saved %s", path)
	}
}

func (m *model) startNewQuery() {
	m.stage = stageInput
	m.tw.Stop()
	m.topicInput.SetValue("")
	m.keyInput.Blur()
	m.topicInput.Focus()
	m.infoMessage = "Enter a topic and press Enter to research it."
	m.markViewportDirty()
}

func describeResearchError(err error) string {
	var httpErr *research.HTTPError
	switch {
	case errors.Is(err, research.ErrMissingInput):
		return "Both the API key and a topic are required."
	case errors.As(err, &httpErr):
		return fmt.Sprintf("The search endpoint rejected the request (%s).", httpErr.Status)
	case errors.Is(err, research.ErrEmptyResponse):
		return "The model returned no answer. Try rephrasing the topic."
	case errors.Is(err, research.ErrMalformedContent):
		return "The model answer could not be parsed. Try again."
	default:
		return err.Error()
	}
}

func (m *model) View() string {
	switch m.stage {
	case stageInput:
		return m.viewInput()
	case stageBusy:
		return m.viewBusy()
	case stageResult:
		return m.viewResult()
	default:
		return ""
	}
}

func (m *model) viewInput() string {
	form := strings.Builder{}
	form.WriteString(sectionHeaderStyle.Render("API key"))
	form.WriteRune('\n')
	form.WriteString(m.keyInput.View())
	form.WriteString("\n\n")
	form.WriteString(sectionHeaderStyle.Render("Research topic"))
	form.WriteRune('\n')
	form.WriteString(m.topicInput.View())
	form.WriteRune('\n')
	form.WriteString(helperStyle.Render("Tab switches fields. Enter submits."))
	if m.errorMessage != "" {
		form.WriteRune('\n')
		form.WriteString(errorStyle.Render(m.errorMessage))
	}
	if m.infoMessage != "" {
		form.WriteRune('\n')
		form.WriteString(helperStyle.Render(m.infoMessage))
	}
	return joinNonEmpty([]string{m.heroView(), form.String()})
}

func (m *model) viewBusy() string {
	body := fmt.Sprintf("%s %s", m.spinner.View(), m.infoMessage)
	return joinNonEmpty([]string{m.heroView(), body, helperStyle.Render("Ctrl+C cancels the session.")})
}

func (m *model) viewResult() string {
	if m.result == nil {
		return m.viewInput()
	}
	m.refreshViewportIfDirty()
	parts := []string{m.heroView(), m.viewport.View()}
	if m.errorMessage != "" {
		parts = append(parts, errorStyle.Render(m.errorMessage))
	}
	if m.infoMessage != "" {
		parts = append(parts, helperStyle.Render(m.infoMessage))
	}
	parts = append(parts, helperStyle.Render("p export PDF  •  n new topic  •  g/G top or bottom  •  Esc back"))
	return joinNonEmpty(parts)
}

func (m *model) heroView() string {
	title := heroTitleStyle.Render("briefly")
	return lipgloss.JoinVertical(lipgloss.Left, title, taglineStyle.Render(heroTagline))
}

func joinNonEmpty(parts []string) string {
	filtered := make([]string, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		filtered = append(filtered, part)
	}
	return strings.Join(filtered, "\n\n")
}

func (m *model) markViewportDirty() {
	m.viewportDirty = true
}

func (m *model) refreshViewportIfDirty() {
	if !m.viewportDirty {
		return
	}
	m.viewportDirty = false
	m.viewport.SetContent(m.buildResultContent())
}

func (m *model) buildResultContent() string {
	if m.result == nil {
		return ""
	}
	baseWrap := m.wrapWidth(0)
	indentWrap := m.wrapWidth(4)

	var b strings.Builder
	b.WriteString(topicStyle.Render(m.result.Topic))
	b.WriteString("\n\n")
	b.WriteString(wordwrap.String(m.tw.View(), baseWrap))
	if !m.tw.Done() {
		b.WriteString(revealCursor)
	}
	b.WriteString("\n\n")
	b.WriteString(sectionHeaderStyle.Render("Sources"))
	b.WriteRune('\n')
	if len(m.result.Sources) == 0 {
		b.WriteString(helperStyle.Render("No web sources were attributed for this brief."))
		b.WriteRune('\n')
		return b.String()
	}
	for i, source := range m.result.Sources {
		title := indentMultiline(wordwrap.String(source.Title, indentWrap), "    ")
		b.WriteString(fmt.Sprintf(" %d) %s\n", i+1, strings.TrimSpace(title)))
		b.WriteString(linkStyle.Render("    " + source.URI))
		b.WriteRune('\n')
	}
	return b.String()
}

func indentMultiline(text, prefix string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}

func (m *model) wrapWidth(padding int) int {
	width := m.viewport.Width
	if width <= 0 {
		width = 80
	}
	available := width - padding
	if available < 20 {
		available = 20
	}
	return available
}

func researchCmd(client *research.Client, seq int, topic, credential string) tea.Cmd {
	return func() tea.Msg {
		result, err := client.Research(context.Background(), topic, credential)
		return researchResultMsg{seq: seq, result: result, err: err}
	}
}

const revealCursor = "▌"

var (
	topicStyle         = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")).Underline(true)
	sectionHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("81"))
	errorStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	helperStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	linkStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Underline(true)
	heroTitleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ff8c00"))
	taglineStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#ffb347")).Italic(true)
)
