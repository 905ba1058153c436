package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

const defaultRevealInterval = 25 * time.Millisecond

// typeTickMsg carries the generation it was scheduled under so that ticks
// outlive a reset without advancing the wrong text.
type typeTickMsg struct {
	generation int
}

// typewriter reveals a string one rune at a time. Every SetText or Stop bumps
// the generation, which invalidates any tick already in flight.
type typewriter struct {
	runes      []rune
	visible    int
	interval   time.Duration
	generation int
}

func newTypewriter(interval time.Duration) typewriter {
	if interval <= 0 {
		interval = defaultRevealInterval
	}
	return typewriter{interval: interval}
}

// SetText resets the reveal to the start of text.
func (t *typewriter) SetText(text string) {
	t.runes = []rune(text)
	t.visible = 0
	t.generation++
}

// Stop finishes the reveal instantly and drops pending ticks.
func (t *typewriter) Stop() {
	t.generation++
	t.visible = len(t.runes)
}

func (t *typewriter) Done() bool {
	return t.visible >= len(t.runes)
}

func (t *typewriter) View() string {
	if t.visible >= len(t.runes) {
		return string(t.runes)
	}
	return string(t.runes[:t.visible])
}

// Tick schedules the next reveal step, or nothing when the text is fully
// visible.
func (t *typewriter) Tick() tea.Cmd {
	if t.Done() {
		return nil
	}
	generation := t.generation
	return tea.Tick(t.interval, func(time.Time) tea.Msg {
		return typeTickMsg{generation: generation}
	})
}

// Advance applies one tick. Stale generations are ignored so a reveal that
// was reset mid-flight never resumes.
func (t *typewriter) Advance(msg typeTickMsg) tea.Cmd {
	if msg.generation != t.generation || t.Done() {
		return nil
	}
	t.visible++
	return t.Tick()
}
