// Package tui renders the live queue dashboard: one row per connected tab
// with its counts and phase, a rolling event log, and pause/resume/cancel
// keys for the selected tab.
package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/v2/spinner"
	tea "github.com/charmbracelet/bubbletea/v2"

	"github.com/ruvelro/maca-engine/internal/csync"
	"github.com/ruvelro/maca-engine/internal/events"
)

const maxLogLines = 200

// QueueCommander issues user commands to the queue coordinator.
type QueueCommander interface {
	Pause(tabID string)
	Resume(tabID string)
	Cancel(tabID string)
}

type logLine struct {
	at   time.Time
	text string
}

// Model is the dashboard's bubbletea model.
type Model struct {
	width  int
	height int

	broker   *events.Broker
	eventSub <-chan events.Event
	commands QueueCommander

	// last known progress per tab, plus page URLs from tab events
	progress map[string]events.Progress
	pages    map[string]string
	tabOrder []string
	selected int

	log *csync.Slice[logLine]

	spinner   spinner.Model
	showHelp  bool
	showDebug bool
	status    string
}

// New creates a dashboard subscribed to the broker.
func New(broker *events.Broker, commands QueueCommander) *Model {
	s := spinner.New(spinner.WithSpinner(spinner.Dot))

	m := &Model{
		broker:   broker,
		commands: commands,
		progress: make(map[string]events.Progress),
		pages:    make(map[string]string),
		log:      csync.NewSlice[logLine](),
		spinner:  s,
		status:   "Waiting for tabs to connect...",
	}
	m.eventSub = broker.Subscribe()
	return m
}

// Init starts the spinner and the event pump.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listenForEvents())
}

// listenForEvents forwards broker events into the bubbletea loop.
func (m *Model) listenForEvents() tea.Cmd {
	return func() tea.Msg {
		event, ok := <-m.eventSub
		if !ok {
			return nil
		}
		return event
	}
}

// Update handles messages
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case events.Event:
		m.handleEvent(msg)
		return m, m.listenForEvents()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "?":
		m.showHelp = !m.showHelp
	case "d":
		m.showDebug = !m.showDebug
	case "up", "k":
		if m.selected > 0 {
			m.selected--
		}
	case "down", "j":
		if m.selected < len(m.tabOrder)-1 {
			m.selected++
		}
	case "p":
		if tab, ok := m.selectedTab(); ok {
			m.commands.Pause(tab)
			m.status = "Pause requested for tab " + tab
		}
	case "r":
		if tab, ok := m.selectedTab(); ok {
			m.commands.Resume(tab)
			m.status = "Resume requested for tab " + tab
		}
	case "c":
		if tab, ok := m.selectedTab(); ok {
			m.commands.Cancel(tab)
			m.status = "Cancel requested for tab " + tab
		}
	}
	return m, nil
}

func (m *Model) selectedTab() (string, bool) {
	if m.selected < 0 || m.selected >= len(m.tabOrder) {
		return "", false
	}
	return m.tabOrder[m.selected], true
}

func (m *Model) handleEvent(event events.Event) {
	switch event.Type {
	case events.ProgressEvent:
		p, ok := event.Payload.(events.Progress)
		if !ok {
			return
		}
		m.progress[p.TabID] = p
		m.ensureTab(p.TabID)
		m.appendLog(progressLine(p))
		if p.Phase == events.PhaseSafetyStop {
			m.status = fmt.Sprintf("Safety stop: tab %s hit the fuse", p.TabID)
		}

	case events.TabConnectedEvent:
		payload, ok := event.Payload.(events.TabPayload)
		if !ok {
			return
		}
		m.ensureTab(payload.TabID)
		if payload.PageURL != "" {
			m.pages[payload.TabID] = payload.PageURL
		}
		m.status = "Tab " + payload.TabID + " connected"

	case events.TabClosedEvent:
		payload, ok := event.Payload.(events.TabPayload)
		if !ok {
			return
		}
		m.dropTab(payload.TabID)
		m.status = "Tab " + payload.TabID + " closed"

	case events.AnalysisStartedEvent:
		if p, ok := event.Payload.(events.AnalysisPayload); ok {
			m.appendLog(fmt.Sprintf("tab %s: analyzing #%s", p.TabID, p.AttachmentID))
		}

	case events.AnalysisCompletedEvent:
		if p, ok := event.Payload.(events.AnalysisPayload); ok {
			m.appendLog(fmt.Sprintf("tab %s: analyzed #%s in %s", p.TabID, p.AttachmentID, p.Duration.Round(time.Millisecond)))
		}

	case events.AnalysisErrorEvent:
		if p, ok := event.Payload.(events.AnalysisPayload); ok {
			m.appendLog(fmt.Sprintf("tab %s: analysis of #%s failed: %s", p.TabID, p.AttachmentID, p.Err))
		}

	case events.StatusMessageEvent:
		if payload, ok := event.Payload.(events.StatusMessagePayload); ok {
			m.status = payload.Message
		}
	}
}

func (m *Model) ensureTab(tabID string) {
	for _, id := range m.tabOrder {
		if id == tabID {
			return
		}
	}
	m.tabOrder = append(m.tabOrder, tabID)
	sort.Strings(m.tabOrder)
}

func (m *Model) dropTab(tabID string) {
	delete(m.progress, tabID)
	delete(m.pages, tabID)
	for i, id := range m.tabOrder {
		if id == tabID {
			m.tabOrder = append(m.tabOrder[:i], m.tabOrder[i+1:]...)
			break
		}
	}
	if m.selected >= len(m.tabOrder) && m.selected > 0 {
		m.selected--
	}
}

func (m *Model) appendLog(text string) {
	m.log.Append(logLine{at: time.Now(), text: text})
	for m.log.Len() > maxLogLines {
		m.log.RemoveAt(0)
	}
}

// View renders the dashboard
func (m *Model) View() tea.View {
	if m.width == 0 || m.height == 0 {
		return tea.NewView("Initializing...")
	}
	if m.showHelp {
		return tea.NewView(renderHelp(min(m.width-2, 80)))
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("MACA Engine — auto-upload queue"))
	b.WriteString("\n\n")

	if len(m.tabOrder) == 0 {
		b.WriteString(helpStyle.Render("No tabs connected."))
		b.WriteString("\n")
	}

	for i, tabID := range m.tabOrder {
		b.WriteString(m.renderTabRow(i, tabID))
		b.WriteString("\n")
	}

	if m.showDebug {
		b.WriteString("\n")
		b.WriteString(borderStyle.Width(m.width - 2).Render(m.renderLog()))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render(m.status + "  ·  ? help · q quit"))

	return tea.NewView(b.String())
}

func (m *Model) renderTabRow(index int, tabID string) string {
	p, ok := m.progress[tabID]

	label := "tab " + tabID
	if page := m.pages[tabID]; page != "" {
		label += " (" + page + ")"
	}

	style := tabStyle
	if index == m.selected {
		style = selectedTabStyle
		label = "> " + label
	} else {
		label = "  " + label
	}

	if !ok {
		return style.Render(label) + helpStyle.Render("  idle")
	}

	counts := fmt.Sprintf("  %d/%d done", p.Done, p.Queued)
	parts := []string{style.Render(label), counts}
	if p.OK > 0 {
		parts = append(parts, okStyle.Render(fmt.Sprintf("%d ok", p.OK)))
	}
	if p.Errors > 0 {
		parts = append(parts, errStyle.Render(fmt.Sprintf("%d failed", p.Errors)))
	}
	if p.Paused {
		parts = append(parts, pausedStyle.Render("paused"))
	}
	if p.Done < p.Queued && !p.Paused {
		parts = append(parts, m.spinner.View()+p.Phase)
	} else if p.Phase != "" {
		parts = append(parts, helpStyle.Render(p.Phase))
	}

	return strings.Join(parts, " ")
}

func (m *Model) renderLog() string {
	lines := m.log.ToSlice()
	keep := m.height / 2
	if keep < 5 {
		keep = 5
	}
	if len(lines) > keep {
		lines = lines[len(lines)-keep:]
	}

	var b strings.Builder
	for _, l := range lines {
		b.WriteString(logStyle.Render(l.at.Format("15:04:05") + " " + l.text))
		b.WriteString("\n")
	}
	if b.Len() == 0 {
		return logStyle.Render("no events yet")
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func progressLine(p events.Progress) string {
	if p.AttachmentID != "" {
		return fmt.Sprintf("tab %s: %s #%s (%d/%d)", p.TabID, p.Phase, p.AttachmentID, p.Done, p.Queued)
	}
	return fmt.Sprintf("tab %s: %s (%d/%d, ok %d, err %d)", p.TabID, p.Phase, p.Done, p.Queued, p.OK, p.Errors)
}
