package hazardconsole

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"hazardsync/internal/domain/hazard"
	"hazardsync/internal/usecase/hazards"
)

const (
	tabActive = iota
	tabResolved
)

const maxDescriptionWidth = 60

type Options struct {
	StaffMember     string
	SyncInterval    time.Duration
	ResolutionNotes string
}

type consoleModel struct {
	ctx          context.Context
	service      *hazards.Service
	views        [2]*hazards.View
	changes      [2]<-chan struct{}
	staffMember  string
	notes        string
	syncInterval time.Duration

	tab      int
	rows     [2][]hazard.Record
	selected [2]int
	status   string
	lastSync time.Time
}

type viewChangedMsg struct{}

type tickMsg struct{}

type syncDoneMsg struct {
	events int
	err    error
}

type actionDoneMsg struct {
	action string
	id     hazard.Identity
	err    error
}

// NewModel builds the console over two registered views. The caller owns
// the views' subscriptions; stop releases the model's change watchers.
func NewModel(ctx context.Context, service *hazards.Service, active *hazards.View, resolved *hazards.View, options Options) (tea.Model, func()) {
	interval := options.SyncInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	notes := strings.TrimSpace(options.ResolutionNotes)
	if notes == "" {
		notes = "resolved from console"
	}

	activeChanges, stopActive := active.Watch()
	resolvedChanges, stopResolved := resolved.Watch()

	m := &consoleModel{
		ctx:          ctx,
		service:      service,
		views:        [2]*hazards.View{active, resolved},
		changes:      [2]<-chan struct{}{activeChanges, resolvedChanges},
		staffMember:  strings.TrimSpace(options.StaffMember),
		notes:        notes,
		syncInterval: interval,
		status:       "starting",
	}
	m.reloadRows()

	return m, func() {
		stopActive()
		stopResolved()
	}
}

func (m *consoleModel) Init() tea.Cmd {
	return tea.Batch(m.waitForChangeCmd(), m.syncCmd(), m.tickCmd())
}

func (m *consoleModel) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := message.(type) {
	case viewChangedMsg:
		m.reloadRows()
		return m, m.waitForChangeCmd()
	case tickMsg:
		return m, tea.Batch(m.syncCmd(), m.tickCmd())
	case syncDoneMsg:
		if msg.err != nil {
			m.status = "sync failed: " + msg.err.Error()
			return m, nil
		}
		m.lastSync = time.Now()
		m.status = fmt.Sprintf("synced, %d change(s)", msg.events)
		return m, nil
	case actionDoneMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("%s failed: %v", msg.action, msg.err)
			return m, nil
		}
		m.status = fmt.Sprintf("%s done: %s", msg.action, msg.id)
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "tab":
			m.tab = (m.tab + 1) % len(m.views)
			return m, nil
		case "up", "k":
			if m.selected[m.tab] > 0 {
				m.selected[m.tab]--
			}
			return m, nil
		case "down", "j":
			if m.selected[m.tab] < len(m.rows[m.tab])-1 {
				m.selected[m.tab]++
			}
			return m, nil
		case "s":
			m.status = "syncing"
			return m, m.syncCmd()
		case "e":
			return m, m.toggleEmergencyCmd()
		case "r":
			return m, m.resolveCmd()
		case "d":
			return m, m.deleteCmd()
		}
	}
	return m, nil
}

func (m *consoleModel) View() string {
	titleStyle := lipgloss.NewStyle().Bold(true)
	tabStyle := lipgloss.NewStyle().Padding(0, 1)
	activeTabStyle := tabStyle.Bold(true).Foreground(lipgloss.Color("229")).Background(lipgloss.Color("62"))
	sectionStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	selectedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("229")).Background(lipgloss.Color("62"))
	emergencyStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))

	var builder strings.Builder
	builder.WriteString(titleStyle.Render("Hazard Reports"))
	builder.WriteString("\n")

	tabs := make([]string, 0, len(m.views))
	for index, view := range m.views {
		label := fmt.Sprintf("%s (%d)", view.Name(), len(m.rows[index]))
		if index == m.tab {
			tabs = append(tabs, activeTabStyle.Render(label))
		} else {
			tabs = append(tabs, tabStyle.Render(label))
		}
	}
	builder.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, tabs...))
	builder.WriteString("\n\n")

	rows := m.rows[m.tab]
	if len(rows) == 0 {
		builder.WriteString(dimStyle.Render("- no reports"))
		builder.WriteString("\n")
	}
	for index, rec := range rows {
		marker := " "
		if rec.IsEmergency {
			marker = emergencyStyle.Render("!")
		}
		stamp := rec.CreatedAt
		if m.tab == tabResolved {
			stamp = rec.ModifiedAt
		}
		line := fmt.Sprintf("%s %s  %s", marker, stamp.Local().Format("2006-01-02 15:04"), truncate(rec.Description, maxDescriptionWidth))
		if index == m.selected[m.tab] {
			builder.WriteString(selectedStyle.Render("> " + line))
		} else {
			builder.WriteString("  " + line)
		}
		builder.WriteString("\n")
	}
	builder.WriteString("\n")

	builder.WriteString(sectionStyle.Render("Detail"))
	builder.WriteString("\n")
	if rec, ok := m.selectedRecord(); ok {
		builder.WriteString(fmt.Sprintf("ID: %s\n", rec.ID))
		builder.WriteString(fmt.Sprintf("Description: %s\n", rec.Description))
		builder.WriteString(fmt.Sprintf("Emergency: %t  Resolved: %t\n", rec.IsEmergency, rec.IsResolved))
		if rec.Location != nil {
			builder.WriteString(fmt.Sprintf("Location: %.5f, %.5f (±%.0fm)\n", rec.Location.Latitude, rec.Location.Longitude, rec.Location.AccuracyMeters))
		}
		if rec.Photo != nil {
			builder.WriteString(fmt.Sprintf("Photo: %s\n", rec.Photo.Key))
		}
	} else {
		builder.WriteString(dimStyle.Render("- nothing selected"))
		builder.WriteString("\n")
	}
	builder.WriteString("\n")

	builder.WriteString(sectionStyle.Render("Status"))
	builder.WriteString("\n")
	builder.WriteString("- " + m.status)
	if !m.lastSync.IsZero() {
		builder.WriteString(dimStyle.Render(" (last sync " + m.lastSync.Format("15:04:05") + ")"))
	}
	builder.WriteString("\n\n")

	builder.WriteString(dimStyle.Render("Keys: tab switch  ↑/k ↓/j move  s sync  e emergency  r resolve  d delete  q quit"))
	return builder.String()
}

func (m *consoleModel) reloadRows() {
	for index, view := range m.views {
		m.rows[index] = view.Snapshot()
		if m.selected[index] >= len(m.rows[index]) {
			m.selected[index] = len(m.rows[index]) - 1
		}
		if m.selected[index] < 0 {
			m.selected[index] = 0
		}
	}
}

func (m *consoleModel) selectedRecord() (hazard.Record, bool) {
	rows := m.rows[m.tab]
	index := m.selected[m.tab]
	if index < 0 || index >= len(rows) {
		return hazard.Record{}, false
	}
	return rows[index], true
}

func (m *consoleModel) waitForChangeCmd() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-m.ctx.Done():
			return nil
		case <-m.changes[tabActive]:
		case <-m.changes[tabResolved]:
		}
		return viewChangedMsg{}
	}
}

func (m *consoleModel) tickCmd() tea.Cmd {
	return tea.Tick(m.syncInterval, func(time.Time) tea.Msg {
		return tickMsg{}
	})
}

func (m *consoleModel) syncCmd() tea.Cmd {
	return func() tea.Msg {
		result, err := m.service.SyncOnce(m.ctx)
		return syncDoneMsg{events: len(result.Events), err: err}
	}
}

func (m *consoleModel) toggleEmergencyCmd() tea.Cmd {
	rec, ok := m.selectedRecord()
	if !ok {
		m.status = "no report selected"
		return nil
	}
	m.status = "updating " + rec.ID.String()
	return func() tea.Msg {
		emergency := !rec.IsEmergency
		_, err := m.service.UpdateReport(m.ctx, rec.ID, hazards.ReportPatch{IsEmergency: &emergency})
		return actionDoneMsg{action: "update", id: rec.ID, err: err}
	}
}

func (m *consoleModel) resolveCmd() tea.Cmd {
	rec, ok := m.selectedRecord()
	if !ok {
		m.status = "no report selected"
		return nil
	}
	if m.staffMember == "" {
		return func() tea.Msg {
			return actionDoneMsg{action: "resolve", id: rec.ID, err: errors.New("start the console with --staff to resolve reports")}
		}
	}
	m.status = "resolving " + rec.ID.String()
	return func() tea.Msg {
		_, err := m.service.ResolveReport(m.ctx, rec.ID, hazards.ResolveInput{
			StaffMemberName: m.staffMember,
			Description:     m.notes,
		})
		return actionDoneMsg{action: "resolve", id: rec.ID, err: err}
	}
}

func (m *consoleModel) deleteCmd() tea.Cmd {
	rec, ok := m.selectedRecord()
	if !ok {
		m.status = "no report selected"
		return nil
	}
	m.status = "deleting " + rec.ID.String()
	return func() tea.Msg {
		return actionDoneMsg{action: "delete", id: rec.ID, err: m.service.DeleteReport(m.ctx, rec.ID)}
	}
}

func truncate(value string, width int) string {
	value = strings.Join(strings.Fields(value), " ")
	runes := []rune(value)
	if len(runes) <= width {
		return value
	}
	return string(runes[:width-1]) + "…"
}
