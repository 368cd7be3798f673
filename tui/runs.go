package tui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"watchfront/models"
)

// RunStore is the slice of the acquisition store the runs tab reads and
// writes commands to.
type RunStore interface {
	GetRecentRuns(limit int) ([]models.AcquisitionRun, error)
	GetRunLogs(runID uuid.UUID) ([]models.RunLog, error)
	GetProviderStats(provider string) (*models.ProviderStats, error)
	EnqueueCommand(cmd models.CommandType, params *models.CommandParams) error
}

type runsDataMsg struct {
	runs  []models.AcquisitionRun
	stats []models.ProviderStats
	logs  []models.RunLog
	err   error
}

// commandSentMsg reports the outcome of an enqueued command.
type commandSentMsg struct {
	cmd models.CommandType
	err error
}

type Runs struct {
	store     RunStore
	providers []string

	width, height int
	runs          []models.AcquisitionRun
	stats         []models.ProviderStats
	logs          []models.RunLog
	err           error
}

func NewRuns(store RunStore, providers []string) Runs {
	return Runs{store: store, providers: providers}
}

func (r Runs) Init() tea.Cmd {
	return r.Refresh()
}

func (r Runs) Refresh() tea.Cmd {
	store, providers := r.store, r.providers
	return func() tea.Msg {
		if store == nil {
			return runsDataMsg{}
		}
		runs, err := store.GetRecentRuns(10)
		if err != nil {
			return runsDataMsg{err: err}
		}
		var stats []models.ProviderStats
		for _, p := range providers {
			if s, err := store.GetProviderStats(p); err == nil && s != nil {
				stats = append(stats, *s)
			}
		}
		var logs []models.RunLog
		if len(runs) > 0 {
			logs, _ = store.GetRunLogs(runs[0].ID)
		}
		return runsDataMsg{runs: runs, stats: stats, logs: logs}
	}
}

func (r Runs) SetSize(w, h int) Runs {
	r.width = w
	r.height = h
	return r
}

func (r Runs) Update(msg tea.Msg) (Runs, tea.Cmd) {
	switch msg := msg.(type) {
	case runsDataMsg:
		r.err = msg.err
		if msg.err == nil {
			r.runs = msg.runs
			r.stats = msg.stats
			r.logs = msg.logs
		}
	case tea.KeyMsg:
		switch msg.String() {
		case "f":
			return r, r.send(models.CmdFetchNow)
		case "p":
			return r, r.send(models.CmdPause)
		case "u":
			return r, r.send(models.CmdResume)
		case "r":
			return r, r.Refresh()
		}
	}
	return r, nil
}

func (r Runs) send(cmd models.CommandType) tea.Cmd {
	store := r.store
	return func() tea.Msg {
		if store == nil {
			return commandSentMsg{cmd: cmd, err: fmt.Errorf("no acquisition database")}
		}
		return commandSentMsg{cmd: cmd, err: store.EnqueueCommand(cmd, nil)}
	}
}

func (r Runs) View() string {
	if r.store == nil {
		return mutedStyle.Render("No acquisition database configured")
	}
	sections := []string{titleStyle.Render("Providers"), r.renderStats(), "", titleStyle.Render("Recent Runs"), r.renderRunsTable()}
	if r.err != nil {
		sections = append(sections, statusError.Render("Refresh failed: "+r.err.Error()))
	}
	if len(r.logs) > 0 {
		sections = append(sections, "", titleStyle.Render("Latest Run Log"), r.renderLogs())
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (r Runs) renderStats() string {
	if len(r.stats) == 0 {
		return mutedStyle.Render("No provider history")
	}
	var cards []string
	for _, s := range r.stats {
		lastRun := "never"
		if s.LastRunAt != nil {
			lastRun = relativeTime(*s.LastRunAt)
		}
		content := lipgloss.JoinVertical(lipgloss.Left,
			priceStyle.Render(s.Provider),
			statusStyle(s.LastStatus).Render(s.LastStatus),
			mutedStyle.Render("Last: "+lastRun),
			mutedStyle.Render(fmt.Sprintf("Runs: %d (%d fallback)", s.TotalRuns, s.FallbackRuns)),
			mutedStyle.Render(fmt.Sprintf("Rate: %.0f%%", s.SuccessRate*100)),
		)
		cards = append(cards, cardStyle.Width(24).Render(content))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, cards...)
}

func (r Runs) renderRunsTable() string {
	if len(r.runs) == 0 {
		return mutedStyle.Render("No runs yet")
	}

	header := fmt.Sprintf("%-12s %-10s %-10s %6s %6s %6s", "Provider", "Status", "Started", "Found", "Wrote", "Errors")
	rows := tableHeaderStyle.Render(header) + "\n"
	for _, run := range r.runs {
		rows += fmt.Sprintf("%-12s %s %-10s %6d %6d %6d\n",
			truncate(run.Provider, 12),
			statusStyle(string(run.Status)).Render(fmt.Sprintf("%-10s", run.Status)),
			run.StartedAt.Local().Format("15:04:05"),
			run.ItemsFound,
			run.ItemsWritten,
			run.ErrorsCount,
		)
	}
	return rows
}

func (r Runs) renderLogs() string {
	out := ""
	for _, l := range r.logs {
		style := mutedStyle
		switch l.Level {
		case models.LogLevelError:
			style = statusError
		case models.LogLevelWarn:
			style = statusPending
		}
		out += style.Render(fmt.Sprintf("%s %-5s %s", l.Timestamp.Local().Format("15:04:05"), l.Level, truncate(l.Message, 100))) + "\n"
	}
	return out
}

func statusStyle(status string) lipgloss.Style {
	switch models.RunStatus(status) {
	case models.RunStatusCompleted:
		return statusSuccess
	case models.RunStatusFailed:
		return statusError
	}
	return statusPending
}

func relativeTime(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
