package tui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"watchfront/storage"
)

type tab int

const (
	tabStorefront tab = iota
	tabRuns
)

const (
	refreshEvery = 5 * time.Second
	notifyFor    = 2 * time.Second
)

type refreshTickMsg time.Time

// App is the terminal storefront: a browsing tab and a runs tab that drives
// the acquisition daemon through the command queue.
type App struct {
	activeTab     tab
	width, height int
	notification  string
	notifyUntil   time.Time
	now           func() time.Time

	storefront Storefront
	runs       Runs
}

// New builds the app. prefs and runs may be nil when no database is open.
func New(loaded storage.Loaded, prefs PrefStore, runs RunStore, providers []string) App {
	return App{
		activeTab:  tabStorefront,
		now:        time.Now,
		storefront: NewStorefront(loaded, prefs),
		runs:       NewRuns(runs, providers),
	}
}

// Run blocks until the user quits.
func Run(app App) error {
	p := tea.NewProgram(app, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

func (m App) Init() tea.Cmd {
	return tea.Batch(m.storefront.Init(), m.runs.Init(), refreshTick())
}

func refreshTick() tea.Cmd {
	return tea.Tick(refreshEvery, func(t time.Time) tea.Msg {
		return refreshTickMsg(t)
	})
}

func (m App) notify(msg string) App {
	m.notification = msg
	m.notifyUntil = m.now().Add(notifyFor)
	return m
}

func (m App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "f1":
			m.activeTab = tabStorefront
			return m, nil
		case "f2":
			m.activeTab = tabRuns
			return m, m.runs.Refresh()
		}
		if m.activeTab == tabStorefront && m.storefront.Typing() {
			m.storefront, cmd = m.storefront.Update(msg)
			return m, cmd
		}
		if msg.String() == "q" {
			return m, tea.Quit
		}
		if m.activeTab == tabRuns {
			m.runs, cmd = m.runs.Update(msg)
		} else {
			m.storefront, cmd = m.storefront.Update(msg)
		}
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.storefront = m.storefront.SetSize(msg.Width, msg.Height-4)
		m.runs = m.runs.SetSize(msg.Width, msg.Height-4)
		return m, nil

	case searchTickMsg:
		m.storefront, cmd = m.storefront.Update(msg)
		return m, cmd

	case runsDataMsg:
		m.runs, cmd = m.runs.Update(msg)
		return m, cmd

	case commandSentMsg:
		if msg.err != nil {
			m = m.notify(fmt.Sprintf("%s failed: %v", msg.cmd, msg.err))
			return m, nil
		}
		m = m.notify(fmt.Sprintf("%s queued", msg.cmd))
		return m, m.runs.Refresh()

	case refreshTickMsg:
		if m.activeTab == tabRuns {
			return m, tea.Batch(m.runs.Refresh(), refreshTick())
		}
		return m, refreshTick()
	}
	return m, nil
}

func (m App) View() string {
	return lipgloss.JoinVertical(lipgloss.Left, m.renderTabs(), m.renderContent(), m.renderStatusBar())
}

func (m App) renderTabs() string {
	var rendered []string
	for i, name := range []string{"Storefront", "Runs"} {
		if tab(i) == m.activeTab {
			rendered = append(rendered, tabActiveStyle.Render(name))
		} else {
			rendered = append(rendered, tabInactiveStyle.Render(name))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, rendered...) + "\n"
}

func (m App) renderContent() string {
	if m.activeTab == tabRuns {
		return m.runs.View()
	}
	return m.storefront.View()
}

func (m App) renderStatusBar() string {
	left := "f1 Shop  f2 Runs  / Search  tab Category  s Sort  v View  1-5 Suggest  q Quit"
	if m.activeTab == tabRuns {
		left = "f1 Shop  f2 Runs  f Fetch  p Pause  u Resume  r Refresh  q Quit"
	}
	right := ""
	if m.now().Before(m.notifyUntil) {
		right = notificationStyle.Render(m.notification)
	}

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 0 {
		gap = 0
	}
	return statusBarStyle.Render(left) + lipgloss.NewStyle().Width(gap).Render("") + right
}
