package tui

import "github.com/charmbracelet/lipgloss"

var (
	primaryColor   = lipgloss.Color("#B45309")
	secondaryColor = lipgloss.Color("#0E7490")
	successColor   = lipgloss.Color("#22C55E")
	warningColor   = lipgloss.Color("#EAB308")
	errorColor     = lipgloss.Color("#EF4444")
	mutedColor     = lipgloss.Color("#6B7280")
	textColor      = lipgloss.Color("#F9FAFB")

	categoryColors = map[string]lipgloss.Color{
		"manual":    lipgloss.Color("#A16207"),
		"automatic": lipgloss.Color("#1D4ED8"),
		"digital":   lipgloss.Color("#15803D"),
		"quartz":    lipgloss.Color("#7E22CE"),
	}

	mutedStyle = lipgloss.NewStyle().Foreground(mutedColor)

	tabActiveStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			Padding(0, 2)

	tabInactiveStyle = lipgloss.NewStyle().
				Foreground(mutedColor).
				Padding(0, 2)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Padding(0, 1)

	cardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(secondaryColor).
			Padding(0, 1)

	selectedCardStyle = cardStyle.BorderForeground(primaryColor)

	selectedRowStyle = lipgloss.NewStyle().
				Background(primaryColor).
				Foreground(textColor)

	priceStyle = lipgloss.NewStyle().Bold(true).Foreground(textColor)

	highlightStyle = lipgloss.NewStyle().Background(warningColor).Foreground(lipgloss.Color("#111827"))

	statusSuccess = lipgloss.NewStyle().Foreground(successColor)
	statusError   = lipgloss.NewStyle().Foreground(errorColor)
	statusPending = lipgloss.NewStyle().Foreground(warningColor)

	tableHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(primaryColor).
				Padding(0, 1)

	notificationStyle = lipgloss.NewStyle().
				Foreground(successColor).
				Padding(0, 1)
)

func badge(category string) string {
	c, ok := categoryColors[category]
	if !ok {
		c = mutedColor
	}
	return lipgloss.NewStyle().Bold(true).Foreground(c).Render("[" + category + "]")
}
