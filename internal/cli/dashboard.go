package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/opspulse/opspulse/pkg/models"
)

// Dashboard panel indices.
const (
	panelSignals = iota
	panelScores
	panelRecs
	panelCount
)

type dashboardModel struct {
	scope       string
	activePanel int
	width       int
	height      int

	// Data.
	signals []models.Signal
	scores  []models.Score
	recs    []models.Recommendation

	// State.
	loading bool
	err     error
}

// pulseLoadedMsg carries loaded data back to the model.
type pulseLoadedMsg struct {
	signals []models.Signal
	scores  []models.Score
	recs    []models.Recommendation
	err     error
}

// Style definitions.
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	panelStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(1, 2)

	activePanelStyle = lipgloss.NewStyle().
				BorderStyle(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("62")).
				Padding(1, 2)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")).
			MarginBottom(1)

	statusOK       = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	statusWarn     = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	statusCritical = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)

	levelLow      = lipgloss.NewStyle().Foreground(lipgloss.Color("69"))
	levelMedium   = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	levelHigh     = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	levelCritical = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)

	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func newDashboardModel(scope string) dashboardModel {
	return dashboardModel{
		scope:       scope,
		activePanel: panelSignals,
		loading:     true,
	}
}

func (m dashboardModel) Init() tea.Cmd {
	return m.loadPulse
}

func (m dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "tab":
			m.activePanel = (m.activePanel + 1) % panelCount
			return m, nil
		case "shift+tab":
			m.activePanel = (m.activePanel - 1 + panelCount) % panelCount
			return m, nil
		case "r":
			m.loading = true
			return m, m.loadPulse
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case pulseLoadedMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.signals = msg.signals
		m.scores = msg.scores
		m.recs = msg.recs
		m.err = nil
		return m, nil
	}

	return m, nil
}

func (m dashboardModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	title := titleStyle.Render(fmt.Sprintf(" opspulse — %s ", m.scope))
	help := helpStyle.Render("tab: switch panel | r: refresh | q: quit")

	if m.loading {
		return fmt.Sprintf("%s\n\n  Loading data...\n\n%s", title, help)
	}

	if m.err != nil {
		return fmt.Sprintf("%s\n\n  Error: %s\n\n%s", title, m.err, help)
	}

	signalsPanel := m.renderSignalsPanel()
	scoresPanel := m.renderScoresPanel()
	recsPanel := m.renderRecsPanel()

	// Available width for panels after accounting for margins.
	availableWidth := m.width - 2

	var body string
	if availableWidth > 120 {
		// Horizontal layout: three columns.
		colWidth := availableWidth / 3
		signalsPanel = m.applyPanelStyle(panelSignals, signalsPanel, colWidth-4)
		scoresPanel = m.applyPanelStyle(panelScores, scoresPanel, colWidth-4)
		recsPanel = m.applyPanelStyle(panelRecs, recsPanel, colWidth-4)
		body = lipgloss.JoinHorizontal(lipgloss.Top, signalsPanel, scoresPanel, recsPanel)
	} else {
		// Vertical layout: stacked.
		panelWidth := availableWidth - 4
		if panelWidth < 20 {
			panelWidth = 20
		}
		signalsPanel = m.applyPanelStyle(panelSignals, signalsPanel, panelWidth)
		scoresPanel = m.applyPanelStyle(panelScores, scoresPanel, panelWidth)
		recsPanel = m.applyPanelStyle(panelRecs, recsPanel, panelWidth)
		body = lipgloss.JoinVertical(lipgloss.Left, signalsPanel, scoresPanel, recsPanel)
	}

	return fmt.Sprintf("%s\n\n%s\n\n%s", title, body, help)
}

func (m dashboardModel) applyPanelStyle(panel int, content string, width int) string {
	style := panelStyle
	if m.activePanel == panel {
		style = activePanelStyle
	}
	return style.Width(width).Render(content)
}

func (m dashboardModel) renderSignalsPanel() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Signals"))
	b.WriteString("\n")

	if len(m.signals) == 0 {
		b.WriteString("  No signals available.")
		return b.String()
	}

	for _, s := range m.signals {
		label := fmt.Sprintf("  %-24s %8.2f", string(s.Key), s.Value)
		b.WriteString(styleForSignalStatus(s.Status).Render(label))
		b.WriteString("\n")
	}

	return b.String()
}

func (m dashboardModel) renderScoresPanel() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Scores"))
	b.WriteString("\n")

	if len(m.scores) == 0 {
		b.WriteString("  No scores available.")
		return b.String()
	}

	for _, s := range m.scores {
		label := fmt.Sprintf("  %-20s %6.1f  %s", string(s.Type), s.Score, string(s.Level))
		b.WriteString(styleForLevel(s.Level).Render(label))
		b.WriteString("\n")
	}

	return b.String()
}

func (m dashboardModel) renderRecsPanel() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Recommendations"))
	b.WriteString("\n")

	if len(m.recs) == 0 {
		b.WriteString("  No recommendations.")
		return b.String()
	}

	for _, rec := range m.recs {
		b.WriteString(fmt.Sprintf("  [P%d] %s\n", rec.Priority, rec.Title))
	}

	b.WriteString(fmt.Sprintf("\n  Total: %d recommendation(s)", len(m.recs)))

	return b.String()
}

func styleForSignalStatus(status models.SignalStatus) lipgloss.Style {
	switch status {
	case models.SignalOK:
		return statusOK
	case models.SignalWarn:
		return statusWarn
	case models.SignalCritical:
		return statusCritical
	default:
		return lipgloss.NewStyle()
	}
}

func styleForLevel(level models.ScoreLevel) lipgloss.Style {
	switch level {
	case models.LevelLow:
		return levelLow
	case models.LevelMedium:
		return levelMedium
	case models.LevelHigh:
		return levelHigh
	case models.LevelCritical:
		return levelCritical
	default:
		return lipgloss.NewStyle()
	}
}

func (m dashboardModel) loadPulse() tea.Msg {
	result := pulseLoadedMsg{}
	now := time.Now().UTC()

	signals, err := Runner.Signals(m.scope, now)
	if err != nil {
		result.err = fmt.Errorf("loading signals: %w", err)
		return result
	}
	result.signals = signals

	scores, err := Runner.Scores(m.scope, now)
	if err != nil {
		result.err = fmt.Errorf("loading scores: %w", err)
		return result
	}
	result.scores = scores

	recs, err := Runner.Recommendations(context.Background(), m.scope, now)
	if err != nil {
		result.err = fmt.Errorf("loading recommendations: %w", err)
		return result
	}
	result.recs = recs

	return result
}

var dashboardScope string

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Interactive TUI dashboard for signals, scores, and recommendations",
	Long: `Launch an interactive terminal dashboard showing the current signals,
composite scores, and recommendations for a scope.

Navigate between panels with Tab, refresh with r, quit with q.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		scope, err := resolveScope(dashboardScope)
		if err != nil {
			return err
		}
		p := tea.NewProgram(newDashboardModel(scope), tea.WithAltScreen())
		_, err = p.Run()
		return err
	},
}

func init() {
	dashboardCmd.Flags().StringVar(&dashboardScope, "scope", "", "Scope (engagement) to display")
	rootCmd.AddCommand(dashboardCmd)
}
