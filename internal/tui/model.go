// Package tui renders the interactive usage dashboard: a bar chart per view
// granularity with keyboard navigation between periods.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"energyforecast/internal/dashboard"
	"energyforecast/internal/period"
	"energyforecast/internal/timeutil"
	"energyforecast/internal/usage"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("99")).
			Padding(1, 0)

	tabStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Padding(0, 1)

	activeTabStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			Padding(0, 1)

	totalStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("250"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Padding(1, 0)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("241")).
			Padding(0, 1)
)

// snapshotMsg carries a new controller state into the update loop.
type snapshotMsg dashboard.Snapshot

// loginDoneMsg reports the outcome of a re-login attempt.
type loginDoneMsg struct{ err error }

// Model is the bubbletea model for the dashboard.
type Model struct {
	controller *dashboard.Controller
	login      func(ctx context.Context) error
	rate       float64

	spinner   spinner.Model
	snap      dashboard.Snapshot
	width     int
	height    int
	loggingIn bool
	loginErr  error
}

// NewModel wires a dashboard controller into the TUI. login is invoked to
// re-authenticate after the controller reports an auth failure.
func NewModel(controller *dashboard.Controller, login func(ctx context.Context) error, rate float64) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))

	return &Model{
		controller: controller,
		login:      login,
		rate:       rate,
		spinner:    s,
		snap:       controller.Snapshot(),
	}
}

func (m *Model) Init() tea.Cmd {
	m.controller.Start()
	return tea.Batch(m.waitForUpdate(), m.spinner.Tick)
}

// waitForUpdate blocks on the controller's update channel and re-arms itself
// after every message.
func (m *Model) waitForUpdate() tea.Cmd {
	return func() tea.Msg {
		return snapshotMsg(<-m.controller.Updates())
	}
}

func (m *Model) loginCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return loginDoneMsg{err: m.login(ctx)}
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case snapshotMsg:
		m.snap = dashboard.Snapshot(msg)
		return m, m.waitForUpdate()

	case loginDoneMsg:
		m.loggingIn = false
		m.loginErr = msg.err
		if msg.err == nil {
			m.controller.Resume()
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.updateKey(msg)
	}
	return m, nil
}

func (m *Model) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.controller.Close()
		return m, tea.Quit
	}

	if m.snap.AuthFailed {
		if msg.String() == "enter" && !m.loggingIn && m.login != nil {
			m.loggingIn = true
			m.loginErr = nil
			return m, tea.Batch(m.loginCmd(), m.spinner.Tick)
		}
		return m, nil
	}

	switch msg.String() {
	case "d":
		m.controller.SetGranularity(period.Day)
	case "w":
		m.controller.SetGranularity(period.Week)
	case "m":
		m.controller.SetGranularity(period.Month)
	case "y":
		m.controller.SetGranularity(period.Year)
	case "left", "h":
		m.controller.Navigate(dashboard.Prev)
	case "right", "l":
		m.controller.Navigate(dashboard.Next)
	case "r":
		m.controller.Refresh()
	}
	return m, nil
}

func (m *Model) View() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("Electricity Usage"))
	sb.WriteByte('\n')
	sb.WriteString(m.renderTabs())
	sb.WriteByte('\n')
	sb.WriteString(m.renderPeriodLine())
	sb.WriteString("\n\n")

	if m.snap.AuthFailed {
		sb.WriteString(errorStyle.Render("Session expired; authentication failed."))
		sb.WriteByte('\n')
		if m.loggingIn {
			sb.WriteString(fmt.Sprintf("%s Logging in...\n", m.spinner.View()))
		} else {
			if m.loginErr != nil {
				sb.WriteString(errorStyle.Render(fmt.Sprintf("Login failed: %v", m.loginErr)))
				sb.WriteByte('\n')
			}
			sb.WriteString(helpStyle.Render("enter: retry login • q: quit"))
		}
		return sb.String()
	}

	if m.snap.MainLoading {
		sb.WriteString(fmt.Sprintf("%s Loading...\n", m.spinner.View()))
	} else {
		buckets := usage.BucketFor(m.snap.Series, m.snap.Granularity, m.snap.ReferenceDate)
		sb.WriteString(renderChart(buckets, m.chartWidth(), m.chartHeight()))
		sb.WriteByte('\n')
		sb.WriteString(totalStyle.Render(fmt.Sprintf("Total: %s kWh", humanize.CommafWithDigits(usage.Total(buckets), 2))))
		sb.WriteByte('\n')

		if m.snap.Granularity == period.Month {
			if f := usage.ForecastMonth(m.snap.Series, m.snap.ReferenceDate, m.rate); f != nil {
				sb.WriteByte('\n')
				sb.WriteString(m.renderForecast(f))
				sb.WriteByte('\n')
			}
		}
	}

	if m.snap.Err != nil {
		sb.WriteByte('\n')
		sb.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.snap.Err)))
		sb.WriteByte('\n')
	}

	sb.WriteString(helpStyle.Render("←/→: navigate • d/w/m/y: view • r: refresh • q: quit"))
	return sb.String()
}

func (m *Model) renderTabs() string {
	labels := map[period.Granularity]string{
		period.Day:   "Day (d)",
		period.Week:  "Week (w)",
		period.Month: "Month (m)",
		period.Year:  "Year (y)",
	}
	var tabs []string
	for _, g := range []period.Granularity{period.Day, period.Week, period.Month, period.Year} {
		label := labels[g]
		if g == m.snap.Granularity {
			tabs = append(tabs, activeTabStyle.Render(label))
		} else {
			tabs = append(tabs, tabStyle.Render(label))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}

func (m *Model) renderPeriodLine() string {
	prev, next := " ", " "
	if m.snap.PrevLoading {
		prev = m.spinner.View()
	} else if m.snap.HasPrev {
		prev = "‹"
	}
	if m.snap.NextLoading {
		next = m.spinner.View()
	} else if m.snap.HasNext {
		next = "›"
	}
	return fmt.Sprintf("%s %s %s", prev, periodTitle(m.snap.Displayed), next)
}

func (m *Model) renderForecast(f *usage.Forecast) string {
	var sb strings.Builder
	sb.WriteString("Monthly Forecast\n")
	sb.WriteString(fmt.Sprintf("So far:    %7.1f kWh  (¥%s)\n",
		f.CurrentTotal, humanize.Commaf(roundYen(f.CurrentCost))))
	sb.WriteString(fmt.Sprintf("Daily avg: %7.1f kWh\n", f.DailyAverage))
	sb.WriteString(fmt.Sprintf("Forecast:  %7.1f kWh  (¥%s)\n",
		f.MonthlyForecast, humanize.Commaf(roundYen(f.ForecastCost))))
	sb.WriteString(fmt.Sprintf("Day %d of %d  %s", f.CurrentDay, f.DaysInMonth,
		renderProgressBar(f.ProgressPercent, 20)))
	return panelStyle.Render(sb.String())
}

func (m *Model) chartWidth() int {
	if m.width <= 0 {
		return 96
	}
	return m.width - 2
}

func (m *Model) chartHeight() int {
	if m.height <= 0 {
		return 12
	}
	h := m.height - 14 // header, total, forecast, help
	if h < 6 {
		h = 6
	}
	if h > 16 {
		h = 16
	}
	return h
}

// periodTitle formats the displayed window for the header line.
func periodTitle(w period.Window) string {
	if w.IsZero() {
		return ""
	}
	from := timeutil.ToJST(w.From)
	switch w.Granularity {
	case period.Day:
		return from.Format("Mon, Jan 2 2006")
	case period.Week:
		last := timeutil.ToJST(w.To).AddDate(0, 0, -1)
		return fmt.Sprintf("%s – %s", from.Format("Jan 2"), last.Format("Jan 2, 2006"))
	case period.Month:
		return from.Format("January 2006")
	case period.Year:
		return from.Format("2006")
	}
	return from.Format("2006-01-02")
}

func roundYen(v float64) float64 {
	return float64(int64(v + 0.5))
}
