package dashboard

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/bcrosbie/agentforge/internal/client"
	"github.com/bcrosbie/agentforge/internal/domain"
)

const (
	maxEventLines   = 12
	refreshInterval = 2 * time.Second
	eventQueueSize  = 256
	demoAgentType   = "autonomous"
)

type Source interface {
	Metrics(ctx context.Context) (domain.MetricsSnapshot, error)
	ListAgents(ctx context.Context) ([]domain.Agent, error)
	Subscribe(ctx context.Context, sessionID string, handle func(domain.Event) error) error
	StartDemo(ctx context.Context, input client.DemoInput) (domain.Agent, error)
}

type screen int

const (
	screenOverview screen = iota
	screenEvents
)

type snapshotMsg struct {
	snapshot domain.MetricsSnapshot
	agents   []domain.Agent
	err      error
}

type eventMsg domain.Event

type streamClosedMsg struct {
	err error
}

type demoStartedMsg struct {
	agent domain.Agent
	err   error
}

type tickMsg time.Time

type model struct {
	ctx    context.Context
	source Source
	screen screen
	width  int

	spinner    spinner.Model
	agents     table.Model
	snapshot   domain.MetricsSnapshot
	haveData   bool
	eventLines []string
	eventCh    chan domain.Event
	streamDone chan error
	statusLine string
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	sectionStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	cardStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("8")).Padding(0, 1)
)

// Run opens the event stream and blocks until the user quits.
func Run(ctx context.Context, source Source) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := newModel(ctx, source)
	go func() {
		m.streamDone <- source.Subscribe(ctx, "dashboard", func(event domain.Event) error {
			select {
			case m.eventCh <- event:
			default:
			}
			return nil
		})
	}()

	program := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := program.Run()
	return err
}

func newModel(ctx context.Context, source Source) model {
	spin := spinner.New(spinner.WithSpinner(spinner.Dot))
	spin.Style = okStyle

	agents := table.New(
		table.WithColumns([]table.Column{
			{Title: "Agent", Width: 18},
			{Title: "Type", Width: 14},
			{Title: "Status", Width: 12},
			{Title: "Done", Width: 6},
		}),
		table.WithHeight(10),
		table.WithWidth(60),
	)

	return model{
		ctx:        ctx,
		source:     source,
		screen:     screenOverview,
		spinner:    spin,
		agents:     agents,
		eventCh:    make(chan domain.Event, eventQueueSize),
		streamDone: make(chan error, 1),
		statusLine: "tab: switch view | d: demo agent | r: refresh | q: quit",
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		fetchCmd(m.ctx, m.source),
		waitEventCmd(m.eventCh),
		waitStreamCmd(m.streamDone),
		tickCmd(),
	)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = typed.Width
		if m.width > 0 {
			m.agents.SetWidth(min(m.width, 80))
		}
		return m, nil
	case tea.KeyMsg:
		switch typed.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "tab":
			if m.screen == screenOverview {
				m.screen = screenEvents
			} else {
				m.screen = screenOverview
			}
			return m, nil
		case "r":
			return m, fetchCmd(m.ctx, m.source)
		case "d":
			m.statusLine = "starting demo agent..."
			return m, demoCmd(m.ctx, m.source)
		}
		var cmd tea.Cmd
		m.agents, cmd = m.agents.Update(msg)
		return m, cmd
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case snapshotMsg:
		if typed.err != nil {
			m.statusLine = errStyle.Render("metrics failed: " + typed.err.Error())
			return m, nil
		}
		m.snapshot = typed.snapshot
		m.haveData = true
		m.agents.SetRows(agentRows(typed.agents))
		return m, nil
	case eventMsg:
		m.eventLines = append(m.eventLines, formatEvent(domain.Event(typed)))
		if len(m.eventLines) > maxEventLines {
			m.eventLines = m.eventLines[len(m.eventLines)-maxEventLines:]
		}
		cmds := []tea.Cmd{waitEventCmd(m.eventCh)}
		switch typed.Type {
		case domain.EventAgentCreated, domain.EventTaskCompleted, domain.EventTaskFailed:
			cmds = append(cmds, fetchCmd(m.ctx, m.source))
		}
		return m, tea.Batch(cmds...)
	case streamClosedMsg:
		if typed.err != nil {
			m.statusLine = errStyle.Render("event stream closed: " + typed.err.Error())
		} else {
			m.statusLine = warnStyle.Render("event stream closed")
		}
		return m, nil
	case demoStartedMsg:
		if typed.err != nil {
			m.statusLine = errStyle.Render("demo failed: " + typed.err.Error())
		} else {
			m.statusLine = okStyle.Render("demo agent " + typed.agent.ID + " started")
		}
		return m, nil
	case tickMsg:
		return m, tea.Batch(fetchCmd(m.ctx, m.source), tickCmd())
	}
	return m, nil
}

func (m model) View() string {
	var body string
	switch m.screen {
	case screenOverview:
		body = m.viewOverview()
	case screenEvents:
		body = m.viewEvents()
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("AgentForge")+" "+m.spinner.View(),
		"",
		body,
		"",
		mutedStyle.Render(m.statusLine),
	)
}

func (m model) viewOverview() string {
	if !m.haveData {
		return mutedStyle.Render("waiting for metrics...")
	}
	s := m.snapshot
	health := okStyle.Render("healthy")
	if !s.Healthy {
		health = warnStyle.Render("degraded")
	}
	cards := lipgloss.JoinHorizontal(lipgloss.Top,
		cardStyle.Render(fmt.Sprintf("Uptime\n%s", time.Duration(s.UptimeSeconds*float64(time.Second)).Round(time.Second).String())),
		cardStyle.Render(fmt.Sprintf("Requests\n%d", s.RequestCount)),
		cardStyle.Render(fmt.Sprintf("Avg latency\n%.1f ms %s", s.AvgLatencyMS, health)),
		cardStyle.Render(fmt.Sprintf("Req/min\n%d", s.RequestsPerMinute)),
		cardStyle.Render(fmt.Sprintf("Errors\n%d", s.ErrorCount)),
	)

	lines := []string{
		cards,
		"",
		sectionStyle.Render("Agents by type"),
		formatCounts(s.AgentCounts),
		"",
		sectionStyle.Render("Agents"),
		m.agents.View(),
	}
	if n := len(s.MemoryHistory); n > 0 {
		last := s.MemoryHistory[n-1]
		lines = append(lines, "", mutedStyle.Render(fmt.Sprintf("heap %s | sys %s | goroutines %d",
			formatBytes(last.HeapAlloc), formatBytes(last.Sys), s.Goroutines)))
	}
	return strings.Join(lines, "\n")
}

func (m model) viewEvents() string {
	lines := []string{sectionStyle.Render("Event stream")}
	if len(m.eventLines) == 0 {
		lines = append(lines, mutedStyle.Render("no events yet"))
	}
	lines = append(lines, m.eventLines...)
	return strings.Join(lines, "\n")
}

func agentRows(agents []domain.Agent) []table.Row {
	rows := make([]table.Row, 0, len(agents))
	for _, agent := range agents {
		rows = append(rows, table.Row{
			shortID(agent.ID),
			string(agent.Type),
			string(agent.Status),
			fmt.Sprintf("%d", agent.CompletedTasks),
		})
	}
	return rows
}

func formatEvent(event domain.Event) string {
	stamp := event.Timestamp.Local().Format("15:04:05")
	detail := shortID(event.AgentID)
	if payload, ok := event.Payload.(map[string]any); ok {
		switch event.Type {
		case domain.EventAgentProgress:
			detail += fmt.Sprintf(" %v/%v %v", payload["step"], payload["total_steps"], payload["current_step"])
		case domain.EventTaskFailed:
			detail += " " + errStyle.Render(fmt.Sprint(payload["error"]))
		case domain.EventSessionJoined:
			detail = fmt.Sprint(payload["session_id"])
		}
	}
	kind := string(event.Type)
	switch event.Type {
	case domain.EventTaskCompleted:
		kind = okStyle.Render(kind)
	case domain.EventTaskFailed:
		kind = errStyle.Render(kind)
	}
	return fmt.Sprintf("%s %s %s", mutedStyle.Render(stamp), kind, detail)
}

func formatCounts(counts map[string]int) string {
	if len(counts) == 0 {
		return mutedStyle.Render("none")
	}
	keys := make([]string, 0, len(counts))
	for key := range counts {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", key, counts[key]))
	}
	return strings.Join(parts, "  ")
}

func formatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func shortID(id string) string {
	if len(id) > 18 {
		return id[:18]
	}
	return id
}

func fetchCmd(ctx context.Context, source Source) tea.Cmd {
	return func() tea.Msg {
		snapshot, err := source.Metrics(ctx)
		if err != nil {
			return snapshotMsg{err: err}
		}
		agents, err := source.ListAgents(ctx)
		return snapshotMsg{snapshot: snapshot, agents: agents, err: err}
	}
}

func demoCmd(ctx context.Context, source Source) tea.Cmd {
	return func() tea.Msg {
		agent, err := source.StartDemo(ctx, client.DemoInput{Type: demoAgentType})
		return demoStartedMsg{agent: agent, err: err}
	}
}

func waitEventCmd(ch <-chan domain.Event) tea.Cmd {
	return func() tea.Msg {
		return eventMsg(<-ch)
	}
}

func waitStreamCmd(ch <-chan error) tea.Cmd {
	return func() tea.Msg {
		return streamClosedMsg{err: <-ch}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}
