package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	statusTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	statusLabelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusDoneStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	statusErrStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
)

// runStatus shows a live view of one batch job. Read-only: it polls the
// same status endpoint as the pipeline but never retrieves results.
func runStatus(cfg Config, args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	batchID := fs.String("batch-id", "", "ID of the batch to watch")
	apiKey := fs.String("api-key", "", "API key (overrides .env and environment)")
	pollInterval := fs.Int("poll-interval", 10, "seconds between status polls")
	fs.Parse(args)

	if *apiKey != "" {
		cfg.APIKey = *apiKey
	}
	if cfg.APIKey == "" {
		fmt.Fprintln(os.Stderr, "error: API key not found, set ANTHROPIC_API_KEY or pass -api-key")
		os.Exit(1)
	}
	if *batchID == "" {
		fmt.Fprintln(os.Stderr, "error: -batch-id is required")
		os.Exit(1)
	}

	client := newAnthropicClient(cfg.APIKey, cfg.BaseURL)
	model := newStatusModel(client, *batchID, time.Duration(*pollInterval)*time.Second)

	final, err := tea.NewProgram(model).Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if m, ok := final.(statusModel); ok && m.err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", m.err)
		os.Exit(1)
	}
}

type jobMsg struct {
	job *batchJob
	err error
}

type pollMsg struct{}

type statusModel struct {
	client   *anthropicClient
	batchID  string
	interval time.Duration
	spinner  spinner.Model

	job  *batchJob
	err  error
	done bool
}

func newStatusModel(client *anthropicClient, batchID string, interval time.Duration) statusModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))

	return statusModel{
		client:   client,
		batchID:  batchID,
		interval: interval,
		spinner:  sp,
	}
}

func (m statusModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.fetch())
}

func (m statusModel) fetch() tea.Cmd {
	return func() tea.Msg {
		job, err := m.client.GetBatch(context.Background(), m.batchID)
		return jobMsg{job: job, err: err}
	}
}

func (m statusModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
		return m, nil

	case jobMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, tea.Quit
		}
		m.job = msg.job
		if m.job.Ended() {
			m.done = true
			return m, tea.Quit
		}
		return m, tea.Tick(m.interval, func(time.Time) tea.Msg { return pollMsg{} })

	case pollMsg:
		return m, m.fetch()

	default:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
}

func (m statusModel) View() string {
	if m.err != nil {
		return statusErrStyle.Render("error: "+m.err.Error()) + "\n"
	}

	header := statusTitleStyle.Render("Batch " + m.batchID)
	if m.job == nil {
		return fmt.Sprintf("%s\n\n%s fetching status...\n", header, m.spinner.View())
	}

	c := m.job.RequestCounts
	body := fmt.Sprintf("%s %s\n%s %d\n%s %d\n%s %d\n%s %d\n%s %d\n",
		statusLabelStyle.Render("status:    "), m.job.ProcessingStatus,
		statusLabelStyle.Render("processing:"), c.Processing,
		statusLabelStyle.Render("succeeded: "), c.Succeeded,
		statusLabelStyle.Render("errored:   "), c.Errored,
		statusLabelStyle.Render("canceled:  "), c.Canceled,
		statusLabelStyle.Render("expired:   "), c.Expired,
	)

	if m.done {
		return fmt.Sprintf("%s\n\n%s\n%s\n", header, body, statusDoneStyle.Render("Batch processing complete!"))
	}
	return fmt.Sprintf("%s\n\n%s\n%s polling every %s (q to quit)\n", header, body, m.spinner.View(), m.interval)
}
