// Package tui renders a terminal dashboard against the strategy engine's
// status API, adapted from the teacher's bubbletea/lipgloss monitor to the
// engine's actual status shape (current block, pending-tx/promising counts,
// websocket client count) instead of the teacher's opportunity/profit
// metrics model.
package tui

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/viper"
)

// Config holds configuration for the TUI monitor.
type Config struct {
	RefreshRate int
	CompactMode bool
	Debug       bool
}

// Model represents the TUI application state.
type Model struct {
	config     Config
	status     *EngineStatus
	loading    bool
	error      error
	width      int
	height     int
	lastUpdate time.Time
}

// EngineStatus mirrors api.StatusResponse, the status API's response body.
type EngineStatus struct {
	Status           string    `json:"status"`
	CurrentBlock     uint64    `json:"current_block"`
	PendingTxCount   int       `json:"pending_tx_count"`
	PromisingCount   int       `json:"promising_count"`
	ConnectedClients int       `json:"websocket_clients"`
	Timestamp        time.Time `json:"timestamp"`
}

type tickMsg time.Time
type statusMsg *EngineStatus
type errorMsg error

// StartMonitor starts the TUI monitor application.
func StartMonitor(config Config) error {
	p := tea.NewProgram(initialModel(config), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

func initialModel(config Config) Model {
	return Model{
		config:  config,
		loading: true,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		fetchStatus(),
		tickCmd(m.config.RefreshRate),
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, fetchStatus()
		case "p":
			return m, sendOverride("pause")
		case "c":
			return m, sendOverride("resume")
		}

	case tickMsg:
		return m, tea.Batch(
			fetchStatus(),
			tickCmd(m.config.RefreshRate),
		)

	case statusMsg:
		m.status = msg
		m.loading = false
		m.error = nil
		m.lastUpdate = time.Now()
		return m, nil

	case errorMsg:
		m.error = msg
		m.loading = false
		return m, nil
	}

	return m, nil
}

func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#FAFAFA")).
		Background(lipgloss.Color("#7D56F4")).
		Padding(0, 1)

	contentStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#874BFD")).
		Padding(1, 2)

	var content string

	title := titleStyle.Width(m.width - 2).Render("🥪 Sandwich Engine Monitor")
	content += title + "\n\n"

	instructions := "Press 'r' to refresh, 'p' to pause, 'c' to resume, 'q' to quit"
	content += lipgloss.NewStyle().Faint(true).Render(instructions) + "\n\n"

	if m.error != nil {
		errorStyle := lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)
		content += errorStyle.Render(fmt.Sprintf("❌ Error: %v", m.error)) + "\n"
	} else if m.loading {
		content += "🔄 Loading status...\n"
	} else if m.status != nil {
		content += m.renderStatus()
	}

	if !m.lastUpdate.IsZero() {
		updateTime := fmt.Sprintf("Last updated: %s", m.lastUpdate.Format("15:04:05"))
		content += "\n" + lipgloss.NewStyle().Faint(true).Render(updateTime)
	}

	return contentStyle.Width(m.width - 4).Render(content)
}

func (m Model) renderStatus() string {
	var content string

	statusIcon := "❌"
	statusColor := lipgloss.Color("#FF0000")
	switch m.status.Status {
	case "running":
		statusIcon = "✅"
		statusColor = lipgloss.Color("#00FF00")
	case "paused":
		statusIcon = "⏸"
		statusColor = lipgloss.Color("#FFFF00")
	}

	statusStyle := lipgloss.NewStyle().Foreground(statusColor).Bold(true)
	content += fmt.Sprintf("Status: %s %s\n", statusIcon, statusStyle.Render(m.status.Status))
	content += fmt.Sprintf("Current Block:    %d\n", m.status.CurrentBlock)

	content += "\n📊 Loop State\n"
	content += "─────────────\n"
	content += fmt.Sprintf("Pending Txs:      %d\n", m.status.PendingTxCount)
	content += fmt.Sprintf("Promising:        %d\n", m.status.PromisingCount)
	content += fmt.Sprintf("Websocket Clients: %d\n", m.status.ConnectedClients)

	return content
}

func fetchStatus() tea.Cmd {
	return func() tea.Msg {
		status, err := getEngineStatus()
		if err != nil {
			return errorMsg(err)
		}
		return statusMsg(status)
	}
}

func sendOverride(command string) tea.Cmd {
	return func() tea.Msg {
		if err := postOverride(command); err != nil {
			return errorMsg(err)
		}
		return fetchStatus()()
	}
}

func tickCmd(refreshRate int) tea.Cmd {
	return tea.Tick(time.Duration(refreshRate)*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func apiBaseURL() string {
	host := viper.GetString("server_host")
	if host == "" {
		host = "localhost"
	}
	port := viper.GetInt("server_port")
	if port == 0 {
		port = 8080
	}
	return fmt.Sprintf("http://%s:%d", host, port)
}

func getEngineStatus() (*EngineStatus, error) {
	url := apiBaseURL() + "/api/v1/status"

	client := &http.Client{Timeout: 5 * time.Second}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return &EngineStatus{Status: "offline", Timestamp: time.Now()}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &EngineStatus{Status: "error", Timestamp: time.Now()}, nil
	}

	var status EngineStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("failed to decode status response: %w", err)
	}

	return &status, nil
}

func postOverride(command string) error {
	url := fmt.Sprintf("%s/api/v1/override/%s", apiBaseURL(), command)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "POST", url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send override: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("override command failed with status: %s", resp.Status)
	}
	return nil
}
