package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check MEV engine status",
	Long: `Check the current status of the MEV engine including the strategy
loop's running/paused state, current block, and pending-tx counters.`,
	RunE: runStatus,
}

var (
	jsonOutput    bool
	watchMode     bool
	watchInterval time.Duration
)

// EngineStatus mirrors api.StatusResponse, the status API's response body.
type EngineStatus struct {
	Status           string    `json:"status"`
	CurrentBlock     uint64    `json:"current_block"`
	PendingTxCount   int       `json:"pending_tx_count"`
	PromisingCount   int       `json:"promising_count"`
	ConnectedClients int       `json:"websocket_clients"`
	Timestamp        time.Time `json:"timestamp"`
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVarP(&jsonOutput, "json", "j", false, "output in JSON format")
	statusCmd.Flags().BoolVarP(&watchMode, "watch", "w", false, "watch mode (continuous updates)")
	statusCmd.Flags().DurationVar(&watchInterval, "interval", 5*time.Second, "watch interval duration")
}

func runStatus(cmd *cobra.Command, args []string) error {
	if watchMode {
		return runWatchStatus()
	}

	status, err := getEngineStatus()
	if err != nil {
		return fmt.Errorf("failed to get engine status: %w", err)
	}

	if jsonOutput {
		return outputJSON(status)
	}

	return outputFormatted(status)
}

func runWatchStatus() error {
	fmt.Printf("📊 Watching MEV Engine status (interval: %v)\n", watchInterval)
	fmt.Println("Press Ctrl+C to stop watching...")
	fmt.Println()

	ticker := time.NewTicker(watchInterval)
	defer ticker.Stop()

	if err := showCurrentStatus(); err != nil {
		return err
	}

	for range ticker.C {
		fmt.Print("\033[H\033[2J") // Clear screen
		if err := showCurrentStatus(); err != nil {
			return err
		}
	}
	return nil
}

func showCurrentStatus() error {
	status, err := getEngineStatus()
	if err != nil {
		fmt.Printf("❌ Error: %v\n", err)
		return nil
	}

	return outputFormatted(status)
}

func apiBaseURL() string {
	apiHost := viper.GetString("server_host")
	if apiHost == "" {
		apiHost = "localhost"
	}
	apiPort := viper.GetInt("server_port")
	if apiPort == 0 {
		apiPort = 8080
	}
	return fmt.Sprintf("http://%s:%d", apiHost, apiPort)
}

func getEngineStatus() (*EngineStatus, error) {
	url := apiBaseURL() + "/api/v1/status"

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return &EngineStatus{
			Status:    "offline",
			Timestamp: time.Now(),
		}, nil
	}
	defer resp.Body.Close()

	var status EngineStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("failed to decode status response: %w", err)
	}

	return &status, nil
}

func outputJSON(status *EngineStatus) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(status)
}

func outputFormatted(status *EngineStatus) error {
	fmt.Printf("🥪 Sandwich Engine Status\n")
	fmt.Printf("=========================\n\n")

	statusIcon := "❌"
	if status.Status == "running" {
		statusIcon = "✅"
	} else if status.Status == "paused" {
		statusIcon = "⏸"
	}

	fmt.Printf("Status:           %s %s\n", statusIcon, status.Status)
	fmt.Printf("Current Block:    %d\n", status.CurrentBlock)
	fmt.Printf("Timestamp:        %s\n", status.Timestamp.Format(time.RFC3339))

	fmt.Printf("\n📊 Loop State\n")
	fmt.Printf("-------------\n")
	fmt.Printf("Pending Txs:      %d\n", status.PendingTxCount)
	fmt.Printf("Promising:        %d\n", status.PromisingCount)
	fmt.Printf("Websocket Clients: %d\n", status.ConnectedClients)

	return nil
}
