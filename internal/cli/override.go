package cli

import (
	"bufio"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var overrideCmd = &cobra.Command{
	Use:   "override",
	Short: "Emergency override commands",
	Long: `Emergency override commands for manual control of the strategy loop.
These bypass the engine's normal automatic bundle dispatch.`,
}

var emergencyStopCmd = &cobra.Command{
	Use:   "emergency-stop",
	Short: "Pause bundle dispatch",
	Long: `Pause the strategy loop: it keeps following new blocks but admits no
new pending transactions, so nothing is probed, packed or dispatched until
resumed.`,
	RunE: runEmergencyStop,
}

var resumeOperationCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume normal operation",
	Long:  `Resume bundle dispatch after a pause.`,
	RunE:  runResumeOperation,
}

var confirmOverride bool

func init() {
	rootCmd.AddCommand(overrideCmd)
	overrideCmd.AddCommand(emergencyStopCmd)
	overrideCmd.AddCommand(resumeOperationCmd)

	emergencyStopCmd.Flags().BoolVar(&confirmOverride, "confirm", false, "confirm emergency stop")
}

func runEmergencyStop(cmd *cobra.Command, args []string) error {
	fmt.Println("⚠️  EMERGENCY STOP REQUESTED")
	fmt.Println("=============================")
	fmt.Println("This pauses bundle dispatch immediately. The loop keeps following")
	fmt.Println("blocks but admits no new pending transactions until resumed.")
	fmt.Println()

	if !confirmOverride {
		fmt.Print("Type 'EMERGENCY STOP' to confirm: ")
		reader := bufio.NewReader(os.Stdin)
		input, _ := reader.ReadString('\n')
		input = strings.TrimSpace(input)

		if input != "EMERGENCY STOP" {
			fmt.Println("❌ Emergency stop cancelled")
			return nil
		}
	}

	fmt.Println("🚨 Executing emergency stop...")

	if err := sendOverrideCommand("pause"); err != nil {
		return fmt.Errorf("failed to send emergency stop: %w", err)
	}

	fmt.Println("✅ Emergency stop executed")
	return nil
}

func runResumeOperation(cmd *cobra.Command, args []string) error {
	fmt.Println("🔄 Resuming normal operation...")

	if err := sendOverrideCommand("resume"); err != nil {
		return fmt.Errorf("failed to resume operation: %w", err)
	}

	fmt.Println("✅ Normal operation resumed")
	return nil
}

func sendOverrideCommand(command string) error {
	url := fmt.Sprintf("%s/api/v1/override/%s", apiBaseURL(), command)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post(url, "application/json", nil)
	if err != nil {
		return fmt.Errorf("failed to send override command: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("override command failed with status: %s", resp.Status)
	}

	return nil
}
