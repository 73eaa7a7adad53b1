package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/orvi2014/classcatch/internal/quota"
)

var daemonAddr string

func init() {
	statusCmd.Flags().StringVar(&daemonAddr, "addr", "http://localhost:7433", "daemon address")
	resetQuotaCmd.Flags().StringVar(&daemonAddr, "addr", "http://localhost:7433", "daemon address")
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show entitlement status from a running daemon",
	Run: func(cmd *cobra.Command, args []string) {
		var result quota.StatusResult
		if err := getJSON(daemonAddr+"/api/status", &result); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Status:  %s\n", result.Status)
		fmt.Printf("Plan:    %s\n", result.Plan)
		if result.PageQuota < 0 {
			fmt.Println("Quota:   unlimited")
		} else {
			fmt.Printf("Quota:   %d pages (%d used)\n", result.PageQuota, len(result.UsedPages))
		}
	},
}

var resetQuotaCmd = &cobra.Command{
	Use:   "reset-quota",
	Short: "Clear the consumed page set on a running daemon",
	Run: func(cmd *cobra.Command, args []string) {
		resp, err := httpClient().Post(daemonAddr+"/api/quota/reset", "application/json", nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		var body struct {
			Success bool   `json:"success"`
			Error   string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || !body.Success {
			if body.Error == "" {
				body.Error = "reset failed"
			}
			fmt.Fprintf(os.Stderr, "Error: %s\n", body.Error)
			os.Exit(1)
		}
		fmt.Println("Quota reset")
	},
}

func httpClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}

func getJSON(url string, out any) error {
	resp, err := httpClient().Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("daemon returned %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
