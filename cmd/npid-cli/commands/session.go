package commands

import (
	"fmt"
	"log/slog"

	"npid-bridge/lib/serviceutil"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(checkCmd)
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Establishes a dashboard session and persists it.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		client, _ := createClient(ctx)
		defer client.Close(ctx)

		slog.Info("session established", "refreshed", client.LastRefreshed())
		fmt.Println("logged in")
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verifies the persisted session is still valid.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		client, _ := createClient(ctx)
		defer client.Close(ctx)

		err := client.RefreshToken(ctx)
		if err != nil {
			serviceutil.Fatal("session is not usable", err)
		}
		fmt.Println("session ok, token refreshed", client.LastRefreshed().Format("15:04:05"))
	},
}
