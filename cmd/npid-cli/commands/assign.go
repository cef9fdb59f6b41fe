package commands

import (
	"fmt"
	"os"

	"npid-bridge/lib/scrapers/npid"
	"npid-bridge/lib/serviceutil"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var assignFlags struct {
	messageID string
	itemCode  string
	ownerID   string
	contactID string
	stage     string
	status    string
}

func init() {
	modalCmd.Flags().StringVar(&assignFlags.messageID, "message", "", "Inbox message id.")
	modalCmd.Flags().StringVar(&assignFlags.itemCode, "item", "", "Inbox item code.")
	modalCmd.MarkFlagRequired("message")
	modalCmd.MarkFlagRequired("item")

	assignCmd.Flags().StringVar(&assignFlags.messageID, "message", "", "Inbox message id.")
	assignCmd.Flags().StringVar(&assignFlags.itemCode, "item", "", "Inbox item code.")
	assignCmd.Flags().StringVar(&assignFlags.ownerID, "owner", "", "Owner id, defaults to the modal's first owner.")
	assignCmd.Flags().StringVar(&assignFlags.contactID, "contact", "", "Contact id, defaults to the modal's preselected contact.")
	assignCmd.Flags().StringVar(&assignFlags.stage, "stage", "", "Initial stage, defaults to the dashboard recommendation.")
	assignCmd.Flags().StringVar(&assignFlags.status, "status", "", "Initial status, defaults to the dashboard recommendation.")
	assignCmd.MarkFlagRequired("message")
	assignCmd.MarkFlagRequired("item")

	rootCmd.AddCommand(modalCmd)
	rootCmd.AddCommand(assignCmd)
}

var modalCmd = &cobra.Command{
	Use:   "modal --message <id> --item <code>",
	Short: "Shows the assignment modal for an inbox thread.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		client, _ := createClient(ctx)
		defer client.Close(ctx)

		modal, err := client.FetchAssignmentModal(ctx, assignFlags.messageID, assignFlags.itemCode)
		if err != nil {
			serviceutil.Fatal("failed to fetch assignment modal", err)
		}

		fmt.Printf("message: %s  contact: %s  athlete: %s  for: %s\n\n",
			modal.MessageID, modal.ContactTask, modal.AthleteMainID, modal.ContactFor)

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Owner ID", "Name"})
		for _, owner := range modal.Owners {
			t.AppendRow(table.Row{owner.Value, owner.Label})
		}
		t.SetStyle(table.StyleRounded)
		t.Render()
	},
}

var assignCmd = &cobra.Command{
	Use:   "assign --message <id> --item <code> [--owner <id>] [flags]",
	Short: "Assigns an inbox thread to the video team.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		client, _ := createClient(ctx)
		defer client.Close(ctx)

		modal, err := client.FetchAssignmentModal(ctx, assignFlags.messageID, assignFlags.itemCode)
		if err != nil {
			serviceutil.Fatal("failed to fetch assignment modal", err)
		}

		ownerID := assignFlags.ownerID
		if ownerID == "" && len(modal.Owners) > 0 {
			ownerID = modal.Owners[0].Value
		}
		contactID := assignFlags.contactID
		if contactID == "" {
			contactID = modal.ContactTask
		}

		stage := npid.Stage(assignFlags.stage)
		status := npid.Status(assignFlags.status)
		if stage == "" && status == "" && contactID != "" {
			defaults, err := client.AssignmentDefaults(ctx, contactID)
			if err != nil {
				serviceutil.Fatal("failed to fetch assignment defaults", err)
			}
			stage = npid.Stage(defaults.Stage)
			status = npid.Status(defaults.Status)
		}

		err = client.AssignThread(ctx, npid.AssignThreadRequest{
			MessageID:     modal.MessageID,
			OwnerID:       ownerID,
			ContactID:     contactID,
			AthleteMainID: modal.AthleteMainID,
			ContactFor:    modal.ContactFor,
			Contact:       modal.ContactSearch,
			Stage:         stage,
			Status:        status,
		})
		if err != nil {
			serviceutil.Fatal("failed to assign thread", err)
		}
		fmt.Println("thread assigned")
	},
}
