package commands

import (
	"fmt"
	"os"

	"npid-bridge/lib/scrapers/npid"
	"npid-bridge/lib/serviceutil"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var seasonsFlags struct {
	athleteID     string
	athleteMainID string
	sport         string
	videoType     string
}

var submitFlags struct {
	athleteID     string
	athleteMainID string
	sport         string
	season        string
	source        string
	videoType     string
	url           string
	approve       bool
}

var progressFlags struct {
	firstName string
	lastName  string
}

func init() {
	seasonsCmd.Flags().StringVar(&seasonsFlags.athleteID, "athlete", "", "Athlete id.")
	seasonsCmd.Flags().StringVar(&seasonsFlags.athleteMainID, "main", "", "Athlete main id from the profile page.")
	seasonsCmd.Flags().StringVar(&seasonsFlags.sport, "sport", "", "Sport alias, e.g. football.")
	seasonsCmd.Flags().StringVar(&seasonsFlags.videoType, "type", string(npid.VideoTypeFullSeason), "Video type.")
	seasonsCmd.MarkFlagRequired("athlete")
	seasonsCmd.MarkFlagRequired("main")

	submitCmd.Flags().StringVar(&submitFlags.athleteID, "athlete", "", "Athlete id.")
	submitCmd.Flags().StringVar(&submitFlags.athleteMainID, "main", "", "Athlete main id from the profile page.")
	submitCmd.Flags().StringVar(&submitFlags.sport, "sport", "", "Sport alias.")
	submitCmd.Flags().StringVar(&submitFlags.season, "season", "", "Season value from the seasons command (level:id).")
	submitCmd.Flags().StringVar(&submitFlags.source, "source", "youtube", "youtube or hudl.")
	submitCmd.Flags().StringVar(&submitFlags.videoType, "type", string(npid.VideoTypeFullSeason), "Video type.")
	submitCmd.Flags().StringVar(&submitFlags.url, "url", "", "Video url.")
	submitCmd.Flags().BoolVar(&submitFlags.approve, "approve", false, "Approve the video on submit.")
	submitCmd.MarkFlagRequired("athlete")
	submitCmd.MarkFlagRequired("main")
	submitCmd.MarkFlagRequired("url")

	progressCmd.Flags().StringVar(&progressFlags.firstName, "first", "", "First name filter.")
	progressCmd.Flags().StringVar(&progressFlags.lastName, "last", "", "Last name filter.")

	rootCmd.AddCommand(seasonsCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(stageCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(duedateCmd)
	rootCmd.AddCommand(progressCmd)
}

var seasonsCmd = &cobra.Command{
	Use:   "seasons --athlete <id> --main <id> [--sport <alias>] [--type <video type>]",
	Short: "Lists the seasons available for a video submission.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		client, _ := createClient(ctx)
		defer client.Close(ctx)

		seasons, err := client.FetchSeasons(ctx, npid.FetchSeasonsRequest{
			AthleteID:     seasonsFlags.athleteID,
			AthleteMainID: seasonsFlags.athleteMainID,
			Sport:         seasonsFlags.sport,
			VideoType:     npid.VideoType(seasonsFlags.videoType),
		})
		if err != nil {
			serviceutil.Fatal("failed to fetch seasons", err)
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Value", "Label"})
		for _, s := range seasons {
			t.AppendRow(table.Row{s.Value, s.Label})
		}
		t.SetStyle(table.StyleRounded)
		t.Render()
	},
}

var submitCmd = &cobra.Command{
	Use:   "submit --athlete <id> --main <id> --url <video url> [flags]",
	Short: "Submits a career video to an athlete profile.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		client, _ := createClient(ctx)
		defer client.Close(ctx)

		result, err := client.SubmitVideo(ctx, npid.SubmitVideoRequest{
			AthleteID:     submitFlags.athleteID,
			AthleteMainID: submitFlags.athleteMainID,
			Sport:         submitFlags.sport,
			Season:        submitFlags.season,
			Source:        npid.VideoSource(submitFlags.source),
			VideoType:     npid.VideoType(submitFlags.videoType),
			VideoUrl:      submitFlags.url,
			AutoApprove:   submitFlags.approve,
		})
		if err != nil {
			serviceutil.Fatal("failed to submit video", err)
		}
		if result.Message != "" {
			fmt.Println(result.Message)
			return
		}
		fmt.Println("video submitted")
	},
}

var stageCmd = &cobra.Command{
	Use:   "stage <video_msg_id> <on_hold|awaiting_client|in_queue|done>",
	Short: "Updates the progress stage of a video task.",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		client, _ := createClient(ctx)
		defer client.Close(ctx)

		err := client.UpdateStage(ctx, args[0], npid.Stage(args[1]))
		if err != nil {
			serviceutil.Fatal("failed to update stage", err)
		}
		fmt.Println("stage updated")
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <video_msg_id> <revisions|hudl|dropbox|external_links|not_approved>",
	Short: "Updates the delivery status of a video task.",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		client, _ := createClient(ctx)
		defer client.Close(ctx)

		err := client.UpdateStatus(ctx, args[0], npid.Status(args[1]))
		if err != nil {
			serviceutil.Fatal("failed to update status", err)
		}
		fmt.Println("status updated")
	},
}

var duedateCmd = &cobra.Command{
	Use:   "duedate <video_msg_id> <MM/DD/YYYY>",
	Short: "Sets the editor due date of a video task.",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		client, _ := createClient(ctx)
		defer client.Close(ctx)

		err := client.UpdateDueDate(ctx, args[0], args[1])
		if err != nil {
			serviceutil.Fatal("failed to update due date", err)
		}
		fmt.Println("due date updated")
	},
}

var progressCmd = &cobra.Command{
	Use:   "progress [--first <name>] [--last <name>]",
	Short: "Searches the video progress workflow.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		client, _ := createClient(ctx)
		defer client.Close(ctx)

		entries, err := client.SearchVideoProgress(ctx, npid.ProgressFilter{
			FirstName: progressFlags.firstName,
			LastName:  progressFlags.lastName,
		})
		if err != nil {
			serviceutil.Fatal("failed to search progress", err)
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Msg ID", "Player", "Grad", "Stage", "Status", "Editor", "Due"})
		for _, e := range entries {
			t.AppendRow(table.Row{e.VideoMsgID, e.PlayerName, e.GradYear, e.Stage, e.Status, e.Editor, e.DueDate})
		}
		t.SetStyle(table.StyleRounded)
		t.Render()
	},
}
