package commands

import (
	"fmt"
	"os"
	"strings"

	"npid-bridge/lib/scrapers/npid"
	"npid-bridge/lib/serviceutil"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var contactsSearchFor *string

var sendEmailFlags struct {
	template string
	subject  string
	message  string
}

func init() {
	contactsSearchFor = contactsCmd.Flags().String("for", "athlete", "Search target, athlete or parent.")
	sendEmailCmd.Flags().StringVar(&sendEmailFlags.template, "template", "", "Template label or id.")
	sendEmailCmd.Flags().StringVar(&sendEmailFlags.subject, "subject", "", "Overrides the template subject.")
	sendEmailCmd.Flags().StringVar(&sendEmailFlags.message, "message", "", "Overrides the template body.")
	sendEmailCmd.MarkFlagRequired("template")
	rootCmd.AddCommand(contactsCmd)
	rootCmd.AddCommand(templatesCmd)
	rootCmd.AddCommand(sendEmailCmd)
}

var contactsCmd = &cobra.Command{
	Use:   "contacts <query> [--for athlete|parent]",
	Short: "Searches contacts, best name match first.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		client, _ := createClient(ctx)
		defer client.Close(ctx)

		contacts, err := client.SearchContacts(ctx, args[0], *contactsSearchFor)
		if err != nil {
			serviceutil.Fatal("failed to search contacts", err)
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Contact ID", "Main ID", "Name", "Sport", "Grad", "State", "Ranking"})
		for _, c := range contacts {
			t.AppendRow(table.Row{c.ContactID, c.AthleteMainID, c.Name, c.Sport, c.GradYear, c.State, c.Ranking})
		}
		t.SetStyle(table.StyleRounded)
		t.Render()
	},
}

var sendEmailCmd = &cobra.Command{
	Use:   "send-email <athlete query> --template <name>",
	Short: "Sends a templated email to the best-matching athlete.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		client, _ := createClient(ctx)
		defer client.Close(ctx)

		contacts, err := client.SearchContacts(ctx, args[0], "athlete")
		if err != nil {
			serviceutil.Fatal("failed to search contacts", err)
		}
		if len(contacts) == 0 {
			serviceutil.Fatal("no contact found", fmt.Errorf("no athlete matches %q", args[0]))
		}
		contact := contacts[0]

		templates, err := client.FetchEmailTemplates(ctx, contact.AthleteMainID)
		if err != nil {
			serviceutil.Fatal("failed to fetch templates", err)
		}
		templateID := resolveTemplate(templates, sendEmailFlags.template)
		if templateID == "" {
			serviceutil.Fatal("no template found", fmt.Errorf("template %q not available for %s", sendEmailFlags.template, contact.Name))
		}

		err = client.SendTemplatedEmail(ctx, npid.SendEmailRequest{
			AthleteID:  contact.AthleteMainID,
			TemplateID: templateID,
			Subject:    sendEmailFlags.subject,
			Message:    sendEmailFlags.message,
		})
		if err != nil {
			serviceutil.Fatal("failed to send email", err)
		}
		fmt.Printf("Sent to %s.\n", contact.Name)
	},
}

// resolveTemplate matches a template by id first, then by label
// ignoring case.
func resolveTemplate(templates []npid.EmailTemplate, name string) string {
	for _, tmpl := range templates {
		if tmpl.ID == name {
			return tmpl.ID
		}
	}
	for _, tmpl := range templates {
		if strings.EqualFold(tmpl.Label, name) {
			return tmpl.ID
		}
	}
	return ""
}

var templatesCmd = &cobra.Command{
	Use:   "templates <contact_id>",
	Short: "Lists the email templates available for a contact.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		client, _ := createClient(ctx)
		defer client.Close(ctx)

		templates, err := client.FetchEmailTemplates(ctx, args[0])
		if err != nil {
			serviceutil.Fatal("failed to fetch templates", err)
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"ID", "Template"})
		for _, tmpl := range templates {
			t.AppendRow(table.Row{tmpl.ID, tmpl.Label})
		}
		t.SetStyle(table.StyleRounded)
		t.Render()
	},
}
