package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewTemplateCmd создаёт группу команд для управления шаблонами писем.
func NewTemplateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Manage email templates",
	}

	cmd.AddCommand(
		newTemplateListCmd(clientFn, outputFn),
		newTemplateCreateCmd(clientFn, outputFn),
		newTemplateShowCmd(clientFn, outputFn),
		newTemplateDeleteCmd(clientFn, outputFn),
	)

	return cmd
}

var templateHeaders = []string{"ID", "NAME", "SUBJECT", "FROM", "CREATED"}

func templateRow(t *TemplateResponse) []string {
	return []string{t.ID, t.Name, t.Subject, t.FromEmail, t.CreatedAt}
}

func newTemplateListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			templates, err := client.ListTemplates()
			if err != nil {
				return err
			}

			rows := make([][]string, len(templates))
			for i := range templates {
				rows[i] = templateRow(&templates[i])
			}

			out.Print(templateHeaders, rows, templates)
			return nil
		},
	}
}

func newTemplateCreateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var name, subject, fromEmail, bodyFile string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new email template",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			body, err := os.ReadFile(bodyFile)
			if err != nil {
				return fmt.Errorf("failed to read body file: %w", err)
			}

			tpl, err := client.CreateTemplate(CreateTemplateRequest{
				Name:      name,
				Subject:   subject,
				BodyHTML:  string(body),
				FromEmail: fromEmail,
			})
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Template created: %s", tpl.ID))
			out.Print(templateHeaders, [][]string{templateRow(tpl)}, tpl)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Template name (required)")
	cmd.Flags().StringVar(&subject, "subject", "", "Email subject template (required)")
	cmd.Flags().StringVar(&fromEmail, "from", "", "Sender email (required)")
	cmd.Flags().StringVar(&bodyFile, "body-file", "", "Path to HTML body file (required)")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("subject")
	cmd.MarkFlagRequired("from")
	cmd.MarkFlagRequired("body-file")

	return cmd
}

func newTemplateShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show template details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			tpl, err := client.GetTemplate(args[0])
			if err != nil {
				return err
			}

			out.Print(templateHeaders, [][]string{templateRow(tpl)}, tpl)
			return nil
		},
	}
}

func newTemplateDeleteCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if err := client.DeleteTemplate(args[0]); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Template deleted: %s", args[0]))
			return nil
		},
	}
}
