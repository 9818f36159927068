package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

// NewFlowCmd создаёт группу команд для управления flows.
func NewFlowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flow",
		Short: "Manage flows",
	}

	cmd.AddCommand(
		newFlowListCmd(clientFn, outputFn),
		newFlowCreateCmd(clientFn, outputFn),
		newFlowShowCmd(clientFn, outputFn),
		newFlowActivateCmd(clientFn, outputFn),
		newFlowDeactivateCmd(clientFn, outputFn),
		newFlowVersionsCmd(clientFn, outputFn),
		newFlowPublishCmd(clientFn, outputFn),
		newFlowStatsCmd(clientFn, outputFn),
		newFlowEnrollCmd(clientFn, outputFn),
		newFlowEnrollmentsCmd(clientFn, outputFn),
	)

	return cmd
}

func flowRow(f *FlowResponse) []string {
	return []string{f.ID, f.Name, strconv.FormatBool(f.IsActive), strconv.Itoa(f.CurrentVersion), f.CreatedAt}
}

var flowHeaders = []string{"ID", "NAME", "ACTIVE", "VERSION", "CREATED"}

func newFlowListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all flows",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			flows, err := client.ListFlows()
			if err != nil {
				return err
			}

			rows := make([][]string, len(flows))
			for i := range flows {
				rows[i] = flowRow(&flows[i])
			}

			out.Print(flowHeaders, rows, flows)
			return nil
		},
	}
}

func newFlowCreateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var name, customerID, websiteID, stepsFile string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new flow",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			req := CreateFlowRequest{
				Name:       name,
				CustomerID: customerID,
				WebsiteID:  websiteID,
			}

			if stepsFile != "" {
				data, err := os.ReadFile(stepsFile)
				if err != nil {
					return fmt.Errorf("failed to read steps file: %w", err)
				}
				if !json.Valid(data) {
					return fmt.Errorf("steps file is not valid JSON")
				}
				req.Steps = json.RawMessage(data)
			}

			flow, err := client.CreateFlow(req)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Flow created: %s", flow.ID))
			out.Print(flowHeaders, [][]string{flowRow(flow)}, flow)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Flow name (required)")
	cmd.Flags().StringVar(&customerID, "customer-id", "", "Customer ID (required)")
	cmd.Flags().StringVar(&websiteID, "website-id", "", "Website ID (required)")
	cmd.Flags().StringVar(&stepsFile, "steps-file", "", "Path to steps JSON file")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("customer-id")
	cmd.MarkFlagRequired("website-id")

	return cmd
}

func newFlowShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show flow details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			flow, err := client.GetFlow(args[0])
			if err != nil {
				return err
			}

			out.Print(flowHeaders, [][]string{flowRow(flow)}, flow)
			return nil
		},
	}
}

func newFlowActivateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "activate ID",
		Short: "Activate a flow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if err := client.SetFlowActive(args[0], true); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Flow activated: %s", args[0]))
			return nil
		},
	}
}

func newFlowDeactivateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate ID",
		Short: "Deactivate a flow (enrolled contacts freeze until reactivation)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if err := client.SetFlowActive(args[0], false); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Flow deactivated: %s", args[0]))
			return nil
		},
	}
}

func newFlowVersionsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "versions FLOW_ID",
		Short: "List flow versions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			versions, err := client.ListVersions(args[0])
			if err != nil {
				return err
			}

			headers := []string{"FLOW_ID", "VERSION", "STEPS", "CREATED"}
			rows := make([][]string, len(versions))
			for i, v := range versions {
				rows[i] = []string{v.FlowID, strconv.Itoa(v.Version), strconv.Itoa(len(v.Steps)), v.CreatedAt}
			}

			out.Print(headers, rows, versions)
			return nil
		},
	}
}

func newFlowPublishCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var stepsFile string

	cmd := &cobra.Command{
		Use:   "publish FLOW_ID",
		Short: "Publish a new flow version from steps file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			data, err := os.ReadFile(stepsFile)
			if err != nil {
				return fmt.Errorf("failed to read steps file: %w", err)
			}

			// Валидируем что это валидный JSON
			if !json.Valid(data) {
				return fmt.Errorf("steps file is not valid JSON")
			}

			version, err := client.CreateVersion(args[0], json.RawMessage(data))
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Version %d published for flow %s", version.Version, version.FlowID))
			out.Print(
				[]string{"FLOW_ID", "VERSION", "STEPS", "CREATED"},
				[][]string{{version.FlowID, strconv.Itoa(version.Version), strconv.Itoa(len(version.Steps)), version.CreatedAt}},
				version,
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&stepsFile, "steps-file", "", "Path to steps JSON file (required)")
	cmd.MarkFlagRequired("steps-file")

	return cmd
}

func newFlowStatsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "stats FLOW_ID",
		Short: "Show flow statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			stats, err := client.GetFlowStats(args[0])
			if err != nil {
				return err
			}

			headers := []string{"PROCESSED", "EMAILS", "WEBHOOKS", "MOVED", "REMOVED", "DELETED", "AVG_MS"}
			rows := [][]string{{
				strconv.FormatInt(stats.UsersProcessed, 10),
				strconv.FormatInt(stats.EmailsSent, 10),
				strconv.FormatInt(stats.WebhooksSent, 10),
				strconv.FormatInt(stats.SubscribersMoved, 10),
				strconv.FormatInt(stats.SubscribersRemoved, 10),
				strconv.FormatInt(stats.SubscribersDeleted, 10),
				strconv.FormatFloat(stats.AvgProcessingMillis, 'f', 1, 64),
			}}

			out.Print(headers, rows, stats)
			return nil
		},
	}
}

func newFlowEnrollCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var contactID string
	var version int

	cmd := &cobra.Command{
		Use:   "enroll FLOW_ID",
		Short: "Enroll a contact into a flow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			req := EnrollRequest{ContactID: contactID}
			if cmd.Flags().Changed("version") {
				req.Version = &version
			}

			automation, err := client.EnrollContact(args[0], req)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Contact %s enrolled into flow %s (version %d)",
				automation.ContactID, automation.FlowID, automation.FlowVersion))
			out.Print(
				[]string{"CONTACT_ID", "FLOW_ID", "VERSION", "STEP", "STATUS", "NEXT_STEP_AT"},
				[][]string{{automation.ContactID, automation.FlowID,
					strconv.Itoa(automation.FlowVersion), strconv.Itoa(automation.StepIndex),
					automation.Status, automation.NextStepAt}},
				automation,
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&contactID, "contact-id", "", "Contact ID (required)")
	cmd.Flags().IntVar(&version, "version", 0, "Flow version to pin (default: current)")
	cmd.MarkFlagRequired("contact-id")

	return cmd
}

func newFlowEnrollmentsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "enrollments FLOW_ID",
		Short: "List flow enrollments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			automations, err := client.ListFlowAutomations(args[0])
			if err != nil {
				return err
			}

			headers := []string{"CONTACT_ID", "VERSION", "STEP", "STATUS", "ATTEMPTS", "NEXT_STEP_AT"}
			rows := make([][]string, len(automations))
			for i, a := range automations {
				rows[i] = []string{a.ContactID, strconv.Itoa(a.FlowVersion),
					strconv.Itoa(a.StepIndex), a.Status, strconv.Itoa(a.Attempts), a.NextStepAt}
			}

			out.Print(headers, rows, automations)
			return nil
		},
	}
}
