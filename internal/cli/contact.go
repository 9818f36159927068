package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// NewContactCmd создаёт группу команд для управления контактами.
func NewContactCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contact",
		Short: "Manage contacts",
	}

	cmd.AddCommand(
		newContactListCmd(clientFn, outputFn),
		newContactCreateCmd(clientFn, outputFn),
		newContactShowCmd(clientFn, outputFn),
		newContactDeleteCmd(clientFn, outputFn),
		newContactMoveCmd(clientFn, outputFn),
		newContactUnlistCmd(clientFn, outputFn),
		newContactAutomationsCmd(clientFn, outputFn),
		newContactDeliveriesCmd(clientFn, outputFn),
	)

	return cmd
}

var contactHeaders = []string{"ID", "EMAIL", "NAME", "LIST_ID", "STATUS", "CREATED"}

func contactRow(c *ContactResponse) []string {
	return []string{c.ID, c.Email, c.Name, c.ListID, c.Status, c.CreatedAt}
}

func newContactListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var websiteID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List contacts of a website",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			contacts, err := client.ListContacts(websiteID)
			if err != nil {
				return err
			}

			rows := make([][]string, len(contacts))
			for i := range contacts {
				rows[i] = contactRow(&contacts[i])
			}

			out.Print(contactHeaders, rows, contacts)
			return nil
		},
	}

	cmd.Flags().StringVar(&websiteID, "website-id", "", "Website ID (required)")
	cmd.MarkFlagRequired("website-id")

	return cmd
}

func newContactCreateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var websiteID, listID, email, name string
	var attrs []string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new contact",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			req := CreateContactRequest{
				WebsiteID: websiteID,
				Email:     email,
				Name:      name,
			}
			if listID != "" {
				req.ListID = &listID
			}

			if len(attrs) > 0 {
				req.Attributes = make(map[string]string, len(attrs))
				for _, kv := range attrs {
					key, value, ok := strings.Cut(kv, "=")
					if !ok {
						return fmt.Errorf("invalid attribute %q, expected key=value", kv)
					}
					req.Attributes[key] = value
				}
			}

			contact, err := client.CreateContact(req)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Contact created: %s", contact.ID))
			out.Print(contactHeaders, [][]string{contactRow(contact)}, contact)
			return nil
		},
	}

	cmd.Flags().StringVar(&websiteID, "website-id", "", "Website ID (required)")
	cmd.Flags().StringVar(&email, "email", "", "Contact email (required)")
	cmd.Flags().StringVar(&name, "name", "", "Contact name")
	cmd.Flags().StringVar(&listID, "list-id", "", "Initial list ID")
	cmd.Flags().StringArrayVar(&attrs, "attr", nil, "Contact attribute (key=value, repeatable)")
	cmd.MarkFlagRequired("website-id")
	cmd.MarkFlagRequired("email")

	return cmd
}

func newContactShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show contact details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			contact, err := client.GetContact(args[0])
			if err != nil {
				return err
			}

			out.Print(contactHeaders, [][]string{contactRow(contact)}, contact)
			return nil
		},
	}
}

func newContactDeleteCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a contact (delivery history is kept)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if err := client.DeleteContact(args[0]); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Contact deleted: %s", args[0]))
			return nil
		},
	}
}

func newContactMoveCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var listID string

	cmd := &cobra.Command{
		Use:   "move ID",
		Short: "Move a contact to another list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if err := client.MoveContact(args[0], listID); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Contact %s moved to list %s", args[0], listID))
			return nil
		},
	}

	cmd.Flags().StringVar(&listID, "list-id", "", "Target list ID (required)")
	cmd.MarkFlagRequired("list-id")

	return cmd
}

func newContactUnlistCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "unlist ID",
		Short: "Remove a contact from its current list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if err := client.RemoveContactFromList(args[0]); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Contact %s removed from its list", args[0]))
			return nil
		},
	}
}

func newContactAutomationsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "automations ID",
		Short: "List automations of a contact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			automations, err := client.ListContactAutomations(args[0])
			if err != nil {
				return err
			}

			headers := []string{"FLOW_ID", "VERSION", "STEP", "STATUS", "ATTEMPTS", "NEXT_STEP_AT"}
			rows := make([][]string, len(automations))
			for i, a := range automations {
				rows[i] = []string{a.FlowID, strconv.Itoa(a.FlowVersion),
					strconv.Itoa(a.StepIndex), a.Status, strconv.Itoa(a.Attempts), a.NextStepAt}
			}

			out.Print(headers, rows, automations)
			return nil
		},
	}
}

func newContactDeliveriesCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "deliveries ID",
		Short: "Show delivery log of a contact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			jobs, err := client.ListContactDeliveries(args[0])
			if err != nil {
				return err
			}

			rows := make([][]string, len(jobs))
			for i := range jobs {
				rows[i] = deliveryRow(&jobs[i])
			}

			out.Print(deliveryHeaders, rows, jobs)
			return nil
		},
	}
}

// NewListCmd создаёт группу команд для управления списками рассылки.
func NewListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Manage mailing lists",
	}

	cmd.AddCommand(
		newListListCmd(clientFn, outputFn),
		newListCreateCmd(clientFn, outputFn),
		newListShowCmd(clientFn, outputFn),
		newListDeleteCmd(clientFn, outputFn),
	)

	return cmd
}

var listHeaders = []string{"ID", "NAME", "SUBSCRIBERS", "CREATED"}

func listRow(l *ListResponse) []string {
	return []string{l.ID, l.Name, strconv.FormatInt(l.Subscribers, 10), l.CreatedAt}
}

func newListListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var websiteID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List mailing lists of a website",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			lists, err := client.ListLists(websiteID)
			if err != nil {
				return err
			}

			rows := make([][]string, len(lists))
			for i := range lists {
				rows[i] = listRow(&lists[i])
			}

			out.Print(listHeaders, rows, lists)
			return nil
		},
	}

	cmd.Flags().StringVar(&websiteID, "website-id", "", "Website ID (required)")
	cmd.MarkFlagRequired("website-id")

	return cmd
}

func newListCreateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var websiteID, name string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new mailing list",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			list, err := client.CreateList(websiteID, name)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("List created: %s", list.ID))
			out.Print(listHeaders, [][]string{listRow(list)}, list)
			return nil
		},
	}

	cmd.Flags().StringVar(&websiteID, "website-id", "", "Website ID (required)")
	cmd.Flags().StringVar(&name, "name", "", "List name (required)")
	cmd.MarkFlagRequired("website-id")
	cmd.MarkFlagRequired("name")

	return cmd
}

func newListShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show mailing list details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			list, err := client.GetList(args[0])
			if err != nil {
				return err
			}

			out.Print(listHeaders, [][]string{listRow(list)}, list)
			return nil
		},
	}
}

func newListDeleteCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a mailing list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if err := client.DeleteList(args[0]); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("List deleted: %s", args[0]))
			return nil
		},
	}
}
