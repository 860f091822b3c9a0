package cli

import (
	"strconv"

	"github.com/spf13/cobra"
)

// NewSlotCmd создаёт группу команд для осмотра пула слотов.
func NewSlotCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slot",
		Short: "Inspect the execution slot pool",
	}

	cmd.AddCommand(
		newSlotListCmd(clientFn, outputFn),
		newSlotShowCmd(clientFn, outputFn),
		newSlotAuditCmd(clientFn, outputFn),
	)

	return cmd
}

func newSlotListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all slots in matrix order",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			slots, err := client.ListSlots()
			if err != nil {
				return err
			}

			headers := []string{"ID", "PROJECT", "SLOT", "STATUS", "TENANT", "ASSIGNED"}
			rows := make([][]string, len(slots))
			for i, s := range slots {
				rows[i] = []string{
					s.ID,
					strconv.Itoa(s.ProjectNumber),
					strconv.Itoa(s.UserSlot),
					s.Status,
					s.AssignedTenantID,
					s.AssignedAt,
				}
			}

			out.Print(headers, rows, slots)
			return nil
		},
	}
}

func newSlotShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show <slot-id>",
		Short: "Show a slot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			slot, err := client.GetSlot(args[0])
			if err != nil {
				return err
			}

			out.Print(
				[]string{"ID", "PROJECT", "SLOT", "STATUS", "TENANT", "ASSIGNED"},
				[][]string{{
					slot.ID,
					strconv.Itoa(slot.ProjectNumber),
					strconv.Itoa(slot.UserSlot),
					slot.Status,
					slot.AssignedTenantID,
					slot.AssignedAt,
				}},
				slot,
			)
			return nil
		},
	}
}

func newSlotAuditCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "audit <slot-id>",
		Short: "Show the assignment audit trail of a slot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			entries, err := client.ListAudit(args[0], limit)
			if err != nil {
				return err
			}

			headers := []string{"ID", "ACTION", "TENANT", "DETAILS", "AT"}
			rows := make([][]string, len(entries))
			for i, e := range entries {
				rows[i] = []string{
					strconv.FormatInt(e.ID, 10),
					e.Action,
					e.TenantID,
					e.Details,
					e.CreatedAt,
				}
			}

			out.Print(headers, rows, entries)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum entries to show")

	return cmd
}
