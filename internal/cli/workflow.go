package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewWorkflowCmd создаёт группу команд для развёрнутых workflows.
func NewWorkflowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflow",
		Short: "Manage deployed workflows",
	}

	cmd.AddCommand(
		newWorkflowShowCmd(clientFn, outputFn),
		newWorkflowTeardownCmd(clientFn, outputFn),
	)

	return cmd
}

func newWorkflowShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var tenantID string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the workflow of a tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			wf, err := client.GetWorkflow(tenantID)
			if err != nil {
				return err
			}

			out.Print(
				[]string{"ID", "NAME", "SLOT", "STATUS", "ENGINE_ID", "CREATED"},
				[][]string{{wf.ID, wf.Name, wf.SlotID, wf.DeploymentStatus, wf.EngineWorkflowID, wf.CreatedAt}},
				wf,
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant", "", "Tenant ID")
	cmd.MarkFlagRequired("tenant")

	return cmd
}

func newWorkflowTeardownCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var tenantID string
	var yes bool

	cmd := &cobra.Command{
		Use:   "teardown",
		Short: "Remove the workflow of a tenant and free its slot",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if !yes {
				return fmt.Errorf("teardown is destructive, pass --yes to confirm")
			}

			if err := client.TeardownWorkflow(tenantID); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Workflow of tenant %s removed, slot released", tenantID))
			return nil
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant", "", "Tenant ID")
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm the teardown")
	cmd.MarkFlagRequired("tenant")

	return cmd
}
