package cli

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// NewSessionCmd создаёт группу команд для диалоговых сессий.
func NewSessionCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Talk to the automation concierge",
	}

	cmd.AddCommand(
		newSessionSayCmd(clientFn, outputFn),
		newSessionListCmd(clientFn, outputFn),
		newSessionShowCmd(clientFn, outputFn),
	)

	return cmd
}

func newSessionSayCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var tenantID, sessionID string

	cmd := &cobra.Command{
		Use:   "say <message>",
		Short: "Send a message to a session (created on first message)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if sessionID == "" {
				sessionID = uuid.New().String()
				out.Success(fmt.Sprintf("Session started: %s", sessionID))
			}

			result, err := client.Say(tenantID, sessionID, args[0])
			if err != nil {
				return err
			}

			if out.jsonMode {
				out.JSON(result)
				return nil
			}
			out.Text(result.Reply)
			out.Success(fmt.Sprintf("[phase: %s]", result.Phase))
			return nil
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant", "", "Tenant ID")
	cmd.Flags().StringVar(&sessionID, "session", "", "Session ID (omit to start a new session)")
	cmd.MarkFlagRequired("tenant")

	return cmd
}

func newSessionListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var tenantID string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions of a tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			sessions, err := client.ListSessions(tenantID, limit)
			if err != nil {
				return err
			}

			headers := []string{"ID", "PHASE", "TURNS", "UPDATED"}
			rows := make([][]string, len(sessions))
			for i, s := range sessions {
				rows[i] = []string{s.ID, s.Phase, strconv.Itoa(len(s.Turns)), s.UpdatedAt}
			}

			out.Print(headers, rows, sessions)
			return nil
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant", "", "Tenant ID")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum sessions to list")
	cmd.MarkFlagRequired("tenant")

	return cmd
}

func newSessionShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var tenantID string

	cmd := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show a session with its full transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			session, err := client.GetSession(tenantID, args[0])
			if err != nil {
				return err
			}

			if out.jsonMode {
				out.JSON(session)
				return nil
			}

			out.Text(fmt.Sprintf("Session %s (phase: %s)", session.ID, session.Phase))
			for _, turn := range session.Turns {
				out.Text(fmt.Sprintf("  %-5s | %s", turn.Role, turn.Content))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant", "", "Tenant ID")
	cmd.MarkFlagRequired("tenant")

	return cmd
}
