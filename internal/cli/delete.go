package cli

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newDeleteCmd(e *env) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a conversation and all of its messages",
		Long: `Delete a conversation and all of its messages.

Requires confirmation unless --force is used.

Examples:
  convo delete 3f1c9a2e-...
  convo delete 3f1c9a2e-... --force`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			id := args[0]

			conv, err := e.store.GetConversation(ctx, id)
			if err != nil {
				return fmt.Errorf("get conversation: %w", err)
			}
			if conv == nil {
				return fmt.Errorf("conversation not found: %s", id)
			}

			// Confirm deletion
			if !force {
				fmt.Fprintf(out, "About to delete: %s (%d messages)\n", conv.Title, conv.MessageCount)
				fmt.Fprint(out, "\nContinue? [y/N]: ")

				reader := bufio.NewReader(e.stdin)
				response, err := reader.ReadString('\n')
				if err != nil && response == "" {
					return fmt.Errorf("read input: %w", err)
				}
				response = strings.TrimSpace(strings.ToLower(response))

				if response != "y" && response != "yes" {
					fmt.Fprintln(out, "Cancelled.")
					return nil
				}
			}

			deleted, err := e.store.DeleteConversation(ctx, id)
			if err != nil {
				return fmt.Errorf("delete conversation: %w", err)
			}
			if !deleted {
				return fmt.Errorf("conversation not found or already deleted")
			}

			fmt.Fprintf(out, "Deleted: %s\n", conv.Title)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "skip confirmation")
	return cmd
}
