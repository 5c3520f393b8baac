package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/convo-go/internal/models"
)

func newListCmd(e *env) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List conversations, most recently updated first",
		Long: `List conversations, most recently updated first.

Examples:
  convo list
  convo list -n 10
  convo list -v`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			convs, err := e.store.ListConversations(cmd.Context())
			if err != nil {
				return fmt.Errorf("list conversations: %w", err)
			}

			out := cmd.OutOrStdout()
			p := newPrinter(out)
			if len(convs) == 0 {
				fmt.Fprintln(out, "No conversations found.")
				return nil
			}
			if limit > 0 && len(convs) > limit {
				convs = convs[:limit]
			}

			fmt.Fprintf(out, "Conversations (%d):\n\n", len(convs))
			for _, c := range convs {
				fmt.Fprintf(out, "- %s %s\n", p.title(c.Title), p.hint("("+models.IDString(c.ID)+")"))
				if e.verbose {
					fmt.Fprintf(out, "  %d messages, updated %s\n", c.MessageCount, c.UpdatedAt.Local().Format("2006-01-02 15:04"))
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "max results (0 for all)")
	return cmd
}
