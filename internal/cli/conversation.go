package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/convo-go/internal/models"
)

func newNewCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "new [title]",
		Short: "Start a new conversation",
		Long: `Start a new conversation. Without a title the default title is used
until the first exchange names it.

Examples:
  convo new
  convo new "Trip planning"`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			title := ""
			if len(args) == 1 {
				title = strings.TrimSpace(args[0])
			}

			conv, err := e.store.CreateConversation(cmd.Context(), title)
			if err != nil {
				return fmt.Errorf("create conversation: %w", err)
			}

			out := cmd.OutOrStdout()
			p := newPrinter(out)
			fmt.Fprintf(out, "%s %s\n", p.success("Created:"), conv.Title)
			fmt.Fprintf(out, "ID: %s\n", models.IDString(conv.ID))
			return nil
		},
	}
}

func newShowCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print a conversation's messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id := args[0]

			conv, err := e.store.GetConversation(ctx, id)
			if err != nil {
				return fmt.Errorf("get conversation: %w", err)
			}
			if conv == nil {
				return fmt.Errorf("conversation not found: %s", id)
			}
			msgs, err := e.store.ListMessages(ctx, id)
			if err != nil {
				return fmt.Errorf("list messages: %w", err)
			}

			out := cmd.OutOrStdout()
			p := newPrinter(out)
			fmt.Fprintf(out, "%s\n", p.title(conv.Title))
			fmt.Fprintf(out, "%s\n", p.hint(fmt.Sprintf("%d messages, created %s", conv.MessageCount, conv.CreatedAt.Local().Format("2006-01-02 15:04"))))

			for _, m := range msgs {
				if m.Role == models.RoleSystem && !e.verbose {
					continue
				}
				fmt.Fprintf(out, "\n%s\n%s\n", p.roleLabel(m.Role), m.Content)
				if m.File != nil {
					fmt.Fprintf(out, "%s\n", p.hint(fmt.Sprintf("[attachment: %s, %d bytes]", m.File.Filename, m.File.Size)))
				}
			}
			return nil
		},
	}
}

func newRenameCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <id> <title>",
		Short: "Rename a conversation",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			title := strings.TrimSpace(args[1])
			if title == "" {
				return fmt.Errorf("title is required")
			}

			ok, err := e.store.RenameConversation(cmd.Context(), id, title)
			if err != nil {
				return fmt.Errorf("rename conversation: %w", err)
			}
			if !ok {
				return fmt.Errorf("conversation not found: %s", id)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Renamed: %s\n", title)
			return nil
		},
	}
}
