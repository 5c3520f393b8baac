package cli

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/convo-go/internal/chat"
	"github.com/raphaelgruber/convo-go/internal/search"
	"github.com/raphaelgruber/convo-go/internal/upload"
)

type sendOptions struct {
	file    string
	query   string
	context string
}

func newSendCmd(e *env) *cobra.Command {
	var opts sendOptions

	cmd := &cobra.Command{
		Use:   "send <id> <text>",
		Short: "Send a message and print the reply",
		Long: `Send a message to a conversation and print the assistant's reply.

The first exchange of a conversation also gives it a title.

Examples:
  convo send 3f1c9a2e-... "What is a goroutine?"
  convo send 3f1c9a2e-... "Summarize this" --file notes.md
  convo send 3f1c9a2e-... "Any news?" --search "go 1.25 release"
  convo send 3f1c9a2e-... "Answer in German" --context "The user is in Vienna."`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSend(cmd, e, args[0], args[1], opts)
		},
	}

	cmd.Flags().StringVar(&opts.file, "file", "", "attach a file")
	cmd.Flags().StringVar(&opts.query, "search", "", "run a web search and add the results as context")
	cmd.Flags().StringVar(&opts.context, "context", "", "extra context for this turn")
	return cmd
}

func runSend(cmd *cobra.Command, e *env, id, text string, opts sendOptions) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	p := newPrinter(out)

	in := chat.TurnInput{DisplayText: strings.TrimSpace(text)}

	if opts.file != "" {
		if err := attachFile(e, &in, opts.file); err != nil {
			return err
		}
	}

	var contextParts []string
	if opts.query != "" {
		results, err := e.getSearch().Search(ctx, opts.query)
		if err != nil {
			return fmt.Errorf("web search: %w", err)
		}
		if formatted := search.FormatContext(opts.query, results); formatted != "" {
			contextParts = append(contextParts, formatted)
		}
	}
	if c := strings.TrimSpace(opts.context); c != "" {
		contextParts = append(contextParts, c)
	}
	in.ContextText = strings.Join(contextParts, "\n\n")

	model, err := e.getModel(ctx)
	if err != nil {
		return err
	}
	orch := chat.NewOrchestrator(e.store, model, model, chat.Options{
		History:     chat.StoreAssembler{Store: e.store, MaxMessages: e.cfg.HistoryLimit},
		TurnTimeout: e.cfg.TurnTimeout,
		Logger:      e.logger,
	})

	res, err := orch.ProcessTurn(ctx, id, in)
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrNotFound):
			return fmt.Errorf("conversation not found: %s", id)
		case errors.Is(err, context.DeadlineExceeded):
			return fmt.Errorf("turn timed out after %s", e.cfg.TurnTimeout)
		}
		return err
	}

	fmt.Fprintf(out, "%s\n%s\n", p.roleLabel(res.AssistantMessage.Role), res.AssistantMessage.Content)
	if res.Title != "" {
		fmt.Fprintf(out, "\n%s\n", p.hint("Titled: "+res.Title))
	}
	return nil
}

// attachFile stores path in the upload directory and adds its processed
// text to the model's view of the turn.
func attachFile(e *env, in *chat.TurnInput, path string) error {
	storage, err := upload.NewStorage(e.cfg.UploadDir, e.cfg.MaxFileSize)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat file: %w", err)
	}
	if err := storage.CheckSize(info.Size()); err != nil {
		return err
	}

	name := filepath.Base(path)
	saved, err := storage.Save(f, name)
	if err != nil {
		return err
	}
	processed, err := upload.NewProcessor().Process(saved.Path, name)
	if err != nil {
		return err
	}

	in.ModelText = upload.CombineText(in.DisplayText, processed.Text)
	in.File = saved.FileInfo(name, mime.TypeByExtension(filepath.Ext(name)))
	if processed.Kind == upload.KindImage {
		in.ImagePath = saved.Path
	}
	return nil
}
