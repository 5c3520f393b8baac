// Package cli provides the command-line interface for convo.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/convo-go/internal/chat"
	"github.com/raphaelgruber/convo-go/internal/config"
	"github.com/raphaelgruber/convo-go/internal/llm"
	"github.com/raphaelgruber/convo-go/internal/search"
	"github.com/raphaelgruber/convo-go/internal/store"
)

// Version is set at build time.
var Version = "0.1.0"

// env carries what the commands share. Fields left nil are built from
// configuration when first needed.
type env struct {
	cfg     config.Config
	logger  *slog.Logger
	store   chat.Store
	model   *llm.Model
	search  *search.Client
	stdin   io.Reader
	verbose bool

	closers []func() error
}

// newRootCmd builds the command tree around e.
func newRootCmd(e *env) *cobra.Command {
	root := &cobra.Command{
		Use:   "convo",
		Short: "Persistent multi-turn chat from the terminal",
		Long: `convo talks to a language model in persistent conversations.

Conversations and their messages are stored in SurrealDB (or in memory) and
shared with the convo-server HTTP API.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Skip store connection for version and help commands
			if cmd.Name() == "version" || cmd.Name() == "help" {
				return nil
			}
			return e.init(cmd.Context())
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			e.close()
		},
	}

	root.PersistentFlags().BoolVarP(&e.verbose, "verbose", "v", false, "verbose output")

	root.AddCommand(newNewCmd(e))
	root.AddCommand(newListCmd(e))
	root.AddCommand(newShowCmd(e))
	root.AddCommand(newRenameCmd(e))
	root.AddCommand(newDeleteCmd(e))
	root.AddCommand(newSendCmd(e))
	return root
}

// init loads configuration and opens the store unless one was injected.
func (e *env) init(ctx context.Context) error {
	if e.logger == nil {
		e.cfg = config.Load()
		logger, cleanup := config.SetupLogger(e.cfg.LogFile, cliLogLevel(e.cfg.LogLevel, e.verbose))
		e.logger = logger
		e.closers = append(e.closers, cleanup)
	}
	if e.stdin == nil {
		e.stdin = os.Stdin
	}
	if e.store != nil {
		return nil
	}

	h, err := store.Open(ctx, e.cfg, e.logger, nil)
	if err != nil {
		return err
	}
	e.store = h
	e.closers = append(e.closers, func() error { return h.Close(context.Background()) })
	return nil
}

// getModel creates the language model on first use.
func (e *env) getModel(ctx context.Context) (*llm.Model, error) {
	if e.model != nil {
		return e.model, nil
	}
	m, err := llm.NewModel(ctx, e.cfg, nil, e.logger)
	if err != nil {
		return nil, fmt.Errorf("init model: %w", err)
	}
	e.model = m
	return m, nil
}

func (e *env) getSearch() *search.Client {
	if e.search == nil {
		e.search = search.NewClient(e.cfg.GoogleAPIKey, e.cfg.GoogleCSEID, search.WithLogger(e.logger))
	}
	return e.search
}

func (e *env) close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: cleanup failed: %v\n", err)
		}
	}
	e.closers = nil
}

// cliLogLevel keeps the terminal quiet unless --verbose is set.
func cliLogLevel(configured slog.Level, verbose bool) slog.Level {
	if verbose {
		return slog.LevelDebug
	}
	return max(configured, slog.LevelWarn)
}

// Execute runs the CLI.
func Execute() error {
	return newRootCmd(&env{}).ExecuteContext(context.Background())
}
