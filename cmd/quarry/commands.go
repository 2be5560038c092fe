package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/quarryhq/quarry/internal/agent/providers"
	"github.com/quarryhq/quarry/internal/headless"
	"github.com/quarryhq/quarry/internal/observability"
	"github.com/quarryhq/quarry/internal/runtime"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, nil))
}

func buildRootCmd() *cobra.Command {
	var (
		profileName string
		sessionID   string
		noStdin     bool
		jsonOut     bool
	)

	cmd := &cobra.Command{
		Use:   "quarry [prompt...]",
		Short: "Run the quarry agent headlessly over an NDJSON pipe",
		Long: `Run the quarry agent. Positional arguments are joined into the
initial prompt; further prompts are read from stdin, one per line.
Every run emits NDJSON envelopes (session, user-input, agent-event,
run-complete, error) on stdout.`,
		Example: `  quarry "explain cmd/quarry/main.go"
  echo "list all TODOs" | quarry -p fast
  quarry --no-stdin --session-id ci-lint "run the linters and fix findings"`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHeadless(cmd, args, profileName, sessionID, noStdin)
		},
	}

	cmd.Flags().StringVarP(&profileName, "profile", "p", "", "Profile to run with (default from env, preference, settings)")
	cmd.Flags().StringVar(&sessionID, "session-id", "", "Session id for the envelopes (generated when empty)")
	cmd.Flags().BoolVar(&noStdin, "no-stdin", false, "Do not read prompts from stdin")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Accepted for compatibility; output is always NDJSON")

	return cmd
}

func runHeadless(cmd *cobra.Command, args []string, profileName, sessionID string, noStdin bool) error {
	logger := newLogger()
	slog.SetDefault(logger)

	ctx := cmd.Context()
	rt, err := runtime.Build(ctx, runtime.Options{
		Profile: profileName,
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	defer rt.Close(ctx)

	var in *os.File
	interactive := false
	if !noStdin {
		in = os.Stdin
		interactive = term.IsTerminal(int(os.Stdin.Fd()))
	}

	driver := headless.New(headless.Config{
		Session:          rt.Agent,
		SessionID:        sessionID,
		Profile:          rt.Selected.Profile.Name,
		Manifest:         rt.Manifest,
		WorkingDir:       rt.WorkingDir,
		WorkspaceContext: rt.WorkspaceContext,
		Out:              os.Stdout,
		In:               stdinReader(in),
		Logger:           logger,
		Interactive:      interactive,
	})

	return driver.Run(ctx, strings.Join(args, " "))
}

// stdinReader avoids a typed-nil io.Reader inside the driver config.
func stdinReader(f *os.File) io.Reader {
	if f == nil {
		return nil
	}
	return f
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and build information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "quarry %s (commit %s, built %s)\n",
				observability.Version, observability.Commit, observability.Date)
		},
	}
}

func buildModelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "Print the model catalog",
		Run: func(cmd *cobra.Command, _ []string) {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PROVIDER\tMODEL\tNAME\tCONTEXT")
			for _, m := range providers.Catalog() {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", m.Provider, m.ID, m.DisplayName, m.ContextWindow)
			}
			w.Flush()
		},
	}
}

func buildToolsCmd() *cobra.Command {
	var profileName string

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Print the tools the session would expose",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := newLogger()
			ctx := cmd.Context()
			rt, err := runtime.Build(ctx, runtime.Options{
				Profile: profileName,
				Logger:  logger,
			})
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TOOL\tDESCRIPTION")
			for _, t := range rt.Registry.ProviderTools() {
				fmt.Fprintf(w, "%s\t%s\n", t.Name, firstLine(t.Description))
			}
			w.Flush()

			for _, warn := range rt.Manifest.Warnings {
				fmt.Fprintf(cmd.OutOrStdout(), "\nwarning: toggle %s disabled (%s: %s)\n",
					warn.ID, warn.Reason, warn.SecretID)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&profileName, "profile", "p", "", "Profile to resolve tools for")
	return cmd
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
