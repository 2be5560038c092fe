// Package main is the quarry CLI: a headless agent runner speaking
// NDJSON on stdout, plus introspection subcommands.
//
// Basic usage:
//
//	quarry "summarize the failing tests"       # one prompt, NDJSON out
//	echo "prompt" | quarry                     # prompts from stdin
//	quarry --profile deep --session-id s1      # pick a profile
//	quarry models                              # print the model catalog
//	quarry tools                               # print the bound tools
//
// Environment: QUARRY_PROFILE, QUARRY_PROVIDER/QUARRY_MODEL,
// QUARRY_DATA_DIR, QUARRY_MCP_CONFIG, provider API keys.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := buildRootCmd()
	root.AddCommand(buildVersionCmd(), buildModelsCmd(), buildToolsCmd())

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "quarry:", err)
		os.Exit(1)
	}
}
