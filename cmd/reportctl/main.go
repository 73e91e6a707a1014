package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"disc-report/internal/shared/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(config.Load).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// newRootCmd wires every subcommand. loadConfig is injected so tests can run
// without touching the environment.
func newRootCmd(loadConfig func() config.Config) *cobra.Command {
	root := &cobra.Command{
		Use:           "reportctl",
		Short:         "DISC report tooling",
		Long:          "Build template position manifests, score answer sets, render sample reports and maintain stored documents.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(
		newManifestCmd(loadConfig),
		newScoreCmd(),
		newRenderSampleCmd(loadConfig),
		newCleanupCmd(loadConfig),
		newInspectCmd(),
	)
	return root
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
