package main

import (
	"github.com/spf13/cobra"

	"disc-report/internal/bootstrap"
	"disc-report/internal/shared/config"
	"disc-report/internal/shared/telemetry"
)

func newCleanupCmd(loadConfig func() config.Config) *cobra.Command {
	var batch int
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete stored reports past their retention and reset their attempts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			if batch <= 0 {
				batch = cfg.CleanupBatch
			}
			if batch <= 0 {
				batch = 200
			}
			ctx := cmd.Context()
			app, err := bootstrap.BuildContext(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			total := 0
			for {
				n, err := app.Generation.CleanupExpired(ctx, batch)
				total += n
				if err != nil {
					return err
				}
				if n < batch {
					break
				}
			}
			telemetry.Info("reportctl.cleanup_complete", map[string]any{"removed": total})
			return writeJSON(cmd.OutOrStdout(), map[string]any{"removed": total})
		},
	}
	cmd.Flags().IntVar(&batch, "batch", 0, "attempts handled per sweep (default REPORT_CLEANUP_BATCH)")
	return cmd
}
