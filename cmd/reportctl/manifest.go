package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"disc-report/internal/manifest"
	"disc-report/internal/shared/config"
	"disc-report/internal/shared/telemetry"
)

func newManifestCmd(loadConfig func() config.Config) *cobra.Command {
	var (
		templatesDir string
		outDir       string
		version      string
		chromeBin    string
		profiles     []string
		concurrency  int
		noSandbox    bool
	)
	cmd := &cobra.Command{
		Use:   "manifest",
		Short: "Measure field positions in the templates and write one manifest per profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			if templatesDir == "" {
				templatesDir = cfg.TemplatesDir
			}
			if outDir == "" {
				outDir = cfg.ManifestDir
			}
			if chromeBin == "" {
				chromeBin = cfg.ChromeBin
			}

			found, err := manifest.Discover(templatesDir)
			if err != nil {
				return err
			}
			selected, err := manifest.Filter(found, profiles)
			if err != nil {
				return err
			}

			measurer := &manifest.RodMeasurer{Bin: chromeBin, NoSandbox: noSandbox, PageTimeout: cfg.RenderPageTimeout}
			defer func() { _ = measurer.Close() }()

			b := &manifest.Builder{
				Measurer:        measurer,
				OutputDir:       outDir,
				TemplateVersion: version,
				Logger:          telemetry.Logger(),
				Concurrency:     concurrency,
			}
			rep, err := b.Build(cmd.Context(), selected)
			if err != nil {
				return err
			}
			if err := writeJSON(cmd.OutOrStdout(), rep); err != nil {
				return err
			}
			if len(rep.Failures) > 0 {
				return fmt.Errorf("%d of %d profiles failed", len(rep.Failures), len(selected))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&templatesDir, "templates", "", "templates root (default REPORT_TEMPLATES_DIR)")
	cmd.Flags().StringVar(&outDir, "out", "", "manifest output directory (default REPORT_MANIFEST_DIR)")
	cmd.Flags().StringVar(&version, "version", "", "template version recorded in each manifest (default today's date)")
	cmd.Flags().StringVar(&chromeBin, "chrome-bin", "", "Chrome/Chromium binary (default CHROME_BIN)")
	cmd.Flags().StringSliceVar(&profiles, "profile", nil, "limit to these profile codes")
	cmd.Flags().IntVar(&concurrency, "concurrency", 2, "profiles measured in parallel")
	cmd.Flags().BoolVar(&noSandbox, "no-sandbox", false, "launch Chromium without its sandbox")
	return cmd
}
