package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"disc-report/internal/bootstrap"
	"disc-report/internal/delivery"
	"disc-report/internal/generation"
	"disc-report/internal/pdfmerge"
	"disc-report/internal/report"
	"disc-report/internal/scoring"
	"disc-report/internal/shared/config"
	localstore "disc-report/internal/shared/storage/object/local"
	"disc-report/internal/shared/telemetry"
)

func newRenderSampleCmd(loadConfig func() config.Config) *cobra.Command {
	var (
		profile     string
		name        string
		date        string
		answersPath string
		outDir      string
	)
	cmd := &cobra.Command{
		Use:   "render-sample",
		Short: "Assemble and render one report to a local PDF",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			ctx := cmd.Context()

			scores, err := sampleScores(profile, answersPath)
			if err != nil {
				return err
			}
			when := time.Now()
			if date != "" {
				if when, err = time.Parse("2006-01-02", date); err != nil {
					return fmt.Errorf("parse --date: %w", err)
				}
			}

			doc, err := bootstrap.BuildAssembler(cfg).Assemble(ctx, report.Input{
				ProfileCode:    scores.ProfileCode,
				CandidateName:  name,
				AssessmentDate: when,
				Scores:         scores,
			})
			if err != nil {
				return err
			}
			for _, u := range doc.UnknownPlaceholders {
				telemetry.Warn("reportctl.unknown_placeholder", map[string]any{"placeholder": u})
			}

			renderer, closeRenderer, err := bootstrap.BuildRenderer(cfg, localstore.New(cfg.LocalStoreDir))
			if err != nil {
				return err
			}
			defer func() { _ = closeRenderer() }()

			pages, err := generation.RenderPages(ctx, renderer, doc.Pages, cfg.RenderConcurrency)
			if err != nil {
				return err
			}
			merged, err := pdfmerge.Merge(ctx, pages, report.PageCount)
			if err != nil {
				return err
			}
			leftovers, err := pdfmerge.FindPlaceholders(merged)
			if err != nil {
				telemetry.Warn("reportctl.text_scan_failed", map[string]any{"error": err})
			}

			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return err
			}
			out := filepath.Join(outDir, delivery.Filename(name))
			if err := os.WriteFile(out, merged, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			return writeJSON(cmd.OutOrStdout(), map[string]any{
				"path":         out,
				"profileCode":  scores.ProfileCode,
				"renderer":     renderer.Name(),
				"bytes":        len(merged),
				"placeholders": leftovers,
			})
		},
	}
	cmd.Flags().StringVar(&profile, "profile", "", "profile code to render with sample percentages")
	cmd.Flags().StringVar(&name, "name", "Voorbeeld Deelnemer", "candidate name")
	cmd.Flags().StringVar(&date, "date", "", "assessment date YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&answersPath, "answers", "", "score this answers file instead of using sample percentages")
	cmd.Flags().StringVar(&outDir, "out-dir", ".", "output directory")
	return cmd
}

// sampleScores scores an answers file, or fabricates percentages that yield
// the requested profile code.
func sampleScores(profile, answersPath string) (scoring.Result, error) {
	if answersPath != "" {
		answers, err := readAnswers(answersPath)
		if err != nil {
			return scoring.Result{}, err
		}
		return scoring.Score(answers)
	}
	code, ok := scoring.NormalizeProfileCode(profile)
	if !ok {
		return scoring.Result{}, errors.New("--profile must be a valid profile code when --answers is not given")
	}
	natural := scoring.Percentages{D: 30, I: 30, S: 30, C: 30}
	levels := []int{80, 65}
	for i, r := range code {
		setAxis(&natural, r, levels[i])
	}
	return scoring.Result{
		Natural:     natural,
		Response:    natural,
		ProfileCode: code,
		Alert:       scoring.IsAlert(natural),
	}, nil
}

func setAxis(p *scoring.Percentages, axis rune, v int) {
	switch axis {
	case 'D':
		p.D = v
	case 'I':
		p.I = v
	case 'S':
		p.S = v
	case 'C':
		p.C = v
	}
}
