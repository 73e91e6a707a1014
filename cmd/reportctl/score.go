package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"disc-report/internal/scoring"
)

func newScoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "score <answers.json>",
		Short: "Score an answer set and print percentages, profile code and alert",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			answers, err := readAnswers(args[0])
			if err != nil {
				return err
			}
			engine, err := scoring.Default()
			if err != nil {
				return err
			}
			res, err := engine.Score(answers)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
}

// readAnswers accepts either a bare array or {"answers": [...]}.
func readAnswers(path string) ([]scoring.Answer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read answers: %w", err)
	}
	data = bytes.TrimSpace(data)
	var answers []scoring.Answer
	if len(data) > 0 && data[0] == '[' {
		if err := json.Unmarshal(data, &answers); err != nil {
			return nil, fmt.Errorf("decode answers: %w", err)
		}
		return answers, nil
	}
	var wrapped struct {
		Answers []scoring.Answer `json:"answers"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("decode answers: %w", err)
	}
	return wrapped.Answers, nil
}
