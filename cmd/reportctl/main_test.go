package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"disc-report/internal/scoring"
	"disc-report/internal/shared/config"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd(func() config.Config { return config.Config{Env: "dev"} })
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeAnswers(t *testing.T, wrapped bool) string {
	t.Helper()
	var answers []string
	for g := 0; g < 24; g++ {
		first := g*4 + 1
		answers = append(answers,
			fmt.Sprintf(`{"statementId":%d,"selection":"most"}`, first),
			fmt.Sprintf(`{"statementId":%d,"selection":"least"}`, first+1),
		)
	}
	body := "[" + strings.Join(answers, ",") + "]"
	if wrapped {
		body = `{"answers":` + body + `}`
	}
	p := filepath.Join(t.TempDir(), "answers.json")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestScoreCommand(t *testing.T) {
	for _, wrapped := range []bool{false, true} {
		path := writeAnswers(t, wrapped)
		out, err := run(t, "score", path)
		require.NoError(t, err)

		var got scoring.Result
		require.NoError(t, json.Unmarshal([]byte(out), &got))

		answers, err := readAnswers(path)
		require.NoError(t, err)
		want, err := scoring.Score(answers)
		require.NoError(t, err)
		assert.Equal(t, want, got)
		assert.Contains(t, scoring.ValidProfileCodes(), got.ProfileCode)
	}
}

func TestScoreCommandRejectsInvalidAnswers(t *testing.T) {
	p := filepath.Join(t.TempDir(), "answers.json")
	require.NoError(t, os.WriteFile(p, []byte(`[{"statementId":1,"selection":"most"}]`), 0o644))

	_, err := run(t, "score", p)
	assert.ErrorIs(t, err, scoring.ErrInvalidAnswers)
}

func TestInspectCommand(t *testing.T) {
	out, err := run(t, "inspect", "--text", filepath.Join("..", "..", "internal", "pdfmerge", "testdata", "placeholder.pdf"))
	require.NoError(t, err)

	var got struct {
		Pages        int      `json:"pages"`
		Placeholders []string `json:"placeholders"`
		Text         string   `json:"text"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, 1, got.Pages)
	assert.Equal(t, []string{"<<Naam>>"}, got.Placeholders)
	assert.Contains(t, got.Text, "<<Naam>>")
}

func TestInspectCommandMissingFile(t *testing.T) {
	_, err := run(t, "inspect", filepath.Join(t.TempDir(), "nope.pdf"))
	assert.Error(t, err)
}

func TestSampleScores(t *testing.T) {
	res, err := sampleScores("ic", "")
	require.NoError(t, err)
	assert.Equal(t, "IC", res.ProfileCode)
	assert.Equal(t, scoring.Percentages{D: 30, I: 80, S: 30, C: 65}, res.Natural)
	assert.Equal(t, "IC", scoring.ProfileCode(res.Natural))
	assert.False(t, res.Alert)

	res, err = sampleScores("D", "")
	require.NoError(t, err)
	assert.Equal(t, "D", scoring.ProfileCode(res.Natural))

	_, err = sampleScores("", "")
	assert.Error(t, err)
}

func TestRootListsSubcommands(t *testing.T) {
	root := newRootCmd(config.Load)
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"manifest", "score", "render-sample", "cleanup", "inspect"} {
		assert.Contains(t, names, want)
	}
}
