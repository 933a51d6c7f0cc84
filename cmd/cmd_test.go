package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fatalwatch/internal/api"
	"fatalwatch/internal/config"
	"fatalwatch/internal/event"
	"fatalwatch/internal/pipeline"
	"fatalwatch/internal/source"
	"fatalwatch/internal/testmocks"
)

var fileOpener = pipeline.SourceOpener(&config.Config{}, nil)

type closeFailingSource struct {
	testmocks.SliceSource
	closed bool
}

func (s *closeFailingSource) Close() error {
	s.closed = true
	return errors.New("close: bad file descriptor")
}

func TestScanFilesCloseErrorDoesNotFailScan(t *testing.T) {
	src := &closeFailingSource{SliceSource: testmocks.SliceSource{
		SourceName: "pg.log",
		Lines:      []string{"2024-01-01 10:00:00.000001 UTC FATAL: still printed\n"},
	}}
	open := func(string) (source.Source, error) { return src, nil }

	var out bytes.Buffer
	require.NoError(t, scanFiles(context.Background(), []string{"pg.log"}, open, newJSONLinesSink(&out), nil))
	assert.True(t, src.closed)
	assert.Contains(t, out.String(), "still printed")
}

func TestScanFilesPrintsEventsInFileOrder(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.log")
	b := filepath.Join(dir, "b.log")
	require.NoError(t, os.WriteFile(a, []byte(
		"2024-01-01 10:00:00.000001 UTC LOG: start\n"+
			"2024-01-01 10:00:00.000002 UTC FATAL: a-one\n"+
			"bad-ts FATAL: skipped\n"+
			"2024-01-01 10:00:00.000003 UTC FATAL: a-two"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("2024-01-02 00:00:00.5 UTC FATAL: b-one\n"), 0o644))

	var out bytes.Buffer
	require.NoError(t, scanFiles(context.Background(), []string{a, b}, fileOpener, newJSONLinesSink(&out), nil))

	var got []event.FatalEvent
	sc := bufio.NewScanner(&out)
	for sc.Scan() {
		var ev event.FatalEvent
		require.NoError(t, json.Unmarshal(sc.Bytes(), &ev))
		got = append(got, ev)
	}
	require.Len(t, got, 3)
	assert.Equal(t, "a-one", got[0].Message)
	assert.Equal(t, "a-two", got[1].Message)
	assert.Equal(t, "b-one", got[2].Message)
	assert.Equal(t, a, got[0].Source)
	assert.Equal(t, int64(4), got[1].Line)
	assert.True(t, got[2].Timestamp.Equal(time.Date(2024, 1, 2, 0, 0, 0, 500000000, time.UTC)))
}

func TestScanFilesAppliesFilter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pg.log")
	require.NoError(t, os.WriteFile(path, []byte(
		"2024-01-01 10:00:00.000001 UTC FATAL: password authentication failed\n"+
			"2024-01-01 10:00:00.000002 UTC FATAL: the database system is starting up\n"), 0o644))

	f, err := pipeline.CompileFilter(`Message contains "password"`)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, scanFiles(context.Background(), []string{path}, fileOpener, newJSONLinesSink(&out), f))
	assert.Contains(t, out.String(), "password authentication failed")
	assert.NotContains(t, out.String(), "starting up")
}

func TestScanFilesMissingFile(t *testing.T) {
	var out bytes.Buffer
	err := scanFiles(context.Background(), []string{filepath.Join(t.TempDir(), "nope.log")}, fileOpener, newJSONLinesSink(&out), nil)

	var srcErr *source.SourceError
	require.ErrorAs(t, err, &srcErr)
	assert.Empty(t, out.String())
}

func TestMatchCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"match", "2024-01-01 10:00:00.123456 UTC FATAL: connection reset"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute())

	var res api.MatchResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	require.True(t, res.Matched)
	require.NotNil(t, res.Event)
	assert.Equal(t, "connection reset", res.Event.Message)
}

func TestApplyRunFlagsOnlyOverridesChangedFlags(t *testing.T) {
	cmd := &cobra.Command{Use: "run"}
	addRunFlags(cmd)
	require.NoError(t, cmd.Flags().Parse([]string{"--follow", "--driver", "sqlite", "--insert-timeout", "250ms"}))

	cfg := &config.Config{Destination: "from_env", StartAt: source.StartAtOffset}
	applyRunFlags(cmd, cfg)

	assert.True(t, cfg.Follow)
	assert.Equal(t, config.DriverSQLite, cfg.Driver)
	assert.Equal(t, 250*time.Millisecond, cfg.InsertTimeout)
	assert.Equal(t, "from_env", cfg.Destination, "unset flag keeps the configured value")
	assert.Equal(t, source.StartAtOffset, cfg.StartAt)
}
