package main

import (
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"

	"fatalwatch/internal/api"
	"fatalwatch/internal/event"
)

var matchCmd = &cobra.Command{
	Use:     "match LINE",
	Short:   "Show how a single log line is parsed",
	Example: `  fatalwatch match '2024-01-01 10:00:00.123456 UTC FATAL: connection reset'`,
	Args:    cobra.MinimumNArgs(1),
	RunE:    runMatch,
}

func init() {
	rootCmd.AddCommand(matchCmd)
}

func runMatch(cmd *cobra.Command, args []string) error {
	// an unquoted line arrives split on spaces
	line := strings.Join(args, " ")
	res := api.MatchLine(event.NewMatcher(), line)

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
