package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/m3rciful/quizbot/core/buildinfo"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			date := buildinfo.Date
			if date == "" {
				date = "unknown"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "quizbot %s (commit %s, built %s)\n", buildinfo.Version, buildinfo.Commit, date)
		},
	}
}
