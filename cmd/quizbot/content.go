package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/m3rciful/quizbot/internal/content"
)

func newContentCmd() *cobra.Command {
	contentCmd := &cobra.Command{
		Use:   "content",
		Short: "Inspect quiz content",
	}
	contentCmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Validate every level and topic file",
		Args:  cobra.NoArgs,
		RunE:  runContentCheckCmd,
	})
	return contentCmd
}

func runContentCheckCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	catalog := content.NewDir(cfg.Quiz.ContentDir, cfg.Quiz.Levels)
	report, problems := renderContentReport(catalog.Inspect())
	fmt.Fprintln(cmd.OutOrStdout(), report)
	if problems > 0 {
		return fmt.Errorf("content check found %d problem(s) in %s", problems, cfg.Quiz.ContentDir)
	}
	return nil
}

// renderContentReport formats level reports and counts skipped files and
// unusable levels.
func renderContentReport(reports []content.LevelReport) (string, int) {
	var (
		lines    []string
		problems int
	)
	for _, r := range reports {
		switch {
		case r.Err != nil:
			problems++
			lines = append(lines, fmt.Sprintf("%s %s", titleStyle.Render(r.Level), errorStyle.Render(r.Err.Error())))
		default:
			lines = append(lines, fmt.Sprintf("%s %s", titleStyle.Render(r.Level), okStyle.Render(fmt.Sprintf("%d topic(s)", len(r.Topics)))))
		}
		for _, t := range r.Topics {
			lines = append(lines, "  "+row(t.Key, t.Name))
		}
		for _, s := range r.Skipped {
			problems++
			lines = append(lines, "  "+errorStyle.Render(fmt.Sprintf("skipped %s: %v", s.Path, s.Err)))
		}
	}
	return strings.Join(lines, "\n"), problems
}
