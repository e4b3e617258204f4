package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/m3rciful/quizbot/internal/progress"
	"github.com/m3rciful/quizbot/internal/storage"
)

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <user-id>",
		Short: "Print the stats and badges of one user",
		Args:  cobra.ExactArgs(1),
		RunE:  runStatsCmd,
	}
}

func runStatsCmd(cmd *cobra.Command, args []string) error {
	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid user id %q: %w", args[0], err)
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	st, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to open progress store: %w", err)
	}
	defer st.Close()

	table, err := st.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load stats: %w", err)
	}
	stats, ok := table[userID]
	if !ok {
		return fmt.Errorf("no stats for user %d", userID)
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderStats(userID, stats))
	return nil
}

func renderStats(userID progress.UserID, s progress.UserStats) string {
	lines := []string{
		titleStyle.Render(fmt.Sprintf("User %d", userID)),
		row("Answered", strconv.Itoa(s.Total)),
		row("Correct", fmt.Sprintf("%d (%d%%)", s.Correct, s.Accuracy())),
		row("Current streak", strconv.Itoa(s.CurrentStreak)),
		row("Best streak", strconv.Itoa(s.BestStreak)),
		row("Levels", strings.Join(s.Levels.Sorted(), ", ")),
		row("Topics", strings.Join(s.Topics.Sorted(), ", ")),
		"",
		titleStyle.Render("Achievements"),
	}
	unlocked := make(map[progress.AchievementID]bool)
	for _, id := range progress.AchievementsFor(s) {
		unlocked[id] = true
	}
	for _, a := range progress.Catalogue() {
		mark := mutedStyle.Render("·")
		if unlocked[a.ID] {
			mark = okStyle.Render("✓")
		}
		lines = append(lines, fmt.Sprintf("%s %s %s", mark, a.Title, mutedStyle.Render(a.Description)))
	}
	return cardStyle.Render(strings.Join(lines, "\n"))
}
