package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/wall-e-bot/mergebot/internal/clock"
	"github.com/wall-e-bot/mergebot/internal/config"
	"github.com/wall-e-bot/mergebot/internal/dispatch"
	"github.com/wall-e-bot/mergebot/internal/hostclient"
	"github.com/wall-e-bot/mergebot/internal/merge"
	"github.com/wall-e-bot/mergebot/internal/style"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print every target branch's current merge-queue state",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return err
	}
	token, err := cfg.Token()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	log := newLogger(cfg.LogLevel)
	client := hostclient.NewGitHubClient(ctx, cfg.Owner, cfg.Repo, token, log)

	d := dispatch.New(dispatch.Config{
		IntegrationLabel:             cfg.IntegrationLabel,
		TopPriorityLabels:            cfg.TopPriorityLabels,
		RequiresAllStatusChecks:      cfg.RequiresAllStatusChecks,
		StatusChecksTimeout:          cfg.StatusChecksTimeout.Duration,
		IdleMergeServiceCleanupDelay: cfg.IdleMergeServiceCleanupDelay.Duration,
		BotUser:                      cfg.BotUser,
		BootstrapConcurrency:         cfg.BootstrapConcurrency,
	}, client, clock.Real{}, log, nil, nil)

	if err := d.Bootstrap(ctx); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}

	printSnapshot(d.Snapshot())
	return nil
}

func printSnapshot(snap map[string]merge.StateSnapshot) {
	branches := make([]string, 0, len(snap))
	for b := range snap {
		branches = append(branches, b)
	}
	sort.Strings(branches)

	tbl := style.NewTable(
		style.Column{Name: "BRANCH", Width: 24},
		style.Column{Name: "STATUS", Width: 20},
		style.Column{Name: "HEAD PR", Width: 10},
		style.Column{Name: "QUEUE", Width: 8},
	)
	for _, b := range branches {
		s := snap[b]
		head := "-"
		if s.Status.Metadata != nil {
			head = fmt.Sprintf("#%d", s.Status.Metadata.Number)
		}
		tbl.AddRow(b, string(s.Status.Status), head, fmt.Sprintf("%d", len(s.Queue)))
	}
	fmt.Print(tbl.Render())
}
