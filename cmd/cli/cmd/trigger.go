package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sola-insurance/storm-sims/pkg/channel"
	"github.com/sola-insurance/storm-sims/pkg/config"
	"github.com/sola-insurance/storm-sims/pkg/dispatch"
	"github.com/sola-insurance/storm-sims/pkg/logger"
	"github.com/sola-insurance/storm-sims/pkg/models"
	"github.com/sola-insurance/storm-sims/pkg/prompt"
	"github.com/sola-insurance/storm-sims/pkg/storm"
)

var triggerCmd = &cobra.Command{
	Use:   "trigger",
	Short: "Fan out a batch of storm simulations",
	Long: `Trigger publishes one work item per requested simulation onto the
message channel, where workers pick them up in parallel. Re-running trigger
creates a brand new batch; pass --request-key to have a duplicate invocation
of the same external trigger rejected instead of re-published.`,
	RunE: runTrigger,
}

func init() {
	triggerCmd.Flags().StringP("storm-type", "s", models.DefaultStormType, "type of storm to simulate")
	triggerCmd.Flags().IntP("num-sims", "n", 0, "number of simulations to fan out")
	triggerCmd.Flags().StringSlice("states", nil, "two-letter state codes to simulate against")
	triggerCmd.Flags().String("request-key", "", "external trigger invocation key, used to reject duplicate triggers")
	triggerCmd.Flags().Bool("dry-run", false, "log the work items instead of publishing them")
}

func runTrigger(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	stormType, err := resolveStormType(cmd)
	if err != nil {
		return err
	}
	states, _ := cmd.Flags().GetStringSlice("states")
	requestKey, _ := cmd.Flags().GetString("request-key")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	numSims, err := resolveNumSims(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	pub, cleanup, err := buildPublisher(ctx, cfg, dryRun)
	if err != nil {
		return err
	}
	defer cleanup()

	guard, guardCleanup, err := buildGuard(ctx, cfg, requestKey)
	if err != nil {
		return err
	}
	defer guardCleanup()

	dispatcher := dispatch.New(pub, guard, dispatch.Options{
		Topic:               cfg.Topic,
		SupportedStormTypes: storm.DefaultRegistry.List(),
	}, logger.New())

	summary, err := dispatcher.HandleBatch(ctx, models.BatchRequest{
		StormType:  stormType,
		NumSims:    numSims,
		States:     states,
		RequestKey: requestKey,
	})
	if errors.Is(err, dispatch.ErrInvalidRequest) || errors.Is(err, dispatch.ErrDuplicateTrigger) {
		return err
	}
	if err != nil {
		return fmt.Errorf("fan-out failed: %w", err)
	}

	printSummary(summary, numSims)
	if summary.NumPublished == 0 && numSims > 0 {
		logger.Failuref("All %d publishes failed", numSims)
		return fmt.Errorf("all %d publishes failed", numSims)
	}
	return nil
}

// resolveNumSims reads the flag, prompting interactively when it was not
// provided. A failed prompt (no terminal) falls back to the default.
func resolveNumSims(cmd *cobra.Command) (int, error) {
	if cmd.Flags().Changed("num-sims") {
		return cmd.Flags().GetInt("num-sims")
	}

	n, err := prompt.Int("Number of simulations to run:", models.DefaultNumSims, 1)
	if err != nil {
		logger.Debugf("prompt unavailable, using default: %v", err)
		return models.DefaultNumSims, nil
	}
	return n, nil
}

// resolveStormType reads the flag, offering a choice of registered storm
// models when it was not provided.
func resolveStormType(cmd *cobra.Command) (string, error) {
	if cmd.Flags().Changed("storm-type") {
		return cmd.Flags().GetString("storm-type")
	}

	choice, err := prompt.Select("Storm type to simulate:", storm.DefaultRegistry.List(), models.DefaultStormType)
	if err != nil {
		logger.Debugf("prompt unavailable, using default: %v", err)
		return models.DefaultStormType, nil
	}
	return choice, nil
}

// buildGuard opens the durable dispatch guard next to the ledger when a DSN
// is configured. A retried scheduler invocation is a fresh process, so only
// the durable guard can reject it; the in-process fallback covers nothing
// beyond this invocation.
func buildGuard(ctx context.Context, cfg config.Config, requestKey string) (dispatch.Guard, func(), error) {
	if cfg.LedgerDSN != "" {
		pg, err := dispatch.NewPostgresGuard(ctx, cfg.LedgerDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open dispatch guard: %w", err)
		}
		return pg, func() { _ = pg.Close() }, nil
	}

	if requestKey != "" {
		logger.Warn("LEDGER_DSN not set; duplicate triggers from other processes will not be rejected")
	}
	return dispatch.NewMemoryGuard(), func() {}, nil
}

// buildPublisher picks the channel implementation for the run, returning a
// cleanup func for the real transport.
func buildPublisher(ctx context.Context, cfg config.Config, dryRun bool) (channel.Publisher, func(), error) {
	if dryRun || cfg.SkipPubSub {
		logger.Warn("dry-run mode: work items will be logged, not published")
		return channel.NewInert(logger.New()), func() {}, nil
	}

	ps, err := channel.NewPubSub(ctx, cfg.ProjectID, logger.New())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to pubsub: %w", err)
	}
	return ps, func() { _ = ps.Close() }, nil
}

func printSummary(summary models.BatchSummary, requested int) {
	headline := color.New(color.FgGreen, color.Bold)
	switch {
	case summary.NumPublished == 0:
		headline = color.New(color.FgRed, color.Bold)
	case summary.NumFailed > 0:
		headline = color.New(color.FgYellow, color.Bold)
	}

	headline.Printf("Batch %s\n", summary.BatchID)
	fmt.Printf("  requested:  %d\n", requested)
	fmt.Printf("  published:  %d\n", summary.NumPublished)
	fmt.Printf("  failed:     %d\n", summary.NumFailed)
}
