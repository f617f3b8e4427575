package cmd

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sola-insurance/storm-sims/pkg/ledger"
	"github.com/sola-insurance/storm-sims/pkg/models"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "List idempotency ledger records",
	Long: `Ledger lists the idempotency records the workers have written:
which work item ids completed, failed, or are still in flight. Requires
LEDGER_DSN to point at the Postgres ledger.`,
	RunE: runLedger,
}

func runLedger(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.LedgerDSN == "" {
		return fmt.Errorf("LEDGER_DSN is not set; there is no durable ledger to inspect")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	pg, err := ledger.NewPostgres(ctx, cfg.LedgerDSN)
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	defer func() { _ = pg.Close() }()

	records, err := pg.List(ctx)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("Ledger is empty.")
		return nil
	}

	counts := make(map[models.RecordStatus]int)
	for _, rec := range records {
		statusColor(rec.Status).Printf("%-12s", rec.Status)
		fmt.Printf(" %s  started=%s", rec.WorkItemID, rec.StartedAt.Format("2006-01-02 15:04:05"))
		if !rec.CompletedAt.IsZero() {
			fmt.Printf("  finished=%s", rec.CompletedAt.Format("2006-01-02 15:04:05"))
		}
		fmt.Println()
		counts[rec.Status]++
	}

	fmt.Println()
	fmt.Printf("%d record(s): %d completed, %d pending, %d failed\n",
		len(records),
		counts[models.StatusCompleted],
		counts[models.StatusPending],
		counts[models.StatusFailed])
	return nil
}

func statusColor(status models.RecordStatus) *color.Color {
	switch status {
	case models.StatusCompleted:
		return color.New(color.FgGreen)
	case models.StatusFailed:
		return color.New(color.FgRed)
	default:
		return color.New(color.FgYellow)
	}
}
