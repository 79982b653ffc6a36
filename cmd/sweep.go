package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"vidrelay/internal/app"
	"vidrelay/internal/storage"
	"vidrelay/pkg/config"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete expired results from the store",
	Long:  `Remove every result entry older than the retention window (24h by default) in one batched write.`,
	RunE:  runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	store, err := app.BuildStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore(store)

	result, err := storage.NewSweeper(store, cfg.Store.Retention).Sweep(ctx)
	if err != nil {
		return err
	}

	summary := fmt.Sprintf("✓ Scanned %d result(s), deleted %d of %d expired", result.Scanned, result.Deleted, len(result.Expired))
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), uploadSuccessStyle.Render(summary))
	return nil
}
