package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"vidrelay/internal/app"
	"vidrelay/internal/storage"
	"vidrelay/pkg/config"
)

var resultID string

var resultCmd = &cobra.Command{
	Use:   "result",
	Short: "Print the stored outcome for a unique id",
	Long:  `Look up the outcome recorded under --id in the result store. Exits non-zero when no entry exists.`,
	RunE:  runResult,
}

func init() {
	resultCmd.Flags().StringVar(&resultID, "id", "", "Unique id the upload was submitted with")
	_ = resultCmd.MarkFlagRequired("id")
	rootCmd.AddCommand(resultCmd)
}

func runResult(cmd *cobra.Command, args []string) error {
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

	outcome, err := store.Get(ctx, resultID)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("no result for %q", resultID)
	}
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(outcome, "", "  ")
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

func closeStore(store storage.ResultStore) {
	if closer, ok := store.(io.Closer); ok {
		_ = closer.Close()
	}
}
