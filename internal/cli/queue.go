package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/venuepost/publisher/internal/core/config"
	"github.com/venuepost/publisher/internal/infra/storage"
	"github.com/venuepost/publisher/internal/infra/storage/postgres"
)

var retryCmd = &cobra.Command{
	Use:   "retry [queue_id]",
	Short: "Reset a failed queue item so the next cycle republishes it",
	Args:  cobra.ExactArgs(1),
	Run:   runRetry,
}

var cancelCmd = &cobra.Command{
	Use:   "cancel [queue_id]",
	Short: "Cancel a pending or failed queue item",
	Args:  cobra.ExactArgs(1),
	Run:   runCancel,
}

func init() {
	rootCmd.AddCommand(retryCmd)
	rootCmd.AddCommand(cancelCmd)
}

func openQueue(ctx context.Context) (*postgres.DB, storage.QueueRepository) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	return db, postgres.NewQueueRepo(db)
}

func runRetry(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	db, queue := openQueue(ctx)
	defer func() {
		_ = db.Close()
	}()

	id := args[0]
	if err := queue.ResetForRetry(ctx, id, time.Now()); err != nil {
		slog.Error("Failed to reset item", "queue_id", id, "error", err)
		os.Exit(1)
	}
	fmt.Printf("Queue item %s reset, it will be claimed on the next cycle\n", id)
}

func runCancel(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	db, queue := openQueue(ctx)
	defer func() {
		_ = db.Close()
	}()

	id := args[0]
	if err := queue.Cancel(ctx, id); err != nil {
		slog.Error("Failed to cancel item", "queue_id", id, "error", err)
		os.Exit(1)
	}
	fmt.Printf("Queue item %s cancelled\n", id)
}
