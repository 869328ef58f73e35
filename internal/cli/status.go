package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/venuepost/publisher/internal/core/config"
	"github.com/venuepost/publisher/internal/infra/storage/postgres"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show queue depth per status and the most recent failures",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = db.Close()
	}()

	counts, err := postgres.NewQueueRepo(db).CountByStatus(ctx)
	if err != nil {
		slog.Error("Failed to query queue", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "STATUS\tCOUNT")
	for status, n := range counts {
		_, _ = fmt.Fprintf(w, "%s\t%d\n", status, n)
	}
	_ = w.Flush()

	rows, err := db.QueryContext(ctx,
		`SELECT id, post_id, attempts, COALESCE(last_error, '') FROM publish_queue
		 WHERE status = 'failed' ORDER BY updated_at DESC LIMIT 10`)
	if err != nil {
		slog.Error("Failed to query failures", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = rows.Close()
	}()

	fmt.Println()
	w = tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "QUEUE ID\tPOST\tATTEMPTS\tLAST ERROR")
	for rows.Next() {
		var id, postID, lastError string
		var attempts int
		if err := rows.Scan(&id, &postID, &attempts, &lastError); err != nil {
			continue
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", id, postID, attempts, lastError)
	}
	_ = w.Flush()
}
