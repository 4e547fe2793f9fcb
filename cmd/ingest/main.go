package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/kevalrajpalknight/proactive-onboarding-engine/internal/config"
	"github.com/kevalrajpalknight/proactive-onboarding-engine/internal/ingest"
	"github.com/kevalrajpalknight/proactive-onboarding-engine/internal/store"
)

var (
	dataDir      string
	chunkSize    int
	chunkOverlap int
	reset        bool
	dryRun       bool
	logLevel     string
	databaseURL  string
)

var rootCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Manage the company policy index",
	Long: `Index markdown policy documents so the policy researcher can search them.

Documents may start with a YAML front matter block (title, tags, owner).
Each document is split on #, ## and ### headings, then into overlapping
chunks that are stored in Postgres for full-text search.`,
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Index every *.md file in the data directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		setupLogging(logLevel)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		cfg := ingest.Config{
			DataDir:      dataDir,
			ChunkSize:    chunkSize,
			ChunkOverlap: chunkOverlap,
			Reset:        reset,
			DryRun:       dryRun,
		}
		if cfg.ChunkSize <= 0 {
			return fmt.Errorf("--chunk-size must be > 0")
		}

		var index ingest.Index = noopIndex{}
		if !dryRun {
			if databaseURL == "" {
				return fmt.Errorf("DATABASE_URL is required unless --dry-run is set")
			}
			db, err := store.New(ctx, databaseURL)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := db.Migrate(ctx); err != nil {
				return err
			}
			index = db
		}

		sum, err := ingest.NewRunner(cfg, index, slog.Default()).Run(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "files: %d  chunks: %d  written: %d  deleted: %d  errors: %d\n",
			sum.Files, sum.Chunks, sum.Written, sum.Deleted, len(sum.Errors))
		for _, e := range sum.Errors {
			fmt.Fprintf(cmd.ErrOrStderr(), "  %s\n", e)
		}
		return nil
	},
}

// noopIndex stands in for the database during a dry run.
type noopIndex struct{}

func (noopIndex) ReplacePolicyDocument(context.Context, string, []store.PolicyChunk) (int64, int, error) {
	return 0, 0, nil
}
func (noopIndex) DeletePolicyChunks(context.Context, string) (int64, error) { return 0, nil }

func init() {
	_ = godotenv.Load()
	defaults := config.FromEnv()
	databaseURL = defaults.DatabaseURL

	runCmd.Flags().StringVar(&dataDir, "data-dir", defaults.RAGDataDir, "Directory containing *.md policy documents")
	runCmd.Flags().IntVar(&chunkSize, "chunk-size", defaults.RAGChunkSize, "Maximum chunk size in characters")
	runCmd.Flags().IntVar(&chunkOverlap, "chunk-overlap", defaults.RAGChunkOverlap, "Overlap between consecutive chunks in characters")
	runCmd.Flags().BoolVar(&reset, "reset", false, "Delete every indexed chunk before ingesting")
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Split documents and report counts without writing")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", defaults.LogLevel, "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(runCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
