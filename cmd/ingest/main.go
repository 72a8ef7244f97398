// Command ingest loads study records into the graph store and links them to
// ontology resources in one pass.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"studygraph/internal/config"
	"studygraph/internal/logger"
	"studygraph/internal/metrics"
	"studygraph/internal/pipeline"
	"studygraph/internal/source"
	"studygraph/internal/storage"
	"studygraph/internal/util"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

const (
	Version = "0.1.0"
	appName = "ingest"
)

type runOptions struct {
	input      string
	kinds      []string
	workers    int
	summaryOut string
	store      string
	resolve    bool
}

func main() {
	_ = godotenv.Load(".env")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd(config.Load()).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd(cfg config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:           appName,
		Short:         "Build the study knowledge graph",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(runCmd(cfg, false), runCmd(cfg, true))
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appName, Version)
		},
	})
	return cmd
}

func runCmd(cfg config.Config, resolveOnly bool) *cobra.Command {
	opts := runOptions{resolve: resolveOnly}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Ingest every kind, then link and resolve references",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPipeline(cmd.Context(), cfg, opts, cmd.OutOrStdout())
		},
	}
	if resolveOnly {
		cmd.Use = "resolve"
		cmd.Short = "Link and resolve nodes already in the graph"
	} else {
		cmd.Flags().StringVar(&opts.input, "input", "", "Input directory with one file per kind (default: STUDYGRAPH_DATA_IN)")
	}
	cmd.Flags().StringSliceVar(&opts.kinds, "kinds", nil, "Restrict the run to these kinds")
	cmd.Flags().IntVar(&opts.workers, "workers", 0, "Concurrent upserts per kind (default: STUDYGRAPH_INGEST_WORKERS)")
	cmd.Flags().StringVar(&opts.summaryOut, "summary-out", "", "Directory for summary.json and unresolved.jsonl (default: STUDYGRAPH_DATA_OUT/runs/<run id>)")
	cmd.Flags().StringVar(&opts.store, "store", "", "Graph store backend: neo4j, postgres or memory")
	return cmd
}

func runPipeline(ctx context.Context, cfg config.Config, opts runOptions, out io.Writer) error {
	if s := strings.TrimSpace(opts.store); s != "" {
		cfg.Store = strings.ToLower(s)
	}
	if opts.workers > 0 {
		cfg.IngestWorkers = opts.workers
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	lg, err := logger.New(cfg.LogMode, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer lg.Sync()

	rec, err := metrics.New(prometheus.NewRegistry())
	if err != nil {
		return err
	}

	openCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	store, err := storage.Open(openCtx, cfg.StoreOptions(), lg)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Store, err)
	}
	defer func() {
		closeCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if cerr := store.Close(closeCtx); cerr != nil {
			lg.Warn("close graph store", "error", cerr)
		}
	}()

	input := opts.input
	if strings.TrimSpace(input) == "" {
		input = cfg.DataInRoot
	}
	driver := pipeline.NewDriver(store, rec, lg, pipeline.Options{
		Workers:     cfg.IngestWorkers,
		Kinds:       opts.kinds,
		ResolveOnly: opts.resolve,
	})
	sum, runErr := driver.Run(ctx, source.Dir{Root: input})

	dir := opts.summaryOut
	if dir == "" {
		dir = util.SafeJoin(filepath.Join(cfg.DataOutRoot, "runs"), sum.RunID)
	}
	path, err := sum.WriteReport(dir)
	if err != nil {
		lg.Warn("write run summary", "dir", dir, "error", err)
	} else {
		lg.Info("run summary written", "path", path)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(totals(sum)); err != nil {
		return err
	}
	return runErr
}

type runTotals struct {
	RunID                string `json:"run_id"`
	NodesCreated         int    `json:"nodes_created"`
	NodesUpdated         int    `json:"nodes_updated"`
	RelationshipsCreated int    `json:"relationships_created"`
	Unresolved           int    `json:"references_unresolved"`
	RecordsSkipped       int    `json:"records_skipped"`
	FieldsSkipped        int    `json:"fields_skipped"`
	DanglingLinks        int    `json:"dangling_links"`
	DurationMS           int64  `json:"duration_ms"`
}

func totals(s pipeline.Summary) runTotals {
	return runTotals{
		RunID:                s.RunID,
		NodesCreated:         s.NodesCreated,
		NodesUpdated:         s.NodesUpdated,
		RelationshipsCreated: s.RelationshipsCreated,
		Unresolved:           s.Unresolved,
		RecordsSkipped:       s.RecordsSkipped,
		FieldsSkipped:        s.FieldsSkipped,
		DanglingLinks:        s.DanglingLinks,
		DurationMS:           s.DurationMS,
	}
}
