package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/soundprediction/reconcile"
	"github.com/soundprediction/reconcile/pkg/alert"
	"github.com/soundprediction/reconcile/pkg/config"
	"github.com/soundprediction/reconcile/pkg/embedder"
	"github.com/soundprediction/reconcile/pkg/journal"
	"github.com/soundprediction/reconcile/pkg/nlp"
	"github.com/soundprediction/reconcile/pkg/oracle"
	"github.com/soundprediction/reconcile/pkg/store"
	"github.com/soundprediction/reconcile/pkg/telemetry"
)

var runCmd = &cobra.Command{
	Use:   "run [batch-file...]",
	Short: "Reconcile extraction batches into the knowledge graph",
	Long: `Reconcile extraction batches into the knowledge graph.

Each batch file is a YAML list of extraction batches. Every batch is
reconciled in its own transaction: entities are resolved against the graph,
facts are judged against stored facts, and superseded validity windows are
closed. Completed documents are recorded in a run journal so an interrupted
run can be resumed with --resume.

Configuration can be provided through config files, environment variables, or command-line flags.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

var (
	runGroupID          string
	runSkipInvalidation bool
	runNoEmbeddings     bool
	runResume           bool
	runJournalDir       string
	runTelemetryDir     string
)

func init() {
	rootCmd.AddCommand(runCmd)

	// Run-specific flags
	runCmd.Flags().StringVar(&runGroupID, "group-id", "", "Partition to reconcile into (defaults to config)")
	runCmd.Flags().BoolVar(&runSkipInvalidation, "skip-invalidation", false, "Persist batches without judging them against stored facts")
	runCmd.Flags().BoolVar(&runNoEmbeddings, "no-embeddings", false, "Skip embedding backfill for incoming facts")
	runCmd.Flags().BoolVar(&runResume, "resume", false, "Skip documents the journal records as completed")
	runCmd.Flags().StringVar(&runJournalDir, "journal-dir", "", "Directory for the run journal (default is the OS temp dir)")
	runCmd.Flags().StringVar(&runTelemetryDir, "telemetry-dir", "", "Directory for parquet error and token-usage records (empty disables capture)")

	// Store flags
	runCmd.Flags().String("store-type", "", "Store backend (memory, badger, postgres, neo4j)")
	runCmd.Flags().String("store-dsn", "", "Store connection string (postgres, neo4j)")
	runCmd.Flags().String("store-data-dir", "", "Store data directory (badger)")

	// NLP flags
	runCmd.Flags().String("nlp-model", "", "Oracle chat model")
	runCmd.Flags().String("nlp-api-key", "", "Oracle API key")
	runCmd.Flags().String("nlp-base-url", "", "Oracle base URL")

	// Embedding flags
	runCmd.Flags().String("embedding-model", "", "Embedding model")
	runCmd.Flags().String("embedding-api-key", "", "Embedding API key")
	runCmd.Flags().String("embedding-base-url", "", "Embedding base URL")
}

func runRun(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Override config with command-line flags
	overrideConfigWithFlags(cmd, cfg)

	// Errors that surface during a run are captured as parquet records so
	// failed documents can be triaged after the process exits.
	handler := newLogHandler(cfg)
	if cfg.Telemetry.Dir != "" {
		errorHandler, err := telemetry.NewParquetHandler(handler, cfg.Telemetry.Dir)
		if err != nil {
			return fmt.Errorf("failed to create telemetry handler: %w", err)
		}
		defer func() {
			if err := errorHandler.Flush(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to flush error records: %v\n", err)
			}
		}()
		handler = errorHandler
	}
	logr := slog.New(handler)

	// Initialize the reconciler
	fmt.Println("Initializing reconciler...")
	client, cleanup, err := initializeReconciler(cfg, logr)
	if err != nil {
		return fmt.Errorf("failed to initialize reconciler: %w", err)
	}
	defer cleanup()

	// Stop cleanly on interrupt; in-flight batches abort, the journal
	// records what committed.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := client.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}

	jrnl, err := journal.New(runJournalDir)
	if err != nil {
		return fmt.Errorf("failed to open run journal: %w", err)
	}

	options := &reconcile.ProcessOptions{
		GenerateEmbeddings: !runNoEmbeddings,
		SkipInvalidation:   runSkipInvalidation,
	}

	var processed, skipped, facts, invalidated int
	for _, path := range args {
		batches, err := reconcile.LoadBatchesFile(path)
		if err != nil {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}

		for _, batch := range batches {
			if runResume && batch.DocumentID != "" {
				done, err := jrnl.IsCompleted(ctx, batch.DocumentID)
				if err != nil {
					return fmt.Errorf("failed to consult journal for %s: %w", batch.DocumentID, err)
				}
				if done {
					skipped++
					logr.Info("skipping completed document", "document_id", batch.DocumentID)
					continue
				}
			}

			result, err := client.Process(ctx, *batch, options)
			if err != nil {
				recordFailure(ctx, jrnl, batch.DocumentID, batch.GroupID, err, logr)
				return fmt.Errorf("failed to process document %s: %w", batch.DocumentID, err)
			}

			recordCompleted(ctx, jrnl, result, logr)
			processed++
			facts += len(result.Facts)
			invalidated += len(result.Outcomes)
		}
	}

	fmt.Printf("Processed %d document(s), skipped %d\n", processed, skipped)
	fmt.Printf("Facts written: %d, stored facts invalidated: %d\n", facts, invalidated)

	stats := client.OracleStats()
	fmt.Printf("Oracle calls: %d, cache hits: %d, failures: %d\n", stats.Calls, stats.CacheHits, stats.Failures)

	return nil
}

// recordCompleted journals a committed batch. Journal trouble is reported
// but never fails a run whose data already committed.
func recordCompleted(ctx context.Context, jrnl *journal.Journal, result *reconcile.Result, logr *slog.Logger) {
	if result.DocumentID == "" {
		return
	}
	err := jrnl.RecordCompleted(ctx, result.DocumentID, result.GroupID, result.RunID,
		len(result.Facts), len(result.Triplets), len(result.Outcomes))
	if err != nil {
		logr.Warn("failed to journal completed document", "document_id", result.DocumentID, "error", err)
	}
}

func recordFailure(ctx context.Context, jrnl *journal.Journal, documentID, groupID string, cause error, logr *slog.Logger) {
	if documentID == "" {
		return
	}
	if err := jrnl.RecordFailure(ctx, documentID, groupID, "", cause); err != nil {
		logr.Warn("failed to journal failed document", "document_id", documentID, "error", err)
	}
}

func overrideConfigWithFlags(cmd *cobra.Command, cfg *config.Config) {
	// Run flags
	if cmd.Flags().Changed("group-id") {
		cfg.Reconciler.GroupID = runGroupID
	}

	// Store flags
	if cmd.Flags().Changed("store-type") {
		t, _ := cmd.Flags().GetString("store-type")
		cfg.Store.Type = store.Type(t)
	}
	if cmd.Flags().Changed("store-dsn") {
		cfg.Store.ConnectionString, _ = cmd.Flags().GetString("store-dsn")
	}
	if cmd.Flags().Changed("store-data-dir") {
		cfg.Store.DataDir, _ = cmd.Flags().GetString("store-data-dir")
	}

	// NLP flags apply to the model the oracle is configured to use
	modelName := cfg.Oracle.Model
	if modelName == "" {
		modelName = "default"
	}
	if cfg.NLP.Models == nil {
		cfg.NLP.Models = make(map[string]config.NLPModelConfig)
	}
	if cmd.Flags().Changed("nlp-model") {
		m := cfg.NLP.Models[modelName]
		m.Model, _ = cmd.Flags().GetString("nlp-model")
		cfg.NLP.Models[modelName] = m
	}
	if cmd.Flags().Changed("nlp-api-key") {
		m := cfg.NLP.Models[modelName]
		m.APIKey, _ = cmd.Flags().GetString("nlp-api-key")
		cfg.NLP.Models[modelName] = m
	}
	if cmd.Flags().Changed("nlp-base-url") {
		m := cfg.NLP.Models[modelName]
		m.BaseURL, _ = cmd.Flags().GetString("nlp-base-url")
		cfg.NLP.Models[modelName] = m
	}

	// Embedding flags
	if cmd.Flags().Changed("embedding-model") {
		cfg.Embedding.Model, _ = cmd.Flags().GetString("embedding-model")
	}
	if cmd.Flags().Changed("embedding-api-key") {
		cfg.Embedding.APIKey, _ = cmd.Flags().GetString("embedding-api-key")
	}
	if cmd.Flags().Changed("embedding-base-url") {
		cfg.Embedding.BaseURL, _ = cmd.Flags().GetString("embedding-base-url")
	}

	// Telemetry flags
	if cmd.Flags().Changed("telemetry-dir") {
		cfg.Telemetry.Dir = runTelemetryDir
	}
}

// initializeReconciler assembles the store, oracle and embedder stacks from
// configuration. The returned cleanup closes everything the client does not
// own.
func initializeReconciler(cfg *config.Config, logr *slog.Logger) (*reconcile.Client, func(), error) {
	// Initialize the storage backend
	st, err := store.New(&cfg.Store)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create store: %w", err)
	}

	// Initialize the oracle's model client
	modelName := cfg.Oracle.Model
	if modelName == "" {
		modelName = "default"
	}
	model, ok := cfg.NLP.Models[modelName]
	if !ok {
		return nil, nil, fmt.Errorf("oracle model %q is not configured under nlp.models", modelName)
	}
	if model.APIKey == "" {
		return nil, nil, fmt.Errorf("oracle model %q has no API key (set nlp.models.%s.api_key or OPENAI_API_KEY)", modelName, modelName)
	}

	var modelClient nlp.Client
	switch model.Provider {
	case "openai", "":
		nlpConfig := nlp.Config{
			Model:       model.Model,
			Temperature: &model.Temperature,
			BaseURL:     model.BaseURL,
		}
		if model.MaxTokens > 0 {
			nlpConfig.MaxTokens = &model.MaxTokens
		}
		baseClient, err := nlp.NewOpenAIClient(model.APIKey, nlpConfig)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create model client: %w", err)
		}

		// Wrap with retry client for automatic retry on errors
		retryConfig := nlp.DefaultRetryConfig()
		if cfg.Oracle.MaxAttempts > 0 {
			retryConfig.MaxAttempts = cfg.Oracle.MaxAttempts
		}
		modelClient = nlp.NewRetryClient(baseClient, retryConfig, logr)

		// Token usage is tracked per completed call, so the tracker sits
		// inside the circuit breaker and outside the retry loop.
		if cfg.Telemetry.Dir != "" {
			tracker, err := nlp.NewTokenTracker(cfg.Telemetry.Dir)
			if err != nil {
				logr.Warn("token tracking disabled", "error", err)
			} else {
				modelClient = nlp.NewTokenTrackingClient(modelClient, tracker)
			}
		}

		// Circuit breaking protects long runs from a degraded model API.
		var alerter alert.Alerter
		if cfg.Alert.Enabled {
			alerter = alert.NewEmailAlerter(cfg.Alert)
		}
		modelClient = nlp.NewCircuitBreakerClient(modelClient, cfg.CircuitBreaker, alerter, logr, "oracle")
	default:
		return nil, nil, fmt.Errorf("unsupported NLP provider: %s", model.Provider)
	}

	judge := oracle.NewLLMOracle(modelClient, logr)

	// Initialize embedder client
	var embedderClient embedder.Client
	switch cfg.Embedding.Provider {
	case "openai", "":
		if cfg.Embedding.APIKey != "" {
			embedderConfig := embedder.Config{
				Model:      cfg.Embedding.Model,
				BaseURL:    cfg.Embedding.BaseURL,
				Dimensions: cfg.Embedding.Dimensions,
			}
			embedderClient = embedder.NewOpenAIEmbedder(cfg.Embedding.APIKey, embedderConfig)
		}
	case "embed_everything":
		embedderClient, err = embedder.NewEmbedEverythingClient(embedder.Config{
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimensions,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create embedder: %w", err)
		}
	default:
		return nil, nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Embedding.Provider)
	}

	clientConfig := &reconcile.Config{
		GroupID:                    cfg.Reconciler.GroupID,
		MaxWorkers:                 cfg.Reconciler.MaxWorkers,
		BatchSize:                  cfg.Reconciler.BatchSize,
		BatchPause:                 cfg.Reconciler.BatchPause,
		GenerateEmbeddings:         cfg.Reconciler.GenerateEmbeddings,
		OracleCacheTTL:             cfg.Oracle.CacheTTL,
		OracleCacheCleanupInterval: cfg.Oracle.CacheCleanupInterval,
	}

	client, err := reconcile.NewClient(st, judge, embedderClient, clientConfig, logr)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create client: %w", err)
	}

	cleanup := func() {
		if err := client.Close(context.Background()); err != nil {
			logr.Warn("failed to close store", "error", err)
		}
		if err := modelClient.Close(); err != nil {
			logr.Warn("failed to close model client", "error", err)
		}
		if embedderClient != nil {
			if err := embedderClient.Close(); err != nil {
				logr.Warn("failed to close embedder", "error", err)
			}
		}
	}

	fmt.Printf("Reconciler initialized with store: %s\n", cfg.Store.Type)
	fmt.Printf("Oracle provider: %s, model: %s\n", model.Provider, model.Model)
	if embedderClient != nil {
		fmt.Printf("Embedding provider: %s, model: %s\n", cfg.Embedding.Provider, cfg.Embedding.Model)
	}

	return client, cleanup, nil
}
