package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/geo-ambiental/seia-sync/internal/config"
	"github.com/geo-ambiental/seia-sync/internal/database"
	"github.com/geo-ambiental/seia-sync/internal/extractor"
	"github.com/geo-ambiental/seia-sync/internal/ingestion"
	"github.com/geo-ambiental/seia-sync/internal/metrics"
	"github.com/geo-ambiental/seia-sync/internal/models"
	"github.com/geo-ambiental/seia-sync/internal/objectstore"
	"github.com/geo-ambiental/seia-sync/internal/parser"
	"github.com/geo-ambiental/seia-sync/internal/runlog"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "data_ingestion",
	Short:         "Mirror the SEIA project registry into the warehouse",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Fetch every month since the watermark and merge it",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return execute(cmd.Context(), func(ctx context.Context, handler *ingestion.IngestionService) (*models.RunReport, error) {
			return handler.Run(ctx)
		})
	},
}

var loadCmd = &cobra.Command{
	Use:   "load FILE",
	Short: "Merge a previously downloaded spreadsheet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return execute(cmd.Context(), func(ctx context.Context, handler *ingestion.IngestionService) (*models.RunReport, error) {
			return handler.LoadFile(ctx, args[0])
		})
	},
}

// setup wires the service. The returned sink is live even when err is set so
// the caller can still ship what was logged.
func setup(ctx context.Context, sink *runlog.Sink) (*ingestion.IngestionService, *objectstore.Uploader, func(), error) {
	logger := sink.Logger()

	cfg, err := config.New()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	log := logger.WithField("project_id", cfg.ProjectID)

	uploader, err := objectstore.New(objectstore.Config{
		Endpoint:  cfg.ObjectStoreEndpoint,
		AccessKey: cfg.ObjectStoreAccessKey,
		SecretKey: cfg.ObjectStoreSecretKey,
		Region:    cfg.ObjectStoreRegion,
		UseSSL:    cfg.ObjectStoreUseSSL,
		Bucket:    cfg.BucketName,
	})
	if err != nil {
		return nil, nil, nil, err
	}

	dbpool, err := database.ConnectDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, uploader, nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	tables := database.Tables{Schema: cfg.DatasetID, Projects: cfg.TableID}
	store := database.NewStore(dbpool, tables, cfg.Location, log)
	ledger := database.NewFileLedger(dbpool, tables)
	processor := ingestion.NewFileProcessor(parser.NewFileReader(), store, ledger, log)

	opener := extractor.Opener{
		Launcher: extractor.RodLauncher{
			SearchURL: cfg.SearchURL,
			Bin:       cfg.BrowserBin,
			Headless:  cfg.BrowserHeadless,
		},
		DownloadDir: cfg.DownloadDir,
		Config: extractor.Config{
			SettleDelay:     cfg.SettleDelay,
			ResultTimeout:   cfg.ResultTimeout,
			DownloadTimeout: cfg.DownloadTimeout,
			PollInterval:    cfg.PollInterval,
		},
		Clock:  extractor.NewSystemClock(),
		Logger: log,
	}

	handler := ingestion.NewIngestionService(ingestion.Dependencies{
		Store:  store,
		Ledger: ledger,
		Opener: ingestion.OpenerFunc(func(ctx context.Context) (ingestion.Fetcher, error) {
			ext, err := opener.Open(ctx)
			if err != nil {
				return nil, err
			}
			return ext, nil
		}),
		Processor: processor,
		RunLog:    sink,
		Uploader:  uploader,
		Recorder:  metrics.NewRecorder(),
		Pusher:    metrics.NewPusher(cfg.PushgatewayURL, cfg.ProjectID),
	}, ingestion.Config{
		DefaultWatermark: cfg.DefaultWatermark,
		Location:         cfg.Location,
	}, log)

	if err := uploader.EnsureBucket(ctx); err != nil {
		log.WithError(err).Warn("Could not verify log bucket")
	}

	return handler, uploader, dbpool.Close, nil
}

func execute(ctx context.Context, run func(context.Context, *ingestion.IngestionService) (*models.RunReport, error)) error {
	startTime := time.Now()
	sink := runlog.New(os.Stdout, startTime)
	logger := sink.Logger()

	handler, uploader, cleanupFunc, err := setup(ctx, sink)
	if err != nil {
		logger.WithError(err).Error("Setup failed")
		if uploader != nil {
			if _, exportErr := sink.Export(context.WithoutCancel(ctx), uploader); exportErr != nil {
				logger.WithError(exportErr).Error("Failed to export run log")
			}
		}
		return err
	}
	defer cleanup(logger, cleanupFunc)

	report, err := run(ctx, handler)
	logger.Infof("Execution time: %s", time.Since(startTime))
	return runOutcome(logger, report, err)
}

// runOutcome decides the exit status. Failed ranges are listed in the run log
// but only a fatal error from the run fails the process.
func runOutcome(logger logrus.FieldLogger, report *models.RunReport, err error) error {
	if err != nil {
		return err
	}
	if failed := report.Failed(); failed > 0 {
		logger.Warnf("%d of %d ranges failed", failed, len(report.Ranges))
		return nil
	}
	logger.Infof("All %d ranges completed", len(report.Ranges))
	return nil
}

func cleanup(logger logrus.FieldLogger, cleanupFunc func()) {
	logger.Info("Cleaning up resources...")
	cleanupFunc()
}

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not load .env file: %v\n", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.AddCommand(runCmd, loadCmd)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
