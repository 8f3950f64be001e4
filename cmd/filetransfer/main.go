package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vertextoedge/filetransfer/internal/adapter/badger"
	"github.com/vertextoedge/filetransfer/internal/adapter/filesystem"
	"github.com/vertextoedge/filetransfer/internal/adapter/httpdownload"
	"github.com/vertextoedge/filetransfer/internal/adapter/memory"
	"github.com/vertextoedge/filetransfer/internal/adapter/sqlite"
	"github.com/vertextoedge/filetransfer/internal/adapter/tus"
	"github.com/vertextoedge/filetransfer/internal/config"
	"github.com/vertextoedge/filetransfer/internal/domain/event"
	"github.com/vertextoedge/filetransfer/internal/logger"
	"github.com/vertextoedge/filetransfer/internal/port"
	"github.com/vertextoedge/filetransfer/internal/service/downloader"
	"github.com/vertextoedge/filetransfer/internal/service/maintenance"
	"github.com/vertextoedge/filetransfer/internal/service/uploader"
)

const version = "0.1.0"

var (
	configPath string
	app        *application
)

// application holds the wired services for one command invocation
type application struct {
	cfg         *config.Config
	logger      *zap.Logger
	store       port.KVStore
	fs          *filesystem.Manager
	events      *event.InMemoryDispatcher
	stats       *event.StatsHandler
	downloads   *downloader.Manager
	uploads     *uploader.Manager
	maintenance *maintenance.Service
}

var rootCmd = &cobra.Command{
	Use:   "filetransfer",
	Short: "Pausable downloads and resumable uploads",
	Long: `filetransfer downloads files over HTTP with pause and resume support
and uploads local files to tus 1.0.0 endpoints in resumable chunks.

Transfer state (completed downloads, paused downloads and upload sessions)
is kept in a local key-value store so interrupted transfers can continue.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApplication(configPath)
		if err != nil {
			return err
		}
		app = a
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		app.close()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to configuration file")

	rootCmd.AddCommand(downloadCmd, resumeCmd, uploadCmd, statusCmd, cleanCmd, discardCmd, deleteCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if app != nil {
			app.close()
		}
		os.Exit(1)
	}
}

func newApplication(path string) (*application, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	zapLogger := logger.GetZapLogger()
	zapLogger.Debug("starting filetransfer",
		zap.String("version", version),
		zap.String("config", path),
		zap.String("store", cfg.Store.Driver))

	fsManager, err := filesystem.NewManagerWithBufferSize(cfg.Download.RootDir, cfg.HTTP.GetBufferSize())
	if err != nil {
		return nil, err
	}

	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	stats := event.NewStatsHandler()
	events := event.NewInMemoryDispatcher(false)
	events.Subscribe(event.NewLoggingHandler(logger.Named("events")))
	events.Subscribe(stats)

	downloadClient := httpdownload.NewClient(fsManager, &httpdownload.ClientConfig{
		SkipTLSVerify:         cfg.HTTP.SkipTLSVerify,
		BufferSizeMB:          cfg.HTTP.BufferSizeMB,
		ResponseHeaderTimeout: cfg.HTTP.GetResponseHeaderTimeout(),
		ProgressInterval:      cfg.Download.GetProgressInterval(),
		CheckDiskSpace:        cfg.Download.CheckDiskSpace,
	}, logger.Named("httpdownload"))

	uploadClient := tus.NewClient(newUploadHTTPClient(cfg), store, logger.Named("tus"))

	return &application{
		cfg:       cfg,
		logger:    zapLogger,
		store:     store,
		fs:        fsManager,
		events:    events,
		stats:     stats,
		downloads: downloader.New(store, downloadClient, events, logger.Named("downloader")),
		uploads:   uploader.New(nil, fsManager, uploadClient, nil, events, logger.Named("uploader")),
		maintenance: maintenance.New(&maintenance.Config{
			TempFileMaxAge: cfg.Maintenance.GetTempFileMaxAge(),
			Interval:       cfg.Maintenance.GetInterval(),
		}, fsManager, store, events, logger.Named("maintenance")),
	}, nil
}

func openStore(cfg *config.Config) (port.KVStore, error) {
	path := cfg.Store.GetPath(cfg.Download.RootDir)

	switch cfg.Store.Driver {
	case config.DriverBadger:
		store, err := badger.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open badger store at %s: %w", path, err)
		}
		return store, nil
	case config.DriverMemory:
		return memory.New(), nil
	default:
		store, err := sqlite.OpenWithOptions(path, &sqlite.Options{
			CacheSizeMB:   cfg.Store.CacheSizeMB,
			BusyTimeoutMs: cfg.Store.BusyTimeoutMs,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open database at %s: %w", path, err)
		}
		return store, nil
	}
}

func (a *application) close() {
	if a == nil {
		return
	}
	a.events.Wait()
	if err := a.store.Close(); err != nil {
		a.logger.Warn("failed to close store", zap.Error(err))
	}
	a.logger.Debug("transfer stats", zap.Any("stats", a.stats.GetStats()))
	logger.Sync()
	app = nil
}
