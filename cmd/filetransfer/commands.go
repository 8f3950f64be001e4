package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vertextoedge/filetransfer/internal/config"
	"github.com/vertextoedge/filetransfer/internal/domain"
	"github.com/vertextoedge/filetransfer/internal/progress"
	"github.com/vertextoedge/filetransfer/internal/service/downloader"
)

var (
	downloadHeaders   []string
	downloadOverwrite bool
	uploadEndpoint  string
	uploadMetadata  []string
	uploadHeaders   []string
)

var downloadCmd = &cobra.Command{
	Use:   "download <url> <destination>",
	Short: "Download a URL to a local path",
	Long: `Download a URL to a local path. Relative destinations are placed under
the configured download root.

Press Ctrl+C to pause. The download can be continued later with
"filetransfer resume <destination>".`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		headers, err := parsePairs(downloadHeaders)
		if err != nil {
			return err
		}
		if downloadOverwrite {
			if err := clearDestination(context.Background(), args[1]); err != nil {
				return err
			}
		}
		h := app.downloads.Start(context.Background(), args[0], args[1], headers, printProgress("download"))
		return waitDownload(h)
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume <destination>",
	Short: "Continue a paused download",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := app.downloads.StartResume(context.Background(), args[0], printProgress("resume"))
		if err != nil {
			return err
		}
		return waitDownload(h)
	},
}

var uploadCmd = &cobra.Command{
	Use:   "upload <path>",
	Short: "Upload a local file to a tus endpoint",
	Long: `Upload a local file to a tus 1.0.0 endpoint in resumable chunks.

An interrupted upload of the same file to the same endpoint continues
from the last acknowledged offset the next time it is started.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		endpoint := uploadEndpoint
		if endpoint == "" {
			endpoint = app.cfg.Upload.Endpoint
		}
		if endpoint == "" {
			return errors.New("no upload endpoint: pass --endpoint or set upload.endpoint")
		}
		metadata, err := parsePairs(uploadMetadata)
		if err != nil {
			return err
		}
		headers, err := parsePairs(uploadHeaders)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		started := time.Now()
		url, err := app.uploads.Upload(ctx, args[0], endpoint, metadata, headers, printProgress("upload"))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return err
		}

		size := "unknown size"
		if info, probeErr := app.fs.Probe(args[0]); probeErr == nil && info.Exists {
			size = humanize.Bytes(uint64(info.Size))
		}
		fmt.Printf("Uploaded %s (%s) in %s\n%s\n", args[0], size, time.Since(started).Round(time.Millisecond), url)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <destination>",
	Short: "Show the stored state of a download destination",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		dest := args[0]

		uri, ok, err := app.downloads.CompletedURI(ctx, dest)
		if err != nil {
			return err
		}
		if ok {
			fmt.Printf("completed: %s", uri)
			if info, probeErr := app.fs.Probe(uri); probeErr == nil && info.Exists {
				fmt.Printf(" (%s, %s)", humanize.Bytes(uint64(info.Size)), humanize.Time(info.ModTime))
			}
			fmt.Println()
		}

		desc, ok, err := app.downloads.PausedDescriptor(ctx, dest)
		if err != nil {
			return err
		}
		if ok {
			fmt.Printf("paused:    %s\n", desc.URL)
			if size, modTime, statErr := app.fs.GetTempFileInfo(app.fs.TempPath(dest)); statErr == nil {
				fmt.Printf("           %s received, last written %s\n", humanize.Bytes(uint64(size)), humanize.Time(modTime))
			}
		}

		if uri == "" && desc == nil {
			fmt.Printf("no transfer state for %s\n", dest)
		}
		return nil
	},
}

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove abandoned partial downloads",
	Long: `Remove partial downloads older than maintenance.temp_file_max_age that
no paused download refers to.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		removed, err := app.maintenance.RunOnce(context.Background())
		if err != nil {
			return err
		}
		fmt.Printf("removed %s temp file(s)\n", humanize.Comma(int64(removed)))
		return nil
	},
}

var discardCmd = &cobra.Command{
	Use:   "discard <destination>",
	Short: "Drop a paused download and its partial file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := app.maintenance.Discard(context.Background(), args[0]); err != nil {
			return err
		}
		fmt.Printf("discarded %s\n", args[0])
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <path>",
	Short: "Delete a downloaded file and its stored record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := app.maintenance.Delete(context.Background(), args[0]); err != nil {
			return err
		}
		fmt.Printf("deleted %s\n", args[0])
		return nil
	},
}

// clearDestination removes an earlier download to dest, finished or paused
func clearDestination(ctx context.Context, dest string) error {
	if err := app.maintenance.Discard(ctx, dest); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	if err := app.maintenance.Delete(ctx, dest); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	return nil
}

func init() {
	downloadCmd.Flags().StringArrayVar(&downloadHeaders, "header", nil, "request header as key=value (repeatable)")
	downloadCmd.Flags().BoolVar(&downloadOverwrite, "overwrite", false, "remove an existing file or paused download at the destination first")

	uploadCmd.Flags().StringVar(&uploadEndpoint, "endpoint", "", "tus creation endpoint (default from upload.endpoint)")
	uploadCmd.Flags().StringArrayVar(&uploadMetadata, "meta", nil, "upload metadata as key=value (repeatable)")
	uploadCmd.Flags().StringArrayVar(&uploadHeaders, "header", nil, "request header as key=value (repeatable)")
}

// waitDownload blocks until h finishes. An interrupt pauses the download
// and stores its resume descriptor.
func waitDownload(h *downloader.Handle) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	started := time.Now()

	select {
	case <-h.Done():
	case <-sigChan:
		fmt.Fprintln(os.Stderr, "\nPausing download...")
		if _, err := app.downloads.Pause(context.Background(), h); err != nil {
			app.logger.Warn("failed to pause download", zap.Error(err))
		}
	}

	uri, err := h.Wait(context.Background())
	fmt.Fprintln(os.Stderr)
	if downloader.IsPaused(h, err) {
		fmt.Printf("Paused %s\nRun \"filetransfer resume %s\" to continue\n", h.Path(), h.Path())
		return nil
	}
	if err != nil {
		return err
	}

	size := ""
	if info, probeErr := app.fs.Probe(uri); probeErr == nil && info.Exists {
		size = " (" + humanize.Bytes(uint64(info.Size)) + ")"
	}
	fmt.Printf("Saved %s%s in %s\n", uri, size, time.Since(started).Round(time.Millisecond))
	return nil
}

// printProgress renders a single updating progress line on stderr
func printProgress(label string) progress.Func {
	return func(pct float64) {
		fmt.Fprintf(os.Stderr, "\r%s %5.1f%%", label, pct)
	}
}

// parsePairs turns repeated key=value flags into a map
func parsePairs(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		key, value, ok := strings.Cut(p, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: expected key=value, got %q", domain.ErrInvalidInput, p)
		}
		out[key] = value
	}
	return out, nil
}

func newUploadHTTPClient(cfg *config.Config) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = cfg.HTTP.GetResponseHeaderTimeout()
	if cfg.HTTP.SkipTLSVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &http.Client{
		Transport: transport,
		Timeout:   cfg.HTTP.GetUploadTimeout(),
	}
}
