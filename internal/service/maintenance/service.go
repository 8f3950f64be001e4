package maintenance

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vertextoedge/filetransfer/internal/adapter/filesystem"
	"github.com/vertextoedge/filetransfer/internal/domain"
	"github.com/vertextoedge/filetransfer/internal/domain/event"
	"github.com/vertextoedge/filetransfer/internal/port"
)

// Config contains maintenance service configuration
type Config struct {
	// TempFileMaxAge is the age after which an orphaned partial download is removed
	TempFileMaxAge time.Duration

	// Interval is how often the cleanup runs
	Interval time.Duration
}

// DefaultConfig returns default maintenance configuration
func DefaultConfig() *Config {
	return &Config{
		TempFileMaxAge: 7 * 24 * time.Hour,
		Interval:       time.Hour,
	}
}

// Service removes stale partial downloads that no paused record refers to
type Service struct {
	config *Config
	fs     port.FileSystem
	store  port.KVStore
	events event.EventDispatcher
	logger *zap.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a new maintenance Service
func New(cfg *Config, fs port.FileSystem, store port.KVStore, events event.EventDispatcher, logger *zap.Logger) *Service {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.TempFileMaxAge == 0 {
		cfg.TempFileMaxAge = 7 * 24 * time.Hour
	}
	if cfg.Interval == 0 {
		cfg.Interval = time.Hour
	}
	if events == nil {
		events = event.NewNullDispatcher()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		config: cfg,
		fs:     fs,
		store:  store,
		events: events,
		logger: logger,
	}
}

// Start runs the cleanup loop until ctx is cancelled or Stop is called
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("maintenance service already running")
	}
	s.running = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.logger.Info("maintenance service started",
		zap.Duration("interval", s.config.Interval),
		zap.Duration("temp_file_max_age", s.config.TempFileMaxAge))

	s.wg.Add(1)
	go s.maintenanceLoop(ctx)

	<-ctx.Done()
	s.wg.Wait()
	s.logger.Info("maintenance service stopped")
	return nil
}

// Stop stops the maintenance service
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	s.running = false
}

func (s *Service) maintenanceLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logger.Error("failed to cleanup old temp files", zap.Error(err))
			}
		}
	}
}

// RunOnce removes old temp files whose destination has no paused record.
// Returns the number of files removed.
func (s *Service) RunOnce(ctx context.Context) (int, error) {
	started := time.Now()

	count, err := s.fs.CleanOldTempFiles(s.config.TempFileMaxAge, func(tempPath string) bool {
		return s.isPaused(ctx, tempPath)
	})
	if err != nil {
		return count, err
	}

	if count > 0 {
		s.logger.Info("cleaned up old temp files from filesystem", zap.Int("count", count))
	}
	s.events.Dispatch(event.NewTempFilesCleaned(count, time.Since(started)))
	return count, nil
}

// isPaused checks both the absolute destination and its form relative to
// the download root, since callers may pause with either.
func (s *Service) isPaused(ctx context.Context, tempPath string) bool {
	dest := strings.TrimSuffix(tempPath, filesystem.TempSuffix)

	for _, c := range s.keyForms(dest) {
		_, ok, err := s.store.Get(ctx, domain.PausedKey(c))
		if err != nil {
			// Keep the file when the store cannot answer
			s.logger.Warn("failed to check paused record", zap.String("path", dest), zap.Error(err))
			return true
		}
		if ok {
			return true
		}
	}
	return false
}

// keyForms returns the distinct destination forms a record for path may be
// stored under
func (s *Service) keyForms(path string) []string {
	abs := s.fs.Resolve(path)
	candidates := []string{path, abs}
	if rel, err := filepath.Rel(s.fs.RootDir(), abs); err == nil && !strings.HasPrefix(rel, "..") {
		candidates = append(candidates, rel, filepath.ToSlash(rel))
	}

	forms := make([]string, 0, len(candidates))
	seen := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		if !seen[c] {
			seen[c] = true
			forms = append(forms, c)
		}
	}
	return forms
}

// deleteRecords removes every stored form of key for destinationPath and
// reports whether any existed
func (s *Service) deleteRecords(ctx context.Context, destinationPath string, key func(string) string) (bool, error) {
	found := false
	for _, form := range s.keyForms(destinationPath) {
		_, ok, err := s.store.Get(ctx, key(form))
		if err != nil {
			return found, err
		}
		if !ok {
			continue
		}
		found = true
		if err := s.store.Delete(ctx, key(form)); err != nil {
			return found, fmt.Errorf("failed to delete record for %s: %w", form, err)
		}
	}
	return found, nil
}

// Discard drops a paused download. Its partial file and its paused record
// are removed, so it can no longer be resumed.
func (s *Service) Discard(ctx context.Context, destinationPath string) error {
	if destinationPath == "" {
		return fmt.Errorf("%w: destination is required", domain.ErrInvalidInput)
	}

	tempPath := s.fs.TempPath(destinationPath)
	hadTemp := s.fs.FileExists(tempPath)
	if hadTemp {
		if err := s.fs.DeleteTempFile(tempPath); err != nil {
			return err
		}
	}

	hadRecord, err := s.deleteRecords(ctx, destinationPath, domain.PausedKey)
	if err != nil {
		return err
	}
	if !hadTemp && !hadRecord {
		return fmt.Errorf("%w: no paused download for %s", domain.ErrNotFound, destinationPath)
	}

	s.logger.Info("discarded paused download",
		zap.String("path", destinationPath),
		zap.Bool("partial_file", hadTemp))
	return nil
}

// Delete removes a downloaded file and its completed record
func (s *Service) Delete(ctx context.Context, destinationPath string) error {
	if destinationPath == "" {
		return fmt.Errorf("%w: path is required", domain.ErrInvalidInput)
	}
	if !s.fs.FileExists(destinationPath) {
		return fmt.Errorf("%w: %s: %w", domain.ErrNotFound, destinationPath, domain.ErrFileNotExist)
	}
	if err := s.fs.DeleteFile(destinationPath); err != nil {
		return err
	}
	if _, err := s.deleteRecords(ctx, destinationPath, domain.CompletedKey); err != nil {
		return err
	}

	s.logger.Info("deleted file", zap.String("path", destinationPath))
	return nil
}
