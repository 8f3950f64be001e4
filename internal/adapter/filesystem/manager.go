package filesystem

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/vertextoedge/filetransfer/internal/domain"
	"github.com/vertextoedge/filetransfer/internal/port"
)

// TempSuffix marks in-progress download files
const TempSuffix = ".downloading"

// Manager handles local filesystem operations
type Manager struct {
	rootDir    string
	bufferSize int
}

// Ensure Manager implements port.FileSystem
var _ port.FileSystem = (*Manager)(nil)

// NewManager creates a new filesystem manager
func NewManager(rootDir string) (*Manager, error) {
	return NewManagerWithBufferSize(rootDir, 1024*1024) // 1MB default
}

// NewManagerWithBufferSize creates a new filesystem manager with custom buffer size
func NewManagerWithBufferSize(rootDir string, bufferSize int) (*Manager, error) {
	// Ensure root directory exists
	if err := os.MkdirAll(rootDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create download root dir: %w", err)
	}

	if bufferSize <= 0 {
		bufferSize = 1024 * 1024
	}

	return &Manager{
		rootDir:    rootDir,
		bufferSize: bufferSize,
	}, nil
}

// RootDir returns the default download directory
func (m *Manager) RootDir() string {
	return m.rootDir
}

// Resolve returns the local path for a destination. Relative paths are
// placed under the root directory.
func (m *Manager) Resolve(destinationPath string) string {
	p := StripFileScheme(destinationPath)
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(m.rootDir, p)
}

// TempPath returns the in-progress path for a destination
func (m *Manager) TempPath(destinationPath string) string {
	return m.Resolve(destinationPath) + TempSuffix
}

// Probe inspects a local path. A missing file is not an error.
func (m *Manager) Probe(path string) (*domain.FileInfo, error) {
	local := StripFileScheme(path)
	name := filepath.Base(local)

	info, err := os.Stat(local)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.Missing(path, name), nil
		}
		return nil, fmt.Errorf("failed to stat %s: %w", local, err)
	}
	if info.IsDir() {
		return domain.Missing(path, name), nil
	}

	return &domain.FileInfo{
		URI:      path,
		Exists:   true,
		Size:     info.Size(),
		Name:     info.Name(),
		MimeType: detectMimeType(local),
		ModTime:  info.ModTime(),
	}, nil
}

// detectMimeType sniffs the file header, falling back to octet-stream
func detectMimeType(path string) string {
	mt, err := mimetype.DetectFile(path)
	if err != nil || mt == nil {
		return domain.DefaultMimeType
	}
	return mt.String()
}

// EnsureDir ensures the directory for a file path exists
func (m *Manager) EnsureDir(filePath string) error {
	dir := filepath.Dir(filePath)
	return os.MkdirAll(dir, 0755)
}

// WriteFileWithResume writes content with optional resume support
func (m *Manager) WriteFileWithResume(destinationPath string, reader io.Reader, resume bool, tempPath string) (string, int64, error) {
	finalPath := m.Resolve(destinationPath)

	// Ensure parent directory exists
	if err := m.EnsureDir(finalPath); err != nil {
		return "", 0, fmt.Errorf("failed to create parent dir: %w", err)
	}

	// If tempPath is not provided, generate a default one
	if tempPath == "" {
		tempPath = finalPath + TempSuffix
	}

	var f *os.File
	var existingSize int64
	var err error

	if resume {
		// Check if temp file exists and get its size
		if info, statErr := os.Stat(tempPath); statErr == nil {
			existingSize = info.Size()
			// Open in append mode
			f, err = os.OpenFile(tempPath, os.O_WRONLY|os.O_APPEND, 0644)
			if err != nil {
				return "", 0, fmt.Errorf("failed to open temp file for resume: %w", err)
			}
		} else {
			// Temp file doesn't exist, create new
			f, err = os.Create(tempPath)
			if err != nil {
				return "", 0, fmt.Errorf("failed to create temp file: %w", err)
			}
		}
	} else {
		// Always create new temp file
		f, err = os.Create(tempPath)
		if err != nil {
			return "", 0, fmt.Errorf("failed to create temp file: %w", err)
		}
	}

	buf := make([]byte, m.bufferSize)
	written, err := io.CopyBuffer(f, reader, buf)
	if err != nil {
		// Keep what was written so the transfer can be resumed
		f.Close()
		return "", existingSize + written, fmt.Errorf("failed to write file: %w", err)
	}

	if err := f.Close(); err != nil {
		return "", 0, fmt.Errorf("failed to close file: %w", err)
	}

	totalWritten := existingSize + written

	// Rename to final path
	if err := os.Rename(tempPath, finalPath); err != nil {
		return "", 0, fmt.Errorf("failed to rename temp file: %w", err)
	}

	return finalPath, totalWritten, nil
}

// DeleteFile removes a file
func (m *Manager) DeleteFile(path string) error {
	if err := os.Remove(m.Resolve(path)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// FileExists checks if a file exists
func (m *Manager) FileExists(path string) bool {
	_, err := os.Stat(m.Resolve(path))
	return err == nil
}

// GetTempFileInfo returns size and modification time of a temp file
// Returns error if file does not exist
func (m *Manager) GetTempFileInfo(tempPath string) (int64, time.Time, error) {
	info, err := os.Stat(tempPath)
	if err != nil {
		return 0, time.Time{}, err
	}
	return info.Size(), info.ModTime(), nil
}

// DeleteTempFile removes a temporary file
func (m *Manager) DeleteTempFile(tempPath string) error {
	if err := os.Remove(tempPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete temp file: %w", err)
	}
	return nil
}

// CleanOldTempFiles removes temp files older than the specified duration
func (m *Manager) CleanOldTempFiles(olderThan time.Duration, keep func(tempPath string) bool) (int, error) {
	count := 0
	threshold := time.Now().Add(-olderThan)

	err := filepath.Walk(m.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(path, TempSuffix) {
			return nil
		}
		if !info.ModTime().Before(threshold) {
			return nil
		}
		if keep != nil && keep(path) {
			return nil
		}
		if removeErr := os.Remove(path); removeErr == nil {
			count++
		}
		return nil
	})
	return count, err
}

// StripFileScheme turns a file:// URI into a plain path
func StripFileScheme(path string) string {
	return strings.TrimPrefix(path, "file://")
}
