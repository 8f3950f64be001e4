package tus

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vertextoedge/filetransfer/internal/port"
)

// URLStorageKeyPrefix namespaces upload URL records in the key-value store
const URLStorageKeyPrefix = "tus::"

// URLStorage keeps upload URLs by fingerprint so interrupted uploads can be
// found again after a restart.
type URLStorage struct {
	store  port.KVStore
	logger *zap.Logger
}

// NewURLStorage creates URL storage on top of a key-value store
func NewURLStorage(store port.KVStore, logger *zap.Logger) *URLStorage {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &URLStorage{store: store, logger: logger}
}

func fingerprintPrefix(fingerprint string) string {
	return URLStorageKeyPrefix + fingerprint + "::"
}

// FindUploadsByFingerprint returns stored uploads, newest first
func (s *URLStorage) FindUploadsByFingerprint(ctx context.Context, fingerprint string) ([]port.PreviousUpload, error) {
	entries, err := s.store.List(ctx, fingerprintPrefix(fingerprint))
	if err != nil {
		return nil, fmt.Errorf("failed to list uploads: %w", err)
	}

	uploads := make([]port.PreviousUpload, 0, len(entries))
	for _, e := range entries {
		var upload port.PreviousUpload
		if err := json.Unmarshal([]byte(e.Value), &upload); err != nil {
			s.logger.Warn("skipping malformed upload record",
				zap.String("key", e.Key),
				zap.Error(err))
			continue
		}
		upload.URLStorageKey = e.Key
		uploads = append(uploads, upload)
	}

	sort.SliceStable(uploads, func(i, j int) bool {
		return uploads[i].CreationTime.After(uploads[j].CreationTime)
	})
	return uploads, nil
}

// AddUpload stores an upload and returns its storage key
func (s *URLStorage) AddUpload(ctx context.Context, fingerprint string, upload port.PreviousUpload) (string, error) {
	data, err := json.Marshal(upload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal upload: %w", err)
	}

	key := fingerprintPrefix(fingerprint) + uuid.New().String()
	if err := s.store.Put(ctx, key, string(data)); err != nil {
		return "", fmt.Errorf("failed to store upload: %w", err)
	}
	return key, nil
}

// RemoveUpload deletes a stored upload
func (s *URLStorage) RemoveUpload(ctx context.Context, key string) error {
	if err := s.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("failed to remove upload: %w", err)
	}
	return nil
}
