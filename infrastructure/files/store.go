// Package files holds the small slice of the upload subsystem the
// engine consumes: removal of stored files once nothing references
// them. Upload and download are served elsewhere.
package files

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"lanshare/errors"
)

type LocalStore struct {
	dir string
	log *slog.Logger
}

func NewLocalStore(dir string, log *slog.Logger) *LocalStore {
	return &LocalStore{dir: dir, log: log}
}

// Remove deletes the stored file named by fileID. Missing files are not
// an error: the cleanup may race a manual delete. Path traversal in the
// identifier is refused.
func (s *LocalStore) Remove(_ context.Context, fileID string) error {
	if fileID == "" || strings.ContainsAny(fileID, "/\\") || strings.Contains(fileID, "..") {
		return errors.ErrInvalidInput
	}
	err := os.Remove(filepath.Join(s.dir, fileID))
	if os.IsNotExist(err) {
		return nil
	}
	if err == nil {
		s.log.Info("Removed stored file", "file", fileID)
	}
	return err
}
