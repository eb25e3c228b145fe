package store

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
)

// ArtifactStore persists downloaded summons artifacts.
type ArtifactStore interface {
	// PutArtifact stores data under identityKey and returns its location.
	PutArtifact(ctx context.Context, identityKey string, data []byte) (string, error)
}

// FileArtifactStore writes artifacts as files under a directory.
type FileArtifactStore struct {
	dir string
}

// NewFileArtifactStore creates dir if needed.
func NewFileArtifactStore(dir string) (*FileArtifactStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "store: create artifact dir %s", dir)
	}
	return &FileArtifactStore{dir: dir}, nil
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// PutArtifact writes data atomically. The extension follows the sniffed
// content type.
func (s *FileArtifactStore) PutArtifact(ctx context.Context, identityKey string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name := strings.Trim(unsafeName.ReplaceAllString(identityKey, "_"), "._")
	if name == "" {
		return "", eris.Errorf("store: unusable artifact key %q", identityKey)
	}
	path := filepath.Join(s.dir, name+extensionFor(data))

	tmp, err := os.CreateTemp(s.dir, name+".*.tmp")
	if err != nil {
		return "", eris.Wrap(err, "store: create temp artifact")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck
		return "", eris.Wrap(err, "store: write artifact")
	}
	if err := tmp.Close(); err != nil {
		return "", eris.Wrap(err, "store: close artifact")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", eris.Wrap(err, "store: rename artifact")
	}
	return path, nil
}

func extensionFor(data []byte) string {
	switch ct := http.DetectContentType(data); {
	case strings.HasPrefix(ct, "application/pdf"):
		return ".pdf"
	case strings.HasPrefix(ct, "image/png"):
		return ".png"
	case strings.HasPrefix(ct, "image/jpeg"):
		return ".jpg"
	case strings.HasPrefix(ct, "image/gif"):
		return ".gif"
	case strings.HasPrefix(ct, "text/html"):
		return ".html"
	default:
		return ".bin"
	}
}
