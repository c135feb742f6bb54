// Package blob stores uploaded originals under a per-user, per-session layout
// on any afs-supported location (file://, mem://, gs://).
package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"
	_ "github.com/viant/afsc/gs"
)

const DefaultSession = "default"

var ErrNotFound = errors.New("blob not found")

type Store struct {
	fs      afs.Service
	baseURL string
}

func New(baseURL string) *Store {
	return &Store{
		fs:      afs.New(),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// DocumentPath is the relative location of a document's original file.
func DocumentPath(userID, sessionID, documentID, filename string) string {
	return path.Join(DocumentPrefix(userID, sessionID, documentID), safeSegment(filename))
}

// DocumentPrefix is the directory holding every object stored for a document.
func DocumentPrefix(userID, sessionID, documentID string) string {
	if sessionID == "" {
		sessionID = DefaultSession
	}
	return path.Join("users", safeSegment(userID), "sessions", safeSegment(sessionID),
		"documents", safeSegment(documentID))
}

// URL resolves a relative path against the store location.
func (s *Store) URL(rel string) string {
	return url.Join(s.baseURL, rel)
}

// Put writes data at rel and returns its full URL.
func (s *Store) Put(ctx context.Context, rel string, data []byte) (string, error) {
	target := s.URL(rel)
	if err := s.fs.Upload(ctx, target, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("upload blob %s failed: %w", rel, err)
	}
	return target, nil
}

func (s *Store) Get(ctx context.Context, rel string) ([]byte, error) {
	target := s.URL(rel)
	exists, err := s.fs.Exists(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("check blob %s failed: %w", rel, err)
	}
	if !exists {
		return nil, ErrNotFound
	}
	data, err := s.fs.DownloadWithURL(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("download blob %s failed: %w", rel, err)
	}
	return data, nil
}

// Delete removes the blob at rel. A missing blob is not an error.
func (s *Store) Delete(ctx context.Context, rel string) error {
	target := s.URL(rel)
	exists, err := s.fs.Exists(ctx, target)
	if err != nil {
		return fmt.Errorf("check blob %s failed: %w", rel, err)
	}
	if !exists {
		return nil
	}
	if err := s.fs.Delete(ctx, target); err != nil {
		return fmt.Errorf("delete blob %s failed: %w", rel, err)
	}
	return nil
}

// List returns the relative paths of every file under prefix, recursively.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	root := s.URL(prefix)
	exists, err := s.fs.Exists(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("check blob prefix %s failed: %w", prefix, err)
	}
	if !exists {
		return nil, nil
	}
	var out []string
	if err := s.walk(ctx, root, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) walk(ctx context.Context, dirURL string, out *[]string) error {
	objects, err := s.fs.List(ctx, dirURL)
	if err != nil {
		return fmt.Errorf("list blobs %s failed: %w", dirURL, err)
	}
	for _, obj := range objects {
		objURL := obj.URL()
		if trimPath(objURL) == trimPath(dirURL) {
			continue
		}
		if obj.IsDir() {
			if err := s.walk(ctx, objURL, out); err != nil {
				return err
			}
			continue
		}
		*out = append(*out, s.relative(objURL))
	}
	return nil
}

func (s *Store) relative(objURL string) string {
	return strings.TrimPrefix(strings.TrimPrefix(trimPath(objURL), trimPath(s.baseURL)), "/")
}

func trimPath(u string) string {
	return strings.TrimRight(url.Path(u), "/")
}

// Ping confirms the store location can be queried.
func (s *Store) Ping(ctx context.Context) error {
	if _, err := s.fs.Exists(ctx, s.baseURL); err != nil {
		return fmt.Errorf("blob store unreachable: %w", err)
	}
	return nil
}

func safeSegment(s string) string {
	s = strings.TrimSpace(s)
	s = strings.NewReplacer("/", "_", "\\", "_").Replace(s)
	if s == "" || s == "." || s == ".." {
		return "_"
	}
	return s
}
