package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
)

// FileStore keeps uploaded datasets under a root location. The root may be a
// local directory or any URL scheme registered with afs.
type FileStore struct {
	fs   afs.Service
	root string
}

func NewFileStore(root string) *FileStore {
	return &FileStore{
		fs:   afs.New(),
		root: strings.TrimRight(root, "/"),
	}
}

// Save writes content as name under the root and returns the stored location.
func (s *FileStore) Save(ctx context.Context, name string, content []byte) (string, error) {
	location := s.root + "/" + path.Base(name)
	if err := s.fs.Upload(ctx, location, file.DefaultFileOsMode, bytes.NewReader(content)); err != nil {
		return "", fmt.Errorf("store dataset %s failed: %w", name, err)
	}
	return location, nil
}

func (s *FileStore) Read(ctx context.Context, location string) ([]byte, error) {
	exists, err := s.fs.Exists(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("check dataset %s failed: %w", location, err)
	}
	if !exists {
		return nil, fmt.Errorf("dataset %s does not exist", location)
	}
	data, err := s.fs.DownloadWithURL(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("read dataset %s failed: %w", location, err)
	}
	return data, nil
}

// Remove deletes the stored file. A missing file is not an error.
func (s *FileStore) Remove(ctx context.Context, location string) error {
	exists, err := s.fs.Exists(ctx, location)
	if err != nil {
		return fmt.Errorf("check dataset %s failed: %w", location, err)
	}
	if !exists {
		return nil
	}
	if err := s.fs.Delete(ctx, location); err != nil {
		return fmt.Errorf("delete dataset %s failed: %w", location, err)
	}
	return nil
}
