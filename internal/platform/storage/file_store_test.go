package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store := NewFileStore(root + "/")

	location, err := store.Save(ctx, "../nested/train.csv", []byte("q,a\n1,2\n"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if location != root+"/train.csv" {
		t.Fatalf("unexpected location: %s", location)
	}
	if _, err := os.Stat(filepath.Join(root, "train.csv")); err != nil {
		t.Fatalf("file not written: %v", err)
	}

	data, err := store.Read(ctx, location)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(data) != "q,a\n1,2\n" {
		t.Fatalf("content mismatch: %q", data)
	}

	if err := store.Remove(ctx, location); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := store.Read(ctx, location); err == nil {
		t.Fatalf("expected error reading a removed file")
	}
	if err := store.Remove(ctx, location); err != nil {
		t.Fatalf("removing a missing file should succeed: %v", err)
	}
}
