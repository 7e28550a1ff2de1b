package credentials

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	ctx := context.Background()

	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}

	if _, err := store.Get(ctx, "U024BE7LH"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound got %v", err)
	}

	creds := Credentials{Endpoint: "https://wallet.example/api", Identifier: "alice", Secret: "s3cret"}
	if err := store.Upsert(ctx, "U024BE7LH", creds); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	// A fresh store over the same path must see the persisted record.
	reopened, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("reopen file store: %v", err)
	}
	got, err := reopened.Get(ctx, "U024BE7LH")
	if err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
	if got != creds {
		t.Fatalf("expected %+v got %+v", creds, got)
	}
}

func TestFileStoreMissingFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.json")

	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	if _, err := store.Get(context.Background(), "U024BE7LH"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound got %v", err)
	}
}

func TestFileStoreRejectsCorruptDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	if _, err := NewFileStore(path); err == nil {
		t.Fatal("expected error for corrupt document")
	}
}
