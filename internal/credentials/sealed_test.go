package credentials

import (
	"bytes"
	"context"
	"testing"
)

func TestSealedStoreRoundTrip(t *testing.T) {
	inner := NewMemoryStore()
	store, err := Sealed(inner, bytes.Repeat([]byte{0x42}, 32))
	if err != nil {
		t.Fatalf("sealed: %v", err)
	}
	ctx := context.Background()

	creds := Credentials{Endpoint: "https://wallet.example/api", Identifier: "alice", Secret: "hunter2"}
	if err := store.Upsert(ctx, "U024BE7LH", creds); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	// The backend must never see the plaintext secret.
	raw, err := inner.Get(ctx, "U024BE7LH")
	if err != nil {
		t.Fatalf("inner get: %v", err)
	}
	if raw.Secret == creds.Secret {
		t.Fatal("secret stored in plaintext")
	}
	if raw.Endpoint != creds.Endpoint || raw.Identifier != creds.Identifier {
		t.Fatalf("non-secret fields changed: %+v", raw)
	}

	got, err := store.Get(ctx, "U024BE7LH")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != creds {
		t.Fatalf("expected %+v got %+v", creds, got)
	}
}

func TestSealedStoreDistinctNonces(t *testing.T) {
	inner := NewMemoryStore()
	store, err := Sealed(inner, bytes.Repeat([]byte{0x42}, 32))
	if err != nil {
		t.Fatalf("sealed: %v", err)
	}
	ctx := context.Background()

	creds := Credentials{Identifier: "alice", Secret: "hunter2"}
	if err := store.Upsert(ctx, "U1", creds); err != nil {
		t.Fatalf("upsert U1: %v", err)
	}
	first, _ := inner.Get(ctx, "U1")

	if err := store.Upsert(ctx, "U1", creds); err != nil {
		t.Fatalf("upsert U1 again: %v", err)
	}
	second, _ := inner.Get(ctx, "U1")

	if first.Secret == second.Secret {
		t.Fatal("expected distinct ciphertexts for repeated seals")
	}
}

func TestSealedStoreRejectsBadKeyLength(t *testing.T) {
	if _, err := Sealed(NewMemoryStore(), []byte("short")); err == nil {
		t.Fatal("expected error for short key")
	}
	if _, err := Sealed(nil, bytes.Repeat([]byte{0x42}, 32)); err == nil {
		t.Fatal("expected error for nil inner store")
	}
}

func TestSealedStoreWrongKeyFailsToOpen(t *testing.T) {
	inner := NewMemoryStore()
	ctx := context.Background()

	writer, err := Sealed(inner, bytes.Repeat([]byte{0x01}, 32))
	if err != nil {
		t.Fatalf("sealed writer: %v", err)
	}
	if err := writer.Upsert(ctx, "U024BE7LH", Credentials{Secret: "hunter2"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	reader, err := Sealed(inner, bytes.Repeat([]byte{0x02}, 32))
	if err != nil {
		t.Fatalf("sealed reader: %v", err)
	}
	if _, err := reader.Get(ctx, "U024BE7LH"); err == nil {
		t.Fatal("expected unseal failure with wrong key")
	}
}
