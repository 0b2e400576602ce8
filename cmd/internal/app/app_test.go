package app

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"podium/cmd/security/token"
)

func testKeyPEM(t *testing.T) string {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	pem, err := token.EncodePublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("encode key: %v", err)
	}
	return string(pem)
}

func TestLoadPublicKeyInline(t *testing.T) {
	pem := testKeyPEM(t)

	pub, err := loadPublicKey(Config{PublicKeyPEM: pem})
	if err != nil {
		t.Fatalf("loadPublicKey: %v", err)
	}
	if pub == nil {
		t.Fatal("loadPublicKey returned nil key")
	}
}

func TestLoadPublicKeyFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "podium.pub")
	if err := os.WriteFile(path, []byte(testKeyPEM(t)), 0o600); err != nil {
		t.Fatalf("write key file: %v", err)
	}

	pub, err := loadPublicKey(Config{PublicKeyFile: path})
	if err != nil {
		t.Fatalf("loadPublicKey: %v", err)
	}
	if pub == nil {
		t.Fatal("loadPublicKey returned nil key")
	}
}

func TestLoadPublicKeyMissing(t *testing.T) {
	if _, err := loadPublicKey(Config{}); err == nil {
		t.Fatal("expected error when no key is configured")
	}
}

func TestLoadPublicKeyBadFile(t *testing.T) {
	_, err := loadPublicKey(Config{PublicKeyFile: filepath.Join(t.TempDir(), "absent.pub")})
	if err == nil {
		t.Fatal("expected error for missing key file")
	}
}

func TestNewStoresUnknownBackend(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	_, err := NewStores(context.Background(), Config{StoreBackend: "etcd"}, log)
	if err == nil {
		t.Fatal("expected error for unknown backend")
	}
	if !strings.Contains(err.Error(), "etcd") {
		t.Fatalf("error does not name the backend: %v", err)
	}
}

func TestMemoryStoresPingAndClose(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	st, err := NewStores(context.Background(), Config{StoreBackend: StoreMemory}, log)
	if err != nil {
		t.Fatalf("NewStores: %v", err)
	}
	if err := st.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if err := st.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestNewAppRequiresKey(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	if _, err := New(Config{StoreBackend: StoreMemory}, log); err == nil {
		t.Fatal("expected New to fail without a verification key")
	}
}

func TestNewAppMemory(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	a, err := New(Config{StoreBackend: StoreMemory, PublicKeyPEM: testKeyPEM(t)}, log)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a.registry == nil || a.ledger == nil || a.gateway == nil {
		t.Fatal("app is missing wired components")
	}
}
